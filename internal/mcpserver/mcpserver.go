// Package mcpserver exposes the skill registry as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/skills"
)

const listSkillsTool = "list_skills"

// New builds an MCP server with one tool per registered skill plus
// list_skills.
func New(name, version string, registry *skills.Registry, executor skills.Executor) *server.MCPServer {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s.AddTool(listSkillsDefinition(), listSkillsHandler(registry))
	for _, d := range registry.List() {
		tool := &SkillTool{desc: d, executor: executor}
		s.AddTool(tool.Definition(), tool.Handle)
	}
	return s
}

// Serve runs the server over stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func listSkillsDefinition() mcp.Tool {
	return mcp.NewTool(listSkillsTool,
		mcp.WithDescription("List the available skills with their icon, locality and whether their credentials are configured."),
	)
}

func listSkillsHandler(registry *skills.Registry) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var b strings.Builder
		for _, d := range registry.List() {
			state := "ready"
			if !registry.Valid(d) {
				state = "missing " + strings.Join(d.RequiredCredentials, ", ")
			}
			fmt.Fprintf(&b, "%s %s (%s, %s): %s\n", d.Icon, d.Name, d.Location, state, d.HumanDescription)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

// SkillTool adapts one skill to an MCP tool.
type SkillTool struct {
	desc     skills.Descriptor
	executor skills.Executor
}

// Definition returns the MCP tool definition.
func (t *SkillTool) Definition() mcp.Tool {
	return mcp.NewTool(t.desc.Name,
		mcp.WithDescription(t.desc.ModelDescription),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("The task to perform"),
		),
		mcp.WithString("objective",
			mcp.Description("The overall objective the task serves"),
		),
		mcp.WithString("dependent_task_outputs",
			mcp.Description("Outputs of earlier tasks, as 'Task <id> Output: ...' lines"),
		),
		mcp.WithString("language",
			mcp.Description("Output language code (default: en)"),
		),
	)
}

// Handle runs the skill. The text result is the output followed by the
// resolved parameters, if any.
func (t *SkillTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task := req.GetString("task", "")
	if task == "" {
		return mcp.NewToolResultError("'task' is required"), nil
	}
	objective := req.GetString("objective", "")
	if objective == "" {
		objective = task
	}

	out, err := t.executor.Execute(ctx, t.desc.Name, skills.Input{
		Task: domain.Task{
			ID:               1,
			Task:             task,
			Skill:            t.desc.Name,
			Icon:             t.desc.Icon,
			DependentTaskIDs: []int{},
			Status:           domain.StatusRunning,
		},
		DependentOutputs: req.GetString("dependent_task_outputs", ""),
		Objective:        objective,
		Language:         req.GetString("language", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", t.desc.Name, err)), nil
	}

	text := out.Output
	if !out.Parameters.IsZero() {
		params, _ := json.Marshal(out.Parameters)
		text += "\n\nparameters: " + string(params)
	}
	if strings.TrimSpace(text) == "" {
		text = "No output."
	}
	return mcp.NewToolResultText(text), nil
}
