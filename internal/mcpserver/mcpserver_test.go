package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/skills"
)

type fakeExecutor struct {
	out  skills.Output
	err  error
	name string
	in   skills.Input
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, in skills.Input) (skills.Output, error) {
	f.name, f.in = name, in
	return f.out, f.err
}

func callTool(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestSkillToolExecutes(t *testing.T) {
	exec := &fakeExecutor{out: skills.Output{Output: "report", Parameters: &domain.Parameters{Symbol: "ACME"}}}
	tool := &SkillTool{desc: skills.Descriptor{Name: "filing_search", Icon: "🗄"}, executor: exec}

	res, err := tool.Handle(context.Background(), callTool(map[string]interface{}{
		"task":                   "Find revenue drivers",
		"dependent_task_outputs": "Task 1 Output: x",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	text := resultText(t, res)
	assert.Contains(t, text, "report")
	assert.Contains(t, text, `"symbol":"ACME"`)
	assert.Equal(t, "filing_search", exec.name)
	assert.Equal(t, "Find revenue drivers", exec.in.Objective)
	assert.Equal(t, "Task 1 Output: x", exec.in.DependentOutputs)
}

func TestSkillToolRequiresTask(t *testing.T) {
	tool := &SkillTool{desc: skills.Descriptor{Name: "text_completion"}, executor: &fakeExecutor{}}
	res, err := tool.Handle(context.Background(), callTool(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSkillToolReportsFailure(t *testing.T) {
	tool := &SkillTool{desc: skills.Descriptor{Name: "text_completion"}, executor: &fakeExecutor{err: errors.New("boom")}}
	res, err := tool.Handle(context.Background(), callTool(map[string]interface{}{"task": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "boom")
}

type namedSkill struct{ desc skills.Descriptor }

func (s namedSkill) Descriptor() skills.Descriptor { return s.desc }
func (s namedSkill) Execute(context.Context, skills.Input) (skills.Output, error) {
	return skills.Output{}, nil
}

func TestListSkills(t *testing.T) {
	reg := skills.NewRegistry([]string{"llm"})
	require.NoError(t, reg.Register(
		namedSkill{skills.Descriptor{Name: "text_completion", Icon: "🤖", RequiredCredentials: []string{"llm"}, Location: skills.LocationLocal}},
		namedSkill{skills.Descriptor{Name: "transcript_search", Icon: "📞", RequiredCredentials: []string{"index"}, Location: skills.LocationRemote}},
	))

	s := New("elf", "test", reg, skills.NewDispatcher(reg, nil))
	require.NotNil(t, s)

	res, err := listSkillsHandler(reg)(context.Background(), callTool(nil))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "text_completion (local, ready)")
	assert.Contains(t, text, "transcript_search (remote, missing index)")
}
