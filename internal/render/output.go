package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/joss/elf/internal/domain"
	"github.com/joss/elf/internal/runstore"
	"github.com/joss/elf/internal/skills"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer. Colors are only used when pretty is set.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

func (r *Renderer) paint(s string, attrs ...color.Attribute) string {
	if !r.pretty {
		return s
	}
	return color.New(attrs...).Sprint(s)
}

func (r *Renderer) messageColor(t domain.MessageType) []color.Attribute {
	switch t {
	case domain.MessageObjective:
		return []color.Attribute{color.FgCyan, color.Bold}
	case domain.MessageTaskList, domain.MessageTaskExecute:
		return []color.Attribute{color.FgBlue}
	case domain.MessageNextTask:
		return []color.Attribute{color.FgYellow}
	case domain.MessageTaskOutput:
		return []color.Attribute{color.FgGreen}
	case domain.MessageReflection:
		return []color.Attribute{color.FgMagenta}
	case domain.MessageDone:
		return []color.Attribute{color.FgGreen, color.Bold}
	case domain.MessageFailed:
		return []color.Attribute{color.FgRed, color.Bold}
	default:
		return []color.Attribute{color.Faint}
	}
}

func (r *Renderer) header(m domain.Message) string {
	title := m.Title
	if title == "" {
		title = string(m.Type)
	}
	if m.Icon != "" && !strings.HasPrefix(title, m.Icon) {
		title = m.Icon + " " + title
	}
	return r.paint(title, r.messageColor(m.Type)...)
}

// stripFence removes the markdown code fence that wraps streamed JSON and
// search logs.
func stripFence(text string) string {
	if strings.HasPrefix(text, "```") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		} else {
			return ""
		}
	}
	return strings.TrimSuffix(strings.TrimSuffix(text, "```"), "\n")
}

// Message formats one message as a header line followed by its body.
func (r *Renderer) Message(m domain.Message) string {
	var sb strings.Builder
	sb.WriteString(r.header(m))
	sb.WriteString("\n")
	if body := stripFence(m.Text); body != "" {
		sb.WriteString(body)
		sb.WriteString("\n")
	}
	return sb.String()
}

// MessageLog formats a stored message log.
func (r *Renderer) MessageLog(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return "No messages"
	}
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(r.Message(m))
	}
	return sb.String()
}

// Tasks formats a task list, one line per task.
func (r *Renderer) Tasks(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "No tasks"
	}
	var sb strings.Builder
	for _, t := range tasks {
		icon := StatusIcon(t.Status)
		switch t.Status {
		case domain.StatusComplete:
			icon = r.paint(icon, color.FgGreen)
		case domain.StatusRunning:
			icon = r.paint(icon, color.FgYellow)
		}
		fmt.Fprintf(&sb, "  %s %d. %s %s %s", icon, t.ID, t.Icon, t.Task, r.paint("["+t.Skill+"]", color.Faint))
		if len(t.DependentTaskIDs) > 0 {
			ids := make([]string, len(t.DependentTaskIDs))
			for i, id := range t.DependentTaskIDs {
				ids[i] = fmt.Sprint(id)
			}
			fmt.Fprintf(&sb, " ← %s", strings.Join(ids, ","))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// Skills formats the skill catalog with a readiness marker per skill.
func (r *Renderer) Skills(descs []skills.Descriptor, valid func(skills.Descriptor) bool) string {
	if len(descs) == 0 {
		return "No skills registered"
	}
	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Skills\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}
	for _, d := range descs {
		ok := valid(d)
		mark := BoolIcon(ok)
		if ok {
			mark = r.paint(mark, color.FgGreen)
		} else {
			mark = r.paint(mark, color.FgRed)
		}
		fmt.Fprintf(&sb, "%s %s %-18s %-6s %s\n", mark, d.Icon, d.Name, d.Location, d.HumanDescription)
		if !ok {
			fmt.Fprintf(&sb, "    └─ needs %s\n", strings.Join(d.RequiredCredentials, ", "))
		}
	}
	return sb.String()
}

// Runs formats stored runs, newest first.
func (r *Renderer) Runs(runs []*runstore.Run) string {
	if len(runs) == 0 {
		return "No runs found"
	}
	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Recent Runs\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}
	for _, run := range runs {
		done := 0
		for _, t := range run.Tasks {
			if t.Status == domain.StatusComplete {
				done++
			}
		}
		fmt.Fprintf(&sb, "%s  %s  %-9s %d/%d  %s\n",
			run.UpdatedAt.Local().Format("2006-01-02 15:04"),
			r.paint(run.ID, color.Faint),
			r.runStatus(run.Status),
			done, len(run.Tasks),
			Truncate(run.Objective, 60))
	}
	return sb.String()
}

func (r *Renderer) runStatus(status string) string {
	padded := fmt.Sprintf("%-9s", status)
	switch status {
	case "complete":
		return r.paint(padded, color.FgGreen)
	case "no-plan", "blocked", "failed":
		return r.paint(padded, color.FgRed)
	case "stopped", "limited":
		return r.paint(padded, color.FgYellow)
	}
	return padded
}

// Run formats one run with its task list and final output.
func (r *Renderer) Run(run *runstore.Run) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", r.paint("Run", color.Bold), run.ID)
	fmt.Fprintf(&sb, "Objective: %s\n", run.Objective)
	fmt.Fprintf(&sb, "Status:    %s\n", strings.TrimSpace(r.runStatus(run.Status)))
	fmt.Fprintf(&sb, "Language:  %s\n", run.Language)
	fmt.Fprintf(&sb, "Duration:  %s\n", FormatDuration(run.UpdatedAt.Sub(run.CreatedAt)))
	sb.WriteString("\nTasks:\n")
	sb.WriteString(r.Tasks(run.Tasks))
	if run.Output != "" {
		sb.WriteString("\nOutput:\n")
		sb.WriteString(run.Output)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Live prints messages as they arrive. A message re-emitted under the same
// ID whose body extends the earlier one prints only the new text, so streamed
// tokens and cumulative search logs read as a continuous stream.
type Live struct {
	r       *Renderer
	out     io.Writer
	mu      sync.Mutex
	bodies  map[string]string
	last    string
	midLine bool
}

// Live returns a live printer writing to w.
func (r *Renderer) Live(w io.Writer) *Live {
	return &Live{r: r, out: w, bodies: make(map[string]string)}
}

// Sink returns the message sink feeding the printer.
func (l *Live) Sink() domain.MessageSink {
	return l.print
}

func (l *Live) print(m domain.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	body := stripFence(m.Text)
	prev, seen := l.bodies[m.ID]
	l.bodies[m.ID] = body

	delta := body
	continued := seen && strings.HasPrefix(body, prev)
	if continued {
		delta = body[len(prev):]
	}

	if !continued || l.last != m.ID {
		if l.midLine {
			l.write("\n")
		}
		l.write("\n" + l.r.header(m) + "\n")
	}
	l.last = m.ID
	l.write(delta)
}

func (l *Live) write(s string) {
	if s == "" {
		return
	}
	io.WriteString(l.out, s)
	l.midLine = !strings.HasSuffix(s, "\n")
}

// Finish terminates a partially written line.
func (l *Live) Finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.midLine {
		l.write("\n")
	}
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
