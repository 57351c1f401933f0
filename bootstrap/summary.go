package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kbukum/fixturekit/runner"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	statusStyles = map[runner.Status]lipgloss.Style{
		runner.Passed:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		runner.Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		runner.Errored: lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
		runner.Skipped: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
)

// Summary collects session reports and renders them as a tree.
// It implements runner.Reporter.
type Summary struct {
	name    string
	version string

	mu      sync.Mutex
	reports []*runner.Report
}

// NewSummary creates an empty summary.
func NewSummary(name, version string) *Summary {
	return &Summary{name: name, version: version}
}

func (s *Summary) SessionStarted(context.Context, runner.SessionInfo) {}
func (s *Summary) TestStarted(context.Context, string) {}
func (s *Summary) TestFinished(context.Context, runner.Outcome) {}

// SessionFinished stores rep for rendering.
func (s *Summary) SessionFinished(_ context.Context, rep *runner.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, rep)
}

// Reports returns the collected reports in completion order.
func (s *Summary) Reports() []*runner.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*runner.Report(nil), s.reports...)
}

// Failed reports whether any collected session failed.
func (s *Summary) Failed() bool {
	for _, rep := range s.Reports() {
		if rep.Failed() {
			return true
		}
	}
	return false
}

// Render formats every collected report.
func (s *Summary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n\n", titleStyle.Render(fmt.Sprintf("%s %s", s.name, s.version)))

	reports := s.Reports()
	if len(reports) == 0 {
		b.WriteString("   └── no sessions run\n\n")
		return b.String()
	}
	for _, rep := range reports {
		renderReport(&b, rep)
	}
	return b.String()
}

func renderReport(b *strings.Builder, rep *runner.Report) {
	fmt.Fprintf(b, "%s %s\n", sectionStyle.Render(rep.Session),
		dimStyle.Render(fmt.Sprintf("(%d tests in %s)", len(rep.Outcomes), rep.Duration.Round(time.Millisecond))))

	for i, o := range rep.Outcomes {
		prefix, cont := "├──", "│  "
		if i == len(rep.Outcomes)-1 && len(rep.TeardownErrors) == 0 {
			prefix, cont = "└──", "   "
		}
		fmt.Fprintf(b, "   %s %s %s %s\n", prefix, statusLabel(o.Status), o.ID,
			dimStyle.Render(o.Duration.Round(time.Microsecond).String()))
		if o.Err != nil {
			fmt.Fprintf(b, "   %s    %s\n", cont, errStyle.Render(o.Err.Error()))
		}
	}

	if n := len(rep.TeardownErrors); n > 0 {
		fmt.Fprintf(b, "   └── %s\n", errStyle.Render(fmt.Sprintf("%d teardown error(s)", n)))
		for _, err := range rep.TeardownErrors {
			fmt.Fprintf(b, "          %s\n", errStyle.Render(err.Error()))
		}
	}

	counts := rep.Counts()
	parts := make([]string, 0, 4)
	for _, st := range []runner.Status{runner.Passed, runner.Failed, runner.Errored, runner.Skipped} {
		if counts[st] > 0 {
			parts = append(parts, statusStyles[st].Render(fmt.Sprintf("%d %s", counts[st], st)))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "no tests")
	}
	fmt.Fprintf(b, "\n   %s\n\n", strings.Join(parts, ", "))
}

func statusLabel(st runner.Status) string {
	style, ok := statusStyles[st]
	if !ok {
		return strings.ToUpper(string(st))
	}
	return style.Render(strings.ToUpper(string(st)))
}
