package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kbukum/fixturekit/fixture"
	"github.com/kbukum/fixturekit/internal/demo"
	"github.com/kbukum/fixturekit/logger"
	"github.com/kbukum/fixturekit/runner"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	scopeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <test-id>",
		Short: "Print the fixture resolution order of a demo test",
		Long: `Print the fixture resolution order of a demo test, widest scope first.
Without arguments the available test ids are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, t := range demo.Tests() {
					fmt.Fprintln(out, t.ID())
				}
				return nil
			}

			test, ok := demo.Find(args[0])
			if !ok {
				return fmt.Errorf("unknown test %q", args[0])
			}
			s := runner.NewSession("demo", demo.Registry(), runner.WithLogger(logger.Nop()))
			plan, err := s.Plan(test)
			if err != nil {
				return err
			}
			fmt.Fprint(out, renderPlan(test, plan.Fixtures(), len(plan.Combinations())))
			return nil
		},
	}
}

func renderPlan(test runner.Test, fixtures []fixture.PlannedFixture, combinations int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", headerStyle.Render(test.ID()))
	for i, f := range fixtures {
		prefix := "├──"
		if i == len(fixtures)-1 {
			prefix = "└──"
		}
		var notes []string
		if f.Autouse {
			notes = append(notes, "autouse")
		}
		if len(f.Requires) > 0 {
			notes = append(notes, "requires "+strings.Join(f.Requires, ", "))
		}
		if n := len(f.Params); n > 0 {
			notes = append(notes, fmt.Sprintf("%d params", n))
		}
		line := fmt.Sprintf("   %s %d. %s %s", prefix, i+1, f.ID, scopeStyle.Render("["+f.Scope.String()+"]"))
		if len(notes) > 0 {
			line += " " + dimStyle.Render(strings.Join(notes, "; "))
		}
		b.WriteString(line + "\n")
	}
	if len(fixtures) == 0 {
		b.WriteString("   └── no fixtures\n")
	}
	invocations := combinations * max(len(test.Cases), 1)
	fmt.Fprintf(&b, "\n   %s\n", dimStyle.Render(fmt.Sprintf("%d invocation(s)", invocations)))
	return b.String()
}
