package calltree

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xlab/treeprint"

	"github.com/prettymuchbryce/calltrace/internal/report"
)

// Styles for rendered call trees
var (
	runStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // Cyan
	unitStyle   = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // Gray
)

const (
	passIcon    = "✓"
	failIcon    = "✗"
	warnIcon    = "!"
	unknownIcon = "?"
	openIcon    = "…"
)

// RenderOptions controls Render.
type RenderOptions struct {
	// Variables adds pre and post variables below each unit.
	Variables bool
}

// Render prints every run as a tree of its units.
func Render(w io.Writer, runs []Run, opts RenderOptions) error {
	for _, run := range runs {
		tree := treeprint.NewWithRoot(runTitle(run))
		for _, n := range run.Children {
			addNode(tree, n, opts)
		}
		if _, err := fmt.Fprint(w, tree.String()); err != nil {
			return err
		}
	}
	return nil
}

func runTitle(run Run) string {
	title := runStyle.Render("━━━ " + run.Source + " ━━━")
	var details []string
	if run.TestRunID != "" {
		details = append(details, "run "+run.TestRunID)
	}
	if run.CommitID != "" {
		details = append(details, "commit "+run.CommitID)
	}
	if run.Started != "" {
		details = append(details, run.Started)
	}
	if len(details) > 0 {
		title += " " + detailStyle.Render("("+strings.Join(details, ", ")+")")
	}
	return title
}

func addNode(branch treeprint.Tree, n Node, opts RenderOptions) {
	label := formatNode(n)
	var sub treeprint.Tree
	hasDetails := opts.Variables && (len(n.PreVariables) > 0 || len(n.PostVariables) > 0)
	if len(n.Children) > 0 || n.Failure() != "" || hasDetails {
		sub = branch.AddBranch(label)
	} else {
		branch.AddNode(label)
		return
	}

	if opts.Variables {
		addVariables(sub, "pre", n.PreVariables)
	}
	for _, c := range n.Children {
		addNode(sub, c, opts)
	}
	if f := n.Failure(); f != "" {
		sub.AddNode(failStyle.Render(failureKind(n) + ": " + f))
	}
	if opts.Variables {
		addVariables(sub, "post", n.PostVariables)
	}
}

func addVariables(branch treeprint.Tree, kind string, vars report.Variables) {
	for _, k := range vars.Keys() {
		branch.AddNode(detailStyle.Render(fmt.Sprintf("%s %s = %q", kind, k, vars[k])))
	}
}

// formatNode formats a unit as `<icon> UNIT message (duration)`.
func formatNode(n Node) string {
	result := fmt.Sprintf("%s %s %s", statusIcon(n), unitStyle.Render(n.Unit.String()), n.Message)
	if !n.Open() {
		result += " " + detailStyle.Render("("+n.Duration().Round(time.Millisecond).String()+")")
	}
	return result
}

func statusIcon(n Node) string {
	if n.Open() {
		return detailStyle.Render(openIcon)
	}
	switch n.Status {
	case report.StatusOK, report.StatusInfo:
		return passStyle.Render(passIcon)
	case report.StatusWarning:
		return warnStyle.Render(warnIcon)
	case report.StatusError, report.StatusAborted:
		return failStyle.Render(failIcon)
	default:
		return warnStyle.Render(unknownIcon)
	}
}

func failureKind(n Node) string {
	switch {
	case n.FixtureException != nil:
		return "fixture exception"
	case n.Exception != "":
		return "exception"
	default:
		return "assertion failed"
	}
}

// Summary counts units per unit kind and status.
type Summary struct {
	Runs   int
	Counts map[report.Unit]map[report.Status]int
}

// Summarize counts all units of runs. Units still open count as STARTED.
func Summarize(runs []Run) Summary {
	s := Summary{Runs: len(runs), Counts: make(map[report.Unit]map[report.Status]int)}
	for _, run := range runs {
		for _, root := range run.Children {
			root.Walk(func(n Node, _ int) {
				status := n.Status
				if n.Open() {
					status = report.StatusStarted
				}
				if s.Counts[n.Unit] == nil {
					s.Counts[n.Unit] = make(map[report.Status]int)
				}
				s.Counts[n.Unit][status]++
			})
		}
	}
	return s
}

// Total returns the number of units with the given status over all kinds.
func (s Summary) Total(status report.Status) int {
	total := 0
	for _, byStatus := range s.Counts {
		total += byStatus[status]
	}
	return total
}

// RenderSummary prints s as a table with one row per unit kind.
func RenderSummary(w io.Writer, s Summary) {
	statuses := report.Statuses()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Call tree summary (%d runs)", s.Runs)

	header := table.Row{"Unit"}
	for _, st := range statuses {
		header = append(header, st.String())
	}
	t.AppendHeader(header)

	units := make([]report.Unit, 0, len(s.Counts))
	for u := range s.Counts {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Rank() < units[j].Rank() })

	for _, u := range units {
		row := table.Row{u.String()}
		for _, st := range statuses {
			row = append(row, s.Counts[u][st])
		}
		t.AppendRow(row)
	}

	footer := table.Row{"TOTAL"}
	for _, st := range statuses {
		footer = append(footer, s.Total(st))
	}
	t.AppendFooter(footer)
	t.Render()
}
