package calltree

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prettymuchbryce/calltrace/internal/report"
)

// Run is one test run entry of a call tree document.
type Run struct {
	Source    string `yaml:"source"`
	TestRunID string `yaml:"testRunId"`
	CommitID  string `yaml:"commitId"`
	Started   string `yaml:"started"`
	Children  []Node `yaml:"children"`
}

// StartedAt parses the start time of the run.
func (r Run) StartedAt() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.Started)
}

// Node is a unit of a call tree.
// Leave and Status are zero while the unit is still open.
type Node struct {
	Unit             report.Unit      `yaml:"node"`
	Message          string           `yaml:"message"`
	ID               string           `yaml:"id"`
	Enter            int64            `yaml:"enter"`
	Leave            int64            `yaml:"leave"`
	Status           report.Status    `yaml:"status"`
	PreVariables     report.Variables `yaml:"preVariables"`
	PostVariables    report.Variables `yaml:"postVariables"`
	Children         []Node           `yaml:"children"`
	FixtureException map[string]any   `yaml:"fixtureException"`
	Exception        string           `yaml:"exception"`
	AssertionError   string           `yaml:"assertionError"`
}

// Open reports whether the unit has not been left yet.
func (n Node) Open() bool {
	return n.Status == ""
}

// Duration is the time between enter and leave.
func (n Node) Duration() time.Duration {
	if n.Open() {
		return 0
	}
	return time.Duration(n.Leave - n.Enter)
}

// Failure returns the exit recorded on the node, if any.
func (n Node) Failure() string {
	switch {
	case n.FixtureException != nil:
		return fmt.Sprint(n.FixtureException["fixtureExceptionMessage"])
	case n.Exception != "":
		return n.Exception
	case n.AssertionError != "":
		return n.AssertionError
	}
	return ""
}

// Walk calls fn for n and all its descendants, depth first.
func (n Node) Walk(fn func(n Node, depth int)) {
	n.walk(fn, 0)
}

func (n Node) walk(fn func(Node, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// ReadDocument parses a call tree document. Documents of runs still in
// progress are read as far as they have been written.
func ReadDocument(r io.Reader) ([]Run, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading call tree: %w", err)
	}
	var runs []Run
	if err := yaml.Unmarshal(data, &runs); err != nil {
		return nil, fmt.Errorf("parsing call tree: %w", err)
	}
	return runs, nil
}
