package script

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/prettymuchbryce/calltrace/internal/artifacts"
	"github.com/prettymuchbryce/calltrace/internal/report"
)

func init() {
	RegisterStep("enter", deserializeEnter)
	RegisterStep("leave", deserializeLeave)
	RegisterStep("fixture", deserializeFixture)
	RegisterStep("exception", deserializeException)
	RegisterStep("assertion", deserializeAssertion)
	RegisterStep("artifact", deserializeArtifact)
}

// Enter enters a unit.
type Enter struct {
	Unit      report.Unit
	Message   string
	ID        string
	Status    report.Status
	Variables report.Variables
}

func (e *Enter) Play(p *Player) error {
	p.Enter(e.Unit, e.Message, e.ID, e.Status, e.Variables)
	return nil
}

// deserializeEnter supports "enter: {unit: STEP, message: login}".
func deserializeEnter(node yaml.Node) (Playable, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("enter must be a mapping, got %v", node.Kind)
	}
	var m struct {
		Unit      *report.Unit     `yaml:"unit"`
		Message   string           `yaml:"message"`
		ID        string           `yaml:"id"`
		Status    report.Status    `yaml:"status"`
		Variables report.Variables `yaml:"variables"`
	}
	if err := node.Decode(&m); err != nil {
		return nil, err
	}
	if m.Unit == nil {
		return nil, errors.New("enter requires a unit")
	}
	return &Enter{
		Unit:      *m.Unit,
		Message:   m.Message,
		ID:        m.ID,
		Status:    m.Status,
		Variables: m.Variables,
	}, nil
}

// Leave leaves an open unit. Every field is optional.
type Leave struct {
	Unit      *report.Unit     `yaml:"unit"`
	Message   string           `yaml:"message"`
	ID        string           `yaml:"id"`
	Status    report.Status    `yaml:"status"`
	Variables report.Variables `yaml:"variables"`
}

func (l *Leave) Play(p *Player) error {
	return p.Leave(l.Unit, l.Message, l.ID, l.Status, l.Variables)
}

// deserializeLeave supports a bare "leave", "leave: STEP" and
// "leave: {id: s1, status: ERROR}".
func deserializeLeave(node yaml.Node) (Playable, error) {
	var l Leave
	switch {
	case node.Tag == "!!null":
	case node.Kind == yaml.ScalarNode:
		var u report.Unit
		if err := node.Decode(&u); err != nil {
			return nil, err
		}
		l.Unit = &u
	default:
		if err := node.Decode(&l); err != nil {
			return nil, err
		}
	}
	return &l, nil
}

// Fixture aborts the test with a fixture error.
type Fixture struct {
	Message   string         `yaml:"message"`
	KeyValues map[string]any `yaml:"keyValues"`
}

func (f *Fixture) Play(p *Player) error {
	err := report.NewFixtureError(f.Message, f.KeyValues)
	p.Exit(func(r report.Reporter) { r.FixtureExit(err) })
	return nil
}

// deserializeFixture supports "fixture: message" and
// "fixture: {message: ..., keyValues: {...}}".
func deserializeFixture(node yaml.Node) (Playable, error) {
	var f Fixture
	if node.Kind == yaml.ScalarNode {
		if err := node.Decode(&f.Message); err != nil {
			return nil, err
		}
		return &f, nil
	}
	if err := node.Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Exception aborts the test with an unexpected error.
type Exception struct {
	Message string
}

func (e *Exception) Play(p *Player) error {
	err := errors.New(e.Message)
	p.Exit(func(r report.Reporter) { r.ExceptionExit(err) })
	return nil
}

func deserializeException(node yaml.Node) (Playable, error) {
	msg, err := decodeMessage(node)
	if err != nil {
		return nil, err
	}
	return &Exception{Message: msg}, nil
}

// Assertion aborts the test with a failed expectation.
type Assertion struct {
	Message string
}

func (a *Assertion) Play(p *Player) error {
	err := &report.AssertionError{Message: a.Message}
	p.Exit(func(r report.Reporter) { r.AssertionExit(err) })
	return nil
}

func deserializeAssertion(node yaml.Node) (Playable, error) {
	msg, err := decodeMessage(node)
	if err != nil {
		return nil, err
	}
	return &Assertion{Message: msg}, nil
}

// Artifact records a file produced by the test.
type Artifact struct {
	Path string `yaml:"path"`
	Type string `yaml:"type"`
	Step string `yaml:"step"`
}

func (a *Artifact) Play(p *Player) error {
	return p.Artifact(artifacts.Artifact{Type: a.Type, Path: a.Path}, a.Step)
}

// deserializeArtifact supports "artifact: path" and
// "artifact: {path: ..., type: ..., step: ...}".
func deserializeArtifact(node yaml.Node) (Playable, error) {
	var a Artifact
	if node.Kind == yaml.ScalarNode {
		if err := node.Decode(&a.Path); err != nil {
			return nil, err
		}
	} else if err := node.Decode(&a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("artifact requires a path")
	}
	return &a, nil
}

// decodeMessage accepts "kind: message" and "kind: {message: ...}".
func decodeMessage(node yaml.Node) (string, error) {
	if node.Tag == "!!null" {
		return "", nil
	}
	if node.Kind == yaml.ScalarNode {
		var msg string
		err := node.Decode(&msg)
		return msg, err
	}
	var m struct {
		Message string `yaml:"message"`
	}
	if err := node.Decode(&m); err != nil {
		return "", err
	}
	return m.Message, nil
}
