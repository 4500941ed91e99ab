// Package script loads event scripts and plays them through a Reporter the
// way generated test code would.
//
// A script is a YAML document with a list of steps. Each step is a mapping
// with exactly one key naming its kind:
//
//	source: src/LoginTest.tcl
//	steps:
//	  - enter: {unit: TEST, message: LoginTest}
//	  - enter: {unit: STEP, message: login, variables: {user: bob}}
//	  - artifact: {path: shots/login.png}
//	  - leave: {status: OK}
//	  - assertion: expected welcome page
//	  - leave
package script

import (
	"fmt"
	"sort"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Script is a recorded sequence of report calls.
type Script struct {
	Source string `yaml:"source"`
	Steps  []Step `yaml:"steps"`
}

// Playable is the interface that step kinds implement.
type Playable interface {
	Play(p *Player) error
}

// StepDeserializer creates a Playable from the YAML value of a step.
type StepDeserializer func(value yaml.Node) (Playable, error)

// stepRegistry holds registered step deserializers.
var stepRegistry = map[string]StepDeserializer{}

// RegisterStep registers a step deserializer by name.
func RegisterStep(name string, deserializer StepDeserializer) {
	stepRegistry[name] = deserializer
}

// Step wraps a Playable with its kind for error messages.
type Step struct {
	Name  string
	Inner Playable
}

// UnmarshalYAML implements custom YAML unmarshaling for Step.
// It supports two formats:
//   - Scalar: "leave" (for steps with no arguments)
//   - Mapping: "assertion: message" (for steps with arguments)
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var name string
	var valueNode yaml.Node

	switch node.Kind {
	case yaml.ScalarNode:
		if err := node.Decode(&name); err != nil {
			return fmt.Errorf("failed to decode step name: %w", err)
		}
		valueNode = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("step must have exactly one key, got %d", len(node.Content)/2)
		}
		if err := node.Content[0].Decode(&name); err != nil {
			return fmt.Errorf("failed to decode step name: %w", err)
		}
		valueNode = *node.Content[1]

	default:
		return fmt.Errorf("step must be a string or mapping, got %v", node.Kind)
	}

	deserializer, ok := stepRegistry[name]
	if !ok {
		available := make([]string, 0, len(stepRegistry))
		for k := range stepRegistry {
			available = append(available, k)
		}
		sort.Strings(available)
		return fmt.Errorf("line %d: unknown step %q, available: %v", node.Line, name, available)
	}

	inner, err := deserializer(valueNode)
	if err != nil {
		return fmt.Errorf("line %d: failed to deserialize step %q: %w", node.Line, name, err)
	}

	s.Name = name
	s.Inner = inner
	return nil
}

// Parse decodes a script.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses a script from afs.
func Load(afs afero.Fs, path string) (*Script, error) {
	data, err := afero.ReadFile(afs, path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}
