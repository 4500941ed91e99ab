package report

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unit is a semantic level of test structure. Units are rank ordered:
// TEST encloses everything, CLEANUP is the least significant.
type Unit int

const (
	UnitTest Unit = iota
	UnitSpecificationStep
	UnitComponent
	UnitStep
	UnitMacroLib
	UnitMacro
	UnitSetup
	UnitCleanup
)

var unitNames = [...]string{
	UnitTest:              "TEST",
	UnitSpecificationStep: "SPECIFICATION_STEP",
	UnitComponent:         "COMPONENT",
	UnitStep:              "STEP",
	UnitMacroLib:          "MACRO_LIB",
	UnitMacro:             "MACRO",
	UnitSetup:             "SETUP",
	UnitCleanup:           "CLEANUP",
}

// Units returns all units in rank order.
func Units() []Unit {
	return []Unit{UnitTest, UnitSpecificationStep, UnitComponent, UnitStep, UnitMacroLib, UnitMacro, UnitSetup, UnitCleanup}
}

func (u Unit) String() string {
	if u < 0 || int(u) >= len(unitNames) {
		return fmt.Sprintf("Unit(%d)", int(u))
	}
	return unitNames[u]
}

// Rank returns 0 for TEST and grows toward CLEANUP.
func (u Unit) Rank() int {
	return int(u)
}

// Encloses reports whether u has higher or equal rank than other.
func (u Unit) Encloses(other Unit) bool {
	return u.Rank() <= other.Rank()
}

// ParseUnit parses an upper-case unit name such as "SPECIFICATION_STEP".
func ParseUnit(s string) (Unit, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range unitNames {
		if n == name {
			return Unit(i), nil
		}
	}
	return 0, fmt.Errorf("unknown semantic unit %q", s)
}

func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := ParseUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// UnmarshalYAML accepts the unit name as a scalar.
func (u *Unit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("semantic unit must be a string, got %v", node.Kind)
	}
	return u.UnmarshalText([]byte(node.Value))
}

// Action tells whether a unit is entered or left.
type Action int

const (
	ActionEnter Action = iota
	ActionLeave
)

func (a Action) String() string {
	switch a {
	case ActionEnter:
		return "ENTER"
	case ActionLeave:
		return "LEAVE"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Status is the outcome of a unit as known at the time of the event.
type Status string

const (
	StatusStarted Status = "STARTED" // Running
	StatusOK      Status = "OK"      // Was run, everything ok
	StatusWarning Status = "WARNING" // Was run and continues, but ran into a warning
	StatusInfo    Status = "INFO"    // Was run and continues, with an information
	StatusError   Status = "ERROR"   // Was run but failed
	StatusAborted Status = "ABORTED" // Aborted because of unexpected problems during execution
	StatusUnknown Status = "UNKNOWN" // No status, e.g. closed implicitly
)

var statuses = []Status{StatusStarted, StatusOK, StatusWarning, StatusInfo, StatusError, StatusAborted, StatusUnknown}

// Statuses returns all known statuses.
func Statuses() []Status {
	return append([]Status(nil), statuses...)
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	name := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range statuses {
		if st == name {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func (s Status) String() string {
	return string(s)
}

// UnmarshalYAML validates the status while decoding.
func (s *Status) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("status must be a string, got %v", node.Kind)
	}
	parsed, err := ParseStatus(node.Value)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Variables are named values attached to an enter ("pre") or leave ("post") event.
type Variables map[string]string

// Keys returns the variable names in sorted order.
func (v Variables) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Vars builds Variables from alternating name/value arguments.
// A trailing name without value is ignored.
func Vars(pairs ...string) Variables {
	v := make(Variables, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		v[pairs[i]] = pairs[i+1]
	}
	return v
}

// Event is the argument set of a single Reported call.
type Event struct {
	Unit      Unit
	Action    Action
	Message   string
	ID        string
	Status    Status
	Variables Variables
}

func (e Event) String() string {
	return fmt.Sprintf("unit='%s', action='%s', id='%s', msg='%s'", e.Unit, e.Action, e.ID, e.Message)
}
