package report

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// LevelTrace is the level of technical reference lines, below debug.
const LevelTrace = slog.LevelDebug - 4

const consoleIndent = 2

const banner = "****************************************************"

// Masker redacts confidential parts of a message.
type Masker interface {
	Mask(s string) string
}

var unitLabels = map[Unit]string{
	UnitSpecificationStep: "Spec step",
	UnitComponent:         "Component",
	UnitStep:              "Test step",
	UnitMacroLib:          "Macro lib",
	UnitMacro:             "Macro    ",
	UnitCleanup:           "Cleanup  ",
	UnitSetup:             "Setup    ",
}

// ConsoleListener renders events as human readable, indented log lines.
// TEST is logged with banners on enter and leave, every other unit only on
// enter. Leaves show up as trace-level technical references.
type ConsoleListener struct {
	base   *slog.Logger
	logger *slog.Logger
	masker Masker
	now    func() time.Time

	start      time.Time
	indent     int
	openLeaves []string
}

// ConsoleOption configures a ConsoleListener.
type ConsoleOption func(*ConsoleListener)

// WithConsoleLogger sets the logger lines are written to.
func WithConsoleLogger(logger *slog.Logger) ConsoleOption {
	return func(l *ConsoleListener) {
		if logger != nil {
			l.base = logger
		}
	}
}

// WithConsoleMasker masks messages, variable names and values before logging.
func WithConsoleMasker(m Masker) ConsoleOption {
	return func(l *ConsoleListener) {
		l.masker = m
	}
}

// WithConsoleClock replaces time.Now for duration reporting.
func WithConsoleClock(now func() time.Time) ConsoleOption {
	return func(l *ConsoleListener) {
		if now != nil {
			l.now = now
		}
	}
}

// NewConsoleListener creates a ConsoleListener logging to slog.Default().
func NewConsoleListener(opts ...ConsoleOption) *ConsoleListener {
	l := &ConsoleListener{
		base: slog.Default(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.base
	return l
}

// Reported logs the event.
func (l *ConsoleListener) Reported(e Event) error {
	if e.Action == ActionEnter {
		l.trace(l.reference(e.Unit, ActionEnter, e.Message, e.ID))
		// TEST has no pending leave: unrolling happens within a test, never out of it
		if e.Unit != UnitTest {
			l.openLeaves = append(l.openLeaves, l.reference(e.Unit, ActionLeave, e.Message, e.ID))
		}
	}

	if e.Unit == UnitTest {
		l.logTest(e)
	} else if label, ok := unitLabels[e.Unit]; ok {
		l.logUnit(label, e)
	} else {
		l.logger.Warn("Logging failed because of technical setup problems. Please contact an administrator.")
		l.logger.Debug("unknown semantic test unit encountered during logging", "unit", e.Unit)
	}

	switch e.Action {
	case ActionEnter:
		l.indent += consoleIndent
	case ActionLeave:
		l.indent = max(l.indent-consoleIndent, 0)
	}

	if e.Action == ActionLeave {
		if e.Unit != UnitTest && len(l.openLeaves) > 0 {
			l.openLeaves = l.openLeaves[:len(l.openLeaves)-1]
		}
		l.trace(l.reference(e.Unit, ActionLeave, e.Message, e.ID))
	}
	return nil
}

func (l *ConsoleListener) logTest(e Event) {
	switch e.Action {
	case ActionEnter:
		l.logger = l.base.With("test", "TE-Test: "+shortName(e.Message))
		l.logger.Info(banner)
		l.logger.Info("Running test for " + l.text(e.Message))
		l.start = l.now()
		l.logger.Info(banner)
	case ActionLeave:
		seconds := int64(l.now().Sub(l.start) / time.Second)
		l.logger.Info(banner)
		l.logger.Info(fmt.Sprintf("Test %s finished with %d sec. duration.", l.text(e.Message), seconds))
		l.logger.Info(banner)
		l.logger = l.base
	}
}

func (l *ConsoleListener) logUnit(label string, e Event) {
	switch e.Action {
	case ActionEnter:
		l.trace(fmt.Sprintf("%s->%s[%s] %s [Status=%s]", l.prefix(), label, e.ID, l.text(e.Message), e.Status))
		l.logger.Info(l.prefix() + l.text(e.Message))
		for _, name := range e.Variables.Keys() {
			l.logger.Info(fmt.Sprintf("%s  with %s = \"%s\"", l.prefix(), l.text(name), l.text(e.Variables[name])))
		}
	case ActionLeave:
		l.trace(fmt.Sprintf("%s<-%s[%s] %s [Status=%s]", l.prefix(), label, e.ID, l.text(e.Message), e.Status))
	}
}

// ReportFixtureExit logs the fixture error with its key values.
func (l *ConsoleListener) ReportFixtureExit(err *FixtureError) error {
	var msg string
	var keyValues map[string]any
	if err != nil {
		msg = err.Message
		keyValues = err.KeyValues
	}
	l.logger.Error(l.prefix() + "Test failed because of a fixture exception: " + l.text(msg))
	keys := make([]string, 0, len(keyValues))
	for k := range keyValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		l.logger.Error(fmt.Sprintf("%s  with %s = \"%s\"", l.prefix(), l.text(k), l.text(fmt.Sprint(keyValues[k]))))
	}
	l.logger.Error(l.prefix() + "Please contact an administrator.")
	if err != nil {
		l.logger.Log(context.Background(), LevelTrace, "fixture error", "error", err)
	}
	l.unwind()
	return nil
}

// ReportExceptionExit logs an unanticipated error.
func (l *ConsoleListener) ReportExceptionExit(err error) error {
	l.logger.Error("Test failed because of an unanticipated exception: " + l.text(errorMessage(err)))
	l.logger.Error("Please contact an administrator.")
	l.logger.Log(context.Background(), LevelTrace, "exception", "error", err)
	l.unwind()
	return nil
}

// ReportAssertionExit logs a failed assertion.
func (l *ConsoleListener) ReportAssertionExit(err *AssertionError) error {
	var msg string
	if err != nil {
		msg = err.Message
	}
	l.logger.Error(l.prefix() + "Assertion failed: " + l.text(msg))
	l.logger.Error(l.prefix() + "Please check the expectation and the actual value.")
	l.logger.Log(context.Background(), LevelTrace, "assertion error: "+l.text(msg))
	l.unwind()
	return nil
}

// unwind logs the pending leave references of all units that were not left
// and continues at test level.
func (l *ConsoleListener) unwind() {
	for len(l.openLeaves) > 0 {
		last := len(l.openLeaves) - 1
		l.trace(l.openLeaves[last])
		l.openLeaves = l.openLeaves[:last]
	}
	l.indent = consoleIndent
}

func (l *ConsoleListener) prefix() string {
	return strings.Repeat(" ", l.indent)
}

func (l *ConsoleListener) text(s string) string {
	if l.masker != nil {
		s = l.masker.Mask(s)
	}
	return Escape(s)
}

func (l *ConsoleListener) reference(unit Unit, action Action, msg, id string) string {
	h := fnv.New32a()
	h.Write([]byte(msg))
	return fmt.Sprintf("%s@%s:%s:%x:%s", l.prefix(), unit, action, h.Sum32(), id)
}

func (l *ConsoleListener) trace(msg string) {
	l.logger.Log(context.Background(), LevelTrace, msg)
}

// shortName strips everything up to the last dot of a qualified test name.
func shortName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
