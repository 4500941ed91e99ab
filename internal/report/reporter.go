package report

import (
	"fmt"
	"log/slog"
	"reflect"
)

// Reporter is called by test execution to report what is being executed.
// Each event is described by unit, action and message; the id correlates an
// Enter with its Leave and is generated by the caller.
// Listeners registered on the reporter are informed about every event.
type Reporter interface {
	// Enter reports that unit was entered.
	Enter(unit Unit, msg, id string, status Status, vars Variables)

	// Leave reports that unit was left.
	Leave(unit Unit, msg, id string, status Status, vars Variables)

	// FixtureExit reports that the test was aborted by a fixture error.
	FixtureExit(err *FixtureError)

	// ExceptionExit reports that the test was aborted by an unexpected error.
	ExceptionExit(err error)

	// AssertionExit reports that the test was aborted by a failed assertion.
	AssertionExit(err *AssertionError)

	// AddListener registers l for all subsequent events.
	AddListener(l Listener)

	// RemoveListener stops notifications to l.
	RemoveListener(l Listener)
}

// DefaultReporter dispatches events synchronously to its listeners.
// The log listener brackets all other listeners: it is informed first on
// Enter and exits, and last on Leave.
// A DefaultReporter serves one sequential report stream and is not safe for
// concurrent use.
type DefaultReporter struct {
	logListener Listener
	listeners   []Listener
	logger      *slog.Logger
}

// Option configures a DefaultReporter.
type Option func(*DefaultReporter)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *DefaultReporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReporter creates a DefaultReporter with the given log listener.
// If logListener is nil, a NullListener is used.
func NewReporter(logListener Listener, opts ...Option) *DefaultReporter {
	if logListener == nil {
		logListener = NullListener{}
	}
	r := &DefaultReporter{
		logListener: logListener,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enter informs the log listener, then all other listeners.
func (r *DefaultReporter) Enter(unit Unit, msg, id string, status Status, vars Variables) {
	e := Event{Unit: unit, Action: ActionEnter, Message: msg, ID: id, Status: status, Variables: vars}
	r.report("Log listener", r.logListener, e)
	for _, l := range r.snapshot() {
		r.report("Listener", l, e)
	}
}

// Leave informs all other listeners, then the log listener.
func (r *DefaultReporter) Leave(unit Unit, msg, id string, status Status, vars Variables) {
	e := Event{Unit: unit, Action: ActionLeave, Message: msg, ID: id, Status: status, Variables: vars}
	for _, l := range r.snapshot() {
		r.report("Listener", l, e)
	}
	r.report("Log listener", r.logListener, e)
}

func (r *DefaultReporter) FixtureExit(err *FixtureError) {
	r.exit("fixture exit", func(l Listener) error { return l.ReportFixtureExit(err) })
}

func (r *DefaultReporter) ExceptionExit(err error) {
	r.exit("exception exit", func(l Listener) error { return l.ReportExceptionExit(err) })
}

func (r *DefaultReporter) AssertionExit(err *AssertionError) {
	r.exit("assertion exit", func(l Listener) error { return l.ReportAssertionExit(err) })
}

// AddListener registers l. A nil listener is rejected with a warning.
func (r *DefaultReporter) AddListener(l Listener) {
	if l == nil {
		r.logger.Warn("cannot add listener that is nil")
		return
	}
	r.listeners = append(r.listeners, l)
}

// RemoveListener removes the first registration of l. Listeners are compared
// with ==; a listener of a non-comparable type cannot be removed.
func (r *DefaultReporter) RemoveListener(l Listener) {
	if l == nil {
		return
	}
	if !reflect.TypeOf(l).Comparable() {
		r.logger.Warn("cannot remove listener of non-comparable type", "listener", fmt.Sprintf("%T", l))
		return
	}
	for i, registered := range r.listeners {
		if registered == l {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Listeners returns the registered listeners, excluding the log listener.
func (r *DefaultReporter) Listeners() []Listener {
	return r.snapshot()
}

// snapshot decouples iteration from listeners (un)registering themselves
// while an event is dispatched.
func (r *DefaultReporter) snapshot() []Listener {
	return append([]Listener(nil), r.listeners...)
}

func (r *DefaultReporter) report(role string, l Listener, e Event) {
	r.guard(role, l, e.String(), func() error { return l.Reported(e) })
}

func (r *DefaultReporter) exit(what string, call func(Listener) error) {
	r.guard("Log listener", r.logListener, "reporting "+what, func() error { return call(r.logListener) })
	for _, l := range r.snapshot() {
		r.guard("Listener", l, "reporting "+what, func() error { return call(l) })
	}
}

// guard runs call and turns both returned errors and panics into warnings,
// so that one broken listener never keeps the others from being informed.
func (r *DefaultReporter) guard(role string, l Listener, context string, call func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn(role+" panicked", "listener", fmt.Sprintf("%T", l), "processing", context, "panic", p)
		}
	}()
	if err := call(); err != nil {
		r.logger.Warn(role+" failed", "listener", fmt.Sprintf("%T", l), "processing", context, "error", err)
	}
}

// NullReporter discards all events. It lets generated code report
// unconditionally when no reporting is configured.
type NullReporter struct{}

func (NullReporter) Enter(Unit, string, string, Status, Variables) {}
func (NullReporter) Leave(Unit, string, string, Status, Variables) {}
func (NullReporter) FixtureExit(*FixtureError)                     {}
func (NullReporter) ExceptionExit(error)                           {}
func (NullReporter) AssertionExit(*AssertionError)                 {}
func (NullReporter) AddListener(Listener)                          {}
func (NullReporter) RemoveListener(Listener)                       {}
