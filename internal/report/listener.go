package report

// Listener observes the event stream of a Reporter.
// All methods may be called at any time; in particular an exit report can
// arrive while units are still open, or without any unit ever being entered.
type Listener interface {
	// Reported is called once for every Enter and Leave on the reporter.
	Reported(e Event) error

	// ReportFixtureExit is called when a fixture aborted the test.
	ReportFixtureExit(err *FixtureError) error

	// ReportExceptionExit is called when the test aborted with an unexpected error.
	ReportExceptionExit(err error) error

	// ReportAssertionExit is called when an expectation of the test failed.
	ReportAssertionExit(err *AssertionError) error
}

// NullListener ignores all events.
type NullListener struct{}

func (NullListener) Reported(Event) error                     { return nil }
func (NullListener) ReportFixtureExit(*FixtureError) error     { return nil }
func (NullListener) ReportExceptionExit(error) error           { return nil }
func (NullListener) ReportAssertionExit(*AssertionError) error { return nil }

// Reportable is implemented by fixtures that need the reporter, e.g. to
// register listeners of their own before they are called.
type Reportable interface {
	InitWithReporter(r Reporter)
}

// InitReportables hands r to every value that implements Reportable.
// Generated test constructors call this with all their fixture fields.
func InitReportables(r Reporter, values ...any) int {
	n := 0
	for _, v := range values {
		if rep, ok := v.(Reportable); ok && rep != nil {
			rep.InitWithReporter(r)
			n++
		}
	}
	return n
}
