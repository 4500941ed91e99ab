package report

import (
	"errors"
	"log/slog"
	"reflect"
	"testing"

	"github.com/prettymuchbryce/calltrace/internal/testutil"
)

// call is one recorded listener invocation.
type call struct {
	listener string
	method   string
	event    Event
	err      error
}

// recordingListener appends every call to a shared journal.
type recordingListener struct {
	name    string
	journal *[]call
	fail    error
	panics  bool
}

func (l *recordingListener) record(c call) error {
	c.listener = l.name
	*l.journal = append(*l.journal, c)
	if l.panics {
		panic("listener " + l.name + " is broken")
	}
	return l.fail
}

func (l *recordingListener) Reported(e Event) error {
	return l.record(call{method: "Reported", event: e})
}

func (l *recordingListener) ReportFixtureExit(err *FixtureError) error {
	return l.record(call{method: "ReportFixtureExit", err: err})
}

func (l *recordingListener) ReportExceptionExit(err error) error {
	return l.record(call{method: "ReportExceptionExit", err: err})
}

func (l *recordingListener) ReportAssertionExit(err *AssertionError) error {
	return l.record(call{method: "ReportAssertionExit", err: err})
}

func order(journal []call) []string {
	names := make([]string, len(journal))
	for i, c := range journal {
		names[i] = c.listener
	}
	return names
}

func newTestReporter(t *testing.T) (*DefaultReporter, *[]call, *testutil.LogRecorder) {
	t.Helper()
	journal := &[]call{}
	rec := testutil.NewLogRecorder(slog.LevelDebug)
	r := NewReporter(&recordingListener{name: "log", journal: journal}, WithLogger(rec.Logger()))
	return r, journal, rec
}

func TestReporter_EnterNotifiesLogListenerFirst(t *testing.T) {
	r, journal, _ := newTestReporter(t)
	r.AddListener(&recordingListener{name: "L1", journal: journal})
	r.AddListener(&recordingListener{name: "L2", journal: journal})

	r.Enter(UnitStep, "step", "s1", StatusStarted, nil)

	want := []string{"log", "L1", "L2"}
	if got := order(*journal); !reflect.DeepEqual(got, want) {
		t.Errorf("expected order %v, got %v", want, got)
	}
}

func TestReporter_LeaveNotifiesLogListenerLast(t *testing.T) {
	r, journal, _ := newTestReporter(t)
	r.AddListener(&recordingListener{name: "L1", journal: journal})
	r.AddListener(&recordingListener{name: "L2", journal: journal})

	r.Leave(UnitStep, "step", "s1", StatusOK, nil)

	want := []string{"L1", "L2", "log"}
	if got := order(*journal); !reflect.DeepEqual(got, want) {
		t.Errorf("expected order %v, got %v", want, got)
	}
}

func TestReporter_ExitsNotifyLogListenerFirst(t *testing.T) {
	tests := []struct {
		name   string
		exit   func(r Reporter)
		method string
	}{
		{"fixture", func(r Reporter) { r.FixtureExit(NewFixtureError("db down", nil)) }, "ReportFixtureExit"},
		{"exception", func(r Reporter) { r.ExceptionExit(errors.New("boom")) }, "ReportExceptionExit"},
		{"assertion", func(r Reporter) { r.AssertionExit(NewAssertionError("expected %d", 1)) }, "ReportAssertionExit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, journal, _ := newTestReporter(t)
			r.AddListener(&recordingListener{name: "L1", journal: journal})
			r.AddListener(&recordingListener{name: "L2", journal: journal})

			tt.exit(r)

			want := []string{"log", "L1", "L2"}
			if got := order(*journal); !reflect.DeepEqual(got, want) {
				t.Errorf("expected order %v, got %v", want, got)
			}
			for _, c := range *journal {
				if c.method != tt.method {
					t.Errorf("expected %s on %s, got %s", tt.method, c.listener, c.method)
				}
			}
		})
	}
}

func TestReporter_PassesArgumentsUnchanged(t *testing.T) {
	r, journal, _ := newTestReporter(t)
	r.AddListener(&recordingListener{name: "L1", journal: journal})

	vars := Vars("user", "alice")
	r.Enter(UnitMacro, "login", "m7", StatusStarted, vars)

	want := Event{Unit: UnitMacro, Action: ActionEnter, Message: "login", ID: "m7", Status: StatusStarted, Variables: vars}
	if len(*journal) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(*journal))
	}
	for _, c := range *journal {
		if !reflect.DeepEqual(c.event, want) {
			t.Errorf("%s: expected event %v, got %v", c.listener, want, c.event)
		}
	}

	*journal = nil
	fe := NewFixtureError("db down", map[string]any{"host": "db1"})
	r.FixtureExit(fe)
	for _, c := range *journal {
		if c.err != fe {
			t.Errorf("%s: expected the same fixture error instance", c.listener)
		}
	}
}

func TestReporter_BrokenListenerDoesNotStopOthers(t *testing.T) {
	tests := []struct {
		name   string
		broken *recordingListener
		want   string
	}{
		{"error", &recordingListener{name: "L1", fail: errors.New("disk full")}, "Listener failed"},
		{"panic", &recordingListener{name: "L1", panics: true}, "Listener panicked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, journal, rec := newTestReporter(t)
			tt.broken.journal = journal
			r.AddListener(tt.broken)
			r.AddListener(&recordingListener{name: "L2", journal: journal})

			r.Enter(UnitStep, "step", "s1", StatusStarted, nil)
			r.Leave(UnitStep, "step", "s1", StatusOK, nil)
			r.ExceptionExit(errors.New("boom"))

			want := []string{"log", "L1", "L2", "L1", "L2", "log", "log", "L1", "L2"}
			if got := order(*journal); !reflect.DeepEqual(got, want) {
				t.Errorf("expected order %v, got %v", want, got)
			}
			warnings := rec.Messages(slog.LevelWarn)
			if len(warnings) != 3 {
				t.Fatalf("expected 3 warnings, got %d:\n%s", len(warnings), rec)
			}
			for _, w := range warnings {
				if w != tt.want {
					t.Errorf("expected warning %q, got %q", tt.want, w)
				}
			}
		})
	}
}

func TestReporter_BrokenLogListenerIsReported(t *testing.T) {
	journal := &[]call{}
	rec := testutil.NewLogRecorder(slog.LevelDebug)
	r := NewReporter(&recordingListener{name: "log", journal: journal, panics: true}, WithLogger(rec.Logger()))
	r.AddListener(&recordingListener{name: "L1", journal: journal})

	r.Enter(UnitTest, "t", "t1", StatusStarted, nil)

	if got := rec.Messages(slog.LevelWarn); len(got) != 1 || got[0] != "Log listener panicked" {
		t.Errorf("expected one 'Log listener panicked' warning, got %v", got)
	}
	if got := order(*journal); !reflect.DeepEqual(got, []string{"log", "L1"}) {
		t.Errorf("expected L1 to still be informed, got %v", got)
	}
}

func TestReporter_RemoveListener(t *testing.T) {
	r, journal, _ := newTestReporter(t)
	l1 := &recordingListener{name: "L1", journal: journal}
	l2 := &recordingListener{name: "L2", journal: journal}
	r.AddListener(l1)
	r.AddListener(l2)
	r.AddListener(l1)

	r.RemoveListener(l1)
	r.Enter(UnitStep, "step", "s1", StatusStarted, nil)

	want := []string{"log", "L2", "L1"}
	if got := order(*journal); !reflect.DeepEqual(got, want) {
		t.Errorf("expected only the first registration removed, got %v", got)
	}

	r.RemoveListener(&recordingListener{name: "other"})
	if len(r.Listeners()) != 2 {
		t.Errorf("expected removing an unknown listener to change nothing, got %d listeners", len(r.Listeners()))
	}
}

// funcListener is a listener of a non-comparable type.
type funcListener struct {
	NullListener
	onEvent func(Event)
}

func (l funcListener) Reported(e Event) error {
	l.onEvent(e)
	return nil
}

func TestReporter_RemoveNonComparableListener(t *testing.T) {
	r, journal, rec := newTestReporter(t)
	calls := 0
	l := funcListener{onEvent: func(Event) { calls++ }}
	r.AddListener(l)
	r.AddListener(&recordingListener{name: "L2", journal: journal})

	r.RemoveListener(l)
	r.Enter(UnitStep, "step", "s1", StatusStarted, nil)

	if calls != 1 {
		t.Errorf("expected listener to stay registered, got %d calls", calls)
	}
	if !rec.Contains("non-comparable") {
		t.Errorf("expected warning about non-comparable listener, got:\n%s", rec)
	}
}

func TestReporter_AddNilListener(t *testing.T) {
	r, _, rec := newTestReporter(t)

	r.AddListener(nil)

	if len(r.Listeners()) != 0 {
		t.Errorf("expected nil listener to be rejected")
	}
	if !rec.Contains("cannot add listener that is nil") {
		t.Errorf("expected warning for nil listener, got:\n%s", rec)
	}
}

// selfRemovingListener unregisters itself on the first event.
type selfRemovingListener struct {
	NullListener
	r     Reporter
	calls int
}

func (l *selfRemovingListener) Reported(Event) error {
	l.calls++
	l.r.RemoveListener(l)
	return nil
}

func TestReporter_ListenerRemovingItselfDuringDispatch(t *testing.T) {
	r, journal, _ := newTestReporter(t)
	self := &selfRemovingListener{r: r}
	r.AddListener(self)
	r.AddListener(&recordingListener{name: "L2", journal: journal})

	r.Enter(UnitStep, "step", "s1", StatusStarted, nil)
	r.Enter(UnitStep, "step", "s2", StatusStarted, nil)

	if self.calls != 1 {
		t.Errorf("expected 1 call before removal, got %d", self.calls)
	}
	if got := order(*journal); !reflect.DeepEqual(got, []string{"log", "L2", "log", "L2"}) {
		t.Errorf("expected L2 informed on both events, got %v", got)
	}
}

func TestNewReporter_NilLogListener(t *testing.T) {
	r := NewReporter(nil)
	r.Enter(UnitTest, "t", "t1", StatusStarted, nil)
	r.AssertionExit(nil)
}

type fixture struct {
	r Reporter
}

func (f *fixture) InitWithReporter(r Reporter) { f.r = r }

func TestInitReportables(t *testing.T) {
	r := NullReporter{}
	f1, f2 := &fixture{}, &fixture{}

	n := InitReportables(r, f1, "not a fixture", 42, f2, nil)

	if n != 2 {
		t.Errorf("expected 2 initialized fixtures, got %d", n)
	}
	if f1.r == nil || f2.r == nil {
		t.Errorf("expected reporter to be handed to every fixture")
	}
}
