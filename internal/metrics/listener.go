package metrics

import (
	"sync"
	"time"

	"github.com/prettymuchbryce/calltrace/internal/report"
)

// Exit kinds
const (
	ExitFixture   = "fixture"
	ExitException = "exception"
	ExitAssertion = "assertion"
)

// Listener records report events in Metrics.
type Listener struct {
	metrics *Metrics
	now     func() time.Time

	mu   sync.Mutex
	open map[string]openUnit
	seq  int
}

type openUnit struct {
	unit    report.Unit
	entered time.Time
	seq     int
}

// NewListener creates a Listener updating m.
func NewListener(m *Metrics) *Listener {
	return &Listener{metrics: m, now: time.Now, open: make(map[string]openUnit)}
}

func (l *Listener) Reported(e report.Event) error {
	l.metrics.Events.WithLabelValues(e.Unit.String(), e.Action.String(), string(e.Status)).Inc()

	l.mu.Lock()
	defer l.mu.Unlock()
	switch e.Action {
	case report.ActionEnter:
		if e.Unit == report.UnitTest {
			// a new test closes whatever the previous one left open
			l.closeWhere(report.StatusUnknown, func(openUnit) bool { return true })
		}
		l.seq++
		l.open[e.ID] = openUnit{unit: e.Unit, entered: l.now(), seq: l.seq}
	case report.ActionLeave:
		u, ok := l.open[e.ID]
		if !ok {
			break
		}
		if u.unit == report.UnitTest {
			l.closeWhere(report.StatusUnknown, func(o openUnit) bool { return o.unit != report.UnitTest })
		} else {
			l.closeWhere(report.StatusUnknown, func(o openUnit) bool { return o.unit != report.UnitTest && o.seq > u.seq })
		}
		l.close(e.ID, u, e.Status)
	}
	l.metrics.OpenUnits.Set(float64(len(l.open)))
	return nil
}

func (l *Listener) ReportFixtureExit(*report.FixtureError) error {
	l.exit(ExitFixture)
	return nil
}

func (l *Listener) ReportExceptionExit(error) error {
	l.exit(ExitException)
	return nil
}

func (l *Listener) ReportAssertionExit(*report.AssertionError) error {
	l.exit(ExitAssertion)
	return nil
}

// exit counts the exit and forgets all units but the test, which are closed
// with ERROR by the exit.
func (l *Listener) exit(kind string) {
	l.metrics.Exits.WithLabelValues(kind).Inc()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeWhere(report.StatusError, func(o openUnit) bool { return o.unit != report.UnitTest })
	l.metrics.OpenUnits.Set(float64(len(l.open)))
}

// closeWhere closes the open units for which match returns true, the way the
// call tree unwinds them.
func (l *Listener) closeWhere(status report.Status, match func(openUnit) bool) {
	for id, u := range l.open {
		if match(u) {
			l.close(id, u, status)
		}
	}
}

func (l *Listener) close(id string, u openUnit, status report.Status) {
	delete(l.open, id)
	l.metrics.UnitDuration.WithLabelValues(u.unit.String(), string(status)).Observe(l.now().Sub(u.entered).Seconds())
}
