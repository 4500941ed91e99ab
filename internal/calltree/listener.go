// Package calltree streams the events of a report as a nested YAML document
// and reads such documents back.
package calltree

import (
	"bytes"
	"io"
	"log/slog"
	"time"

	"github.com/prettymuchbryce/calltrace/internal/report"
)

// indentation step of the emitted document
const indentStep = 2

// Header is stamped into the document once per test run.
type Header struct {
	Source    string
	TestRunID string
	CommitID  string
}

type node struct {
	unit              report.Unit
	message           string
	id                string
	entered           int64
	left              int64
	status            report.Status
	parentIndentation int
	exits             map[string]bool // exit fields written on the node
}

// Listener writes the call tree of every test run to w.
//
// Indentation of the document:
//
//	0 = test run entry
//	2 = test node
//	4 = fields of the test node and its direct children
//
// Deeper levels follow the nesting of the reported units.
// Each event is written as a whole and flushed, so a crash leaves a valid
// prefix of the document.
type Listener struct {
	w      io.Writer
	header Header
	now    func() time.Time
	logger *slog.Logger

	buf         bytes.Buffer
	nodes       map[string]*node
	stack       []*node // open non-TEST nodes, innermost last
	test        *node
	indentation int
}

// Option configures a Listener.
type Option func(*Listener)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger for write failures and protocol violations.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Listener writing to w.
func New(w io.Writer, header Header, opts ...Option) *Listener {
	l := &Listener{
		w:      w,
		header: header,
		now:    time.Now,
		logger: slog.Default(),
		nodes:  make(map[string]*node),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reported writes the enter or leave of a unit.
func (l *Listener) Reported(e report.Event) error {
	switch e.Action {
	case report.ActionEnter:
		if e.Unit == report.UnitTest {
			l.enterTest(e)
		} else {
			l.enter(e)
		}
	case report.ActionLeave:
		l.leave(e.ID, e.Status, e.Variables)
	}
	l.flush()
	return nil
}

// ReportFixtureExit writes the fixture error with its key values and closes
// all open units with ERROR.
func (l *Listener) ReportFixtureExit(err *report.FixtureError) error {
	fields := map[string]any{}
	var msg string
	if err != nil {
		for k, v := range err.KeyValues {
			fields[k] = v
		}
		msg = err.Message
	}
	fields["fixtureExceptionMessage"] = msg
	l.exit("fixtureException", fields)
	return nil
}

// ReportExceptionExit writes the error text and closes all open units with ERROR.
func (l *Listener) ReportExceptionExit(err error) error {
	var msg string
	if err != nil {
		msg = err.Error()
	}
	l.exit("exception", msg)
	return nil
}

// ReportAssertionExit writes the assertion message and closes all open units with ERROR.
func (l *Listener) ReportAssertionExit(err *report.AssertionError) error {
	var msg string
	if err != nil {
		msg = err.Message
	}
	l.exit("assertionError", msg)
	return nil
}

func (l *Listener) enterTest(e report.Event) {
	if l.test != nil {
		l.logger.Warn("test entered while another test is open, closing it", "open", report.Escape(l.test.id), "id", report.Escape(e.ID))
		l.leave(l.test.id, report.StatusUnknown, nil)
	}
	if len(l.stack) > 0 {
		l.logger.Warn("test entered while units outside a test are open, closing them", "open", len(l.stack), "id", report.Escape(e.ID))
		l.unwind(report.StatusUnknown)
	}
	l.indentation = 0
	l.writeField("- ", "source", l.header.Source)
	l.indentation += indentStep
	l.writeField("", "testRunId", l.header.TestRunID)
	l.writeField("", "commitId", l.header.CommitID)
	l.writeField("", "started", l.now().UTC().Format(time.RFC3339Nano))
	l.writeField("", "children", nil)
	l.enter(e)
}

func (l *Listener) enter(e report.Event) {
	n := &node{
		unit:              e.Unit,
		message:           e.Message,
		id:                e.ID,
		entered:           l.now().UnixNano(),
		status:            e.Status,
		parentIndentation: l.indentation,
	}
	if _, dup := l.nodes[n.id]; dup {
		l.logger.Warn("entered node with id already open", "id", report.Escape(n.id))
	}
	l.nodes[n.id] = n

	l.writeField("- ", "node", n.unit.String())
	l.indentation += indentStep
	l.writeField("", "message", n.message)
	l.writeField("", "id", n.id)
	l.writeField("", "enter", n.entered)
	l.writeField("", "preVariables", variables(e.Variables))
	l.writeField("", "children", nil)

	if n.unit == report.UnitTest {
		l.test = n
	} else {
		l.stack = append(l.stack, n)
	}
}

func (l *Listener) leave(id string, status report.Status, vars report.Variables) {
	n, ok := l.nodes[id]
	if !ok {
		l.logger.Error("left unknown node", "id", report.Escape(id))
		return
	}

	if n.unit == report.UnitTest {
		l.unwind(report.StatusUnknown)
	} else {
		for len(l.stack) > 0 && l.stack[len(l.stack)-1] != n {
			l.close(l.pop(), report.StatusUnknown, nil)
		}
		if len(l.stack) > 0 {
			l.pop()
		}
	}
	l.close(n, status, vars)
	l.indentation = n.parentIndentation

	if n == l.test {
		l.test = nil
		l.indentation = 0
	}
}

func (l *Listener) pop() *node {
	n := l.stack[len(l.stack)-1]
	l.stack = l.stack[:len(l.stack)-1]
	return n
}

// unwind closes all open non-TEST nodes, innermost first.
func (l *Listener) unwind(status report.Status) {
	for len(l.stack) > 0 {
		l.close(l.pop(), status, nil)
	}
}

func (l *Listener) close(n *node, status report.Status, vars report.Variables) {
	n.left = l.now().UnixNano()
	n.status = status
	delete(l.nodes, n.id)

	l.indentation = n.parentIndentation + indentStep
	l.writeField("", "leave", n.left)
	l.writeField("", "status", string(status))
	l.writeField("", "postVariables", variables(vars))
}

func (l *Listener) exit(field string, value any) {
	if l.test == nil && len(l.stack) == 0 {
		l.logger.Warn("exit reported without open node", "field", field)
		return
	}

	innermost := l.test
	if len(l.stack) > 0 {
		innermost = l.stack[len(l.stack)-1]
	}
	if innermost.exits[field] {
		l.logger.Warn("exit already recorded on node, dropping it", "field", field, "id", report.Escape(innermost.id))
	} else {
		if innermost.exits == nil {
			innermost.exits = make(map[string]bool)
		}
		innermost.exits[field] = true
		l.writeField("", field, value)
	}
	l.unwind(report.StatusError)
	if l.test != nil {
		l.indentation = l.test.parentIndentation + indentStep
	} else {
		l.indentation = 0
	}
	l.flush()
}

func (l *Listener) flush() {
	if l.buf.Len() == 0 {
		return
	}
	defer l.buf.Reset()
	if _, err := l.w.Write(l.buf.Bytes()); err != nil {
		l.logger.Error("flushing call tree entry failed", "error", err)
	}
}

// variables converts to a generic map so that empty variables render as a bare field.
func variables(v report.Variables) map[string]any {
	if len(v) == 0 {
		return nil
	}
	m := make(map[string]any, len(v))
	for k, val := range v {
		m[k] = val
	}
	return m
}
