package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/prettymuchbryce/calltrace/internal/artifacts"
	"github.com/prettymuchbryce/calltrace/internal/report"
	"github.com/prettymuchbryce/calltrace/internal/testutil"
)

// journal records every call as one line.
type journal struct {
	lines []string
}

func (j *journal) Reported(e report.Event) error {
	line := fmt.Sprintf("%s %s %q %s %s", e.Action, e.Unit, e.Message, e.ID, e.Status)
	for _, k := range e.Variables.Keys() {
		line += fmt.Sprintf(" %s=%s", k, e.Variables[k])
	}
	j.lines = append(j.lines, line)
	return nil
}

func (j *journal) ReportFixtureExit(err *report.FixtureError) error {
	j.lines = append(j.lines, fmt.Sprintf("FIXTURE %q %v", err.Message, err.KeyValues))
	return nil
}

func (j *journal) ReportExceptionExit(err error) error {
	j.lines = append(j.lines, fmt.Sprintf("EXCEPTION %q", err.Error()))
	return nil
}

func (j *journal) ReportAssertionExit(err *report.AssertionError) error {
	j.lines = append(j.lines, fmt.Sprintf("ASSERTION %q", err.Message))
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func play(t *testing.T, doc string, opts ...PlayerOption) ([]string, error) {
	t.Helper()
	s, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	j := &journal{}
	r := report.NewReporter(nil)
	r.AddListener(j)
	opts = append([]PlayerOption{WithIDs(sequentialIDs())}, opts...)
	err = NewPlayer(r, opts...).Play(context.Background(), s)
	return j.lines, err
}

func assertLines(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %d:\n%s", len(want), len(got), strings.Join(got, "\n"))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestPlay_EnterAndLeave(t *testing.T) {
	got, err := play(t, `
steps:
  - enter: {unit: TEST, message: LoginTest, id: t1}
  - enter: {unit: STEP, message: login, variables: {user: bob, retries: 3}}
  - leave: {status: WARNING, variables: {result: slow}}
  - leave
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, got, []string{
		`ENTER TEST "LoginTest" t1 STARTED`,
		`ENTER STEP "login" id-1 STARTED retries=3 user=bob`,
		`LEAVE STEP "login" id-1 WARNING result=slow`,
		`LEAVE TEST "LoginTest" t1 OK`,
	})
}

func TestPlay_LeaveByUnitClosesInnerUnits(t *testing.T) {
	got, err := play(t, `
steps:
  - enter: {unit: TEST, message: t}
  - enter: {unit: COMPONENT, message: c}
  - enter: {unit: STEP, message: s}
  - leave: COMPONENT
  - leave: {unit: TEST, message: renamed}
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, got, []string{
		`ENTER TEST "t" id-1 STARTED`,
		`ENTER COMPONENT "c" id-2 STARTED`,
		`ENTER STEP "s" id-3 STARTED`,
		`LEAVE COMPONENT "c" id-2 OK`,
		`LEAVE TEST "renamed" id-1 OK`,
	})
}

func TestPlay_LeaveByID(t *testing.T) {
	got, err := play(t, `
steps:
  - enter: {unit: TEST, message: t, id: t1}
  - enter: {unit: STEP, message: s, id: s1}
  - leave: {id: t1, status: ERROR}
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, got, []string{
		`ENTER TEST "t" t1 STARTED`,
		`ENTER STEP "s" s1 STARTED`,
		`LEAVE TEST "t" t1 ERROR`,
	})
}

func TestPlay_Exits(t *testing.T) {
	got, err := play(t, `
steps:
  - enter: {unit: TEST, message: t}
  - enter: {unit: STEP, message: s}
  - fixture: {message: db down, keyValues: {host: db1}}
  - leave
  - enter: {unit: TEST, message: u}
  - exception: connection reset
  - assertion: {message: expected 1}
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertLines(t, got, []string{
		`ENTER TEST "t" id-1 STARTED`,
		`ENTER STEP "s" id-2 STARTED`,
		`FIXTURE "db down" map[host:db1]`,
		`LEAVE TEST "t" id-1 OK`,
		`ENTER TEST "u" id-3 STARTED`,
		`EXCEPTION "connection reset"`,
		`ASSERTION "expected 1"`,
	})
}

func TestPlay_LeaveWithoutOpenUnit(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"nothing entered", "steps:\n  - leave\n"},
		{"unknown id", "steps:\n  - enter: {unit: TEST, message: t}\n  - leave: {id: nope}\n"},
		{"unit not open", "steps:\n  - enter: {unit: TEST, message: t}\n  - leave: STEP\n"},
		{"left by exit", "steps:\n  - enter: {unit: TEST, message: t}\n  - enter: {unit: STEP, message: s}\n  - exception: boom\n  - leave: STEP\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := play(t, tt.doc)
			if !errors.Is(err, ErrNothingOpen) {
				t.Errorf("expected ErrNothingOpen, got %v", err)
			}
		})
	}
}

func TestPlay_CancelledContextReportsException(t *testing.T) {
	s, err := Parse([]byte(`
steps:
  - enter: {unit: TEST, message: t}
  - enter: {unit: STEP, message: s}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	j := &journal{}
	r := report.NewReporter(nil)
	r.AddListener(j)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPlayer(r, WithIDs(sequentialIDs()))
	err = p.Play(ctx, s)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	assertLines(t, j.lines, []string{`EXCEPTION "script aborted: context canceled"`})
	if p.Open() != 0 {
		t.Errorf("expected no open units, got %d", p.Open())
	}
}

func TestPlay_GeneratesUUIDs(t *testing.T) {
	s, err := Parse([]byte("steps:\n  - enter: {unit: TEST, message: t}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	j := &journal{}
	r := report.NewReporter(nil)
	r.AddListener(j)

	if err := NewPlayer(r).Play(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fields := strings.Fields(j.lines[0])
	if id := fields[3]; len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Errorf("expected a UUID, got %q", id)
	}
}

func TestPlay_Artifacts(t *testing.T) {
	afs := afero.NewMemMapFs()
	registry, err := artifacts.NewRegistry(afs, "/artifacts", artifacts.IDs{Suite: "a", SuiteRun: "b", TestRun: "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err := Parse([]byte(`
steps:
  - enter: {unit: TEST, message: t, id: t1}
  - enter: {unit: STEP, message: s, id: s1}
  - artifact: {path: shots/one.png, type: image/png}
  - artifact: {path: logs/app.log, type: text/plain, step: t1}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := report.NewReporter(nil)
	r.AddListener(registry)
	if err := NewPlayer(r, WithArtifacts(registry)).Play(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step, _ := registry.Artifacts("s1")
	if len(step) != 1 || step[0].Path != "shots/one.png" || step[0].Type != "image/png" {
		t.Errorf("expected shots/one.png on s1, got %+v", step)
	}
	test, _ := registry.Artifacts("t1")
	if len(test) != 1 || test[0].Path != "logs/app.log" {
		t.Errorf("expected logs/app.log on t1, got %+v", test)
	}
}

func TestPlay_ArtifactWithoutRegistry(t *testing.T) {
	rec := testutil.NewLogRecorder(slog.LevelDebug)
	_, err := play(t, "steps:\n  - artifact: shots/one.png\n", WithPlayerLogger(rec.Logger()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Contains("skipping artifact") {
		t.Errorf("expected warning about skipped artifact, got:\n%s", rec)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown step", "steps:\n  - jump: high\n", `unknown step "jump"`},
		{"two keys", "steps:\n  - enter: {unit: TEST}\n    leave: TEST\n", "exactly one key"},
		{"enter without unit", "steps:\n  - enter: {message: t}\n", "requires a unit"},
		{"enter scalar", "steps:\n  - enter: TEST\n", "must be a mapping"},
		{"unknown unit", "steps:\n  - enter: {unit: SUITE}\n", "unknown semantic unit"},
		{"unknown status", "steps:\n  - leave: {status: FINE}\n", "unknown status"},
		{"artifact without path", "steps:\n  - artifact: {type: image/png}\n", "requires a path"},
		{"step list", "steps:\n  - [enter]\n", "string or mapping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	afs := afero.NewMemMapFs()
	afero.WriteFile(afs, "/scripts/login.yaml", []byte("source: src/LoginTest.tcl\nsteps:\n  - enter: {unit: TEST, message: t}\n  - leave\n"), 0o644)

	s, err := Load(afs, "/scripts/login.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Source != "src/LoginTest.tcl" {
		t.Errorf("expected source src/LoginTest.tcl, got %q", s.Source)
	}
	if len(s.Steps) != 2 || s.Steps[0].Name != "enter" || s.Steps[1].Name != "leave" {
		t.Errorf("expected enter and leave steps, got %+v", s.Steps)
	}

	if _, err := Load(afs, "/scripts/missing.yaml"); err == nil {
		t.Error("expected error for missing script")
	}
}
