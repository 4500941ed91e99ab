// Package artifacts records files written during test execution, such as
// screenshots or logs, per test step.
package artifacts

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/prettymuchbryce/calltrace/internal/report"
)

// BaseDir is where artifact records are stored by default.
const BaseDir = ".testexecution/artifacts"

var (
	// ErrMissingIDs is returned when the suite, suite run or test run id is empty.
	ErrMissingIDs = errors.New("suite id, suite run id and test run id are mandatory")

	// ErrNoStep is returned by Register when no unit is open.
	ErrNoStep = errors.New("no test step is open")

	// ErrInvalidArtifact is returned for artifacts without path or step id.
	ErrInvalidArtifact = errors.New("artifact path and step id must not be empty")
)

// Artifact is a file written during test execution.
type Artifact struct {
	// Type identifies the kind of artifact, e.g. "screenshot". When empty,
	// the MIME type of the file is used.
	Type string
	Path string
}

// IDs identify the test run artifacts belong to.
type IDs struct {
	Suite    string
	SuiteRun string
	TestRun  string
}

// Registry persists artifact registrations immediately, one YAML file per
// test step holding `"type": "path"` lines.
//
// A Registry is also a report.Listener: it follows the open units so that
// Register attaches artifacts to the innermost one.
type Registry struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	open []openUnit
}

type openUnit struct {
	unit report.Unit
	id   string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger of the registry.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates the directory <base>/<suite>/<suiteRun>/<testRun> on
// afs. If it cannot be created, the registry is disabled: the problem is
// logged and registrations are dropped.
func NewRegistry(afs afero.Fs, base string, ids IDs, opts ...Option) (*Registry, error) {
	if ids.Suite == "" || ids.SuiteRun == "" || ids.TestRun == "" {
		return nil, ErrMissingIDs
	}
	if base == "" {
		base = BaseDir
	}

	r := &Registry{fs: afs, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}

	dir := path.Join(base, ids.Suite, ids.SuiteRun, ids.TestRun)
	if err := afs.MkdirAll(dir, 0o755); err != nil {
		r.logger.Error("artifact registry is disabled, failed to create directory", "dir", dir, "error", err)
		return r, nil
	}
	r.dir = dir
	return r, nil
}

// Enabled reports whether registrations are persisted.
func (r *Registry) Enabled() bool {
	return r.dir != ""
}

// Dir returns the directory holding the step files.
func (r *Registry) Dir() string {
	return r.dir
}

// RegisterFor records artifact for the given step.
func (r *Registry) RegisterFor(a Artifact, stepID string) error {
	if a.Path == "" || stepID == "" {
		return ErrInvalidArtifact
	}
	if !r.Enabled() {
		r.logger.Warn("artifact registry is disabled, artifact is not recorded", "path", a.Path)
		return nil
	}

	if a.Type == "" {
		a.Type = r.detectType(a.Path)
	}

	f, err := r.fs.OpenFile(r.stepFile(stepID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("recording artifact %s for step %s: %w", a.Path, stepID, err)
	}
	line := fmt.Sprintf("\"%s\": \"%s\"\n", report.Escape(a.Type), report.Escape(a.Path))
	if _, err := io.WriteString(f, line); err != nil {
		f.Close()
		return fmt.Errorf("recording artifact %s for step %s: %w", a.Path, stepID, err)
	}
	return f.Close()
}

// Register records artifact for the innermost open unit.
func (r *Registry) Register(a Artifact) error {
	r.mu.Lock()
	var step string
	if len(r.open) > 0 {
		step = r.open[len(r.open)-1].id
	}
	r.mu.Unlock()

	if step == "" {
		return ErrNoStep
	}
	return r.RegisterFor(a, step)
}

// Artifacts returns the artifacts recorded for a step in registration order.
func (r *Registry) Artifacts(stepID string) ([]Artifact, error) {
	if !r.Enabled() {
		return nil, nil
	}
	data, err := afero.ReadFile(r.fs, r.stepFile(stepID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifacts of step %s: %w", stepID, err)
	}

	// decoded as node: the same type may be recorded several times
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing artifacts of step %s: %w", stepID, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	m := doc.Content[0]
	var result []Artifact
	for i := 0; i+1 < len(m.Content); i += 2 {
		result = append(result, Artifact{Type: m.Content[i].Value, Path: m.Content[i+1].Value})
	}
	return result, nil
}

func (r *Registry) stepFile(stepID string) string {
	return path.Join(r.dir, stepID+".yaml")
}

func (r *Registry) detectType(p string) string {
	f, err := r.fs.Open(p)
	if err != nil {
		r.logger.Debug("cannot detect artifact type", "path", p, "error", err)
		return "application/octet-stream"
	}
	defer f.Close()

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		return "application/octet-stream"
	}
	return mime.String()
}

// Reported follows the open units.
func (r *Registry) Reported(e report.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Action {
	case report.ActionEnter:
		r.open = append(r.open, openUnit{unit: e.Unit, id: e.ID})
	case report.ActionLeave:
		for i := len(r.open) - 1; i >= 0; i-- {
			if r.open[i].id == e.ID {
				r.open = r.open[:i]
				break
			}
		}
	}
	return nil
}

func (r *Registry) ReportFixtureExit(*report.FixtureError) error {
	r.unwind()
	return nil
}

func (r *Registry) ReportExceptionExit(error) error {
	r.unwind()
	return nil
}

func (r *Registry) ReportAssertionExit(*report.AssertionError) error {
	r.unwind()
	return nil
}

// unwind keeps only test units open, like the call tree does on exits.
func (r *Registry) unwind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.open[:0]
	for _, u := range r.open {
		if u.unit == report.UnitTest {
			kept = append(kept, u)
		}
	}
	r.open = kept
}
