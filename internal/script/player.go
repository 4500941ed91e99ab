package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/prettymuchbryce/calltrace/internal/artifacts"
	"github.com/prettymuchbryce/calltrace/internal/report"
)

// ErrNothingOpen is returned by a leave step when no matching unit is open.
var ErrNothingOpen = errors.New("no open unit to leave")

type openUnit struct {
	unit    report.Unit
	message string
	id      string
}

// Player plays scripts through a Reporter. It generates the ids the script
// leaves out and remembers open units so that leave steps can omit them.
type Player struct {
	reporter report.Reporter
	registry *artifacts.Registry
	newID    func() string
	logger   *slog.Logger

	open []openUnit
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithArtifacts sets the registry artifact steps are recorded in.
func WithArtifacts(r *artifacts.Registry) PlayerOption {
	return func(p *Player) {
		p.registry = r
	}
}

// WithIDs replaces the random UUID generator for missing ids.
func WithIDs(newID func() string) PlayerOption {
	return func(p *Player) {
		if newID != nil {
			p.newID = newID
		}
	}
}

// WithPlayerLogger sets the logger for skipped steps.
func WithPlayerLogger(logger *slog.Logger) PlayerOption {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPlayer creates a Player reporting to r.
func NewPlayer(r report.Reporter, opts ...PlayerOption) *Player {
	p := &Player{
		reporter: r,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play runs all steps of s in order and stops at the first failing step.
// If ctx is cancelled between steps, the abort is reported as an exception
// exit so that listeners close every open unit.
func (p *Player) Play(ctx context.Context, s *Script) error {
	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			p.Exit(func(r report.Reporter) { r.ExceptionExit(fmt.Errorf("script aborted: %w", err)) })
			return err
		}
		if err := step.Inner.Play(p); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
	}
	return nil
}

// Open returns the number of units entered and not yet left.
func (p *Player) Open() int {
	return len(p.open)
}

// Enter reports an enter and remembers the unit. An empty id is generated.
func (p *Player) Enter(unit report.Unit, msg, id string, status report.Status, vars report.Variables) string {
	if id == "" {
		id = p.newID()
	}
	if status == "" {
		status = report.StatusStarted
	}
	p.open = append(p.open, openUnit{unit: unit, message: msg, id: id})
	p.reporter.Enter(unit, msg, id, status, vars)
	return id
}

// Leave reports the leave of an open unit. Without id the innermost open
// unit is left, restricted to unit if given. An empty message repeats the
// message of the enter.
func (p *Player) Leave(unit *report.Unit, msg, id string, status report.Status, vars report.Variables) error {
	i := p.find(unit, id)
	if i < 0 {
		if id != "" {
			return fmt.Errorf("%w with id %q", ErrNothingOpen, id)
		}
		return ErrNothingOpen
	}
	u := p.open[i]
	// units left out by the script are implicitly closed, as listeners do
	p.open = p.open[:i]

	if msg == "" {
		msg = u.message
	}
	if status == "" {
		status = report.StatusOK
	}
	p.reporter.Leave(u.unit, msg, u.id, status, vars)
	return nil
}

func (p *Player) find(unit *report.Unit, id string) int {
	for i := len(p.open) - 1; i >= 0; i-- {
		u := p.open[i]
		if id != "" && u.id != id {
			continue
		}
		if unit != nil && u.unit != *unit {
			continue
		}
		return i
	}
	return -1
}

// Exit reports an abnormal exit through call and forgets all open units
// below TEST.
func (p *Player) Exit(call func(report.Reporter)) {
	call(p.reporter)
	kept := p.open[:0]
	for _, u := range p.open {
		if u.unit == report.UnitTest {
			kept = append(kept, u)
		}
	}
	p.open = kept
}

// Artifact records a for the step with stepID, or for the innermost open
// unit if stepID is empty. Without a registry the artifact is skipped.
func (p *Player) Artifact(a artifacts.Artifact, stepID string) error {
	if p.registry == nil {
		p.logger.Warn("artifacts are disabled, skipping artifact", "path", a.Path)
		return nil
	}
	if stepID != "" {
		return p.registry.RegisterFor(a, stepID)
	}
	return p.registry.Register(a)
}
