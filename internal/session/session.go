// Package session assembles a Reporter and its listeners from a Config.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/prettymuchbryce/calltrace/internal/artifacts"
	"github.com/prettymuchbryce/calltrace/internal/calltree"
	"github.com/prettymuchbryce/calltrace/internal/config"
	"github.com/prettymuchbryce/calltrace/internal/mask"
	"github.com/prettymuchbryce/calltrace/internal/metrics"
	"github.com/prettymuchbryce/calltrace/internal/report"
)

// Session owns the reporter of one test execution and the resources its
// listeners write to.
type Session struct {
	fs     afero.Fs
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time

	reporter *report.DefaultReporter
	masker   *mask.Masker
	callTree afero.File
	registry *artifacts.Registry
	gatherer *prometheus.Registry
	metrics  *metrics.Metrics
	closed   bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger of the reporter and all listeners.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for console durations and call tree timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMasker uses m instead of a masker built from the configured patterns,
// e.g. to share it with the log handler.
func WithMasker(m *mask.Masker) Option {
	return func(s *Session) {
		s.masker = m
	}
}

// Open validates cfg and wires the listeners it enables:
//
//   - the console listener as log listener, always
//   - the call tree listener appending to callTree.file
//   - the artifact registry below artifacts.baseDir
//   - the metrics listener, always; written to metrics.textfile on Close
//
// Masking patterns apply to the console and the call tree.
func Open(cfg *config.Config, afs afero.Fs, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		fs:     afs,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.masker == nil {
		masker, err := mask.New(cfg.Masking.Patterns...)
		if err != nil {
			return nil, fmt.Errorf("masking patterns: %w", err)
		}
		s.masker = masker
	}

	console := report.NewConsoleListener(
		report.WithConsoleLogger(s.logger),
		report.WithConsoleMasker(s.masker),
		report.WithConsoleClock(s.now),
	)
	s.reporter = report.NewReporter(console, report.WithLogger(s.logger))

	if cfg.CallTree.Enabled {
		if err := s.openCallTree(); err != nil {
			return nil, err
		}
	}

	if cfg.Artifacts.Enabled {
		ids := artifacts.IDs{
			Suite:    cfg.Run.SuiteID,
			SuiteRun: cfg.Run.SuiteRunID,
			TestRun:  cfg.Run.TestRunID,
		}
		registry, err := artifacts.NewRegistry(afs, cfg.Artifacts.BaseDir, ids, artifacts.WithLogger(s.logger))
		if err != nil {
			s.closeCallTree()
			return nil, fmt.Errorf("artifact registry: %w", err)
		}
		s.registry = registry
		s.reporter.AddListener(registry)
	}

	s.gatherer, s.metrics = metrics.NewRegistry()
	s.reporter.AddListener(metrics.NewListener(s.metrics))

	return s, nil
}

func (s *Session) openCallTree() error {
	path := s.cfg.CallTree.File
	if dir := filepath.Dir(path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating call tree directory: %w", err)
		}
	}
	f, err := s.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening call tree %s: %w", path, err)
	}
	s.callTree = f

	header := calltree.Header{
		Source:    s.cfg.Run.Source,
		TestRunID: s.cfg.Run.TestRunID,
		CommitID:  s.cfg.Run.CommitID,
	}
	tree := calltree.New(f, header, calltree.WithClock(s.now), calltree.WithLogger(s.logger))
	s.reporter.AddListener(mask.NewListener(tree, s.masker))
	s.logger.Debug("writing call tree", "file", path)
	return nil
}

// Reporter returns the reporter test execution reports to.
func (s *Session) Reporter() report.Reporter {
	return s.reporter
}

// Artifacts returns the artifact registry, or nil if artifacts are disabled.
func (s *Session) Artifacts() *artifacts.Registry {
	return s.registry
}

// Masker returns the masker built from the configured patterns. Patterns
// registered on it later apply to all listeners of the session.
func (s *Session) Masker() *mask.Masker {
	return s.masker
}

// Metrics returns the metrics updated by the session.
func (s *Session) Metrics() *metrics.Metrics {
	return s.metrics
}

// Gatherer returns the registry holding the session metrics.
func (s *Session) Gatherer() prometheus.Gatherer {
	return s.gatherer
}

// Close closes the call tree file and writes the metrics textfile.
// Calling Close more than once is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.closeCallTree(); err != nil {
		errs = append(errs, fmt.Errorf("closing call tree: %w", err))
	}
	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(s.fs, s.gatherer, path); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics textfile: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) closeCallTree() error {
	if s.callTree == nil {
		return nil
	}
	err := s.callTree.Close()
	s.callTree = nil
	return err
}
