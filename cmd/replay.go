package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/prettymuchbryce/calltrace/internal/calltree"
	"github.com/prettymuchbryce/calltrace/internal/config"
	"github.com/prettymuchbryce/calltrace/internal/fs"
	"github.com/prettymuchbryce/calltrace/internal/mask"
	"github.com/prettymuchbryce/calltrace/internal/script"
	"github.com/prettymuchbryce/calltrace/internal/session"
)

var (
	replayConfigPath string
	replaySource     string
	replayCallTree   string
	replayDryRun     bool
)

// ReplayOptions controls Replay.
type ReplayOptions struct {
	// ConfigPath is the config file; empty uses the defaults.
	ConfigPath string
	// Source overrides run.source. Without it the script's source is used.
	Source string
	// CallTree overrides callTree.file and enables the call tree.
	CallTree string
	// LogLevel overrides logging.level.
	LogLevel string
	// DryRun renders the resulting call tree to out.
	DryRun bool
	// Lookup reads environment variables; nil means os.LookupEnv.
	Lookup func(string) (string, bool)
	// LogOutput receives the console listener output; nil means os.Stderr.
	LogOutput io.Writer
}

// Replay plays the script at scriptPath through a session built from the
// config, the environment and opts, in that order of precedence.
func Replay(ctx context.Context, out io.Writer, afs afero.Fs, scriptPath string, opts ReplayOptions) error {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.LoadWithFs(opts.ConfigPath, afs)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv(opts.Lookup)

	s, err := script.Load(afs, scriptPath)
	if err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}

	if cfg.Run.Source == "" {
		cfg.Run.Source = s.Source
	}
	if cfg.Run.Source == "" {
		cfg.Run.Source = scriptPath
	}
	if opts.Source != "" {
		cfg.Run.Source = opts.Source
	}
	if opts.CallTree != "" {
		cfg.CallTree.Enabled = true
		cfg.CallTree.File = opts.CallTree
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	masker, err := mask.New(cfg.Masking.Patterns...)
	if err != nil {
		return fmt.Errorf("invalid masking patterns: %w", err)
	}
	logOutput := opts.LogOutput
	if logOutput == nil {
		logOutput = os.Stderr
	}
	logger := setupLogging(logOutput, cfg.Logging.Level, masker)

	sess, err := session.Open(cfg, afs, session.WithLogger(logger), session.WithMasker(masker))
	if err != nil {
		return err
	}

	player := script.NewPlayer(sess.Reporter(),
		script.WithArtifacts(sess.Artifacts()),
		script.WithPlayerLogger(logger))
	playErr := player.Play(ctx, s)
	if closeErr := sess.Close(); closeErr != nil {
		return errors.Join(playErr, closeErr)
	}
	if playErr != nil {
		return playErr
	}

	fmt.Fprintf(out, "Replayed %d steps from %s\n", len(s.Steps), scriptPath)
	if opts.DryRun && cfg.CallTree.Enabled {
		return renderLastRun(out, afs, cfg.CallTree.File)
	}
	return nil
}

func renderLastRun(out io.Writer, afs afero.Fs, path string) error {
	f, err := afs.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	runs, err := calltree.ReadDocument(f)
	if err != nil {
		return fmt.Errorf("reading call tree %s: %w", path, err)
	}
	if len(runs) == 0 {
		return nil
	}
	return calltree.Render(out, runs[len(runs)-1:], calltree.RenderOptions{Variables: true})
}

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Play an event script through the configured listeners",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var filesystem afero.Fs
		if replayDryRun {
			filesystem = fs.NewDryRun()
			fmt.Println("Dry-run mode enabled (pass --dry-run=false to write the call tree and artifacts)")
		} else {
			filesystem = fs.NewReal()
		}

		opts := ReplayOptions{
			Source:   replaySource,
			CallTree: replayCallTree,
			DryRun:   replayDryRun,
		}
		if cmd.Flags().Changed("config") {
			opts.ConfigPath = replayConfigPath
		} else if exists, _ := afero.Exists(filesystem, config.ExpandTilde(replayConfigPath)); exists {
			opts.ConfigPath = replayConfigPath
		}
		if cmd.Flags().Changed("log-level") {
			opts.LogLevel = logLevel
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return Replay(ctx, os.Stdout, filesystem, args[0], opts)
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayConfigPath, "config", "c", config.DefaultPath(), "path to config file")
	replayCmd.Flags().StringVar(&replaySource, "source", "", "source of the test run (defaults to the script's source)")
	replayCmd.Flags().StringVar(&replayCallTree, "call-tree", "", "call tree file to append to")
	replayCmd.Flags().BoolVarP(&replayDryRun, "dry-run", "n", false, "keep all output in memory and print the call tree")
	rootCmd.AddCommand(replayCmd)
}
