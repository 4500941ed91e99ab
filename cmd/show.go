package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/prettymuchbryce/calltrace/internal/calltree"
	"github.com/prettymuchbryce/calltrace/internal/watcher"
)

var (
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	boldStyle = lipgloss.NewStyle().Bold(true)
)

var (
	showSummary   bool
	showVariables bool
	showFollow    bool
)

// ShowOptions controls Show.
type ShowOptions struct {
	Summary   bool
	Variables bool
}

// Show renders the call tree documents in files, in order.
func Show(out io.Writer, afs afero.Fs, files []string, opts ShowOptions) error {
	var runs []calltree.Run
	for _, path := range files {
		fileRuns, err := readRuns(afs, path)
		if err != nil {
			return err
		}
		runs = append(runs, fileRuns...)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no test runs recorded"))
		return nil
	}
	if err := calltree.Render(out, runs, calltree.RenderOptions{Variables: opts.Variables}); err != nil {
		return err
	}
	if opts.Summary {
		fmt.Fprintln(out)
		calltree.RenderSummary(out, calltree.Summarize(runs))
	}
	return nil
}

func readRuns(afs afero.Fs, path string) ([]calltree.Run, error) {
	f, err := afs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	runs, err := calltree.ReadDocument(f)
	if err != nil {
		return nil, fmt.Errorf("reading call tree %s: %w", path, err)
	}
	return runs, nil
}

// expandGlobs resolves doublestar patterns on the real filesystem.
// Every pattern must match at least one file.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no call tree matches %q", pattern)
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	return files, nil
}

var showCmd = &cobra.Command{
	Use:   "show <glob>...",
	Short: "Render recorded call trees",
	Long: "Render the call tree documents matching the given patterns.\n" +
		"Patterns support ** to match any number of directories, e.g. " + boldStyle.Render("'out/**/calltree.yaml'") + ".",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandGlobs(args)
		if err != nil {
			return err
		}
		afs := afero.NewOsFs()
		opts := ShowOptions{Summary: showSummary, Variables: showVariables}
		if err := Show(os.Stdout, afs, files, opts); err != nil {
			return err
		}
		if !showFollow {
			return nil
		}

		w, err := watcher.New(files, 200*time.Millisecond, func(paths []string) {
			fmt.Println(dimStyle.Render(fmt.Sprintf("── updated %s ──", time.Now().Format(time.TimeOnly))))
			if err := Show(os.Stdout, afs, files, opts); err != nil {
				slog.Error("failed to render call trees", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to watch call trees: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return w.Run(ctx)
	},
}

func init() {
	showCmd.Flags().BoolVarP(&showSummary, "summary", "s", false, "add a table of unit counts per status")
	showCmd.Flags().BoolVar(&showVariables, "variables", false, "show pre and post variables")
	showCmd.Flags().BoolVarP(&showFollow, "follow", "f", false, "render again whenever a file changes")
	rootCmd.AddCommand(showCmd)
}
