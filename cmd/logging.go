package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/prettymuchbryce/calltrace/internal/mask"
	"github.com/prettymuchbryce/calltrace/internal/report"
)

// traceLevel is report.LevelTrace as a charmbracelet/log level.
const traceLevel = log.Level(report.LevelTrace)

// SetupLogging configures slog with charmbracelet/log for colorful output.
// With a masker, messages and attributes are masked before they are written.
func SetupLogging(levelStr string, masker *mask.Masker) *slog.Logger {
	return setupLogging(os.Stderr, levelStr, masker)
}

func setupLogging(w io.Writer, levelStr string, masker *mask.Masker) *slog.Logger {
	var level log.Level
	switch levelStr {
	case "trace":
		level = traceLevel
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	default:
		level = log.InfoLevel
	}

	logger := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})
	styles := log.DefaultStyles()
	styles.Levels[traceLevel] = lipgloss.NewStyle().
		SetString("TRAC").
		Bold(true).
		MaxWidth(4).
		Foreground(lipgloss.Color("8"))
	logger.SetStyles(styles)

	var handler slog.Handler = logger
	if masker != nil {
		handler = mask.NewHandler(handler, masker)
	}
	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}
