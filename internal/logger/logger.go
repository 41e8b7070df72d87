// Package logger installs a charmbracelet/log handler as the slog default.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/andreiashu/pinbed/internal/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	infoTxtColor  = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	warnTxtColor  = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}
	errorTxtColor = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}
	debugTxtColor = lipgloss.AdaptiveColor{Light: "#7E57C2", Dark: "#7E57C2"}
)

var formatters = map[string]log.Formatter{
	"json":   log.JSONFormatter,
	"text":   log.TextFormatter,
	"logfmt": log.LogfmtFormatter,
}

// Setup builds a logger writing to stdout and makes it the slog default.
func Setup(cfg config.Log) *slog.Logger {
	slogger := New(os.Stdout, cfg)
	slog.SetDefault(slogger)
	return slogger
}

// New builds a slog.Logger backed by charmbracelet/log. Unknown levels fall
// back to info and unknown formats to text.
func New(w io.Writer, cfg config.Log) *slog.Logger {
	level, err := log.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}
	formatter, ok := formatters[strings.ToLower(cfg.Format)]
	if !ok {
		formatter = log.TextFormatter
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportCaller:    level == log.DebugLevel,
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Level:           level,
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
	})
	logger.SetStyles(styles())
	return slog.New(logger)
}

func styles() *log.Styles {
	s := log.DefaultStyles()
	level := func(symbol string, color lipgloss.AdaptiveColor) lipgloss.Style {
		return lipgloss.NewStyle().
			SetString(symbol).
			Bold(true).
			Padding(0, 1).
			Foreground(color)
	}
	s.Levels[log.ErrorLevel] = level("ERROR", errorTxtColor)
	s.Levels[log.WarnLevel] = level("WARN", warnTxtColor)
	s.Levels[log.InfoLevel] = level("INFO", infoTxtColor)
	s.Levels[log.DebugLevel] = level("DEBUG", debugTxtColor)

	s.Keys["error"] = lipgloss.NewStyle().Foreground(errorTxtColor)
	s.Values["error"] = lipgloss.NewStyle().Bold(true)
	s.Keys["code"] = lipgloss.NewStyle().Foreground(infoTxtColor)
	s.Values["code"] = lipgloss.NewStyle().Bold(true)
	s.Keys["status"] = lipgloss.NewStyle().Foreground(warnTxtColor)
	return s
}
