package logger

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	logFile     *os.File
	logDir      string
	currentDay  string
	logMu       sync.Mutex
	fileLogging bool

	level   = LevelInfo
	colored = true
	out     io.Writer = os.Stderr
)

var (
	styleDebug = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
	styleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAF5F"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7AF00"))
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("#D75F5F")).Bold(true)
	styleFaint = lipgloss.NewStyle().Faint(true)
)

// Init enables file logging. If dir does not end in "logs", a logs
// subdirectory is used. An empty dir leaves file logging off.
func Init(dir string) error {
	if dir == "" {
		return nil
	}
	resolved := dir
	if path.Base(filepath.ToSlash(dir)) != "logs" {
		resolved = filepath.Join(dir, "logs")
	}
	if err := os.MkdirAll(resolved, 0o750); err != nil {
		return err
	}

	logMu.Lock()
	defer logMu.Unlock()
	logDir = resolved
	fileLogging = true
	if err := rotateLocked(time.Now()); err != nil {
		fileLogging = false
		return err
	}
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	fileLogging = false
}

// ParseLevel converts a string to a Level, returning an error if unrecognized.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
}

func SetLevel(l Level) {
	logMu.Lock()
	defer logMu.Unlock()
	level = l
}

func SetColored(c bool) {
	logMu.Lock()
	defer logMu.Unlock()
	colored = c
}

// SetOutput redirects console output. Used by tests and the CLI.
func SetOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	out = w
}

func Debug(format string, args ...interface{}) {
	log(LevelDebug, format, args...)
}

func Info(format string, args ...interface{}) {
	log(LevelInfo, format, args...)
}

func Warn(format string, args ...interface{}) {
	log(LevelWarn, format, args...)
}

func Error(format string, args ...interface{}) {
	log(LevelError, format, args...)
}

func log(lvl Level, format string, args ...interface{}) {
	nowTime := time.Now()
	now := nowTime.Format("2006/01/02 15:04:05")
	msg := fmt.Sprintf(format, args...)
	var label string
	var style lipgloss.Style
	switch lvl {
	case LevelDebug:
		label, style = "[DEBG]", styleDebug
	case LevelInfo:
		label, style = "[INFO]", styleInfo
	case LevelWarn:
		label, style = "[WARN]", styleWarn
	default:
		label, style = "[EROR]", styleError // 4 chars align
	}

	logMu.Lock()
	defer logMu.Unlock()
	if lvl < level {
		return
	}

	// File output (no color), with daily rollover
	if fileLogging {
		if err := rotateLocked(nowTime); err == nil && logFile != nil {
			_, _ = fmt.Fprintf(logFile, "%s %s %s\n", now, label, msg)
		}
	}

	if colored {
		fmt.Fprintf(out, "%s %s %s\n", styleFaint.Render(now), style.Render(label), msg)
		return
	}
	fmt.Fprintf(out, "%s %s %s\n", now, label, msg)
}

func rotateLocked(t time.Time) error {
	if logDir == "" {
		return nil
	}
	day := t.Format("2006-01-02")
	if logFile != nil && currentDay == day {
		return nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	filePath := filepath.Join(logDir, day+".log")
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return err
	}
	logFile = f
	currentDay = day
	return nil
}
