package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.RWMutex
	currentLevel = LevelInfo
	logger       = newLogger(os.Stdout, "text")
)

func init() {
	zerolog.TimeFieldFormat = "2006-01-02 15:04:05"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLevel changes the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return
	}
	mu.Lock()
	currentLevel = lvl
	mu.Unlock()
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// Configure sets level, format ("text" or "json") and output ("stdout",
// "stderr" or a file path, opened in append mode).
//
// The returned closer releases the output file, if one was opened.
func Configure(level, format, output string) (io.Closer, error) {
	var (
		w      io.Writer
		closer io.Closer = nopCloser{}
	)

	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log output %s: %w", output, err)
		}
		w = f
		closer = f
	}

	SetOutput(w, format)
	SetLevel(level)
	return closer, nil
}

// SetOutput redirects log output to w using the given format.
func SetOutput(w io.Writer, format string) {
	l := newLogger(w, format)
	mu.Lock()
	logger = l
	mu.Unlock()
}

func newLogger(w io.Writer, format string) zerolog.Logger {
	if strings.ToLower(format) != "json" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    true,
			TimeFormat: "2006-01-02 15:04:05",
		}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func log(level Level, format string, v ...any) {
	mu.RLock()
	if level < currentLevel {
		mu.RUnlock()
		return
	}
	l := logger
	mu.RUnlock()

	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = l.Debug()
	case LevelInfo:
		ev = l.Info()
	case LevelWarn:
		ev = l.Warn()
	default:
		ev = l.Error()
	}
	ev.Msg(fmt.Sprintf(format, v...))
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
