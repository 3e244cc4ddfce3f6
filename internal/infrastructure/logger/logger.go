package logger

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelFatal: "fatal",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel maps a level name such as "debug" or "WARNING" to a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// UnmarshalYAML accepts both level names and their numeric values.
func (l *Level) UnmarshalYAML(value *yaml.Node) error {
	var n int
	if err := value.Decode(&n); err == nil {
		*l = Level(n)
		return nil
	}
	parsed, err := ParseLevel(value.Value)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l Level) MarshalYAML() (any, error) {
	return l.String(), nil
}

type Fields map[string]any

type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...any)
	Info(msg string)
	Infof(format string, args ...any)
	Warn(msg string)
	Warnf(format string, args ...any)
	Error(msg string)
	Errorf(format string, args ...any)
	Fatal(msg string)
	Fatalf(format string, args ...any)

	WithField(key string, value any) Logger
	WithFields(fields Fields) Logger
	WithContext(ctx context.Context) Logger

	SetLevel(level Level)
	SetOutput(output io.Writer)
}

// Nop discards everything. Useful in tests and for optional loggers.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string)                   {}
func (nopLogger) Debugf(string, ...any)          {}
func (nopLogger) Info(string)                    {}
func (nopLogger) Infof(string, ...any)           {}
func (nopLogger) Warn(string)                    {}
func (nopLogger) Warnf(string, ...any)           {}
func (nopLogger) Error(string)                   {}
func (nopLogger) Errorf(string, ...any)          {}
func (nopLogger) Fatal(string)                   {}
func (nopLogger) Fatalf(string, ...any)          {}
func (n nopLogger) WithField(string, any) Logger { return n }
func (n nopLogger) WithFields(Fields) Logger     { return n }
func (n nopLogger) WithContext(context.Context) Logger {
	return n
}
func (nopLogger) SetLevel(Level)      {}
func (nopLogger) SetOutput(io.Writer) {}
