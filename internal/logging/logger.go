// Package logging builds the structured logrus.Logger every LinkNet
// component takes as a constructor argument. There is no package-level
// singleton: callers that want a differently configured logger (a test
// that wants silence, a daemon that wants JSON) construct their own.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[37m"
)

// prettyFormatter renders log lines as "HH:MM:SS LEVEL message key=value..."
// with ANSI level coloring, replacing logrus's default formatter the same
// way the teacher's slog PrettyHandler replaced slog's default.
type prettyFormatter struct{}

func (prettyFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(time.TimeOnly)
	level := colorizeLevel(entry.Level)
	line := fmt.Sprintf("%s %s %s", timestamp, level, entry.Message)

	for key, val := range entry.Data {
		line += fmt.Sprintf(" %s%s=%v%s", colorGray, key, val, colorReset)
	}
	return append([]byte(line), '\n'), nil
}

func colorizeLevel(level logrus.Level) string {
	var color, name string
	switch level {
	case logrus.DebugLevel:
		color, name = colorBlue, "DEBUG"
	case logrus.InfoLevel:
		color, name = colorGreen, "INFO"
	case logrus.WarnLevel:
		color, name = colorYellow, "WARN"
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		color, name = colorRed, "ERROR"
	default:
		color, name = colorGray, level.String()
	}
	return fmt.Sprintf("%s%-5s%s", color, name, colorReset)
}

// NewLogger returns a logrus.Logger writing pretty, colorized lines to
// stdout at Info level.
func NewLogger() *logrus.Logger {
	return newLogger(os.Stdout, logrus.InfoLevel)
}

// NewDebugLogger returns a logger at Debug level, for CLI verbose mode.
func NewDebugLogger() *logrus.Logger {
	return newLogger(os.Stdout, logrus.DebugLevel)
}

// NewSilentLogger discards all output; tests use this to keep component
// logging from cluttering `go test -v` output.
func NewSilentLogger() *logrus.Logger {
	return newLogger(io.Discard, logrus.PanicLevel)
}

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(prettyFormatter{})
	return l
}
