package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a named logger. Every line carries the module name so output
// from concurrent pipeline workers can be told apart.
type Logger struct {
	name  string
	entry *logrus.Entry
}

func NewLogger(name string, level string, writer io.Writer) *Logger {
	if writer == nil {
		writer = os.Stdout
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base := &logrus.Logger{
		Out: writer,
		Formatter: &logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
			DisableSorting:  true,
		},
		Hooks: make(logrus.LevelHooks),
		Level: lvl,
	}
	return &Logger{
		name:  name,
		entry: base.WithField("module", name),
	}
}

func (l *Logger) Name() string {
	return l.name
}

// SetLevel changes the level after construction. Unknown levels are ignored.
func (l *Logger) SetLevel(level string) {
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		l.entry.Logger.SetLevel(lvl)
	}
}

func (l *Logger) Level() string {
	return l.entry.Logger.GetLevel().String()
}

func (l *Logger) SetOutput(writer io.Writer) {
	l.entry.Logger.SetOutput(writer)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}
