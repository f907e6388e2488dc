// Package log provides a thread-safe, structured logging infrastructure with filesystem-based persistence.
package log

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/massdroid-cli/massd/filesystem"
	"github.com/massdroid-cli/massd/key"
	"github.com/massdroid-cli/massd/where"
	"github.com/samber/lo"
	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// enabled indicates the persistent logging state for the active application instance.
var enabled atomic.Bool

// Fields is an alias kept so callers do not import logrus directly.
type Fields = logrus.Fields

// Setup initializes the logging subsystem, including file handles, formatting, and severity levels based on global configuration.
// If logging is disabled, all subsequent log emissions are silently discarded.
func Setup() error {
	enabled.Store(viper.GetBool(key.LogsWrite))
	if !enabled.Load() {
		return nil
	}

	dir := where.Logs()
	if dir == "" {
		return errors.New("log directory path is empty")
	}

	filename := fmt.Sprintf("%s.log", time.Now().Format("2006-01-02"))
	path := filepath.Join(dir, filename)

	if exists := lo.Must(filesystem.API().Exists(path)); !exists {
		lo.Must(filesystem.API().Create(path))
	}

	f, err := filesystem.API().OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logrus.SetOutput(f)

	if viper.GetBool(key.LogsJson) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{})
	}

	SetLevel(viper.GetString(key.LogsLevel))
	return nil
}

// SetLevel changes the severity threshold. Unknown names fall back to info.
func SetLevel(lvl string) {
	parsed, err := logrus.ParseLevel(lvl)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

// Entry is a component-scoped logger. It respects the enabled flag like the package-level helpers.
type Entry struct {
	e *logrus.Entry
}

// For returns an Entry tagged with the given component name.
func For(component string) *Entry {
	return &Entry{e: logrus.WithField("component", component)}
}

func (l *Entry) WithField(k string, v any) *Entry {
	return &Entry{e: l.e.WithField(k, v)}
}

func (l *Entry) WithFields(f Fields) *Entry {
	return &Entry{e: l.e.WithFields(f)}
}

func (l *Entry) WithError(err error) *Entry {
	return &Entry{e: l.e.WithError(err)}
}

func (l *Entry) Error(args ...any) {
	if enabled.Load() {
		l.e.Error(args...)
	}
}

func (l *Entry) Errorf(format string, args ...any) {
	if enabled.Load() {
		l.e.Errorf(format, args...)
	}
}

func (l *Entry) Warn(args ...any) {
	if enabled.Load() {
		l.e.Warn(args...)
	}
}

func (l *Entry) Warnf(format string, args ...any) {
	if enabled.Load() {
		l.e.Warnf(format, args...)
	}
}

func (l *Entry) Info(args ...any) {
	if enabled.Load() {
		l.e.Info(args...)
	}
}

func (l *Entry) Infof(format string, args ...any) {
	if enabled.Load() {
		l.e.Infof(format, args...)
	}
}

func (l *Entry) Debug(args ...any) {
	if enabled.Load() {
		l.e.Debug(args...)
	}
}

func (l *Entry) Debugf(format string, args ...any) {
	if enabled.Load() {
		l.e.Debugf(format, args...)
	}
}

// Package-level emissions proxy messages to the configured backend when logging is enabled.

func Error(args ...any) {
	if enabled.Load() {
		logrus.Error(args...)
	}
}
func Errorf(format string, args ...any) {
	if enabled.Load() {
		logrus.Errorf(format, args...)
	}
}
func Warn(args ...any) {
	if enabled.Load() {
		logrus.Warn(args...)
	}
}
func Warnf(format string, args ...any) {
	if enabled.Load() {
		logrus.Warnf(format, args...)
	}
}
func Info(args ...any) {
	if enabled.Load() {
		logrus.Info(args...)
	}
}
func Infof(format string, args ...any) {
	if enabled.Load() {
		logrus.Infof(format, args...)
	}
}
func Debug(args ...any) {
	if enabled.Load() {
		logrus.Debug(args...)
	}
}
func Debugf(format string, args ...any) {
	if enabled.Load() {
		logrus.Debugf(format, args...)
	}
}
