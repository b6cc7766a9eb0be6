// Package log wraps logrus with a small per-component prefix, the same
// convention used throughout the engine's packages: every subsystem gets its
// own PrefixLogger so log lines can be attributed without threading a
// component name through every call.
package log

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// PrefixLogger prefixes every line with a component tag, e.g. "[pull] ".
type PrefixLogger struct {
	entry  *logrus.Entry
	prefix string
}

// NewPrefixLogger creates a PrefixLogger tagged with prefix, using a fresh
// logrus.Logger at Info level.
func NewPrefixLogger(prefix string) *PrefixLogger {
	l := logrus.New()
	return NewPrefixLoggerFromLogrus(prefix, l)
}

// NewPrefixLoggerFromLogrus wraps an existing logrus.Logger, useful when the
// caller wants shared output/level/hook configuration across subsystems.
func NewPrefixLoggerFromLogrus(prefix string, l *logrus.Logger) *PrefixLogger {
	return &PrefixLogger{
		entry:  logrus.NewEntry(l),
		prefix: prefix,
	}
}

// SetLevel adjusts the verbosity of the underlying logger.
func (p *PrefixLogger) SetLevel(level logrus.Level) {
	p.entry.Logger.SetLevel(level)
}

// SetOutput redirects the underlying logger's output.
func (p *PrefixLogger) SetOutput(w io.Writer) {
	p.entry.Logger.SetOutput(w)
}

// WithField returns a derived PrefixLogger carrying an additional structured field.
func (p *PrefixLogger) WithField(key string, value interface{}) *PrefixLogger {
	return &PrefixLogger{
		entry:  p.entry.WithField(key, value),
		prefix: p.prefix,
	}
}

func (p *PrefixLogger) line(format string) string {
	if p.prefix == "" {
		return format
	}
	return fmt.Sprintf("[%s] %s", p.prefix, format)
}

func (p *PrefixLogger) Tracef(format string, args ...interface{}) {
	p.entry.Tracef(p.line(format), args...)
}

func (p *PrefixLogger) Debugf(format string, args ...interface{}) {
	p.entry.Debugf(p.line(format), args...)
}

func (p *PrefixLogger) Infof(format string, args ...interface{}) {
	p.entry.Infof(p.line(format), args...)
}

func (p *PrefixLogger) Warnf(format string, args ...interface{}) {
	p.entry.Warnf(p.line(format), args...)
}

func (p *PrefixLogger) Errorf(format string, args ...interface{}) {
	p.entry.Errorf(p.line(format), args...)
}

func (p *PrefixLogger) Trace(args ...interface{}) {
	p.entry.Trace(p.prefixArgs(args)...)
}

func (p *PrefixLogger) Debug(args ...interface{}) {
	p.entry.Debug(p.prefixArgs(args)...)
}

func (p *PrefixLogger) Info(args ...interface{}) {
	p.entry.Info(p.prefixArgs(args)...)
}

func (p *PrefixLogger) Warn(args ...interface{}) {
	p.entry.Warn(p.prefixArgs(args)...)
}

func (p *PrefixLogger) Error(args ...interface{}) {
	p.entry.Error(p.prefixArgs(args)...)
}

func (p *PrefixLogger) prefixArgs(args []interface{}) []interface{} {
	if p.prefix == "" {
		return args
	}
	return append([]interface{}{fmt.Sprintf("[%s]", p.prefix)}, args...)
}
