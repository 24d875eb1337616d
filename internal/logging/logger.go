// Package logging wraps the standard logger with the bracketed level tags
// used throughout netwatch.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger writes "[LEVEL] message" lines. Debug lines are dropped unless verbose.
type Logger struct {
	out     *log.Logger
	verbose bool
}

// New creates a logger writing to w
func New(w io.Writer, verbose bool) *Logger {
	return &Logger{
		out:     log.New(w, "", log.LstdFlags),
		verbose: verbose,
	}
}

// Default logs to stderr
func Default(verbose bool) *Logger {
	return New(os.Stderr, verbose)
}

// Discard drops everything, for tests
func Discard() *Logger {
	return New(io.Discard, false)
}

func (l *Logger) Verbose() bool {
	return l.verbose
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.printf("DEBUG", format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.printf("INFO", format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.printf("WARNING", format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.printf("ERROR", format, args...)
}

func (l *Logger) printf(level, format string, args ...interface{}) {
	l.out.Output(3, fmt.Sprintf("["+level+"] "+format, args...))
}
