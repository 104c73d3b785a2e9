// Package synclog provides the leveled, subject-scoped logging used
// throughout localsync's core. It deliberately mirrors the teacher's
// hand-rolled logger rather than reaching for a third-party logging
// library: the core has no opinion on where records end up, only on
// their level and the subject (file, directory, run) they describe.
package synclog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Level is the severity of a log record, lowest first.
type Level int32

// Levels, ordered from most to least verbose.
const (
	Debug Level = iota
	Info
	Notice
	Error
)

var levelNames = [...]string{"DEBUG", "INFO", "NOTICE", "ERROR"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// Logger writes leveled, subject-scoped records to an io.Writer.
//
// A nil subject is rendered as "-"; any other subject is rendered with
// fmt's %v, matching the style of fs.Debugf(o, ...) in the teacher where
// o is often an *Object, a path string, or nil.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  atomic.Int32
}

// New returns a Logger writing to w at the given minimum level.
func New(w io.Writer, level Level) *Logger {
	l := &Logger{out: w}
	l.level.Store(int32(level))
	return l
}

// Default is the package-level logger, writing to stderr at Info level.
var Default = New(os.Stderr, Info)

// SetLevel changes the minimum level a Logger will emit.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return int32(level) >= l.level.Load()
}

func (l *Logger) logf(level Level, subject any, format string, args ...any) {
	if !l.enabled(level) {
		return
	}
	subj := "-"
	if subject != nil {
		subj = fmt.Sprintf("%v", subject)
	}
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%-6s %s: %s\n", level, subj, msg)
}

// Debugf logs at Debug level, scoped to subject.
func (l *Logger) Debugf(subject any, format string, args ...any) { l.logf(Debug, subject, format, args...) }

// Infof logs at Info level, scoped to subject.
func (l *Logger) Infof(subject any, format string, args ...any) { l.logf(Info, subject, format, args...) }

// Noticef logs at Notice level, scoped to subject. Used for the
// adaptive controller's verbose-then-concise shrink advisories.
func (l *Logger) Noticef(subject any, format string, args ...any) { l.logf(Notice, subject, format, args...) }

// Errorf logs at Error level, scoped to subject.
func (l *Logger) Errorf(subject any, format string, args ...any) { l.logf(Error, subject, format, args...) }

// Package-level convenience wrappers over Default, matching the
// teacher's fs.Debugf/fs.Logf/fs.Errorf free functions.

// Debugf logs at Debug level on the default logger.
func Debugf(subject any, format string, args ...any) { Default.Debugf(subject, format, args...) }

// Infof logs at Info level on the default logger.
func Infof(subject any, format string, args ...any) { Default.Infof(subject, format, args...) }

// Noticef logs at Notice level on the default logger.
func Noticef(subject any, format string, args ...any) { Default.Noticef(subject, format, args...) }

// Errorf logs at Error level on the default logger.
func Errorf(subject any, format string, args ...any) { Default.Errorf(subject, format, args...) }
