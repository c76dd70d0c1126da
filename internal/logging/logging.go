// Package logging is a small component-tagged wrapper around the standard
// log package. No structured logging library appears anywhere in this
// project's reference corpus (every emulator-shaped repo there logs through
// fmt.Fprintf/log.Printf straight to stderr), so agonite follows suit rather
// than introducing one.
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger tags every line with a component name, e.g. "hostfs:", "sdcard:".
type Logger struct {
	tag    string
	stdlog *log.Logger
}

// New returns a Logger that writes to stderr with the given component tag.
func New(component string) *Logger {
	return &Logger{
		tag:    component,
		stdlog: log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) Printf(format string, args ...interface{}) {
	l.stdlog.Printf("%s: %s", l.tag, fmt.Sprintf(format, args...))
}

func (l *Logger) Println(args ...interface{}) {
	l.stdlog.Println(append([]interface{}{l.tag + ":"}, args...)...)
}
