// Package logging routes the standard logger to stdout or a rotating log
// file and adds leveled helpers.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects where log messages go
type Config struct {
	// Logfile is the rotating log file; empty means stdout
	Logfile string

	// MaxSize is the size in megabytes at which the log file is rotated
	MaxSize int

	// MaxAge is the number of days rotated files are kept
	MaxAge int

	// MaxBackups is the number of rotated files kept
	MaxBackups int

	// Verbose enables Debugf output
	Verbose bool
}

var verbose atomic.Bool

// Setup points the standard logger at the configured destination. The
// returned closer releases the log file and is never nil.
func (c *Config) Setup() io.Closer {
	verbose.Store(c != nil && c.Verbose)
	if c == nil || c.Logfile == "" {
		log.SetOutput(os.Stdout)
		return io.NopCloser(nil)
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename:   c.Logfile,
		MaxSize:    c.MaxSize, // megabytes
		MaxAge:     c.MaxAge,  // days
		MaxBackups: c.MaxBackups,
	}
	log.SetOutput(l)
	return l
}

// Verbose reports whether debug messages are written
func Verbose() bool {
	return verbose.Load()
}

// Debugf logs at DEBUG level when verbose output is enabled
func Debugf(format string, args ...interface{}) {
	if verbose.Load() {
		log.Printf(" DEBUG "+format, args...)
	}
}

// Infof logs at INFO level
func Infof(format string, args ...interface{}) {
	log.Printf(" INFO "+format, args...)
}

// Warningf logs at WARNING level
func Warningf(format string, args ...interface{}) {
	log.Printf(" WARNING "+format, args...)
}

// Errorf logs at ERROR level
func Errorf(format string, args ...interface{}) {
	log.Printf(" ERROR "+format, args...)
}
