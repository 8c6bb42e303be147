// Package log wraps logrus so that every component logs through one
// configured logger with its own set of predefined fields.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields are attached to every entry emitted by a fielded logger.
type Fields = logrus.Fields

var (
	root = newRoot()
	mu   sync.Mutex
)

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Setup configures level and output format. It can be called again, loggers
// created before the call pick up the new settings.
func Setup(level string, json bool) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	mu.Lock()
	defer mu.Unlock()

	root.SetLevel(parsed)
	if json {
		root.SetFormatter(&logrus.JSONFormatter{})
	} else {
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return nil
}

// SetOutput redirects every logger, mostly useful in tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root.SetOutput(w)
}

// NewFieldedLogger creates a logger carrying the given fields.
func NewFieldedLogger(fields *Fields) *logrus.Entry {
	if fields == nil {
		return logrus.NewEntry(root)
	}
	return root.WithFields(*fields)
}

// Logger returns the underlying logrus logger.
func Logger() *logrus.Logger {
	return root
}
