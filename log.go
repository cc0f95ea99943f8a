package mnt

import "github.com/sirupsen/logrus"

// A Logger receives structured diagnostics about a Mount's operation:
// orphaned replies, reply/request type mismatches, and flush races.
// These conditions never fail an in-flight caller's request on their
// own; they are logged so an operator can notice a misbehaving server
// or transport. *logrus.Logger and *logrus.Entry both satisfy Logger.
type Logger interface {
	WithFields(fields logrus.Fields) *logrus.Entry
}

// discardLogger is used by a Mount when no Logger is supplied in
// Options; it swallows every record instead of falling back to the
// standard library's log package, so an unconfigured Mount never
// writes to stderr on the caller's behalf.
type discardLogger struct{}

func (discardLogger) WithFields(logrus.Fields) *logrus.Entry {
	l := logrus.New()
	l.Out = discardWriter{}
	return logrus.NewEntry(l)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
