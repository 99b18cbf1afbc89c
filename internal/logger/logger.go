// Package logger builds the *logrus.Logger shared across the deploy
// ingestion core — the audit logger, error reporter, finalizer and
// search indexer all take this same instance rather than constructing
// their own, so every component's output shares one format and level.
package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing JSON lines to stdout at level
// (one of logrus's level names; an unrecognized value, which
// logrus.ParseLevel rejects with an error, falls back to Info).
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return log
}
