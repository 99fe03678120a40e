// Package logging sets up the node's structured logger. It keeps no
// package-level logger: New builds a fresh logrus logger, which the caller
// configures from the viper-backed config's level and passes on.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus.Logger configured at the given level (parsed via
// logrus.ParseLevel; an unparseable level falls back to Info) with JSON
// output to stdout, matching the teacher's node-process logging shape.
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	log.SetLevel(lv)
	return log
}
