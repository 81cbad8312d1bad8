package noise

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Subsystem is the value of the "subsystem" field on every log entry of this
// package.
const Subsystem = "NOISE"

var log logrus.FieldLogger = logrus.StandardLogger().WithField("subsystem", Subsystem)

// UseLogger sets the logger used by the package.
func UseLogger(logger logrus.FieldLogger) {
	log = logger.WithField("subsystem", Subsystem)
}

// DisableLog discards all package log output.
func DisableLog() {
	l := logrus.New()
	l.SetOutput(io.Discard)
	UseLogger(l)
}
