// Package telemetry carries events out of the core pipeline. The core only
// reports; whatever alerting or paging happens downstream is not its concern.
package telemetry

import (
	"github.com/sirupsen/logrus"
)

// Fields is free-form event context.
type Fields map[string]interface{}

// Reporter receives events from the pipeline components.
type Reporter interface {
	Info(event string, fields Fields)
	Warn(event string, fields Fields)
	Error(event string, err error, fields Fields)
}

// LogReporter forwards events to a logrus logger.
type LogReporter struct {
	logger *logrus.Logger
}

// NewLogReporter creates a reporter that writes events to the given logger.
func NewLogReporter(logger *logrus.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Info(event string, fields Fields) {
	r.logger.WithFields(logrus.Fields(fields)).Info(event)
}

func (r *LogReporter) Warn(event string, fields Fields) {
	r.logger.WithFields(logrus.Fields(fields)).Warn(event)
}

func (r *LogReporter) Error(event string, err error, fields Fields) {
	r.logger.WithFields(logrus.Fields(fields)).WithError(err).Error(event)
}
