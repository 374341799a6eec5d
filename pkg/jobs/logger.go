package jobs

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger defines the logging interface.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// defaultLogger backs the Logger interface with logrus.
type defaultLogger struct {
	log *logrus.Entry
}

// NewDefaultLogger returns the stock logrus-backed logger.
func NewDefaultLogger() Logger {
	base := logrus.New()
	base.SetLevel(logrus.InfoLevel)
	return &defaultLogger{
		log: base.WithField("component", "grove-jobs"),
	}
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l *defaultLogger) Info(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		l.log.WithFields(kvFields(keysAndValues)).Info(msg)
	} else {
		l.log.Info(msg)
	}
}

func (l *defaultLogger) Error(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		l.log.WithFields(kvFields(keysAndValues)).Error(msg)
	} else {
		l.log.Error(msg)
	}
}

func (l *defaultLogger) Debug(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) > 0 {
		l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
	} else {
		l.log.Debug(msg)
	}
}
