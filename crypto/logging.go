package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LoggerHelper provides standardized logging fields for the packages of
// this module. It never accepts secret material; use KeyFields for public
// keys.
type LoggerHelper struct {
	fields logrus.Fields
}

// NewLogger creates a new logger helper with standardized fields.
func NewLogger(pkg, function string) *LoggerHelper {
	return &LoggerHelper{
		fields: logrus.Fields{
			"function": function,
			"package":  pkg,
		},
	}
}

// WithField adds a custom field to the logger
func (l *LoggerHelper) WithField(key string, value interface{}) *LoggerHelper {
	l.fields[key] = value
	return l
}

// WithFields adds multiple custom fields to the logger
func (l *LoggerHelper) WithFields(fields logrus.Fields) *LoggerHelper {
	for k, v := range fields {
		l.fields[k] = v
	}
	return l
}

// WithError adds error information to the logger
func (l *LoggerHelper) WithError(err error) *LoggerHelper {
	if err != nil {
		l.fields["error"] = err.Error()
	}
	return l
}

// Debug logs a debug message
func (l *LoggerHelper) Debug(message string) {
	logrus.WithFields(l.fields).Debug(message)
}

// Info logs an info message
func (l *LoggerHelper) Info(message string) {
	logrus.WithFields(l.fields).Info(message)
}

// Warn logs a warning message
func (l *LoggerHelper) Warn(message string) {
	logrus.WithFields(l.fields).Warn(message)
}

// Error logs an error message
func (l *LoggerHelper) Error(message string) {
	logrus.WithFields(l.fields).Error(message)
}

// KeyFields returns a short preview of a public key for logging.
// Only the first 8 bytes are shown.
func KeyFields(name string, key []byte) logrus.Fields {
	preview := "nil"
	if len(key) > 0 {
		n := 8
		if len(key) < n {
			n = len(key)
		}
		preview = fmt.Sprintf("%x", key[:n])
	}
	return logrus.Fields{
		name + "_prefix": preview,
	}
}
