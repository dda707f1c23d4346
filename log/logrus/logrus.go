package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/yourorg/dollcache"
)

type LogrusLogger struct{ E *logrus.Entry }

var _ dollcache.Logger = LogrusLogger{}

func (l LogrusLogger) Debug(msg string, f dollcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f dollcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Info(msg)
}
func (l LogrusLogger) Warn(msg string, f dollcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Warn(msg)
}
func (l LogrusLogger) Error(msg string, f dollcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
