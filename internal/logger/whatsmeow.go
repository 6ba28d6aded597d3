package logger

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// WhatsmeowLogger routes whatsmeow's internal logging into zap. whatsmeow is
// chatty at info level, so its info lines are demoted to debug.
type WhatsmeowLogger struct {
	log *zap.SugaredLogger
}

var _ waLog.Logger = (*WhatsmeowLogger)(nil)

func NewWhatsmeowLogger(module string) *WhatsmeowLogger {
	return &WhatsmeowLogger{log: zap.S().Named("whatsmeow").Named(module)}
}

func (l *WhatsmeowLogger) Errorf(msg string, args ...interface{}) { l.log.Errorf(msg, args...) }
func (l *WhatsmeowLogger) Warnf(msg string, args ...interface{})  { l.log.Warnf(msg, args...) }
func (l *WhatsmeowLogger) Infof(msg string, args ...interface{})  { l.log.Debugf(msg, args...) }
func (l *WhatsmeowLogger) Debugf(msg string, args ...interface{}) { l.log.Debugf(msg, args...) }

func (l *WhatsmeowLogger) Sub(module string) waLog.Logger {
	return &WhatsmeowLogger{log: l.log.Named(module)}
}
