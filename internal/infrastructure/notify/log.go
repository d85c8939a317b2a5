package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
)

// LogSink writes notifications to the application log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("notification")}
}

func (s *LogSink) Name() string { return "log" }

// Send logs n at the level it carries
func (s *LogSink) Send(_ context.Context, n port.Notification) error {
	fields := []zap.Field{
		zap.String("type", n.Type),
		zap.String("client_id", n.ClientID),
		zap.String("message", n.Message),
		zap.Duration("duration", n.Duration),
	}
	switch n.Level {
	case port.LevelError:
		s.logger.Error(n.Title, fields...)
	case port.LevelWarning:
		s.logger.Warn(n.Title, fields...)
	default:
		s.logger.Info(n.Title, fields...)
	}
	return nil
}
