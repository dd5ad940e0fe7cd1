package email

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers transactional mail. The real transport lives outside this
// service; LogSender stands in for local runs and tests.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.Info("Email sent",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
