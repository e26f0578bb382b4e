package notifier

import (
	"context"

	"go.uber.org/zap"
)

// LogSender 仅记录待发送的消息，适合开发阶段或未配置 SMTP 时使用。
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender 创建日志发送器，未提供 logger 时不输出。
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger.Named("notify")}
}

// Send 记录一条消息。
func (n *LogSender) Send(ctx context.Context, to, templateID string, data map[string]any) error {
	n.logger.Info("notification",
		zap.String("to", to),
		zap.String("template", templateID),
		zap.Any("data", data),
	)
	return nil
}
