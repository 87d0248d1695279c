package push

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogTransport only logs the message. Used for local runs without a gateway.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger.Named("push-log")}
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Send(_ context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.Token) == "" {
		return "", &SendError{Code: CodeInvalidToken, Err: ErrInvalidToken}
	}
	id := uuid.NewString()
	t.logger.Info("Sending push notification",
		zap.String("message_id", id),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Any("data", msg.Data),
	)
	return id, nil
}
