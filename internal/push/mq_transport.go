package push

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRoutingKey is where push requests are published for the gateway.
const DefaultRoutingKey = "push.requested"

// Publisher is the subset of mq.Publisher the transport needs.
type Publisher interface {
	Publish(ctx context.Context, routingKey, messageID string, payload any) error
}

// PushRequestedPayload is the message consumed by the push gateway.
type PushRequestedPayload struct {
	MessageID   string            `json:"message_id"`
	Token       string            `json:"token"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data"`
	RequestedAt time.Time         `json:"requested_at"`
}

// MQTransport hands push requests to the gateway over RabbitMQ. A send is
// successful once the broker accepted the message.
type MQTransport struct {
	publisher  Publisher
	routingKey string
	logger     *zap.Logger
}

func NewMQTransport(publisher Publisher, routingKey string, logger *zap.Logger) *MQTransport {
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	return &MQTransport{
		publisher:  publisher,
		routingKey: routingKey,
		logger:     logger.Named("push-mq"),
	}
}

func (t *MQTransport) Name() string { return "mq" }

func (t *MQTransport) Send(ctx context.Context, msg Message) (string, error) {
	if strings.TrimSpace(msg.Token) == "" {
		return "", &SendError{Code: CodeInvalidToken, Err: ErrInvalidToken}
	}

	messageID := uuid.NewString()
	payload := PushRequestedPayload{
		MessageID:   messageID,
		Token:       msg.Token,
		Title:       msg.Title,
		Body:        msg.Body,
		Data:        msg.Data,
		RequestedAt: time.Now().UTC(),
	}

	if err := t.publisher.Publish(ctx, t.routingKey, messageID, payload); err != nil {
		t.logger.Error("Failed to publish push request",
			zap.String("routing_key", t.routingKey),
			zap.Error(err),
		)
		return "", &SendError{Code: "publish_failed", Err: err}
	}

	t.logger.Debug("Push request published",
		zap.String("message_id", messageID),
		zap.String("routing_key", t.routingKey),
	)
	return messageID, nil
}
