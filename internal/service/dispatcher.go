package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/internal/push"
	"schoolnotify/pkg/logger"
	"schoolnotify/pkg/metrics"
)

const (
	DefaultTitle = "New notification"
	DefaultBody  = "You have a new notification."
)

// Deduplicator suppresses repeated sends of the same (alert, recipient) pair.
// TryAcquire must check and record in one critical section.
type Deduplicator interface {
	TryAcquire(ctx context.Context, alertID, recipientID string) bool
	MarkSent(ctx context.Context, alertID, recipientID string)
}

// LogSink records notification attempts. Record must not block on storage.
type LogSink interface {
	Record(ctx context.Context, entry model.NotificationLog)
}

// Dispatcher builds the push payload for an eligible alert and hands it to
// the push transport. Failures are recorded, never returned as errors.
type Dispatcher struct {
	transport   push.Transport
	dedup       Deduplicator
	sink        LogSink
	sendTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

func NewDispatcher(
	transport push.Transport,
	dedup Deduplicator,
	sink LogSink,
	sendTimeout time.Duration,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		transport:   transport,
		dedup:       dedup,
		sink:        sink,
		sendTimeout: sendTimeout,
		now:         time.Now,
		logger:      logger.Named("dispatcher"),
	}
}

// BuildMessage assembles title, body and data for alert. Pass-through fields
// go into data first so the fixed keys cannot be overwritten by them.
func BuildMessage(alert model.AlertItem, token string) push.Message {
	title := strings.TrimSpace(alert.Title)
	if title == "" {
		title = DefaultTitle
	}
	body := strings.TrimSpace(alert.Message)
	if body == "" {
		body = DefaultBody
	}

	data := make(map[string]string, len(alert.Extra)+6)
	for k, v := range alert.Extra {
		data[k] = v
	}
	data["type"] = alert.Type
	data["id"] = alert.ID
	data["alertId"] = alert.ID
	data["status"] = string(alert.Status)
	if alert.StudentID != "" {
		data["studentId"] = alert.StudentID
	} else {
		delete(data, "studentId")
	}
	if alert.ParentID != "" {
		data["parentId"] = alert.ParentID
	} else {
		delete(data, "parentId")
	}

	return push.Message{
		Token: token,
		Title: title,
		Body:  body,
		Data:  data,
	}
}

// Dispatch sends alert to token and records the attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.AlertItem, token string, role model.Role, recipientID string) (res model.DispatchResult) {
	log := logger.WithTrace(ctx, d.logger).With(
		zap.String("alert_id", alert.ID),
		zap.String("role", string(role)),
		zap.String("recipient_id", recipientID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while dispatching alert", zap.Any("panic", r))
			res = model.DispatchResult{Outcome: model.OutcomeFailed, Err: fmt.Errorf("dispatch panic: %v", r)}
		}
	}()

	msg := BuildMessage(alert, token)

	sendCtx, cancel := withTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := time.Now()
	messageID, err := d.transport.Send(sendCtx, msg)
	elapsed := time.Since(start)

	entry := model.NotificationLog{
		ID:          uuid.NewString(),
		AlertID:     alert.ID,
		Type:        alert.Type,
		Role:        role,
		RecipientID: recipientID,
		Title:       msg.Title,
		Message:     msg.Body,
		MessageID:   messageID,
		AttemptedAt: d.now(),
	}
	if t, ok := alert.CreatedAt.Time(); ok {
		entry.AlertCreatedAt = &t
	}

	if err != nil {
		code := push.ErrorCode(err)
		metrics.RecordPushSendDuration("failed", elapsed)
		entry.Status = model.OutcomeFailed
		entry.Error = err.Error()
		entry.ErrorCode = code
		d.sink.Record(ctx, entry)

		log.Error("Failed to send push notification",
			zap.String("transport", d.transport.Name()),
			zap.String("error_code", code),
			zap.Duration("took", elapsed),
			zap.Error(err),
		)
		return model.DispatchResult{Outcome: model.OutcomeFailed, Reason: code, Err: err}
	}

	metrics.RecordPushSendDuration("sent", elapsed)
	d.dedup.MarkSent(ctx, alert.ID, recipientID)
	entry.Status = model.OutcomeSent
	d.sink.Record(ctx, entry)

	log.Info("Push notification sent",
		zap.String("transport", d.transport.Name()),
		zap.String("message_id", messageID),
		zap.Duration("took", elapsed),
	)
	return model.DispatchResult{Outcome: model.OutcomeSent, MessageID: messageID}
}
