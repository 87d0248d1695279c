package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/pkg/metrics"
	"schoolnotify/pkg/util"
)

type NotificationLogRepository struct {
	db     Querier
	logger *zap.Logger
}

func NewNotificationLogRepository(db Querier, logger *zap.Logger) *NotificationLogRepository {
	return &NotificationLogRepository{
		db:     db,
		logger: logger.Named("notification_logs"),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *NotificationLogRepository) Insert(ctx context.Context, entry model.NotificationLog) error {
	start := time.Now()
	defer func() {
		metrics.RecordDBQueryDuration("insert", "notification_logs", time.Since(start))
	}()

	query := `
		INSERT INTO notification_logs (
			id, alert_id, alert_type, role, recipient_id, title, message,
			status, message_id, error, error_code, alert_created_at, attempted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.AlertID,
		entry.Type,
		string(entry.Role),
		entry.RecipientID,
		entry.Title,
		entry.Message,
		string(entry.Status),
		nullable(entry.MessageID),
		nullable(entry.Error),
		nullable(entry.ErrorCode),
		entry.AlertCreatedAt,
		entry.AttemptedAt,
	)
	return err
}

// LogInserter persists one notification log entry.
type LogInserter interface {
	Insert(ctx context.Context, entry model.NotificationLog) error
}

// NotificationLogSink writes log entries in the background. Record never
// blocks: when the buffer is full the entry is dropped and logged.
type NotificationLogSink struct {
	repo         LogInserter
	entries      chan model.NotificationLog
	writeTimeout time.Duration
	logger       *zap.Logger
	done         chan struct{}
}

func NewNotificationLogSink(repo LogInserter, bufferSize int, writeTimeout time.Duration, logger *zap.Logger) *NotificationLogSink {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &NotificationLogSink{
		repo:         repo,
		entries:      make(chan model.NotificationLog, bufferSize),
		writeTimeout: writeTimeout,
		logger:       logger.Named("log_sink"),
		done:         make(chan struct{}),
	}
}

func (s *NotificationLogSink) Record(_ context.Context, entry model.NotificationLog) {
	select {
	case s.entries <- entry:
	default:
		s.logger.Warn("Notification log buffer full, dropping entry",
			zap.String("alert_id", entry.AlertID),
			zap.String("recipient_id", entry.RecipientID),
			zap.String("status", string(entry.Status)),
		)
	}
}

// Run writes entries until ctx is cancelled, then flushes what is buffered.
func (s *NotificationLogSink) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case entry := <-s.entries:
			s.write(entry)
		case <-ctx.Done():
			s.flush()
			return
		}
	}
}

// Wait blocks until Run has flushed and returned.
func (s *NotificationLogSink) Wait() {
	<-s.done
}

func (s *NotificationLogSink) flush() {
	for {
		select {
		case entry := <-s.entries:
			s.write(entry)
		default:
			return
		}
	}
}

func (s *NotificationLogSink) write(entry model.NotificationLog) {
	ctx := context.Background()
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Error("Failed to write notification log",
			zap.String("alert_id", entry.AlertID),
			zap.String("recipient_id", entry.RecipientID),
			zap.String("error_type", util.ClassifyError(err)),
			zap.Error(err),
		)
	}
}
