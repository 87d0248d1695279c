package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/internal/repository"
)

// DefaultChannel is the NOTIFY channel the documents trigger publishes on.
const DefaultChannel = "document_changes"

// ContainerReader loads alert containers for snapshots and change events.
type ContainerReader interface {
	Get(ctx context.Context, ref model.ContainerRef) (repository.ContainerSnapshot, bool, error)
	List(ctx context.Context, collection model.Collection) ([]repository.ContainerSnapshot, error)
}

// notification is the trigger payload.
type notification struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Op         string `json:"op"`
}

func parseNotification(payload string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	n.Op = strings.ToUpper(n.Op)
	return n, nil
}

func (n notification) ref() model.ContainerRef {
	return model.ContainerRef{Collection: model.Collection(n.Collection), ID: n.ID}
}

// changeType maps a trigger operation to a change type. Rows that no longer
// exist are reported as removed regardless of the operation.
func changeType(op string, exists bool) model.ChangeType {
	if !exists || op == "DELETE" {
		return model.ChangeRemoved
	}
	if op == "INSERT" {
		return model.ChangeAdded
	}
	return model.ChangeModified
}

// PostgresFeed delivers document changes using LISTEN/NOTIFY on a dedicated
// pool connection.
type PostgresFeed struct {
	pool       *pgxpool.Pool
	containers ContainerReader
	channel    string
	logger     *zap.Logger
}

func NewPostgresFeed(pool *pgxpool.Pool, containers ContainerReader, channel string, logger *zap.Logger) *PostgresFeed {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PostgresFeed{
		pool:       pool,
		containers: containers,
		channel:    channel,
		logger:     logger.Named("changefeed"),
	}
}

// Subscribe emits the current contents of target as initial changes, then
// every later change, until ctx is cancelled (nil) or the connection fails.
func (f *PostgresFeed) Subscribe(ctx context.Context, target model.WatchTarget, out chan<- model.Change) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	channel := pgx.Identifier{f.channel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("listen %s: %w", f.channel, err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "UNLISTEN "+channel); err != nil {
			f.logger.Warn("Failed to unlisten", zap.String("channel", f.channel), zap.Error(err))
		}
	}()

	// LISTEN is active before the snapshot is read so nothing written in
	// between is lost; such writes show up twice and the differ drops repeats.
	if err := f.snapshot(ctx, target, out); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	f.logger.Info("Subscribed to document changes", zap.String("target", target.String()))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		note, err := parseNotification(n.Payload)
		if err != nil {
			f.logger.Warn("Ignoring malformed notification", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}
		ref := note.ref()
		if !target.Covers(ref) {
			continue
		}

		change, ok, err := f.load(ctx, ref, note.Op)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}
		if !send(ctx, out, change) {
			return nil
		}
	}
}

func (f *PostgresFeed) snapshot(ctx context.Context, target model.WatchTarget, out chan<- model.Change) error {
	var snaps []repository.ContainerSnapshot
	if target.DocID != "" {
		ref := model.ContainerRef{Collection: target.Collection, ID: target.DocID}
		snap, found, err := f.containers.Get(ctx, ref)
		if errors.Is(err, repository.ErrUndecodable) {
			f.skipUndecodable(ref, err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", target, err)
		}
		if found {
			snaps = append(snaps, snap)
		}
	} else {
		var err error
		snaps, err = f.containers.List(ctx, target.Collection)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", target, err)
		}
	}

	for _, s := range snaps {
		change := model.Change{
			Type:      model.ChangeAdded,
			Container: s.Ref,
			Items:     s.Items,
			Initial:   true,
		}
		if !send(ctx, out, change) {
			return ctx.Err()
		}
	}
	return nil
}

// load reads the container a notification points at. ok is false when the
// document cannot be decoded; the change is dropped and the feed keeps going.
func (f *PostgresFeed) load(ctx context.Context, ref model.ContainerRef, op string) (change model.Change, ok bool, err error) {
	if op == "DELETE" {
		return model.Change{Type: model.ChangeRemoved, Container: ref}, true, nil
	}

	snap, found, err := f.containers.Get(ctx, ref)
	if errors.Is(err, repository.ErrUndecodable) {
		f.skipUndecodable(ref, err)
		return model.Change{}, false, nil
	}
	if err != nil {
		return model.Change{}, false, fmt.Errorf("load %s: %w", ref, err)
	}
	return model.Change{
		Type:      changeType(op, found),
		Container: ref,
		Items:     snap.Items,
	}, true, nil
}

func (f *PostgresFeed) skipUndecodable(ref model.ContainerRef, err error) {
	f.logger.Warn("Skipping undecodable container",
		zap.String("container", ref.String()),
		zap.Error(err),
	)
}

func send(ctx context.Context, out chan<- model.Change, change model.Change) bool {
	select {
	case out <- change:
		return true
	case <-ctx.Done():
		return false
	}
}
