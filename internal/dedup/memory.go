package dedup

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"schoolnotify/internal/util"
	"schoolnotify/pkg/metrics"
)

const (
	DefaultCooldown      = 5 * time.Minute
	DefaultRetention     = time.Hour
	DefaultSweepInterval = 10 * time.Minute
)

// Options configures the in-memory deduplicator.
type Options struct {
	// Cooldown is the window in which a pair is sent at most once.
	Cooldown time.Duration
	// Retention bounds how long entries are kept; it is garbage collection
	// only and never extends the cooldown.
	Retention     time.Duration
	SweepInterval time.Duration
}

// DefaultOptions returns the 5m cooldown / 1h retention / 10m sweep defaults.
func DefaultOptions() Options {
	return Options{
		Cooldown:      DefaultCooldown,
		Retention:     DefaultRetention,
		SweepInterval: DefaultSweepInterval,
	}
}

type pairKey struct {
	alertID     string
	recipientID string
}

// Memory suppresses repeated sends of the same (alert, recipient) pair.
// State lives only in this process.
type Memory struct {
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
	mu      sync.Mutex
	entries map[pairKey]time.Time
}

func NewMemory(opts Options, logger *zap.Logger) *Memory {
	def := DefaultOptions()
	if opts.Cooldown <= 0 {
		opts.Cooldown = def.Cooldown
	}
	if opts.Retention <= 0 {
		opts.Retention = def.Retention
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	return &Memory{
		opts:    opts,
		now:     time.Now,
		logger:  logger.Named("dedup"),
		entries: make(map[pairKey]time.Time),
	}
}

func newPairKey(alertID, recipientID string) pairKey {
	return pairKey{alertID: alertID, recipientID: util.NormalizeID(recipientID)}
}

// ShouldSend reports whether the pair is outside its cooldown. It does not
// record anything; use TryAcquire on the send path.
func (m *Memory) ShouldSend(alertID, recipientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowedLocked(newPairKey(alertID, recipientID))
}

// TryAcquire atomically checks the cooldown and records an attempt.
// It returns false when the pair was attempted within the cooldown.
func (m *Memory) TryAcquire(_ context.Context, alertID, recipientID string) bool {
	k := newPairKey(alertID, recipientID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.allowedLocked(k) {
		m.logger.Debug("Skipped duplicated alert",
			zap.String("alert_id", alertID),
			zap.String("recipient_id", recipientID),
		)
		return false
	}
	m.entries[k] = m.now()
	metrics.SetDedupEntries(len(m.entries))
	return true
}

// MarkSent refreshes the pair's timestamp after a successful send.
func (m *Memory) MarkSent(_ context.Context, alertID, recipientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[newPairKey(alertID, recipientID)] = m.now()
	metrics.SetDedupEntries(len(m.entries))
}

func (m *Memory) allowedLocked(k pairKey) bool {
	last, ok := m.entries[k]
	return !ok || m.now().Sub(last) >= m.opts.Cooldown
}

// Sweep drops entries older than the retention and returns how many it removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.opts.Retention)
	removed := 0
	for k, at := range m.entries {
		if at.Before(cutoff) {
			delete(m.entries, k)
			removed++
		}
	}
	metrics.SetDedupEntries(len(m.entries))
	return removed
}

// Len returns the number of tracked pairs.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Start runs the periodic sweep until ctx is done. Non-blocking.
func (m *Memory) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.opts.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := m.Sweep(); removed > 0 {
					m.logger.Debug("Swept dedup entries",
						zap.Int("removed", removed),
						zap.Int("remaining", m.Len()),
					)
				}
			}
		}
	}()
}
