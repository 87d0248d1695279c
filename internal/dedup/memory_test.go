package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestMemory(now *time.Time) *Memory {
	m := NewMemory(DefaultOptions(), zap.NewNop())
	m.now = func() time.Time { return *now }
	return m
}

func TestMemory_Cooldown(t *testing.T) {
	now := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	m := newTestMemory(&now)
	ctx := context.Background()

	assert.True(t, m.ShouldSend("a1", "S1"))
	assert.True(t, m.TryAcquire(ctx, "a1", "S1"))
	assert.False(t, m.ShouldSend("a1", "S1"))

	now = now.Add(4 * time.Minute)
	assert.False(t, m.TryAcquire(ctx, "a1", "S1"), "within cooldown")

	now = now.Add(2 * time.Minute) // 6 minutes after the first attempt
	assert.True(t, m.TryAcquire(ctx, "a1", "S1"), "cooldown elapsed")
}

func TestMemory_PairsAreIndependent(t *testing.T) {
	now := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	m := newTestMemory(&now)
	ctx := context.Background()

	assert.True(t, m.TryAcquire(ctx, "a1", "S1"))
	assert.True(t, m.TryAcquire(ctx, "a1", "S2"))
	assert.True(t, m.TryAcquire(ctx, "a2", "S1"))
	assert.False(t, m.TryAcquire(ctx, "a1", "s-1"), "recipient ids are normalized")
	assert.Equal(t, 3, m.Len())
}

func TestMemory_MarkSentRestartsCooldown(t *testing.T) {
	now := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	m := newTestMemory(&now)
	ctx := context.Background()

	assert.True(t, m.TryAcquire(ctx, "a1", "S1"))
	now = now.Add(3 * time.Minute)
	m.MarkSent(ctx, "a1", "S1")
	now = now.Add(4 * time.Minute)
	assert.False(t, m.ShouldSend("a1", "S1"))
	now = now.Add(time.Minute)
	assert.True(t, m.ShouldSend("a1", "S1"))
}

func TestMemory_SweepUsesRetentionNotCooldown(t *testing.T) {
	now := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	m := newTestMemory(&now)
	ctx := context.Background()

	m.TryAcquire(ctx, "old", "S1")
	now = now.Add(30 * time.Minute)
	m.TryAcquire(ctx, "recent", "S1")

	assert.Equal(t, 0, m.Sweep(), "nothing is older than an hour yet")
	assert.Equal(t, 2, m.Len())

	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
}

func TestMemory_TryAcquireIsAtomic(t *testing.T) {
	m := NewMemory(DefaultOptions(), zap.NewNop())
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.TryAcquire(ctx, "a1", "S1") {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestMemory_StartStopsWithContext(t *testing.T) {
	m := NewMemory(Options{SweepInterval: time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	m.TryAcquire(ctx, "a1", "S1")
	time.Sleep(5 * time.Millisecond)
	cancel()
	assert.Equal(t, 1, m.Len(), "fresh entries survive the sweep")
}
