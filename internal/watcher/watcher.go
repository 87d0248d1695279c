package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"schoolnotify/internal/model"
	"schoolnotify/pkg/logger"
	"schoolnotify/pkg/metrics"
	"schoolnotify/pkg/trace"
	"schoolnotify/pkg/util"
)

const (
	DefaultQueueSize     = 64
	DefaultReattachDelay = 5 * time.Second
)

var errSubscriptionEnded = errors.New("subscription ended")

// Feed delivers changes for a target. Subscribe sends the current contents as
// Initial changes first, blocks until ctx is cancelled (returning nil) or the
// subscription fails.
type Feed interface {
	Subscribe(ctx context.Context, target model.WatchTarget, out chan<- model.Change) error
}

// Handler processes one candidate to a terminal outcome.
type Handler interface {
	Handle(ctx context.Context, c model.Candidate) model.DispatchResult
}

type Options struct {
	QueueSize        int
	ReattachDelay    time.Duration
	AdminRecipientID string
}

// Watcher subscribes to alert containers and feeds new alerts to the handler.
// Each container is served by one worker goroutine, so its candidates are
// handled in order and its differ state has a single owner.
type Watcher struct {
	feed    Feed
	handler Handler
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
}

func New(feed Feed, handler Handler, opts Options, logger *zap.Logger) *Watcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ReattachDelay <= 0 {
		opts.ReattachDelay = DefaultReattachDelay
	}
	if opts.AdminRecipientID == "" {
		opts.AdminRecipientID = "admin"
	}
	return &Watcher{
		feed:    feed,
		handler: handler,
		opts:    opts,
		now:     time.Now,
		logger:  logger.Named("watcher"),
	}
}

// Run watches every target until ctx is cancelled and all workers have
// stopped. Targets fail and re-attach independently.
func (w *Watcher) Run(ctx context.Context, targets []model.WatchTarget) {
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t model.WatchTarget) {
			defer wg.Done()
			w.watch(ctx, t)
		}(t)
	}
	wg.Wait()
	w.logger.Info("Watcher stopped")
}

func (w *Watcher) watch(ctx context.Context, target model.WatchTarget) {
	log := w.logger.With(zap.String("target", target.String()))
	for {
		err := w.session(ctx, target)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errSubscriptionEnded
		}

		log.Error("Subscription failed, re-attaching",
			zap.Duration("delay", w.opts.ReattachDelay),
			zap.String("error_type", util.ClassifyError(err)),
			zap.Error(err),
		)
		metrics.IncrementReattach(string(target.Collection))

		select {
		case <-time.After(w.opts.ReattachDelay):
		case <-ctx.Done():
			return
		}
	}
}

// session runs one subscription. All container state created during the
// session is discarded when it ends.
func (w *Watcher) session(ctx context.Context, target model.WatchTarget) error {
	role, ok := target.Collection.InboxRole()
	if !ok {
		return fmt.Errorf("collection %s is not an alert inbox", target.Collection)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	subscribedAt := w.now()
	changes := make(chan model.Change, w.opts.QueueSize)
	errc := make(chan error, 1)
	go func() {
		errc <- w.feed.Subscribe(sessionCtx, target, changes)
	}()

	workers := make(map[model.ContainerRef]*containerWorker)
	removedAt := make(map[model.ContainerRef]time.Time)
	defer func() {
		cancel()
		for _, cw := range workers {
			cw.stop()
		}
	}()

	route := func(ch model.Change) {
		cw, exists := workers[ch.Container]
		if ch.Type == model.ChangeRemoved {
			if exists {
				cw.stop()
				delete(workers, ch.Container)
			}
			removedAt[ch.Container] = w.now()
			return
		}
		if !exists {
			recipientID := ch.Container.ID
			if role == model.RoleAdmin {
				recipientID = w.opts.AdminRecipientID
			}
			// A re-created container only yields alerts newer than its removal.
			since := subscribedAt
			if at, ok := removedAt[ch.Container]; ok {
				since = at
				delete(removedAt, ch.Container)
			}
			differ := NewDiffer(ch.Container, role, recipientID, since, w.now, w.logger)
			cw = w.startWorker(sessionCtx, differ)
			workers[ch.Container] = cw
		}
		cw.enqueue(sessionCtx, ch)
	}

	for {
		select {
		case ch := <-changes:
			route(ch)
		case err := <-errc:
			for {
				select {
				case ch := <-changes:
					route(ch)
				default:
					return err
				}
			}
		case <-ctx.Done():
			cancel()
			<-errc
			return nil
		}
	}
}

type containerWorker struct {
	changes chan model.Change
	done    chan struct{}
	once    sync.Once
}

func (w *Watcher) startWorker(ctx context.Context, differ *Differ) *containerWorker {
	cw := &containerWorker{
		changes: make(chan model.Change, w.opts.QueueSize),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(cw.done)
		for ch := range cw.changes {
			w.process(ctx, differ, ch)
		}
	}()
	return cw
}

func (cw *containerWorker) enqueue(ctx context.Context, ch model.Change) {
	select {
	case cw.changes <- ch:
	case <-ctx.Done():
	}
}

func (cw *containerWorker) stop() {
	cw.once.Do(func() { close(cw.changes) })
	<-cw.done
}

// process diffs one change and hands each candidate to the handler. A
// detached session stops taking new candidates but never cancels a send
// already in flight.
func (w *Watcher) process(ctx context.Context, differ *Differ, ch model.Change) {
	candidates := differ.Apply(ch)
	if len(candidates) == 0 {
		return
	}

	changeCtx := trace.NewContext(context.WithoutCancel(ctx))
	log := logger.WithTrace(changeCtx, w.logger).With(zap.String("container", ch.Container.String()))
	log.Debug("New alerts observed", zap.Int("count", len(candidates)))

	for _, c := range candidates {
		if ctx.Err() != nil {
			log.Info("Watcher detached, dropping remaining alerts")
			return
		}
		metrics.IncrementCandidate(string(c.Role))
		res := w.handler.Handle(changeCtx, c)
		log.Debug("Alert handled",
			zap.String("alert_id", c.Alert.ID),
			zap.String("outcome", string(res.Outcome)),
			zap.String("reason", res.Reason),
		)
	}
}
