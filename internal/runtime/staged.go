package runtime

import (
	"context"
	"errors"
	goruntime "runtime"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	errspkg "github.com/drblury/flowbus/internal/runtime/errors"
	executorpkg "github.com/drblury/flowbus/internal/runtime/executor"
	loggingpkg "github.com/drblury/flowbus/internal/runtime/logging"
	queuepkg "github.com/drblury/flowbus/internal/runtime/queue"
)

// stagedDispatcher decouples producers from delivery. Publishers push onto a
// bounded queue and return; a drain loop posted on the executor pops batches
// and dispatches them under the read lock. When the queue stays full after
// the configured retries the message is dispatched inline.
//
// Once-subscribers are removed under a short write lock after each dispatch,
// so two dispatches running between invocation and removal may both reach
// the same once-subscriber.
type stagedDispatcher struct {
	bus       *Bus
	queue     *queuepkg.Bounded[pendingMessage]
	batchSize int
	maxTries  uint
	idle      time.Duration

	processing atomic.Bool
	stopping   atomic.Bool
}

func newStagedDispatcher(b *Bus) *stagedDispatcher {
	return &stagedDispatcher{
		bus:       b,
		queue:     queuepkg.NewBounded[pendingMessage](b.Conf.StagingQueueCapacity),
		batchSize: b.Conf.StagingBatchSize,
		maxTries:  uint(max(b.Conf.StagingPushRetries, 0)) + 1,
		idle:      b.Conf.StagingIdleInterval,
	}
}

func (s *stagedDispatcher) deliver(msg pendingMessage) {
	b := s.bus
	queued := s.push(msg)

	if err := s.ensureRunning(); err != nil {
		b.Logger.Error("Staging drain loop unavailable, dispatching inline", err, loggingpkg.LogFields{
			"topic":   msg.topic,
			"pending": s.queue.Len(),
		})
		b.metrics.recordStagedFallback()
		s.flush()
	}

	if !queued {
		b.Logger.Error("Staging queue full, dispatching inline", errspkg.ErrStagingQueueFull, loggingpkg.LogFields{
			"topic":          msg.topic,
			"queue_capacity": s.queue.Cap(),
		})
		b.metrics.recordStagedFallback()
		s.dispatch(msg)
	}

	b.mu.Lock()
	b.history.record(msg.messageType, msg.topic, msg.payload)
	b.mu.Unlock()
	b.metrics.setPending(s.queue.Len())
}

func (s *stagedDispatcher) push(msg pendingMessage) bool {
	_, err := backoff.Retry(context.WithoutCancel(msg.ctx), func() (struct{}, error) {
		if s.queue.TryPush(msg) {
			return struct{}{}, nil
		}
		goruntime.Gosched()
		return struct{}{}, errspkg.ErrStagingQueueFull
	},
		backoff.WithBackOff(&backoff.ZeroBackOff{}),
		backoff.WithMaxTries(s.maxTries),
	)
	return err == nil
}

func (s *stagedDispatcher) dispatch(msg pendingMessage) {
	b := s.bus
	b.mu.RLock()
	spent := b.dispatchLocked(msg)
	b.mu.RUnlock()

	if len(spent) > 0 {
		b.mu.Lock()
		b.removeSpentLocked(msg.messageType, spent)
		b.mu.Unlock()
	}
}

// ensureRunning starts the drain loop on the first staged publish. It
// returns the executor error when the loop is not running and cannot be
// posted, in which case nothing will consume the queue.
func (s *stagedDispatcher) ensureRunning() error {
	if s.stopping.Load() || !s.processing.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.bus.executor.Post(s.drain); err != nil {
		s.processing.Store(false)
		return err
	}
	return nil
}

// flush dispatches everything still queued on the calling goroutine.
func (s *stagedDispatcher) flush() {
	for {
		msg, ok := s.queue.TryPop()
		if !ok {
			break
		}
		s.dispatch(msg)
	}
	s.bus.metrics.setPending(s.queue.Len())
}

// drain processes one batch and reschedules itself: immediately after a
// non-empty batch, after the idle interval otherwise.
func (s *stagedDispatcher) drain() {
	if s.stopping.Load() {
		s.processing.Store(false)
		return
	}

	processed := 0
	for processed < s.batchSize {
		msg, ok := s.queue.TryPop()
		if !ok {
			break
		}
		s.dispatch(msg)
		processed++
	}
	s.bus.metrics.setPending(s.queue.Len())

	var err error
	if processed > 0 {
		err = s.bus.executor.Post(s.drain)
	} else {
		_, err = s.bus.executor.PostAfter(s.idle, s.drain)
	}
	if err != nil {
		s.processing.Store(false)
		if s.stopping.Load() {
			return
		}
		if !errors.Is(err, executorpkg.ErrStopped) {
			s.bus.Logger.Error("Failed to reschedule staging drain loop", err, nil)
		}
		s.flush()
	}
}

func (s *stagedDispatcher) pending() int { return s.queue.Len() }

func (s *stagedDispatcher) active() bool { return s.processing.Load() && !s.stopping.Load() }

func (s *stagedDispatcher) close() {
	s.stopping.Store(true)
	if n := s.queue.Len(); n > 0 {
		s.bus.Logger.Info("Discarding staged messages on close", loggingpkg.LogFields{"pending": n})
	}
}
