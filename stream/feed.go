package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pulsetrail/api/logging"
	"pulsetrail/api/metrics"
)

// DefaultFeedBuffer is how many changes may wait for the broker before new
// ones are dropped.
const DefaultFeedBuffer = 1024

// Feed publishes changes in the background so request handlers never wait on
// the broker. A single worker publishes changes in the order they were
// emitted. Publishing is best effort: failures are logged and dropped.
type Feed struct {
	pub     Publisher
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	queue   chan Change
	closed  bool
	pending sync.WaitGroup
	done    chan struct{}
}

func NewFeed(pub Publisher, timeout time.Duration) *Feed {
	return newFeed(pub, timeout, DefaultFeedBuffer)
}

func newFeed(pub Publisher, timeout time.Duration, buffer int) *Feed {
	if pub == nil {
		pub = NopPublisher{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	f := &Feed{
		pub:     pub,
		timeout: timeout,
		log:     logging.With().Str("component", "change_feed").Logger(),
		queue:   make(chan Change, buffer),
		done:    make(chan struct{}),
	}
	go f.run()
	return f
}

// Emit queues c behind every change emitted before it. It never blocks: when
// the queue is full or the feed is closed the change is dropped.
func (f *Feed) Emit(c Change) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		f.drop(c, "change feed closed")
		return
	}
	f.pending.Add(1)
	select {
	case f.queue <- c:
	default:
		f.pending.Done()
		f.drop(c, "change feed queue full")
	}
}

func (f *Feed) run() {
	defer close(f.done)
	for c := range f.queue {
		f.publish(c)
		f.pending.Done()
	}
}

func (f *Feed) publish(c Change) {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.pub.Publish(ctx, c); err != nil {
		f.log.Warn().Err(err).
			Str("action", string(c.Action)).
			Str("event_id", c.EventID).
			Msg("change feed publish failed")
	}
}

func (f *Feed) drop(c Change, reason string) {
	metrics.FeedPublishFailures.WithLabelValues(string(c.Action)).Inc()
	f.log.Warn().Str("action", string(c.Action)).Str("event_id", c.EventID).Msg(reason)
}

// Wait blocks until every emitted change has been attempted.
func (f *Feed) Wait() {
	f.pending.Wait()
}

// Close drains queued changes and closes the publisher. Changes emitted
// afterwards are dropped.
func (f *Feed) Close() error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()

	<-f.done
	return f.pub.Close()
}
