// Package progress fans acquisition events out to in-process
// subscribers and, optionally, a Kafka topic. Durable history lives in
// each job's events.log; the bus is purely live delivery.
package progress

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// DefaultQueueSize is the per-subscriber buffered channel capacity.
const DefaultQueueSize = 64

// Subscription is one subscriber's view of a job's event stream.
type Subscription struct {
	id    uint64
	jobID uuid.UUID
	ch    chan domain.ProgressEvent

	mu      sync.Mutex
	closed  bool
	dropped bool
}

// Events returns the receive channel. It is closed when the job
// reaches a terminal state, the subscriber unsubscribes, or the bus
// drops the subscriber for falling behind.
func (s *Subscription) Events() <-chan domain.ProgressEvent {
	return s.ch
}

// JobID returns the job this subscription follows.
func (s *Subscription) JobID() uuid.UUID {
	return s.jobID
}

// Dropped reports whether the bus evicted this subscriber because its
// queue overflowed. A dropped subscriber must resubscribe and replay
// the job's events.log to recover missed events.
func (s *Subscription) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// close is idempotent; drop marks the eviction case.
func (s *Subscription) close(drop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.dropped = drop
	close(s.ch)
}

// Bus delivers events to subscribers per job. Delivery is at most
// once, in publish order, and never blocks the publisher: a subscriber
// whose queue is full is evicted.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	subs      map[uuid.UUID]map[uint64]*Subscription
	queueSize int
	logger    zerolog.Logger
}

// NewBus creates a Bus with the given per-subscriber queue size.
func NewBus(queueSize int, logger zerolog.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		subs:      make(map[uuid.UUID]map[uint64]*Subscription),
		queueSize: queueSize,
		logger:    logger.With().Str("component", "progress_bus").Logger(),
	}
}

// Subscribe registers interest in one job's events.
func (b *Bus) Subscribe(jobID uuid.UUID) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:    b.nextID,
		jobID: jobID,
		ch:    make(chan domain.ProgressEvent, b.queueSize),
	}
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[uint64]*Subscription)
	}
	b.subs[jobID][sub.id] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if jobSubs, ok := b.subs[sub.jobID]; ok {
		delete(jobSubs, sub.id)
		if len(jobSubs) == 0 {
			delete(b.subs, sub.jobID)
		}
	}
	b.mu.Unlock()
	sub.close(false)
}

// Publish delivers an event to every subscriber of its job. Publishing
// holds the bus lock, which is what keeps per-job ordering. A terminal
// event closes the job's subscriptions after delivery.
func (b *Bus) Publish(event domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	jobSubs := b.subs[event.JobID]
	for id, sub := range jobSubs {
		select {
		case sub.ch <- event:
		default:
			// Queue full: evict rather than block the pipeline.
			delete(jobSubs, id)
			sub.close(true)
			b.logger.Warn().
				Str("job_id", event.JobID.String()).
				Uint64("subscriber", id).
				Msg("dropped slow progress subscriber")
		}
	}

	if event.IsTerminal() {
		for _, sub := range jobSubs {
			sub.close(false)
		}
		delete(b.subs, event.JobID)
	}
}

// SubscriberCount reports the live subscriber count for a job.
func (b *Bus) SubscriberCount(jobID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}
