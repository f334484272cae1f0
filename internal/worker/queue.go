package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"filesmanager/internal/models"
)

// ErrQueueFull is returned when a bounded buffer cannot take another job.
var ErrQueueFull = errors.New("thumbnail queue full")

// Queue is a reliable job queue. Pop hands a delivery to exactly one
// consumer, which holds it until Ack. Consumers prove they are alive with
// Heartbeat; Requeue only recovers deliveries held by consumers whose
// heartbeat expired, and Release returns a stopping consumer's deliveries.
type Queue interface {
	Push(ctx context.Context, job models.ThumbnailJob) error
	Pop(ctx context.Context, consumer string) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Heartbeat(ctx context.Context, consumer string) error
	Requeue(ctx context.Context) (int, error)
	Release(ctx context.Context, consumer string) (int, error)
}

// consumerTTL is how long a consumer counts as alive after its last heartbeat.
const consumerTTL = 30 * time.Second

// Delivery is a job popped from a Queue together with its encoded form.
type Delivery struct {
	Job      models.ThumbnailJob
	consumer string
	raw      string
}

func encodeJob(job models.ThumbnailJob) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode thumbnail job: %w", err)
	}
	return string(payload), nil
}

// decodeDelivery never fails: a malformed payload yields an empty job that the
// processor rejects, so the delivery is still acknowledged.
func decodeDelivery(raw string) *Delivery {
	d := &Delivery{raw: raw}
	if err := json.Unmarshal([]byte(raw), &d.Job); err != nil {
		debugLog("[queue] malformed payload %q: %v", raw, err)
		d.Job = models.ThumbnailJob{}
	}
	return d
}

type memoryQueue struct {
	mu         sync.Mutex
	pending    chan *Delivery
	processing map[*Delivery]struct{}
	alive      map[string]time.Time // consumer -> heartbeat expiry
	ttl        time.Duration
	now        func() time.Time
}

// NewMemoryQueue returns a process-local Queue holding at most size pending
// jobs. Nothing survives a restart.
func NewMemoryQueue(size int) Queue {
	if size <= 0 {
		size = 1
	}
	return &memoryQueue{
		pending:    make(chan *Delivery, size),
		processing: make(map[*Delivery]struct{}),
		alive:      make(map[string]time.Time),
		ttl:        consumerTTL,
		now:        time.Now,
	}
}

func (q *memoryQueue) Push(_ context.Context, job models.ThumbnailJob) error {
	raw, err := encodeJob(job)
	if err != nil {
		return err
	}
	select {
	case q.pending <- decodeDelivery(raw):
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *memoryQueue) Pop(ctx context.Context, consumer string) (*Delivery, error) {
	select {
	case d := <-q.pending:
		q.mu.Lock()
		d.consumer = consumer
		q.processing[d] = struct{}{}
		q.mu.Unlock()
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *memoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	delete(q.processing, d)
	q.mu.Unlock()
	return nil
}

func (q *memoryQueue) Heartbeat(_ context.Context, consumer string) error {
	q.mu.Lock()
	q.alive[consumer] = q.now().Add(q.ttl)
	q.mu.Unlock()
	return nil
}

func (q *memoryQueue) Requeue(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for consumer, expiry := range q.alive {
		if !now.Before(expiry) {
			delete(q.alive, consumer)
		}
	}
	return q.moveBackLocked(func(d *Delivery) bool {
		_, ok := q.alive[d.consumer]
		return !ok
	})
}

func (q *memoryQueue) Release(_ context.Context, consumer string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.alive, consumer)
	return q.moveBackLocked(func(d *Delivery) bool {
		return d.consumer == consumer
	})
}

func (q *memoryQueue) moveBackLocked(match func(*Delivery) bool) (int, error) {
	n := 0
	for d := range q.processing {
		if !match(d) {
			continue
		}
		select {
		case q.pending <- d:
			delete(q.processing, d)
			n++
		default:
			return n, ErrQueueFull
		}
	}
	return n, nil
}
