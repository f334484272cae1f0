package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"filesmanager/internal/models"

	"github.com/google/uuid"
)

const (
	defaultProducerBuffer = 128
	producerPushTimeout   = 5 * time.Second
)

var ErrProducerClosed = errors.New("thumbnail producer closed")

// Producer accepts jobs without blocking the caller and forwards them to the
// durable queue from a background goroutine.
type Producer struct {
	queue  Queue
	jobs   chan models.ThumbnailJob
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func NewProducer(queue Queue, buffer int) *Producer {
	if buffer <= 0 {
		buffer = defaultProducerBuffer
	}
	p := &Producer{
		queue: queue,
		jobs:  make(chan models.ThumbnailJob, buffer),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Enqueue schedules thumbnail generation for an image. It returns
// ErrQueueFull instead of waiting when the buffer is saturated.
func (p *Producer) Enqueue(_ context.Context, fileID, userID string) error {
	job := models.ThumbnailJob{
		ID:          uuid.NewString(),
		FileID:      fileID,
		UserID:      userID,
		RequestedAt: time.Now().UTC(),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.jobs <- job:
		debugLog("[producer] accepted job %s for file %s", job.ID, fileID)
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Producer) run() {
	defer close(p.done)
	for job := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), producerPushTimeout)
		if err := p.queue.Push(ctx, job); err != nil {
			log.Printf("thumbnail job %s for file %s not queued: %v", job.ID, job.FileID, err)
		}
		cancel()
	}
}

// Close stops accepting jobs and waits until the buffered ones are pushed.
func (p *Producer) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	<-p.done
}
