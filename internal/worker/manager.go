package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"filesmanager/internal/config"
)

const (
	processTimeout    = 2 * time.Minute
	popRetryDelay     = time.Second
	heartbeatInterval = consumerTTL / 3
	releaseTimeout    = 5 * time.Second
)

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

// DispatcherConfigFrom reads the pool settings; the idle timeout is in seconds.
func DispatcherConfigFrom(cfg config.BasicConfig) DispatcherConfig {
	return DispatcherConfig{
		MinWorkers:  cfg.MinWorkers,
		MaxWorkers:  cfg.MaxWorkers,
		QueueSize:   cfg.QueueSize,
		IdleTimeout: time.Duration(cfg.WorkerIdleTimeout) * time.Second,
	}
}

// Manager consumes the durable queue and runs jobs on the worker pool. Each
// manager is one consumer with its own id.
type Manager struct {
	id         string
	heartbeat  time.Duration
	queue      Queue
	processor  *Processor
	notifier   Notifier
	states     *jobStates
	dispatcher *Dispatcher

	mu       sync.Mutex
	stopping bool
	inflight sync.WaitGroup
}

func NewManager(queue Queue, processor *Processor, notifier Notifier, cfg DispatcherConfig) *Manager {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	m := &Manager{
		id:        uuid.NewString(),
		heartbeat: heartbeatInterval,
		queue:     queue,
		processor: processor,
		notifier:  notifier,
		states:    newJobStates(maxTrackedJobs),
	}
	m.dispatcher = NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, m, cfg.IdleTimeout)
	return m
}

// ID identifies the manager as a queue consumer.
func (m *Manager) ID() string {
	return m.id
}

// Run registers the consumer, recovers deliveries of consumers that died, then
// feeds the dispatcher until ctx is done. It waits for in-flight jobs and
// returns undispatched deliveries to the queue before returning.
func (m *Manager) Run(ctx context.Context) error {
	stopBeat := func() {}
	defer func() {
		m.shutdown()
		stopBeat()
		m.release()
	}()

	if err := m.queue.Heartbeat(ctx, m.id); err != nil {
		return fmt.Errorf("register thumbnail consumer: %w", err)
	}
	n, err := m.queue.Requeue(ctx)
	if err != nil {
		return fmt.Errorf("recover thumbnail jobs: %w", err)
	}
	if n > 0 {
		log.Printf("thumbnail consumer %s recovered %d unacknowledged jobs", m.id, n)
	}

	// heartbeats continue while in-flight jobs finish after ctx is done
	beatCtx, cancelBeat := context.WithCancel(context.WithoutCancel(ctx))
	beatDone := make(chan struct{})
	go func() {
		defer close(beatDone)
		m.keepAlive(beatCtx)
	}()
	stopBeat = func() {
		cancelBeat()
		<-beatDone
	}

	for {
		d, err := m.queue.Pop(ctx, m.id)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("thumbnail queue pop failed: %v", err)
			select {
			case <-time.After(popRetryDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		m.states.set(d.Job.ID, StateEnqueued)
		select {
		case m.dispatcher.JobQueue <- Job{Type: Process, Delivery: d}:
		case <-ctx.Done():
			// still held by this consumer, returned by release
			return nil
		}
	}
}

// keepAlive renews the heartbeat and reclaims deliveries of expired consumers.
func (m *Manager) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := m.queue.Heartbeat(ctx, m.id); err != nil {
			if ctx.Err() == nil {
				log.Printf("thumbnail consumer %s heartbeat failed: %v", m.id, err)
			}
			continue
		}
		n, err := m.queue.Requeue(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Printf("thumbnail consumer %s recovery failed: %v", m.id, err)
		case n > 0:
			log.Printf("thumbnail consumer %s recovered %d jobs of expired consumers", m.id, n)
		}
		if backlog := m.dispatcher.Pending(); backlog > 0 {
			log.Printf("thumbnail consumer %s backlog: %d jobs waiting for a worker", m.id, backlog)
		}
	}
}

func (m *Manager) release() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	n, err := m.queue.Release(ctx, m.id)
	if err != nil {
		log.Printf("thumbnail consumer %s release failed: %v", m.id, err)
		return
	}
	if n > 0 {
		log.Printf("thumbnail consumer %s returned %d undelivered jobs", m.id, n)
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()
	m.dispatcher.Stop()
	m.inflight.Wait()
}

// State reports the last known state of a recent job.
func (m *Manager) State(jobID string) (JobState, bool) {
	return m.states.get(jobID)
}

// Totals counts jobs per terminal state since the manager started.
func (m *Manager) Totals() map[JobState]int64 {
	return m.states.totals()
}

func (m *Manager) handle(d *Delivery) {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return
	}
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	job := d.Job
	m.states.set(job.ID, StateProcessing)
	debugLog("[manager] processing job %s file %s user %s", job.ID, job.FileID, job.UserID)

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	widths, err := m.processor.Process(ctx, job)
	ev := Event{
		JobID:  job.ID,
		FileID: job.FileID,
		UserID: job.UserID,
		At:     time.Now().UTC(),
	}
	if err != nil {
		ev.State = StateFailed
		ev.Error = err.Error()
		if !isPermanent(err) {
			log.Printf("thumbnail job %s hit a transient error, not retried: %v", job.ID, err)
		}
	} else {
		ev.State = StateCompleted
		ev.Widths = widths
	}
	m.states.set(job.ID, ev.State)
	m.notifier.Notify(ctx, ev)

	if err := m.queue.Ack(ctx, d); err != nil {
		log.Printf("thumbnail job %s ack failed: %v", job.ID, err)
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrMissingParam) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrWrongType) ||
		errors.Is(err, ErrBlobNotFound)
}
