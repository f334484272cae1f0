package worker

import (
	"container/list"
	"sync"
	"time"
)

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher hands jobs to pool workers, rotating between users so a burst of
// uploads from one account cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher

	mu        sync.Mutex
	queues    map[string]*userQueue // job queue for each user
	ready     *list.List            // LRU queue storing user IDs
	positions map[string]*list.Element

	quit     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, handler jobHandler, idleTimeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	pool := newJobChannelPool(minWorkers, maxWorkers, idleTimeout, handler)
	jobQueue := make(chan Job, queueSize)

	d := &Dispatcher{
		queues:    make(map[string]*userQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		pool:      pool,
		JobQueue:  jobQueue,
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	// warm up workers
	for i := 0; i < pool.min; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		// take everything already waiting so the LRU sees every user
		d.drain()
		// dispatch one job of user in the front of LRU queue
		dispatched, ok := d.dispatchOne()
		if !ok {
			return
		}
		if dispatched {
			continue
		}
		select {
		case job := <-d.JobQueue: // force congestion
			d.enqueueJob(job)
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.JobQueue: // non-congestion
			d.enqueueJob(job)
		default:
			return
		}
	}
}

// Stop ends dispatching and releases the workers. Jobs still queued in the
// dispatcher are dropped; their deliveries stay unacknowledged in the queue.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.pool.close()
	})
	<-d.stopped
}

// Pending reports the number of jobs accepted but not yet handed to a worker.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.JobQueue)
	for _, q := range d.queues {
		n += len(q.jobs)
	}
	return n
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.userID()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// user already enqueue, skip
		return
	}
	// new user, enqueue
	q.enqueued = true
	elem := d.ready.PushBack(userID)
	d.positions[userID] = elem
}

// dispatchOne get first user in LRU and dispatch its job. ok is false once
// the dispatcher is stopping.
func (d *Dispatcher) dispatchOne() (dispatched, ok bool) {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false, true
	}
	userID := elem.Value.(string)
	q := d.queues[userID]
	// get job from the first user
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		// user only have one job, it'll be handled, user needs to quit queue
		delete(d.queues, userID)
		d.ready.Remove(elem)
		delete(d.positions, userID)
	} else {
		// get to the back of queue
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		return false, false
	}
	debugLog("[dispatcher] assign job %s for user %s to worker-%d", job.jobID(), userID, d.pool.workerID(workerChan))
	select {
	case workerChan <- job:
		return true, true
	case <-d.quit:
		return false, false
	}
}

func (job Job) userID() string {
	if job.Delivery == nil {
		return ""
	}
	return job.Delivery.Job.UserID
}

func (job Job) jobID() string {
	if job.Delivery == nil {
		return ""
	}
	return job.Delivery.Job.ID
}
