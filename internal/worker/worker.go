package worker

type JobType string

const (
	Process JobType = "process"
	Stop    JobType = "stop"
)

// Job is the unit passed from the dispatcher to a worker goroutine.
type Job struct {
	Type     JobType
	Delivery *Delivery
}

type jobHandler interface {
	handle(d *Delivery)
}

type Worker struct {
	id         int
	handler    jobHandler
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool, handler jobHandler) *Worker {
	return &Worker{
		id:         id,
		handler:    handler,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		debugLog("[worker-%d] started", w.id)
		for {
			// announce idle before waiting for the next job
			w.pool.Release(w.jobChannel)
			select {
			case job := <-w.jobChannel:
				switch job.Type {
				case Process:
					if job.Delivery != nil {
						w.handler.handle(job.Delivery)
					}
				case Stop:
					w.pool.retire(w.jobChannel)
					debugLog("[worker-%d] stopped", w.id)
					return
				}
			case <-w.pool.done:
				w.pool.retire(w.jobChannel)
				debugLog("[worker-%d] pool closed", w.id)
				return
			}
		}
	}()
}
