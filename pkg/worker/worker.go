package worker

import (
	"context"
	"sync"

	"github.com/hbomb79/galleria/pkg/logger"
)

var workerLogger = logger.Get("Worker")

type WorkerStatus int

const (
	Sleeping WorkerStatus = iota
	Working
	Finished
)

// Job is a single unit of work pulled off the pool's queue.
type Job func(ctx context.Context)

type Worker interface {
	Start(context.Context, <-chan Job)
	Status() WorkerStatus
	Label() string
}

type taskWorker struct {
	sync.Mutex
	label         string
	currentStatus WorkerStatus
}

func NewWorker(label string) *taskWorker {
	return &taskWorker{label: label, currentStatus: Sleeping}
}

// Start consumes jobs from the channel provided until it is closed. Jobs
// remaining on the channel after the context is cancelled are drained
// without being executed.
func (worker *taskWorker) Start(ctx context.Context, jobs <-chan Job) {
	workerLogger.Emit(logger.NEW, "Starting worker %s\n", worker.label)
	defer func() {
		worker.setStatus(Finished)
		workerLogger.Emit(logger.STOP, "Worker %s has stopped\n", worker.label)
	}()

	for job := range jobs {
		if ctx.Err() != nil {
			continue
		}

		worker.setStatus(Working)
		job(ctx)
		worker.setStatus(Sleeping)
	}
}

// Status returns the current status of this worker
func (worker *taskWorker) Status() WorkerStatus {
	worker.Lock()
	defer worker.Unlock()
	return worker.currentStatus
}

// Label returns the label for this worker
func (worker *taskWorker) Label() string {
	return worker.label
}

func (worker *taskWorker) setStatus(status WorkerStatus) {
	worker.Lock()
	worker.currentStatus = status
	worker.Unlock()
}
