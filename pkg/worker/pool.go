package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// WorkerPool owns a fixed set of workers which all consume from a single
// job queue. The WaitGroup is automatically controlled by the pool.
type WorkerPool struct {
	workers []Worker
	jobs    chan Job
	Wg      sync.WaitGroup
	started bool
	closed  bool
}

// NewWorkerPool creates an empty WorkerPool. Workers must be
// pushed before the pool is started.
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{workers: make([]Worker, 0), jobs: make(chan Job)}
}

// NewSizedWorkerPool creates a WorkerPool pre-filled with 'size' workers
// labelled with the prefix provided. A size below one is treated as one.
func NewSizedWorkerPool(prefix string, size int) *WorkerPool {
	if size < 1 {
		size = 1
	}

	pool := NewWorkerPool()
	for i := 0; i < size; i++ {
		pool.workers = append(pool.workers, NewWorker(fmt.Sprintf("%s:%d", prefix, i)))
	}

	return pool
}

// PushWorker inserts the workers provided in to the worker pool.
func (pool *WorkerPool) PushWorker(workers ...Worker) error {
	if pool.started {
		return errors.New("cannot push worker to already started worker pool")
	}

	pool.workers = append(pool.workers, workers...)
	return nil
}

// Start creates a goroutine for each worker in the pool.
//
// Start does NOT block, consumers should use Close to wait
// for all submitted jobs to finish.
func (pool *WorkerPool) Start(ctx context.Context) error {
	if pool.started {
		return errors.New("cannot start an already started worker pool")
	}
	if len(pool.workers) == 0 {
		return errors.New("cannot start a worker pool with no workers")
	}

	pool.started = true
	for _, worker := range pool.workers {
		pool.Wg.Add(1)
		go func(wg *sync.WaitGroup, w Worker) {
			defer wg.Done()
			w.Start(ctx, pool.jobs)
		}(&pool.Wg, worker)
	}

	return nil
}

// Submit hands a job to the next available worker, blocking
// until one accepts it.
func (pool *WorkerPool) Submit(job Job) error {
	if !pool.started || pool.closed {
		return errors.New("cannot submit job to a worker pool that is not running")
	}

	pool.jobs <- job
	return nil
}

// Close stops accepting jobs and waits for every worker to exit.
func (pool *WorkerPool) Close() {
	if !pool.started || pool.closed {
		return
	}

	pool.closed = true
	close(pool.jobs)
	pool.Wg.Wait()
}

// Map executes fn for each index in [0, n) using a pool of 'size' workers and
// returns the results positioned by index, regardless of completion order.
// Indices not yet started when ctx is cancelled keep their zero value.
func Map[T any](ctx context.Context, label string, size int, n int, fn func(context.Context, int) T) []T {
	results := make([]T, n)
	if n == 0 {
		return results
	}

	if size <= 1 {
		for i := 0; i < n && ctx.Err() == nil; i++ {
			results[i] = fn(ctx, i)
		}
		return results
	}

	if size > n {
		size = n
	}

	pool := NewSizedWorkerPool(label, size)
	_ = pool.Start(ctx)
	for i := 0; i < n; i++ {
		idx := i
		_ = pool.Submit(func(ctx context.Context) { results[idx] = fn(ctx, idx) })
	}
	pool.Close()

	return results
}
