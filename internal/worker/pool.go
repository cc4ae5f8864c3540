// Package worker runs background jobs that must not block a request.
package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	taskQueue chan Task
	wg        sync.WaitGroup
	// mu guards closing and the close of taskQueue against concurrent sends
	mu      sync.RWMutex
	closing bool
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// NewPool starts size workers with a queue of queueSize pending tasks
func NewPool(size, queueSize int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		taskQueue: make(chan Task, queueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}

	for range size {
		p.wg.Add(1)
		go p.startWorker()
	}

	return p
}

func (p *Pool) startWorker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		if err := task(p.ctx); err != nil {
			p.logger.Warn("worker task failed", "error", err)
		}
	}
}

// Submit queues t and reports whether it was accepted. Tasks are dropped
// when the queue is full or the pool is shutting down.
func (p *Pool) Submit(t Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closing {
		p.logger.Warn("task submitted during shutdown, dropping")
		return false
	}
	select {
	case p.taskQueue <- t:
		return true
	default:
		p.logger.Warn("task queue full, dropping task")
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
// When ctx expires first, running tasks see their context cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return nil
	}
	p.closing = true
	close(p.taskQueue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
