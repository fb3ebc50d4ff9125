package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

type Pool struct {
	taskQueue chan Task
	wg        sync.WaitGroup
	isClosing atomic.Bool
}

// NewPool starts size workers. Callers that need submissions to run in
// order use size 1; change-event publication relies on that.
func NewPool(size int) *Pool {
	p := &Pool{
		taskQueue: make(chan Task, 1000), // Buffer for 1000 pending tasks
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.startWorker()
	}

	return p
}

func (p *Pool) startWorker() {
	defer p.wg.Done()
	for task := range p.taskQueue {
		if err := task(context.Background()); err != nil {
			log.Error().Err(err).Msg("worker task failed")
		}
	}
}

func (p *Pool) Submit(t Task) {
	if p.isClosing.Load() {
		log.Warn().Msg("task submitted during shutdown, dropping")
		return
	}
	select {
	case p.taskQueue <- t:
	default:
		log.Warn().Msg("task queue full, dropping task")
	}
}

// Shutdown closes the queue and waits for workers to finish
func (p *Pool) Shutdown() {
	p.isClosing.Store(true)
	close(p.taskQueue)
	p.wg.Wait()
}
