// Package serializer runs tasks one at a time per key while different keys
// proceed in parallel.
package serializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrTaskPanic = errors.New("task panicked")
	ErrClosed    = errors.New("serializer closed")
)

type Task func(ctx context.Context) error

type job struct {
	ctx  context.Context
	task Task
	done chan error
}

// Serializer keeps a FIFO queue per room. A worker goroutine exists only
// while its queue is non-empty, so idle rooms cost nothing.
type Serializer struct {
	mu     sync.Mutex
	queues map[string][]job
	closed bool
	wg     sync.WaitGroup
	log    *slog.Logger
}

func New(log *slog.Logger) *Serializer {
	return &Serializer{
		queues: make(map[string][]job),
		log:    log,
	}
}

// Enqueue schedules task after every task already queued for roomID. The
// returned channel receives the task's result exactly once. A failing or
// panicking task never stops the tasks queued behind it. After Close every
// task is refused with ErrClosed.
func (s *Serializer) Enqueue(ctx context.Context, roomID string, task Task) <-chan error {
	done := make(chan error, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		done <- ErrClosed
		return done
	}
	queue, running := s.queues[roomID]
	s.queues[roomID] = append(queue, job{ctx: ctx, task: task, done: done})
	if !running {
		s.wg.Add(1)
		go s.drain(roomID)
	}
	s.mu.Unlock()

	return done
}

// Do enqueues task and waits for its result.
func (s *Serializer) Do(ctx context.Context, roomID string, task Task) error {
	return <-s.Enqueue(ctx, roomID, task)
}

// Pending reports how many tasks are queued or running for roomID.
func (s *Serializer) Pending(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[roomID])
}

// Close refuses new tasks and blocks until every task already queued has
// run.
func (s *Serializer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Serializer) drain(roomID string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		next := s.queues[roomID][0]
		s.mu.Unlock()

		next.done <- s.run(roomID, next)

		s.mu.Lock()
		rest := s.queues[roomID][1:]
		if len(rest) == 0 {
			delete(s.queues, roomID)
			s.mu.Unlock()
			return
		}
		s.queues[roomID] = rest
		s.mu.Unlock()
	}
}

func (s *Serializer) run(roomID string, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Room task panicked", "room", roomID, "panic", r)
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	if err := j.ctx.Err(); err != nil {
		return err
	}
	return j.task(j.ctx)
}
