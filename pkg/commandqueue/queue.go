package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/zipbot/internal/observability"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// ErrClosed is returned when submitting to a closed queue
var ErrClosed = errors.New("command queue is closed")

// Task represents an operation to run in a lane
type Task func(ctx context.Context) error

// taskRecord tracks a submitted task
type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	done       chan error
}

// laneState holds the pending tasks of one lane
type laneState struct {
	queue   []*taskRecord
	running bool
}

// CommandQueue runs tasks serially per lane and concurrently across lanes
type CommandQueue struct {
	mu        sync.Mutex
	lanes     map[string]*laneState
	taskIDSeq int
	queued    int
	running   int
	closed    bool

	wg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

// New creates a new CommandQueue
func New(logger zerolog.Logger) *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())

	return &CommandQueue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("module", "commandqueue").Logger(),
	}
}

// Submit adds task to lane and returns without waiting. The returned channel
// receives the task's error once it has run.
func (cq *CommandQueue) Submit(ctx context.Context, lane string, task Task) (<-chan error, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cq.mu.Lock()
	defer cq.mu.Unlock()

	if cq.closed {
		return nil, ErrClosed
	}

	cq.taskIDSeq++
	record := &taskRecord{
		id:         fmt.Sprintf("%s-%d", lane, cq.taskIDSeq),
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		done:       make(chan error, 1),
	}

	ls, exists := cq.lanes[lane]
	if !exists {
		ls = &laneState{}
		cq.lanes[lane] = ls
	}
	ls.queue = append(ls.queue, record)
	cq.queued++

	cq.logger.Debug().
		Str("lane", lane).
		Str("taskId", record.id).
		Int("queueSize", len(ls.queue)).
		Msg("Task enqueued")

	if !ls.running {
		ls.running = true
		cq.wg.Go(func() {
			cq.drainLane(lane)
		})
	}

	observability.SetQueuePending(cq.queued, cq.running)
	return record.done, nil
}

// Enqueue adds task to lane and waits for it to finish
func (cq *CommandQueue) Enqueue(ctx context.Context, lane string, task Task) error {
	done, err := cq.Submit(ctx, lane, task)
	if err != nil {
		return err
	}
	return <-done
}

// drainLane runs the lane's tasks until it is empty, then retires the lane
func (cq *CommandQueue) drainLane(lane string) {
	for {
		cq.mu.Lock()
		ls := cq.lanes[lane]
		if len(ls.queue) == 0 {
			delete(cq.lanes, lane)
			cq.mu.Unlock()
			return
		}
		record := ls.queue[0]
		ls.queue = ls.queue[1:]
		cq.queued--
		cq.running++
		observability.SetQueuePending(cq.queued, cq.running)
		cq.mu.Unlock()

		err := cq.executeTask(lane, record)

		cq.mu.Lock()
		cq.running--
		observability.SetQueuePending(cq.queued, cq.running)
		cq.mu.Unlock()

		record.done <- err
		close(record.done)
	}
}

// executeTask runs one task, converting panics into errors
func (cq *CommandQueue) executeTask(lane string, record *taskRecord) error {
	runCtx, cancel := context.WithCancel(record.ctx)
	stopCancel := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	startTime := time.Now()

	var err error
	var catcher panics.Catcher
	catcher.Try(func() {
		err = record.task(runCtx)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		err = recovered.AsError()
	}

	duration := time.Since(startTime)
	observability.RecordTaskCompletion(duration, err == nil)

	if err != nil {
		cq.logger.Error().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Task failed")
	} else {
		cq.logger.Debug().
			Str("lane", lane).
			Str("taskId", record.id).
			Dur("duration", duration).
			Dur("wait", startTime.Sub(record.enqueuedAt)).
			Msg("Task completed")
	}

	return err
}

// GetQueueSize returns the number of tasks waiting in lane
func (cq *CommandQueue) GetQueueSize(lane string) int {
	cq.mu.Lock()
	defer cq.mu.Unlock()

	if ls, exists := cq.lanes[lane]; exists {
		return len(ls.queue)
	}
	return 0
}

// ActiveLanes returns the number of lanes with pending or running work
func (cq *CommandQueue) ActiveLanes() int {
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.lanes)
}

// Close stops accepting tasks, cancels running ones and waits for every lane
// to drain.
func (cq *CommandQueue) Close() {
	cq.mu.Lock()
	cq.closed = true
	cq.mu.Unlock()

	cq.cancel()
	cq.wg.Wait()

	cq.logger.Info().Msg("Command queue closed")
}

// Drain stops accepting tasks and waits for queued work to finish without
// cancelling it.
func (cq *CommandQueue) Drain() {
	cq.mu.Lock()
	cq.closed = true
	cq.mu.Unlock()

	cq.wg.Wait()
}
