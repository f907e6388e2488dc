package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/massdroid-cli/massd/log"
)

// ErrQueueFull is reported to done when the queue cannot accept a batch.
var ErrQueueFull = errors.New("command queue full")

// ErrQueueClosed is reported to done for batches submitted after Close.
var ErrQueueClosed = errors.New("command queue closed")

// ErrBatchDropped is reported to done when a guard stopped a batch before its next command.
var ErrBatchDropped = errors.New("batch dropped, guard no longer holds")

type job struct {
	owner string
	batch []Command
	guard Guard
	done  func(error)
}

// Queue is the single serial path to the backend. Batches never interleave, which is
// what keeps the continuity controller and the interruption arbiter from racing.
type Queue struct {
	commander Commander
	timeout   time.Duration
	logger    *log.Entry

	jobs chan job

	mu     sync.RWMutex
	hooks  []func(owner string, cmd Command)
	closed bool

	once sync.Once
	quit chan struct{}
	wg   sync.WaitGroup
}

func NewQueue(commander Commander, timeout time.Duration, size int) *Queue {
	if size <= 0 {
		size = 16
	}
	return &Queue{
		commander: commander,
		timeout:   timeout,
		logger:    log.For("queue"),
		jobs:      make(chan job, size),
		quit:      make(chan struct{}),
	}
}

// OnIssued registers a hook called right before each command is sent.
func (q *Queue) OnIssued(fn func(owner string, cmd Command)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hooks = append(q.hooks, fn)
}

// Start runs the worker until ctx is cancelled or Close is called.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.quit:
				return
			case j := <-q.jobs:
				q.run(ctx, j)
			}
		}
	}()
}

func (q *Queue) Submit(owner string, batch []Command, done func(error)) {
	q.SubmitGuarded(owner, batch, nil, done)
}

// SubmitGuarded queues a batch whose commands are only sent while guard returns true.
func (q *Queue) SubmitGuarded(owner string, batch []Command, guard Guard, done func(error)) {
	if done == nil {
		done = func(error) {}
	}

	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		done(ErrQueueClosed)
		return
	}

	select {
	case q.jobs <- job{owner: owner, batch: batch, guard: guard, done: done}:
	default:
		q.logger.WithField("owner", owner).Warn("dropping batch, queue full")
		done(ErrQueueFull)
	}
}

func (q *Queue) run(ctx context.Context, j job) {
	q.mu.RLock()
	hooks := append([]func(string, Command){}, q.hooks...)
	q.mu.RUnlock()

	var err error
	for i, cmd := range j.batch {
		if j.guard != nil && !j.guard() {
			q.logger.WithFields(log.Fields{"owner": j.owner, "command": cmd.String(), "skipped": len(j.batch) - i}).Info("batch dropped")
			err = ErrBatchDropped
			break
		}

		for _, hook := range hooks {
			hook(j.owner, cmd)
		}

		err = q.send(ctx, cmd)
		if err != nil {
			q.logger.WithFields(log.Fields{"owner": j.owner, "command": cmd.String()}).WithError(err).Warn("command failed")
			break
		}
		q.logger.WithFields(log.Fields{"owner": j.owner, "command": cmd.String()}).Debug("command sent")
	}
	j.done(err)
}

func (q *Queue) send(ctx context.Context, cmd Command) error {
	if q.timeout <= 0 {
		return q.commander.Send(ctx, cmd)
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.commander.Send(ctx, cmd)
}

// Close stops the worker and waits for the batch in flight.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.quit)
	})
	q.wg.Wait()
}
