// Package scheduler runs named periodic jobs one at a time on a single
// goroutine, ordered by their next run time.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

var (
	ErrInvalidInterval = errors.New("scheduler: invalid interval")
	ErrDuplicateJob    = errors.New("scheduler: duplicate job")
	ErrUnknownJob      = errors.New("scheduler: unknown job")
	ErrEngineStopped   = errors.New("scheduler: engine stopped")
)

// Job is a unit of periodic work. Run receives a context that is cancelled
// when the engine stops.
type Job struct {
	Name       string
	Interval   time.Duration
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Report describes one finished run.
type Report struct {
	Job       string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

type JobStatus struct {
	Name     string
	Interval time.Duration
	NextRun  time.Time
	LastRun  time.Time
	LastErr  string
	Runs     uint64
}

type entry struct {
	job     Job
	next    time.Time
	lastRun time.Time
	lastErr string
	runs    uint64
	index   int
}

type priorityQueue []*entry

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].next.Before(pq[j].next)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*entry)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

type Engine struct {
	logger *log.Logger

	mu      sync.Mutex
	queue   priorityQueue
	jobs    map[string]*entry
	out     chan Report
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc
	started bool
	stopped bool
	dropped uint64
}

func NewEngine(bufferSize int, logger *log.Logger) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Engine{
		logger: logger,
		queue:  make(priorityQueue, 0),
		jobs:   make(map[string]*entry),
		out:    make(chan Report, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// C delivers a report after every run. Reports are dropped, and counted,
// when nobody keeps up with the channel.
func (e *Engine) C() <-chan Report {
	return e.out
}

// Add registers a job. Its first run is one interval from now, or
// immediately when RunAtStart is set.
func (e *Engine) Add(job Job) error {
	if job.Interval <= 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidInterval, job.Name, job.Interval)
	}
	if job.Run == nil {
		return fmt.Errorf("scheduler: job %s has no run function", job.Name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	if _, dup := e.jobs[job.Name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}
	next := time.Now().Add(job.Interval)
	if job.RunAtStart {
		next = time.Now()
	}
	item := &entry{job: job, next: next}
	e.jobs[job.Name] = item
	heap.Push(&e.queue, item)
	e.signalWakeup()
	return nil
}

// Trigger moves a job's next run to now.
func (e *Engine) Trigger(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrEngineStopped
	}
	item, ok := e.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if item.index >= 0 {
		item.next = time.Now()
		heap.Fix(&e.queue, item.index)
	}
	e.signalWakeup()
	return nil
}

func (e *Engine) Jobs() []JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]JobStatus, 0, len(e.jobs))
	for _, item := range e.jobs {
		out = append(out, JobStatus{
			Name:     item.job.Name,
			Interval: item.job.Interval,
			NextRun:  item.next,
			LastRun:  item.lastRun,
			LastErr:  item.lastErr,
			Runs:     item.runs,
		})
	}
	return out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	heap.Init(&e.queue)
	go e.loop(ctx)
}

// Stop cancels the running job, if any, and waits for the loop to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.cancel()
	e.mu.Unlock()
	<-e.doneCh
}

func (e *Engine) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		next, hasNext := e.peek()
		if !hasNext {
			select {
			case <-e.wakeup:
				continue
			case <-e.stopCh:
				return
			}
		}

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			for _, item := range e.popDue(time.Now()) {
				e.run(ctx, item)
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			stopTimer(timer)
			return
		}
	}
}

func (e *Engine) run(ctx context.Context, item *entry) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	err := safeRun(ctx, item.job)
	report := Report{Job: item.job.Name, StartedAt: started, Duration: time.Since(started), Err: err}
	if err != nil {
		e.logger.Error("scheduled job failed", "job", item.job.Name, "err", err)
	} else {
		e.logger.Debug("scheduled job finished", "job", item.job.Name, "duration", report.Duration)
	}

	e.mu.Lock()
	item.lastRun = started
	item.runs++
	item.lastErr = ""
	if err != nil {
		item.lastErr = err.Error()
	}
	item.next = started.Add(item.job.Interval)
	if now := time.Now(); item.next.Before(now) {
		item.next = now
	}
	heap.Push(&e.queue, item)
	e.mu.Unlock()

	select {
	case e.out <- report:
	default:
		atomic.AddUint64(&e.dropped, 1)
	}
}

// safeRun turns a panicking job into an error so one bad run cannot stop
// the loop.
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) peek() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return time.Time{}, false
	}
	return e.queue[0].next, true
}

func (e *Engine) popDue(now time.Time) []*entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*entry, 0)
	for len(e.queue) > 0 {
		if e.queue[0].next.After(now) {
			break
		}
		out = append(out, heap.Pop(&e.queue).(*entry))
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
