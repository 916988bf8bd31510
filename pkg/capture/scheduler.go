package capture

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It returns false if the callback already ran or was stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay, one at a time.
type Scheduler interface {
	After(d time.Duration, fn func()) Timer
}

type task struct {
	due   time.Time
	seq   uint64
	fn    func()
	index int
	q     *taskQueue
	mu    *sync.Mutex
}

func (t *task) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(t.q, t.index)
	return true
}

// taskQueue orders tasks by due time, then by insertion order.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// Loop is a Scheduler backed by the wall clock. Callbacks run serially on the goroutine calling Run.
type Loop struct {
	mu   sync.Mutex
	q    taskQueue
	seq  uint64
	wake chan struct{}
}

// NewLoop returns an idle Loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// After schedules fn to run on the loop goroutine after d.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	l.mu.Lock()
	l.seq++
	t := &task{due: time.Now().Add(d), seq: l.seq, fn: fn, q: &l.q, mu: &l.mu}
	heap.Push(&l.q, t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return t
}

// Run executes callbacks as they come due until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		l.mu.Lock()
		var next *task
		wait := time.Hour
		if len(l.q) > 0 {
			wait = time.Until(l.q[0].due)
			if wait <= 0 {
				next = heap.Pop(&l.q).(*task)
			}
		}
		l.mu.Unlock()

		if next != nil {
			next.fn()
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-timer.C:
		}
	}
}

// Manual is a Scheduler driven by a virtual clock. Nothing runs until Advance is called.
type Manual struct {
	mu  sync.Mutex
	now time.Time
	q   taskQueue
	seq uint64
}

// NewManual returns a Manual scheduler whose clock starts at the Unix epoch.
func NewManual() *Manual {
	return &Manual{now: time.Unix(0, 0)}
}

// After schedules fn to run once the virtual clock has advanced by d.
func (m *Manual) After(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &task{due: m.now.Add(d), seq: m.seq, fn: fn, q: &m.q, mu: &m.mu}
	heap.Push(&m.q, t)
	return t
}

// Advance moves the clock forward by d, running every callback that comes due, in order.
// Callbacks scheduled during Advance run too if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if len(m.q) == 0 || m.q[0].due.After(target) {
			m.now = target
			m.mu.Unlock()
			return
		}
		t := heap.Pop(&m.q).(*task)
		m.now = t.due
		m.mu.Unlock()
		t.fn()
	}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of scheduled callbacks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.q)
}
