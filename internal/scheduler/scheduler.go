// Package scheduler runs one-off delayed callbacks from a single goroutine.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is a pending callback.
type Job struct {
	ID    uuid.UUID
	Label string
	At    time.Time

	fn    func()
	index int
}

// Scheduler owns a min-heap of deadlines. Callbacks run on the Run goroutine,
// one at a time, so they should hand off slow work.
type Scheduler struct {
	logger *slog.Logger

	mu    sync.Mutex
	queue jobHeap
	byID  map[uuid.UUID]*Job
	wake  chan struct{}
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		byID:   make(map[uuid.UUID]*Job),
		wake:   make(chan struct{}, 1),
	}
}

// After schedules fn to run once delay has elapsed.
func (s *Scheduler) After(delay time.Duration, label string, fn func()) uuid.UUID {
	job := &Job{
		ID:    uuid.New(),
		Label: label,
		At:    time.Now().Add(delay),
		fn:    fn,
	}

	s.mu.Lock()
	heap.Push(&s.queue, job)
	s.byID[job.ID] = job
	s.mu.Unlock()

	s.poke()
	return job.ID
}

// Cancel removes a pending job. It reports false when the job already ran or never existed.
func (s *Scheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&s.queue, job.index)
	delete(s.byID, id)
	s.poke()
	return true
}

// CancelAll drops every pending job and returns how many were removed.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.queue)
	s.queue = nil
	s.byID = make(map[uuid.UUID]*Job)
	s.poke()
	return n
}

// Pending returns a snapshot of queued jobs ordered by deadline.
func (s *Scheduler) Pending() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.queue))
	for _, j := range s.queue {
		out = append(out, Job{ID: j.ID, Label: j.Label, At: j.At})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].At.Before(out[k].At) })
	return out
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run fires due jobs until ctx is cancelled. Pending jobs are discarded on exit.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		due, next, ok := s.popDue(time.Now())
		for _, job := range due {
			s.fire(job)
		}

		wait := time.Hour
		if ok {
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
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
			return nil
		case <-s.wake:
		case <-timer.C:
		}
	}
}

func (s *Scheduler) popDue(now time.Time) ([]*Job, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Job
	for s.queue.Len() > 0 && !s.queue[0].At.After(now) {
		job := heap.Pop(&s.queue).(*Job)
		delete(s.byID, job.ID)
		due = append(due, job)
	}
	if s.queue.Len() == 0 {
		return due, time.Time{}, false
	}
	return due, s.queue[0].At, true
}

func (s *Scheduler) fire(job *Job) {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("scheduled job panicked", "id", job.ID.String(), "label", job.Label, "panic", r)
		}
	}()
	if s.logger != nil {
		s.logger.Debug("scheduled job firing", "id", job.ID.String(), "label", job.Label)
	}
	job.fn()
}

type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	job := x.(*Job)
	job.index = len(*h)
	*h = append(*h, job)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[:n-1]
	return job
}
