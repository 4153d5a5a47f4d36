package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	cronlib "github.com/robfig/cron/v3"

	"github.com/hatdsl/hat/internal/lang"
)

// Scheduler wraps a seconds-resolution cron engine keyed in local time.
// Each scheduled task gets a TaskID; when its cron expression fires, a
// TaskRun message for that id is enqueued into the dispatcher mailbox.
type Scheduler struct {
	cron  *cronlib.Cron
	ctx   context.Context
	inbox chan<- message

	mu      sync.Mutex
	entries map[TaskID]cronlib.EntryID
}

func newScheduler(ctx context.Context, inbox chan<- message) *Scheduler {
	c := cronlib.New(cronlib.WithSeconds(), cronlib.WithLocation(time.Local))
	c.Start()

	return &Scheduler{
		cron:    c,
		ctx:     ctx,
		inbox:   inbox,
		entries: make(map[TaskID]cronlib.EntryID),
	}
}

// Schedule registers the task's interval and returns its TaskID. An invalid
// cron expression fails here, before the task is retained anywhere.
func (s *Scheduler) Schedule(task *lang.ScheduleTask) (TaskID, error) {
	expr := task.Interval.CronExpr()
	id := uuid.New()

	entry, err := s.cron.AddFunc(expr, func() {
		// Block on the mailbox for backpressure, but never outlive the
		// runtime.
		select {
		case s.inbox <- message{taskID: id}:
		case <-s.ctx.Done():
		}
	})
	if err != nil {
		return TaskID{}, fmt.Errorf("schedule task %q with cron expression %q: %w", task.Name, expr, err)
	}

	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()

	return id, nil
}

// Remove cancels the cron job of a task.
func (s *Scheduler) Remove(id TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
}

// Clear cancels every registered cron job.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
}

// Stop shuts the cron engine down and waits for in-flight firings.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
