package queue

import (
	"log"
	"sync"
	"time"

	appErrors "github.com/eventdesk/eventdesk-backend/internal/errors"
	"github.com/eventdesk/eventdesk-backend/internal/metrics"
)

// DeliverFunc runs one delivery attempt for a campaign. A non-nil error
// marks the attempt as failed and triggers the scheduler's retry policy.
type DeliverFunc func(campaignID string) error

// Scheduler defers campaign delivery to a future point in time.
type Scheduler interface {
	// Enqueue registers a delivery task for campaignID at fireAt. A fire
	// time not in the future is rejected with a scheduling error.
	Enqueue(campaignID string, fireAt time.Time) error
	// CancelAllFor removes every pending task for campaignID. A task whose
	// timer already fired may still complete; that race is accepted.
	CancelAllFor(campaignID string)
}

// InMemoryScheduler runs delayed delivery tasks on their own goroutines
// inside the orchestrator process. Firing never blocks a caller's request
// path.
type InMemoryScheduler struct {
	mu      sync.Mutex
	deliver DeliverFunc
	tasks   map[string][]*scheduledTask

	// Retry policy: MaxAttempts total per fired task, exponential backoff
	// from BaseDelay doubling up to MaxDelay.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type scheduledTask struct {
	timer *time.Timer
}

func NewInMemoryScheduler(deliver DeliverFunc) *InMemoryScheduler {
	return &InMemoryScheduler{
		deliver:     deliver,
		tasks:       make(map[string][]*scheduledTask),
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    60 * time.Second,
	}
}

func (s *InMemoryScheduler) Enqueue(campaignID string, fireAt time.Time) error {
	delay := time.Until(fireAt)
	if delay <= 0 {
		return appErrors.NewScheduling("fire time is in the past")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	task := &scheduledTask{}
	task.timer = time.AfterFunc(delay, func() {
		s.remove(campaignID, task)
		s.runTask(campaignID)
	})
	s.tasks[campaignID] = append(s.tasks[campaignID], task)
	return nil
}

func (s *InMemoryScheduler) CancelAllFor(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.tasks[campaignID] {
		task.timer.Stop()
	}
	delete(s.tasks, campaignID)
}

// PendingFor returns the number of live tasks for a campaign.
func (s *InMemoryScheduler) PendingFor(campaignID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks[campaignID])
}

func (s *InMemoryScheduler) remove(campaignID string, task *scheduledTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.tasks[campaignID][:0]
	for _, t := range s.tasks[campaignID] {
		if t != task {
			remaining = append(remaining, t)
		}
	}
	if len(remaining) == 0 {
		delete(s.tasks, campaignID)
	} else {
		s.tasks[campaignID] = remaining
	}
}

// runTask executes delivery attempts with exponential backoff. After the
// final attempt fails the task is abandoned and not re-enqueued; the failure
// stays visible through the campaign's failed status and the log.
func (s *InMemoryScheduler) runTask(campaignID string) {
	delay := s.BaseDelay
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		err := s.deliver(campaignID)
		if err == nil {
			return
		}

		log.Printf("delivery attempt %d/%d failed for campaign %s: %v", attempt, s.MaxAttempts, campaignID, err)
		if attempt == s.MaxAttempts {
			break
		}

		metrics.TaskRetries.Inc()
		time.Sleep(delay)
		delay *= 2
		if delay > s.MaxDelay {
			delay = s.MaxDelay
		}
	}

	metrics.TasksAbandoned.Inc()
	log.Printf("delivery task for campaign %s abandoned after %d attempts", campaignID, s.MaxAttempts)
}

var _ Scheduler = (*InMemoryScheduler)(nil)
