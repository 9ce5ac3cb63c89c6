// services/expiry_scheduler.go
package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"bounty-service/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// ExpiryScheduler owns one cancellable one-shot job per active bounty and
// guarantees every active bounty is observed expiring exactly once, unless
// it is completed or removed first.
type ExpiryScheduler struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobs      map[int64]uuid.UUID
	store     *BountyStore
	onExpired func(models.Bounty)
}

func NewExpiryScheduler(store *BountyStore) (*ExpiryScheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	s := &ExpiryScheduler{
		scheduler: sched,
		jobs:      make(map[int64]uuid.UUID),
		store:     store,
	}
	sched.Start()
	return s, nil
}

// SetOnExpired registers the side effects run after a successful expiry
// (broadcast, tracking teardown). Call before Schedule/RecoverAll.
func (s *ExpiryScheduler) SetOnExpired(fn func(models.Bounty)) {
	s.onExpired = fn
}

// Schedule registers a one-shot job firing at the bounty's deadline. A
// deadline already in the past (recovered after downtime) fires immediately:
// expiry must always be observed, never silently dropped.
func (s *ExpiryScheduler) Schedule(b models.Bounty) {
	start := gocron.OneTimeJobStartDateTime(b.Expires)
	if !b.Expires.After(time.Now()) {
		start = gocron.OneTimeJobStartImmediately()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(s.fire, b.ID),
		gocron.WithName(fmt.Sprintf("bounty-expiry-%d", b.ID)),
	)
	if err != nil {
		log.Printf("[ExpiryScheduler] Failed to schedule expiry for bounty %d: %v", b.ID, err)
		return
	}
	s.jobs[b.ID] = job.ID()
}

// Cancel drops the pending expiry job for the given bounty id. Cancelling an
// already-fired or unknown timer is a no-op.
func (s *ExpiryScheduler) Cancel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID, ok := s.jobs[id]
	if !ok {
		return
	}
	delete(s.jobs, id)
	_ = s.scheduler.RemoveJob(jobID)
}

// RecoverAll re-schedules a job for every persisted active bounty from its
// stored absolute deadline. Called once at startup.
func (s *ExpiryScheduler) RecoverAll(bounties []models.Bounty) {
	count := 0
	for _, b := range bounties {
		if !b.IsActive() {
			continue
		}
		s.Schedule(b)
		count++
	}
	log.Printf("[ExpiryScheduler] Recovered %d expiry timer(s) from persisted state", count)
}

// Shutdown stops the underlying scheduler and drops all pending jobs.
func (s *ExpiryScheduler) Shutdown() error {
	s.mu.Lock()
	s.jobs = make(map[int64]uuid.UUID)
	s.mu.Unlock()
	return s.scheduler.Shutdown()
}

// fire runs on the gocron pool. It must never let anything escape that could
// kill the scheduling substrate; on an internal error the bounty stays active
// for the next recovery pass.
func (s *ExpiryScheduler) fire(id int64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ExpiryScheduler] Recovered panic while expiring bounty %d: %v", id, r)
		}
	}()

	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()

	b, err := s.store.Transition(id, models.BountyStatusExpired)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			// Lost the race with a claim or removal; discard silently.
			return
		}
		log.Printf("[ExpiryScheduler] Failed to expire bounty %d: %v", id, err)
		return
	}

	log.Printf("[ExpiryScheduler] Bounty %d on %s expired (reward %.2f forfeited)", b.ID, b.Target, b.Reward)
	if s.onExpired != nil {
		s.onExpired(b)
	}
}
