// services/tracking_scheduler.go
package services

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"bounty-service/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// LocationLookup resolves the live position of an online user.
// The second return is false when the user is offline or unreachable.
type LocationLookup interface {
	Locate(userID string) (models.Position, bool)
}

// IndicatorSink receives refreshed tracking indicators. Delivery is best
// effort; a tick never blocks on the sink.
type IndicatorSink interface {
	PushIndicator(hunter string, indicator models.TrackingIndicator)
}

type trackingEntry struct {
	session models.TrackingSession
	jobID   uuid.UUID
}

// TrackingScheduler owns one repeating job per hunter that refreshes a
// directional indicator toward the tracked target. Sessions self-cancel the
// first tick that sees the bounty gone or either party offline.
type TrackingScheduler struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	sessions  map[string]*trackingEntry // keyed by hunter
	store     *BountyStore
	locations LocationLookup
	sink      IndicatorSink
	interval  time.Duration
}

func NewTrackingScheduler(store *BountyStore, locations LocationLookup, sink IndicatorSink, interval time.Duration) (*TrackingScheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	s := &TrackingScheduler{
		scheduler: sched,
		sessions:  make(map[string]*trackingEntry),
		store:     store,
		locations: locations,
		sink:      sink,
		interval:  interval,
	}
	sched.Start()
	return s, nil
}

// Start begins a tracking session for hunter against target, replacing any
// prior session the hunter had. Fails with ErrNoActiveBounty when the target
// has no active bounty.
func (s *TrackingScheduler) Start(hunter, target string) (models.TrackingSession, error) {
	if _, ok := s.store.FindActiveByTarget(target); !ok {
		return models.TrackingSession{}, ErrNoActiveBounty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked(hunter)

	session := models.TrackingSession{
		ID:        uuid.New(),
		Hunter:    hunter,
		Target:    target,
		StartedAt: time.Now().UTC(),
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.tick, hunter, target),
		gocron.WithName(fmt.Sprintf("tracking-%s", hunter)),
	)
	if err != nil {
		return models.TrackingSession{}, fmt.Errorf("failed to schedule tracking job: %w", err)
	}

	s.sessions[hunter] = &trackingEntry{session: session, jobID: job.ID()}
	log.Printf("[Tracking] %s started tracking %s (session %s)", hunter, target, session.ID)
	return session, nil
}

// Stop cancels the hunter's session, if any. Idempotent.
func (s *TrackingScheduler) Stop(hunter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(hunter)
}

// StopAllForTarget tears down every session pointed at target. Called when
// the target's bounty leaves the active state.
func (s *TrackingScheduler) StopAllForTarget(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hunter, entry := range s.sessions {
		if entry.session.Target == target {
			s.stopLocked(hunter)
		}
	}
}

// Session returns the hunter's current session, if any.
func (s *TrackingScheduler) Session(hunter string) (models.TrackingSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[hunter]
	if !ok {
		return models.TrackingSession{}, false
	}
	return entry.session, true
}

// Shutdown stops the underlying scheduler and drops all sessions.
func (s *TrackingScheduler) Shutdown() error {
	s.mu.Lock()
	s.sessions = make(map[string]*trackingEntry)
	s.mu.Unlock()
	return s.scheduler.Shutdown()
}

// Indicator computes a one-shot directional indicator from hunter to target.
// Fails when either party cannot be located.
func (s *TrackingScheduler) Indicator(hunter, target string) (models.TrackingIndicator, error) {
	from, ok := s.locations.Locate(hunter)
	if !ok {
		return models.TrackingIndicator{}, fmt.Errorf("hunter %s is not online", hunter)
	}
	to, ok := s.locations.Locate(target)
	if !ok {
		return models.TrackingIndicator{}, fmt.Errorf("target %s is not online", target)
	}

	dx := to.X - from.X
	dy := to.Y - from.Y
	dz := to.Z - from.Z

	// Bearing measured clockwise from north (+Z) on the horizontal plane.
	bearing := math.Atan2(dx, dz) * 180 / math.Pi
	if bearing < 0 {
		bearing += 360
	}

	return models.TrackingIndicator{
		Target:    target,
		ItemKey:   fmt.Sprintf("tracking-puck-%s", slug.Make(target)),
		Bearing:   bearing,
		Distance:  math.Sqrt(dx*dx + dy*dy + dz*dz),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

// stopLocked removes the hunter's session and its job. Caller holds mu.
func (s *TrackingScheduler) stopLocked(hunter string) {
	entry, ok := s.sessions[hunter]
	if !ok {
		return
	}
	delete(s.sessions, hunter)
	_ = s.scheduler.RemoveJob(entry.jobID)
}

// tick runs on the gocron pool every interval for one (hunter, target) pair.
func (s *TrackingScheduler) tick(hunter, target string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Tracking] Recovered panic in tracking tick for %s: %v", hunter, r)
		}
	}()

	if _, ok := s.store.FindActiveByTarget(target); !ok {
		log.Printf("[Tracking] Bounty on %s is gone, stopping session for %s", target, hunter)
		s.Stop(hunter)
		return
	}

	indicator, err := s.Indicator(hunter, target)
	if err != nil {
		// Either party offline. Sessions must not leak indefinitely.
		log.Printf("[Tracking] Stopping session for %s: %v", hunter, err)
		s.Stop(hunter)
		return
	}

	if s.sink != nil {
		s.sink.PushIndicator(hunter, indicator)
	}
}
