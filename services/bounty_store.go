// services/bounty_store.go
package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"bounty-service/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BountyStore is the single authority over bounty identity and status.
// The live table is in memory; the database is only touched by LoadAll and
// SaveAll so timer callbacks never wait on I/O.
type BountyStore struct {
	mu       sync.Mutex
	bounties map[int64]*models.Bounty
	nextID   int64
}

func NewBountyStore() *BountyStore {
	return &BountyStore{
		bounties: make(map[int64]*models.Bounty),
		nextID:   1,
	}
}

// Create registers a new active bounty and assigns it a fresh id.
// Returns ErrDuplicateActiveBounty if the target already has an active one.
func (s *BountyStore) Create(placer, target string, reward float64, expires time.Time) (models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bounties {
		if b.Target == target && b.Status == models.BountyStatusActive {
			return models.Bounty{}, ErrDuplicateActiveBounty
		}
	}

	b := &models.Bounty{
		ID:       s.nextID,
		Placer:   placer,
		Target:   target,
		Reward:   reward,
		PlacedAt: time.Now().UTC(),
		Expires:  expires.UTC(),
		Status:   models.BountyStatusActive,
	}
	s.nextID++
	s.bounties[b.ID] = b
	return *b, nil
}

// Get returns a copy of the bounty with the given id.
func (s *BountyStore) Get(id int64) (models.Bounty, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[id]
	if !ok {
		return models.Bounty{}, false
	}
	return *b, true
}

// FindActiveByTarget returns the active bounty on target, if any.
func (s *BountyStore) FindActiveByTarget(target string) (models.Bounty, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bounties {
		if b.Target == target && b.Status == models.BountyStatusActive {
			return *b, true
		}
	}
	return models.Bounty{}, false
}

// ListActive returns a snapshot of all active bounties ordered by placement
// time ascending (ties broken by id) so board pagination is stable.
func (s *BountyStore) ListActive() []models.Bounty {
	s.mu.Lock()
	out := make([]models.Bounty, 0, len(s.bounties))
	for _, b := range s.bounties {
		if b.Status == models.BountyStatusActive {
			out = append(out, *b)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].PlacedAt.Before(out[j].PlacedAt)
	})
	return out
}

// Transition is the single compare-and-set point for all status changes.
// Only an active bounty may leave its state, which makes duplicate expiry
// firings and cancel/fire races harmless no-ops at every call site.
func (s *BountyStore) Transition(id int64, newStatus models.BountyStatus) (models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[id]
	if !ok {
		return models.Bounty{}, ErrNotFound
	}
	if b.Status != models.BountyStatusActive {
		return models.Bounty{}, ErrInvalidTransition
	}
	b.Status = newStatus
	return *b, nil
}

// Records returns a snapshot of every bounty as persistence rows, terminal
// ones included (they are retained for audit/history).
func (s *BountyStore) Records() []models.BountyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]models.BountyRecord, 0, len(s.bounties))
	for _, b := range s.bounties {
		records = append(records, b.ToRecord())
	}
	return records
}

// SaveAll writes the whole table to the database in one bulk upsert.
// Runs off the scheduling critical path: shutdown and explicit saves only.
func (s *BountyStore) SaveAll(db *gorm.DB) error {
	records := s.Records()
	if len(records) == 0 {
		return nil
	}

	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"placer", "target", "reward", "placed_at", "expires", "status",
		}),
	}).Create(&records).Error; err != nil {
		return fmt.Errorf("failed to save bounties: %w", err)
	}
	return nil
}

// LoadAll replaces the in-memory table wholesale from the database and
// re-seeds the id counter past the highest persisted id. Idempotent.
func (s *BountyStore) LoadAll(db *gorm.DB) error {
	var records []models.BountyRecord
	if err := db.Find(&records).Error; err != nil {
		return fmt.Errorf("failed to load bounties: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bounties = make(map[int64]*models.Bounty, len(records))
	s.nextID = 1
	for _, r := range records {
		b := r.ToBounty()
		s.bounties[b.ID] = &b
		if b.ID >= s.nextID {
			s.nextID = b.ID + 1
		}
	}
	return nil
}
