// services/bounty_manager.go
package services

import (
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"bounty-service/models"
)

// Ledger is the economy collaborator. It is assumed always available;
// failures are logged but not modeled as recoverable here.
type Ledger interface {
	GetBalance(userID string) (float64, error)
	Withdraw(userID string, amount float64) error
	Credit(userID string, amount float64) error
}

// Roster lists currently online users, used for random bounty targeting.
type Roster interface {
	OnlineUsers() []string
}

// BountyManagerConfig carries the tunable policy knobs.
type BountyManagerConfig struct {
	MinReward       float64
	DefaultDuration time.Duration
	MaxDuration     time.Duration
	PlaceCooldown   time.Duration
	BoardPageSize   int
}

// SystemPlacer is the placer identity used for server-generated bounties.
// These are funded by the house: nothing is withdrawn and removal refunds
// are skipped.
const SystemPlacer = "server"

// BountyManager composes the store, the schedulers and the external
// collaborators into the public bounty contract.
type BountyManager struct {
	store    *BountyStore
	expiry   *ExpiryScheduler
	tracking *TrackingScheduler
	ledger   Ledger
	notifier Notifier
	roster   Roster
	cfg      BountyManagerConfig

	cooldownMu sync.Mutex
	lastPlaced map[string]time.Time
}

func NewBountyManager(store *BountyStore, expiry *ExpiryScheduler, tracking *TrackingScheduler, ledger Ledger, notifier Notifier, roster Roster, cfg BountyManagerConfig) *BountyManager {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 24 * time.Hour
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 72 * time.Hour
	}
	if cfg.BoardPageSize <= 0 {
		cfg.BoardPageSize = 9
	}

	m := &BountyManager{
		store:      store,
		expiry:     expiry,
		tracking:   tracking,
		ledger:     ledger,
		notifier:   notifier,
		roster:     roster,
		cfg:        cfg,
		lastPlaced: make(map[string]time.Time),
	}

	// Expiry side effects run through the manager so the scheduler stays
	// a pure timer substrate.
	expiry.SetOnExpired(m.onExpired)
	return m
}

// PlaceBounty funds and activates a bounty on target. The store accepts the
// creation before any money moves, so a rejected placement never touches the
// placer's balance.
func (m *BountyManager) PlaceBounty(placer, target string, reward float64, duration time.Duration) (models.Bounty, error) {
	if reward <= 0 || reward < m.cfg.MinReward {
		return models.Bounty{}, ErrRewardTooLow
	}
	if err := m.checkCooldown(placer); err != nil {
		return models.Bounty{}, err
	}

	// Over-long durations clamp to the configured maximum, not rejected.
	if duration <= 0 {
		duration = m.cfg.DefaultDuration
	}
	if duration > m.cfg.MaxDuration {
		duration = m.cfg.MaxDuration
	}

	balance, err := m.ledger.GetBalance(placer)
	if err != nil {
		return models.Bounty{}, err
	}
	if balance < reward {
		return models.Bounty{}, ErrInsufficientFunds
	}

	bounty, err := m.store.Create(placer, target, reward, time.Now().Add(duration))
	if err != nil {
		return models.Bounty{}, err
	}

	if err := m.ledger.Withdraw(placer, reward); err != nil {
		// Roll the bounty back so a failed withdrawal leaves no orphan.
		if _, rbErr := m.store.Transition(bounty.ID, models.BountyStatusRemoved); rbErr != nil {
			log.Printf("[BountyManager] Failed to roll back bounty %d after withdraw error: %v", bounty.ID, rbErr)
		}
		return models.Bounty{}, err
	}

	m.markPlaced(placer)
	m.expiry.Schedule(bounty)
	m.notifier.Broadcast(PlacedEvent(bounty))

	log.Printf("[BountyManager] %s placed bounty %d on %s for %.2f expiring at %s",
		placer, bounty.ID, target, reward, bounty.Expires.Format(time.RFC3339))
	return bounty, nil
}

// CompleteBounty pays the active bounty on target out to hunter.
func (m *BountyManager) CompleteBounty(hunter, target string) (models.Bounty, error) {
	found, ok := m.store.FindActiveByTarget(target)
	if !ok {
		return models.Bounty{}, ErrNoActiveBounty
	}

	bounty, err := m.store.Transition(found.ID, models.BountyStatusCompleted)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			// Lost the race with expiry or removal.
			return models.Bounty{}, ErrNoActiveBounty
		}
		return models.Bounty{}, err
	}

	m.expiry.Cancel(bounty.ID)
	m.tracking.StopAllForTarget(target)

	if err := m.ledger.Credit(hunter, bounty.Reward); err != nil {
		log.Printf("[BountyManager] Failed to credit %s with %.2f for bounty %d: %v", hunter, bounty.Reward, bounty.ID, err)
	}

	m.notifier.Broadcast(ClaimedEvent(bounty, hunter))
	log.Printf("[BountyManager] %s claimed bounty %d on %s for %.2f", hunter, bounty.ID, target, bounty.Reward)
	return bounty, nil
}

// RemoveBounty takes the active bounty on target down and refunds the placer.
// Only the original placer or an admin may remove a bounty.
func (m *BountyManager) RemoveBounty(remover, target string, isAdmin bool) (models.Bounty, error) {
	found, ok := m.store.FindActiveByTarget(target)
	if !ok {
		return models.Bounty{}, ErrNoActiveBounty
	}
	if remover != found.Placer && !isAdmin {
		return models.Bounty{}, ErrUnauthorized
	}

	bounty, err := m.store.Transition(found.ID, models.BountyStatusRemoved)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			return models.Bounty{}, ErrNoActiveBounty
		}
		return models.Bounty{}, err
	}

	m.expiry.Cancel(bounty.ID)
	m.tracking.StopAllForTarget(target)

	if bounty.Placer != SystemPlacer {
		if err := m.ledger.Credit(bounty.Placer, bounty.Reward); err != nil {
			log.Printf("[BountyManager] Failed to refund %s for bounty %d: %v", bounty.Placer, bounty.ID, err)
		}
	}

	m.notifier.Broadcast(RemovedEvent(bounty, remover))
	log.Printf("[BountyManager] %s removed bounty %d on %s", remover, bounty.ID, target)
	return bounty, nil
}

// GenerateRandomBounty places a server-funded bounty on a random eligible
// online user. Returns nil when nobody online is eligible.
func (m *BountyManager) GenerateRandomBounty(reward float64, duration time.Duration) (*models.Bounty, error) {
	var candidates []string
	for _, userID := range m.roster.OnlineUsers() {
		if userID == SystemPlacer {
			continue
		}
		if !m.HasBounty(userID) {
			candidates = append(candidates, userID)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	target := candidates[rand.Intn(len(candidates))]

	if duration <= 0 {
		duration = m.cfg.DefaultDuration
	}
	if duration > m.cfg.MaxDuration {
		duration = m.cfg.MaxDuration
	}

	bounty, err := m.store.Create(SystemPlacer, target, reward, time.Now().Add(duration))
	if err != nil {
		return nil, err
	}

	m.expiry.Schedule(bounty)
	m.notifier.Broadcast(PlacedEvent(bounty))

	log.Printf("[BountyManager] Random bounty %d placed on %s for %.2f", bounty.ID, target, reward)
	return &bounty, nil
}

// HasBounty reports whether target currently has an active bounty.
func (m *BountyManager) HasBounty(target string) bool {
	_, ok := m.store.FindActiveByTarget(target)
	return ok
}

// GetActiveBounties returns all active bounties ordered by placement time.
func (m *BountyManager) GetActiveBounties() []models.Bounty {
	return m.store.ListActive()
}

// GetBounty looks up a bounty by id.
func (m *BountyManager) GetBounty(id int64) (models.Bounty, error) {
	b, ok := m.store.Get(id)
	if !ok {
		return models.Bounty{}, ErrNotFound
	}
	return b, nil
}

// Board builds the requested page of the bounty board from a fresh snapshot.
func (m *BountyManager) Board(pageNumber int) PageView {
	return Page(m.store.ListActive(), pageNumber, m.cfg.BoardPageSize)
}

// StartTracking hands the hunter a fresh indicator and begins the repeating
// refresh session.
func (m *BountyManager) StartTracking(hunter, target string) (models.TrackingIndicator, error) {
	if _, err := m.tracking.Start(hunter, target); err != nil {
		return models.TrackingIndicator{}, err
	}
	return m.tracking.Indicator(hunter, target)
}

// StopTracking cancels the hunter's session, if any.
func (m *BountyManager) StopTracking(hunter string) {
	m.tracking.Stop(hunter)
}

// GetTrackingIndicator computes a one-shot indicator without a session.
func (m *BountyManager) GetTrackingIndicator(hunter, target string) (models.TrackingIndicator, error) {
	if !m.HasBounty(target) {
		return models.TrackingIndicator{}, ErrNoActiveBounty
	}
	return m.tracking.Indicator(hunter, target)
}

func (m *BountyManager) onExpired(bounty models.Bounty) {
	m.tracking.StopAllForTarget(bounty.Target)
	m.notifier.Broadcast(ExpiredEvent(bounty))
}

func (m *BountyManager) checkCooldown(placer string) error {
	if m.cfg.PlaceCooldown <= 0 {
		return nil
	}

	m.cooldownMu.Lock()
	defer m.cooldownMu.Unlock()

	if last, ok := m.lastPlaced[placer]; ok && time.Since(last) < m.cfg.PlaceCooldown {
		return ErrPlaceCooldown
	}
	return nil
}

func (m *BountyManager) markPlaced(placer string) {
	if m.cfg.PlaceCooldown <= 0 {
		return
	}

	m.cooldownMu.Lock()
	defer m.cooldownMu.Unlock()
	m.lastPlaced[placer] = time.Now()
}
