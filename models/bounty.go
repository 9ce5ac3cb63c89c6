// models/bounty.go
package models

import "time"

// BountyStatus is the lifecycle state of a bounty contract
type BountyStatus string

const (
	BountyStatusActive    BountyStatus = "active"
	BountyStatusCompleted BountyStatus = "completed"
	BountyStatusExpired   BountyStatus = "expired"
	BountyStatusRemoved   BountyStatus = "removed"
)

// Bounty is a reward contract posted against a target player.
// The store owns all mutation; everything outside the store works on copies.
type Bounty struct {
	ID       int64        `json:"id"`
	Placer   string       `json:"placer"` // external user ID that funded the bounty
	Target   string       `json:"target"`
	Reward   float64      `json:"reward"`
	PlacedAt time.Time    `json:"placed_at"`
	Expires  time.Time    `json:"expires"`
	Status   BountyStatus `json:"status"`
}

// IsActive reports whether the bounty can still be claimed, removed or expired.
func (b *Bounty) IsActive() bool {
	return b.Status == BountyStatusActive
}

// BountyRecord mirrors Bounty for persistence.
// Table name: bounties
type BountyRecord struct {
	ID       int64        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Placer   string       `gorm:"type:varchar(64);not null;index" json:"placer"`
	Target   string       `gorm:"type:varchar(64);not null;index" json:"target"`
	Reward   float64      `gorm:"not null" json:"reward"`
	PlacedAt time.Time    `gorm:"not null" json:"placed_at"`
	Expires  time.Time    `gorm:"not null;index" json:"expires"`
	Status   BountyStatus `gorm:"type:varchar(16);not null;index" json:"status"`
}

func (BountyRecord) TableName() string { return "bounties" }

// ToRecord converts the in-memory bounty into its persistence row.
// Timestamps are normalized to UTC so a save/load cycle round-trips exactly.
func (b *Bounty) ToRecord() BountyRecord {
	return BountyRecord{
		ID:       b.ID,
		Placer:   b.Placer,
		Target:   b.Target,
		Reward:   b.Reward,
		PlacedAt: b.PlacedAt.UTC(),
		Expires:  b.Expires.UTC(),
		Status:   b.Status,
	}
}

// ToBounty converts a persisted row back into the in-memory form.
func (r *BountyRecord) ToBounty() Bounty {
	return Bounty{
		ID:       r.ID,
		Placer:   r.Placer,
		Target:   r.Target,
		Reward:   r.Reward,
		PlacedAt: r.PlacedAt.UTC(),
		Expires:  r.Expires.UTC(),
		Status:   r.Status,
	}
}
