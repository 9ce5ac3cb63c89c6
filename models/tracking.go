// models/tracking.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackingSession is the live relation between a hunter and a target.
// Sessions are ephemeral: they are never persisted and do not survive restarts.
type TrackingSession struct {
	ID        uuid.UUID `json:"id"`
	Hunter    string    `json:"hunter"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
}

// Position is a world-space location reported by the presence service.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TrackingIndicator is the directional aid pushed to a hunter each tick.
// Bearing is degrees clockwise from north (+Z), in [0, 360).
type TrackingIndicator struct {
	Target    string    `json:"target"`
	ItemKey   string    `json:"item_key"`
	Bearing   float64   `json:"bearing"`
	Distance  float64   `json:"distance"`
	UpdatedAt time.Time `json:"updated_at"`
}
