package services

import (
	"fmt"
	"testing"
	"time"

	"bounty-service/models"

	"github.com/stretchr/testify/assert"
)

func boardFixture(n int) []models.Bounty {
	placed := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	bounties := make([]models.Bounty, n)
	for i := range bounties {
		bounties[i] = models.Bounty{
			ID:       int64(i + 1),
			Placer:   "placer",
			Target:   fmt.Sprintf("target-%d", i+1),
			Reward:   100,
			PlacedAt: placed.Add(time.Duration(i) * time.Minute),
			Expires:  placed.Add(24 * time.Hour),
			Status:   models.BountyStatusActive,
		}
	}
	return bounties
}

func TestPageSlicesInOrder(t *testing.T) {
	view := Page(boardFixture(25), 2, 10)

	assert.Equal(t, 2, view.Page)
	assert.Equal(t, 3, view.TotalPages)
	assert.Len(t, view.Entries, 10)
	assert.Equal(t, int64(11), view.Entries[0].ID)
	assert.Equal(t, int64(20), view.Entries[9].ID)
	assert.True(t, view.HasPrevious)
	assert.True(t, view.HasNext)
}

func TestPageLastPageIsPartial(t *testing.T) {
	view := Page(boardFixture(25), 3, 10)

	assert.Len(t, view.Entries, 5)
	assert.True(t, view.HasPrevious)
	assert.False(t, view.HasNext)
}

func TestPageClampsAboveLastPage(t *testing.T) {
	// Page 5 of a two-page board clamps to page 2.
	view := Page(boardFixture(12), 5, 9)

	assert.Equal(t, 2, view.Page)
	assert.Equal(t, 2, view.TotalPages)
	assert.Len(t, view.Entries, 3)
	assert.False(t, view.HasNext)
	assert.True(t, view.HasPrevious)
}

func TestPageClampsBelowOne(t *testing.T) {
	view := Page(boardFixture(5), -3, 9)

	assert.Equal(t, 1, view.Page)
	assert.False(t, view.HasPrevious)
}

func TestPageEmptyBoard(t *testing.T) {
	view := Page(nil, 1, 9)

	assert.Equal(t, 1, view.Page)
	assert.Equal(t, 1, view.TotalPages)
	assert.Empty(t, view.Entries)
	assert.False(t, view.HasPrevious)
	assert.False(t, view.HasNext)
}
