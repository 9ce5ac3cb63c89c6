// services/board_paginator.go
package services

import "bounty-service/models"

// PageView is one fixed-size slice of the bounty board plus navigation flags.
type PageView struct {
	Entries     []models.Bounty `json:"entries"`
	Page        int             `json:"page"`
	TotalPages  int             `json:"total_pages"`
	HasPrevious bool            `json:"has_previous"`
	HasNext     bool            `json:"has_next"`
}

// Page slices an already-ordered snapshot of bounties into page pageNumber
// of size pageSize. Page numbers below 1 clamp to 1 and past the last page
// clamp to the last page. Pure function; safe to call with a stale snapshot.
func Page(bounties []models.Bounty, pageNumber, pageSize int) PageView {
	if pageSize < 1 {
		pageSize = 1
	}

	totalPages := (len(bounties) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageNumber > totalPages {
		pageNumber = totalPages
	}

	start := (pageNumber - 1) * pageSize
	end := start + pageSize
	if start > len(bounties) {
		start = len(bounties)
	}
	if end > len(bounties) {
		end = len(bounties)
	}

	entries := make([]models.Bounty, end-start)
	copy(entries, bounties[start:end])

	return PageView{
		Entries:     entries,
		Page:        pageNumber,
		TotalPages:  totalPages,
		HasPrevious: pageNumber > 1,
		HasNext:     pageNumber < totalPages,
	}
}
