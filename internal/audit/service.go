package audit

import (
	"context"
	"fmt"
)

// Result wraps a timeline window with paging information.
type Result struct {
	Events []Event    `json:"events"`
	Paging PagingInfo `json:"paging"`
}

// Service coordinates the audit trail.
type Service struct {
	repo Repository
}

// NewService builds a new audit service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record appends one event to the trail.
func (s *Service) Record(ctx context.Context, e Event) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	return s.repo.InsertEvent(ctx, e)
}

// Timeline fetches a page of events. Page sizes are clamped to 1..50.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	// Fetch one extra row to detect a following page.
	events, err := s.repo.ListEvents(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(events) > pageSize
	if hasNext {
		events = events[:pageSize]
	}
	return Result{
		Events: events,
		Paging: PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext},
	}, nil
}
