package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// TimelineFilters narrow a timeline query.
type TimelineFilters struct {
	Entity   string
	Action   string
	ActorID  int64
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo reports the page position and neighbours.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result bundles one timeline page with its paging info.
type Result struct {
	Rows   []shared.AuditLog `json:"rows"`
	Paging PagingInfo        `json:"paging"`
}

// TimelineRepository is the read surface the service needs.
type TimelineRepository interface {
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]shared.AuditLog, error)
}

// Service coordinates audit timeline reads.
type Service struct {
	repo TimelineRepository
}

// NewService constructs the timeline service.
func NewService(repo TimelineRepository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of the activity timeline. It fetches one row
// beyond the page to learn whether a next page exists.
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
	rows, err := s.repo.Window(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
