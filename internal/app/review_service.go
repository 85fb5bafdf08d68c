package app

import (
	"context"
	"time"

	"github.com/neomorfeo/bookiq/internal/domain"
)

// ReviewService exposes the operator review queue.
type ReviewService struct {
	queue domain.ReviewQueue
	now   func() time.Time
}

func NewReviewService(queue domain.ReviewQueue) *ReviewService {
	return &ReviewService{queue: queue, now: time.Now}
}

func (s *ReviewService) List(ctx context.Context, filter domain.ReviewFilter) ([]domain.ReviewItem, error) {
	return s.queue.List(ctx, filter)
}

// Resolve marks an item handled. Resolution is always an operator action.
func (s *ReviewService) Resolve(ctx context.Context, id string) error {
	return s.queue.Resolve(ctx, id, s.now().UTC())
}
