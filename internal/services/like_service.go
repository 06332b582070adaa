package services

import (
	"context"
	"errors"

	"github.com/isdelr/milligram-be/internal/apperror"
	"github.com/isdelr/milligram-be/internal/database"
	"github.com/isdelr/milligram-be/internal/metrics"
	"github.com/isdelr/milligram-be/internal/models"
)

// LikeServiceProvider defines the interface for like services.
type LikeServiceProvider interface {
	Like(ctx context.Context, user models.User, postID string) (int64, error)
	Unlike(ctx context.Context, user models.User, postID string) (int64, error)
}

// LikeService toggles likes and keeps post counters in step.
type LikeService struct {
	store  database.Store
	events Publisher
}

// NewLikeService creates a new LikeService. events may be nil.
func NewLikeService(store database.Store, events Publisher) *LikeService {
	return &LikeService{store: store, events: publisherOrNop(events)}
}

func (s *LikeService) requirePost(ctx context.Context, postID string) error {
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperror.NotFound("post not found")
		}
		return apperror.Internal("failed to load post", err)
	}
	return nil
}

// Like records a like and returns the new like count.
func (s *LikeService) Like(ctx context.Context, user models.User, postID string) (int64, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return 0, err
	}

	count, err := s.store.AddLike(ctx, user.ID, postID)
	switch {
	case errors.Is(err, database.ErrDuplicate):
		return 0, apperror.Conflict("post already liked!")
	case errors.Is(err, database.ErrNotFound):
		return 0, apperror.NotFound("post not found")
	case err != nil:
		return 0, apperror.Internal("failed to like post", err)
	}

	metrics.Likes.WithLabelValues("like").Inc()
	s.events.Publish(EventPostLiked, LikeEvent{PostID: postID, UserID: user.ID, LikesCount: count})
	return count, nil
}

// Unlike removes a like and returns the new like count.
func (s *LikeService) Unlike(ctx context.Context, user models.User, postID string) (int64, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return 0, err
	}

	count, err := s.store.RemoveLike(ctx, user.ID, postID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return 0, apperror.Validation("post not liked yet!")
	case err != nil:
		return 0, apperror.Internal("failed to unlike post", err)
	}

	metrics.Likes.WithLabelValues("unlike").Inc()
	s.events.Publish(EventPostUnliked, LikeEvent{PostID: postID, UserID: user.ID, LikesCount: count})
	return count, nil
}
