package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/milligram-be/internal/apperror"
	"github.com/isdelr/milligram-be/internal/database"
	"github.com/isdelr/milligram-be/internal/metrics"
	"github.com/isdelr/milligram-be/internal/models"
)

// CommentServiceProvider defines the interface for comment services.
type CommentServiceProvider interface {
	AddComment(ctx context.Context, author models.User, postID, text string) (models.Comment, error)
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
}

// CommentService provides business logic for comments.
type CommentService struct {
	store  database.Store
	events Publisher
}

// NewCommentService creates a new CommentService. events may be nil.
func NewCommentService(store database.Store, events Publisher) *CommentService {
	return &CommentService{store: store, events: publisherOrNop(events)}
}

// AddComment stores a comment on postID and returns it with its author populated.
func (s *CommentService) AddComment(ctx context.Context, author models.User, postID, text string) (models.Comment, error) {
	text = cleanText(text)
	if text == "" {
		return models.Comment{}, apperror.Validation("text is required to post comment")
	}

	comment := models.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		AuthorID:  author.ID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddComment(ctx, &comment); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.Comment{}, apperror.NotFound("post not found")
		}
		return models.Comment{}, apperror.Internal("failed to add comment", err)
	}

	comment.Author = author.Author()
	metrics.Comments.Inc()
	s.events.Publish(EventCommentCreated, comment)
	return comment, nil
}

// ListComments returns a post's comments, newest first. Unknown posts have no comments.
func (s *CommentService) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	comments, err := s.store.ListComments(ctx, postID)
	if err != nil {
		return nil, apperror.Internal("failed to load comments", err)
	}
	if err := attachCommentAuthors(ctx, s.store, comments); err != nil {
		return nil, apperror.Internal("failed to load comment authors", err)
	}
	return comments, nil
}
