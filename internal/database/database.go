package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/isdelr/milligram-be/internal/config"
	"github.com/isdelr/milligram-be/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Store is the persistence boundary for users, posts, likes and comments.
// Multi-record writes (likes, comments, cascade deletes) are atomic.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	// UserExists reports whether any user has the given username or email.
	UserExists(ctx context.Context, username, email string) (bool, error)
	// FindUsersByIDs returns the users with the given IDs keyed by ID. Unknown IDs are skipped.
	FindUsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error)

	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (models.Post, error)
	// ListPosts returns posts newest first.
	ListPosts(ctx context.Context, skip, limit int) ([]models.Post, error)
	ListPostsByAuthor(ctx context.Context, authorID string) ([]models.Post, error)
	// DeletePostCascade removes a post with all of its comments and likes.
	DeletePostCascade(ctx context.Context, id string) error

	// AddLike records a like and returns the post's new like count.
	// It returns ErrNotFound when the post is missing and ErrDuplicate when already liked.
	AddLike(ctx context.Context, userID, postID string) (int64, error)
	// RemoveLike deletes a like and returns the post's new like count.
	// It returns ErrNotFound when no like exists.
	RemoveLike(ctx context.Context, userID, postID string) (int64, error)

	// AddComment stores a comment and bumps the post's comment count.
	// It returns ErrNotFound when the post is missing.
	AddComment(ctx context.Context, comment *models.Comment) error
	// ListComments returns a post's comments newest first.
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)

	// ReconcileCounters recomputes every post's counters from its likes and
	// comments and returns how many posts were corrected.
	ReconcileCounters(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store selected by cfg.DBDriver and prepares its schema.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		return NewSQLStore(db), nil
	case "mongo":
		return NewMongoStore(ctx, cfg.DatabaseURL, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}
