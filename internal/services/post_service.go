package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/isdelr/milligram-be/internal/apperror"
	"github.com/isdelr/milligram-be/internal/database"
	"github.com/isdelr/milligram-be/internal/media"
	"github.com/isdelr/milligram-be/internal/metrics"
	"github.com/isdelr/milligram-be/internal/models"
	"github.com/rs/zerolog/log"
)

// Feed paging defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// NormalizePage applies the feed defaults to out-of-range paging values.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// Upload is an image received from a client.
type Upload struct {
	Filename string
	Body     io.ReadSeeker
	Size     int64
}

// PostServiceProvider defines the interface for post services.
type PostServiceProvider interface {
	CreatePost(ctx context.Context, author models.User, upload *Upload, caption string) (models.Post, error)
	Feed(ctx context.Context, page, limit int) ([]models.Post, error)
	PostsByUsername(ctx context.Context, username string) ([]models.Post, error)
	DeletePost(ctx context.Context, requester models.User, postID string) error
}

// PostService provides business logic for posts and the feed.
type PostService struct {
	store          database.Store
	media          media.Store
	events         Publisher
	maxUploadBytes int64
}

// NewPostService creates a new PostService. events may be nil.
func NewPostService(store database.Store, mediaStore media.Store, events Publisher, maxUploadBytes int64) *PostService {
	return &PostService{
		store:          store,
		media:          mediaStore,
		events:         publisherOrNop(events),
		maxUploadBytes: maxUploadBytes,
	}
}

// CreatePost stores the image through the media store and then records the post.
func (s *PostService) CreatePost(ctx context.Context, author models.User, upload *Upload, caption string) (models.Post, error) {
	if upload == nil || upload.Body == nil {
		return models.Post{}, apperror.Validation("image is required!")
	}
	if s.maxUploadBytes > 0 && upload.Size > s.maxUploadBytes {
		return models.Post{}, apperror.Validation("image is too large!")
	}

	mtype, err := mimetype.DetectReader(upload.Body)
	if err != nil {
		return models.Post{}, apperror.Internal("failed to read upload", err)
	}
	if !strings.HasPrefix(mtype.String(), "image/") {
		return models.Post{}, apperror.Validation("file must be an image!")
	}
	if _, err := upload.Body.Seek(0, io.SeekStart); err != nil {
		return models.Post{}, apperror.Internal("failed to rewind upload", err)
	}

	key := fmt.Sprintf("posts/%s/%s%s", author.ID, uuid.New().String(), mtype.Extension())
	obj, err := s.media.Upload(ctx, key, upload.Body, upload.Size, mtype.String())
	if err != nil {
		return models.Post{}, apperror.Internal("failed to upload image", err)
	}

	post := models.Post{
		ID:        uuid.New().String(),
		AuthorID:  author.ID,
		ImageURL:  obj.URL,
		ImageKey:  obj.Key,
		Caption:   cleanText(caption),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreatePost(ctx, &post); err != nil {
		if delErr := s.media.Delete(context.WithoutCancel(ctx), obj.Key); delErr != nil {
			log.Error().Err(delErr).Str("key", obj.Key).Msg("Failed to remove orphaned upload")
		}
		return models.Post{}, apperror.Internal("failed to create post", err)
	}

	post.Author = author.Author()
	metrics.PostsCreated.Inc()
	s.events.Publish(EventPostCreated, post)
	return post, nil
}

// Feed returns a page of posts, newest first, with authors populated.
func (s *PostService) Feed(ctx context.Context, page, limit int) ([]models.Post, error) {
	page, limit = NormalizePage(page, limit)
	posts, err := s.store.ListPosts(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, apperror.Internal("failed to load feed", err)
	}
	if err := attachPostAuthors(ctx, s.store, posts); err != nil {
		return nil, apperror.Internal("failed to load post authors", err)
	}
	return posts, nil
}

// PostsByUsername returns a user's posts, newest first.
func (s *PostService) PostsByUsername(ctx context.Context, username string) ([]models.Post, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperror.NotFound("user not found")
		}
		return nil, apperror.Internal("failed to load user", err)
	}

	posts, err := s.store.ListPostsByAuthor(ctx, user.ID)
	if err != nil {
		return nil, apperror.Internal("failed to load posts", err)
	}
	if err := attachPostAuthors(ctx, s.store, posts); err != nil {
		return nil, apperror.Internal("failed to load post authors", err)
	}
	return posts, nil
}

// DeletePost removes the post's image, then the post with its comments and likes.
func (s *PostService) DeletePost(ctx context.Context, requester models.User, postID string) error {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperror.NotFound("post not found")
		}
		return apperror.Internal("failed to load post", err)
	}
	if post.AuthorID != requester.ID {
		return apperror.Forbidden("not authorized")
	}

	if post.ImageKey != "" {
		if err := s.media.Delete(ctx, post.ImageKey); err != nil {
			return apperror.Internal("failed to delete image", err)
		}
	}

	if err := s.store.DeletePostCascade(ctx, post.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return apperror.NotFound("post not found")
		}
		return apperror.Internal("failed to delete post", err)
	}

	metrics.PostsDeleted.Inc()
	s.events.Publish(EventPostDeleted, map[string]string{"id": post.ID})
	return nil
}
