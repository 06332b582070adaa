package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/isdelr/milligram-be/internal/api"
	"github.com/isdelr/milligram-be/internal/auth"
	"github.com/isdelr/milligram-be/internal/config"
	"github.com/isdelr/milligram-be/internal/database"
	"github.com/isdelr/milligram-be/internal/media"
	"github.com/isdelr/milligram-be/internal/models"
	"github.com/isdelr/milligram-be/internal/monitoring"
	"github.com/isdelr/milligram-be/internal/services"
	"github.com/isdelr/milligram-be/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type stubLiker struct {
	likeCount int64
	err       error
}

func (s *stubLiker) Like(ctx context.Context, postID string) (int64, error) {
	return s.likeCount, s.err
}

func (s *stubLiker) Unlike(ctx context.Context, postID string) (int64, error) {
	return s.likeCount, s.err
}

func TestToggleLikeConfirmsServerCount(t *testing.T) {
	liker := &stubLiker{likeCount: 8}
	view := NewFeedView(liker, []models.Post{{ID: "p1", LikesCount: 6}}, nil)

	require.NoError(t, view.ToggleLike(context.Background(), "p1"))

	st, ok := view.Get("p1")
	require.True(t, ok)
	assert.True(t, st.Liked)
	assert.EqualValues(t, 8, st.Post.LikesCount)
}

func TestToggleLikeRollsBackOnFailure(t *testing.T) {
	liker := &stubLiker{err: &APIError{Status: http.StatusBadRequest, Message: "post already liked!"}}
	view := NewFeedView(liker, []models.Post{{ID: "p1", LikesCount: 3}, {ID: "p2", LikesCount: 1}}, map[string]bool{"p2": true})

	err := view.ToggleLike(context.Background(), "p1")
	require.Error(t, err)
	st, _ := view.Get("p1")
	assert.False(t, st.Liked)
	assert.EqualValues(t, 3, st.Post.LikesCount)

	require.Error(t, view.ToggleLike(context.Background(), "p2"))
	st, _ = view.Get("p2")
	assert.True(t, st.Liked)
	assert.EqualValues(t, 1, st.Post.LikesCount)

	assert.Error(t, view.ToggleLike(context.Background(), "missing"))
}

func TestToggleLikeAgainstFailingServer(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	view := NewFeedView(c, []models.Post{{ID: "p1", LikesCount: 2}}, nil)

	err = view.ToggleLike(context.Background(), "p1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, FallbackMessage, apiErr.Message)

	st, _ := view.Get("p1")
	assert.False(t, st.Liked)
	assert.EqualValues(t, 2, st.Post.LikesCount)
	assert.EqualValues(t, 1, calls.Load())
}

func TestErrorsCarryServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"message":"email or username already in use!!"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	_, err = c.Register(context.Background(), RegisterRequest{Name: "a", Username: "a", Email: "a@x.com", Password: "pw"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "email or username already in use!!", apiErr.Message)
}

func TestUnreachableServerUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)
	_, err = c.Feed(context.Background(), 1, 10)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Zero(t, apiErr.Status)
	assert.Equal(t, FallbackMessage, apiErr.Message)
	assert.NotNil(t, apiErr.Unwrap())
}

func TestCreatePostRejectsNonImagesLocally(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.CreatePost(context.Background(), "notes.txt", strings.NewReader("plain text"), "")
	assert.EqualError(t, err, "file must be an image!")

	_, err = c.CreatePost(context.Background(), "empty.png", strings.NewReader(""), "")
	assert.EqualError(t, err, "image is required!")

	assert.Zero(t, calls.Load())
}

func newAPIServer(t *testing.T) string {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:      "client-test-secret",
		AllowedOrigins: []string{"http://localhost:5173"},
		MediaBaseURL:   "/uploads",
		MaxUploadMB:    1,
		AuthRateLimit:  50,
	}

	db, err := database.New(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })
	store := database.NewSQLStore(db)

	disk, err := media.NewDiskStore(t.TempDir(), cfg.MediaBaseURL)
	require.NoError(t, err)
	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	router := api.NewRouter(api.Deps{
		Config:   cfg,
		Issuer:   auth.NewTokenIssuer(cfg.JWTSecret),
		Users:    services.NewUserService(store, nil),
		Posts:    services.NewPostService(store, disk, hub, cfg.MaxUploadBytes()),
		Likes:    services.NewLikeService(store, hub),
		Comments: services.NewCommentService(store, hub),
		Hub:      hub,
		Store:    store,
		Stats:    monitoring.NewStatsCollector(),
		Media:    disk.Handler(),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestClientAgainstServer(t *testing.T) {
	base := newAPIServer(t)
	ctx := context.Background()

	alice, err := New(base)
	require.NoError(t, err)
	bob, err := New(base)
	require.NoError(t, err)

	_, err = alice.Register(ctx, RegisterRequest{Name: "Alice", Username: "alice", Email: "alice@x.com", Password: "pw-alice"})
	require.NoError(t, err)
	_, err = bob.Register(ctx, RegisterRequest{Name: "Bob", Username: "bob", Email: "bob@x.com", Password: "pw-bob"})
	require.NoError(t, err)

	me, err := alice.Login(ctx, "alice@x.com", "pw-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)

	post, err := alice.CreatePost(ctx, "photo.png", bytes.NewReader(pngBytes), "hello")
	require.NoError(t, err)
	require.NotNil(t, post.Author)
	assert.Equal(t, "alice", post.Author.Username)

	feed, err := bob.Feed(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, feed.Posts, 1)
	assert.Equal(t, 1, feed.Page)

	view := NewFeedView(bob, feed.Posts, nil)
	require.NoError(t, view.ToggleLike(ctx, post.ID))
	st, _ := view.Get(post.ID)
	assert.EqualValues(t, 1, st.Post.LikesCount)

	_, err = bob.Like(ctx, post.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "post already liked!", apiErr.Message)

	require.NoError(t, view.ToggleLike(ctx, post.ID))
	st, _ = view.Get(post.ID)
	assert.False(t, st.Liked)
	assert.EqualValues(t, 0, st.Post.LikesCount)

	comment, err := bob.AddComment(ctx, post.ID, "  nice  ")
	require.NoError(t, err)
	assert.Equal(t, "nice", comment.Text)
	comments, err := alice.Comments(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)

	profile, err := bob.Profile(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
	posts, err := bob.UserPosts(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	require.Error(t, bob.DeletePost(ctx, post.ID))
	require.NoError(t, alice.DeletePost(ctx, post.ID))
	feed, err = bob.Feed(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, feed.Posts)

	require.NoError(t, alice.Logout(ctx))
	_, err = alice.Me(ctx)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}
