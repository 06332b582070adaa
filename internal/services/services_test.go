package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/isdelr/milligram-be/internal/apperror"
	"github.com/isdelr/milligram-be/internal/database"
	"github.com/isdelr/milligram-be/internal/media"
	"github.com/isdelr/milligram-be/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

type fakeMedia struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleteErr error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{objects: map[string][]byte{}}
}

func (f *fakeMedia) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (media.Object, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return media.Object{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return media.Object{Key: key, URL: "https://cdn.test/" + key}, nil
}

func (f *fakeMedia) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

type recordedEvent struct {
	action  string
	payload interface{}
}

type fakePublisher struct {
	events []recordedEvent
}

func (p *fakePublisher) Publish(action string, payload interface{}) {
	p.events = append(p.events, recordedEvent{action, payload})
}

func (p *fakePublisher) actions() []string {
	var out []string
	for _, e := range p.events {
		out = append(out, e.action)
	}
	return out
}

type fixture struct {
	store    *database.SQLStore
	media    *fakeMedia
	events   *fakePublisher
	users    *UserService
	posts    *PostService
	likes    *LikeService
	comments *CommentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.New(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	store := database.NewSQLStore(db)
	f := &fixture{store: store, media: newFakeMedia(), events: &fakePublisher{}}
	f.users = NewUserService(store, nil)
	f.users.hashCost = bcrypt.MinCost
	f.posts = NewPostService(store, f.media, f.events, 1<<20)
	f.likes = NewLikeService(store, f.events)
	f.comments = NewCommentService(store, f.events)
	return f
}

func (f *fixture) register(t *testing.T, username string) models.User {
	t.Helper()
	user, err := f.users.Register(context.Background(), RegisterInput{
		Name: username, Username: username, Email: username + "@x.com", Password: "pw-" + username,
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) post(t *testing.T, author models.User, caption string) models.Post {
	t.Helper()
	post, err := f.posts.CreatePost(context.Background(), author,
		&Upload{Filename: "a.png", Body: bytes.NewReader(pngBytes), Size: int64(len(pngBytes))}, caption)
	require.NoError(t, err)
	return post
}

func TestRegisterNormalizesAndHidesHash(t *testing.T) {
	f := newFixture(t)
	user, err := f.users.Register(context.Background(), RegisterInput{
		Name: " Alice ", Username: "Alice", Email: "ALICE@X.com", Password: "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@x.com", user.Email)
	assert.Equal(t, "Alice", user.Name)
	assert.Empty(t, user.PasswordHash)
	assert.Nil(t, user.AvatarURL)

	stored, err := f.store.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret")))
}

func TestRegisterValidationAndConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	_, err := f.users.Register(ctx, RegisterInput{Name: "A", Username: "a", Email: "", Password: "x"})
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	for _, in := range []RegisterInput{
		{Name: "A", Username: "ALICE", Email: "new@x.com", Password: "x"},
		{Name: "A", Username: "newbie", Email: "Alice@X.COM", Password: "x"},
	} {
		_, err := f.users.Register(ctx, in)
		assert.True(t, apperror.Is(err, apperror.KindConflict), in.Username)
	}

	_, err = f.store.GetUserByUsername(ctx, "newbie")
	assert.ErrorIs(t, err, database.ErrNotFound, "conflicting registration must not create a record")
}

func TestAuthenticateUsesUniformError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	user, err := f.users.Authenticate(ctx, "ALICE@x.com", "pw-alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	assert.Empty(t, user.PasswordHash)

	_, wrongPassword := f.users.Authenticate(ctx, "alice@x.com", "nope")
	_, unknownEmail := f.users.Authenticate(ctx, "ghost@x.com", "nope")
	require.Error(t, wrongPassword)
	require.Error(t, unknownEmail)
	assert.Equal(t, apperror.KindAuth, apperror.KindOf(wrongPassword))
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())

	_, err = f.users.Authenticate(ctx, "", "x")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

type mapCache struct {
	hits  int
	users map[string]models.User
}

func (c *mapCache) GetProfile(ctx context.Context, username string) (models.User, bool) {
	u, ok := c.users[username]
	if ok {
		c.hits++
	}
	return u, ok
}

func (c *mapCache) SetProfile(ctx context.Context, user models.User) {
	c.users[user.Username] = user
}

func TestGetProfileUsesCache(t *testing.T) {
	f := newFixture(t)
	cache := &mapCache{users: map[string]models.User{}}
	f.users.cache = cache
	f.register(t, "alice")

	user, err := f.users.GetProfile(context.Background(), "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.PasswordHash)
	assert.Equal(t, 0, cache.hits)

	_, err = f.users.GetProfile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	_, err = f.users.GetProfile(context.Background(), "ghost")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	post := f.post(t, alice, "  <b>sunset</b> at the beach ")
	assert.Equal(t, "sunset at the beach", post.Caption)
	require.NotNil(t, post.Author)
	assert.Equal(t, "alice", post.Author.Username)
	assert.Contains(t, post.ImageKey, "posts/"+alice.ID+"/")
	assert.Contains(t, post.ImageKey, ".png")
	assert.Equal(t, pngBytes, f.media.objects[post.ImageKey])
	assert.Equal(t, []string{EventPostCreated}, f.events.actions())

	_, err := f.posts.CreatePost(ctx, alice, nil, "x")
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	text := []byte("just some text, not an image")
	_, err = f.posts.CreatePost(ctx, alice, &Upload{Body: bytes.NewReader(text), Size: int64(len(text))}, "")
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	_, err = f.posts.CreatePost(ctx, alice, &Upload{Body: bytes.NewReader(pngBytes), Size: 2 << 20}, "")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	assert.Len(t, f.media.objects, 1)
}

func TestFeedPagingAndAuthors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	for i := 0; i < 3; i++ {
		f.post(t, alice, fmt.Sprintf("alice %d", i))
		f.post(t, bob, fmt.Sprintf("bob %d", i))
	}

	feed, err := f.posts.Feed(ctx, 1, 4)
	require.NoError(t, err)
	require.Len(t, feed, 4)
	assert.Equal(t, "bob 2", feed[0].Caption)
	assert.Equal(t, "bob", feed[0].Author.Username)
	assert.Equal(t, "alice", feed[1].Author.Username)

	feed, err = f.posts.Feed(ctx, 2, 4)
	require.NoError(t, err)
	assert.Len(t, feed, 2)

	feed, err = f.posts.Feed(ctx, 0, -1)
	require.NoError(t, err)
	assert.Len(t, feed, 6)

	byBob, err := f.posts.PostsByUsername(ctx, "BOB")
	require.NoError(t, err)
	require.Len(t, byBob, 3)
	assert.Equal(t, "bob 2", byBob[0].Caption)

	_, err = f.posts.PostsByUsername(ctx, "ghost")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestNormalizePage(t *testing.T) {
	page, limit := NormalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 10, limit)

	page, limit = NormalizePage(3, 500)
	assert.Equal(t, 3, page)
	assert.Equal(t, MaxLimit, limit)
}

func TestLikeUnlike(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	post := f.post(t, alice, "")

	count, err := f.likes.Like(ctx, bob, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = f.likes.Like(ctx, bob, post.ID)
	assert.True(t, apperror.Is(err, apperror.KindConflict))

	count, err = f.likes.Unlike(ctx, bob, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	_, err = f.likes.Unlike(ctx, bob, post.ID)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	got, err := f.store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.LikesCount)

	_, err = f.likes.Like(ctx, bob, "missing")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	_, err = f.likes.Unlike(ctx, bob, "missing")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	assert.Equal(t, []string{EventPostCreated, EventPostLiked, EventPostUnliked}, f.events.actions())
}

func TestCommentsCountAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	post := f.post(t, alice, "")

	const n = 5
	for i := 0; i < n; i++ {
		author := alice
		if i%2 == 0 {
			author = bob
		}
		c, err := f.comments.AddComment(ctx, author, post.ID, fmt.Sprintf("  comment %d  ", i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("comment %d", i), c.Text)
		assert.Equal(t, author.Username, c.Author.Username)
	}

	_, err := f.comments.AddComment(ctx, bob, post.ID, "   ")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	_, err = f.comments.AddComment(ctx, bob, post.ID, "<script></script>")
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	_, err = f.comments.AddComment(ctx, bob, "missing", "hello")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	got, err := f.store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.CommentsCount)

	comments, err := f.comments.ListComments(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, comments, n)
	for i := 1; i < n; i++ {
		assert.False(t, comments[i].CreatedAt.After(comments[i-1].CreatedAt), "comments must be newest first")
	}
	assert.Equal(t, "comment 4", comments[0].Text)
	assert.Equal(t, "bob", comments[0].Author.Username)

	none, err := f.comments.ListComments(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	post := f.post(t, alice, "")

	_, err := f.likes.Like(ctx, bob, post.ID)
	require.NoError(t, err)
	_, err = f.comments.AddComment(ctx, bob, post.ID, "nice")
	require.NoError(t, err)

	err = f.posts.DeletePost(ctx, bob, post.ID)
	assert.True(t, apperror.Is(err, apperror.KindForbidden))

	f.media.deleteErr = errors.New("bucket unavailable")
	err = f.posts.DeletePost(ctx, alice, post.ID)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
	_, err = f.store.GetPost(ctx, post.ID)
	require.NoError(t, err, "a failed media delete must leave the post in place")

	f.media.deleteErr = nil
	require.NoError(t, f.posts.DeletePost(ctx, alice, post.ID))
	assert.Empty(t, f.media.objects)

	_, err = f.store.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	comments, err := f.comments.ListComments(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)
	_, err = f.likes.Unlike(ctx, bob, post.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	err = f.posts.DeletePost(ctx, alice, post.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "hi it's me", cleanText("  <b>hi</b> it's me  "))
	assert.Equal(t, "", cleanText("<img src=x onerror=alert(1)>"))
}
