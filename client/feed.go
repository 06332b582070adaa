package client

import (
	"context"
	"sync"

	"github.com/isdelr/milligram-be/internal/models"
)

// Liker is the part of Client a FeedView needs.
type Liker interface {
	Like(ctx context.Context, postID string) (int64, error)
	Unlike(ctx context.Context, postID string) (int64, error)
}

// PostState is a post as shown to the current user.
type PostState struct {
	Post  models.Post
	Liked bool
}

// FeedView holds displayed posts and applies like toggles optimistically.
type FeedView struct {
	api Liker

	mu    sync.Mutex
	order []string
	posts map[string]*PostState
}

// NewFeedView builds a view over posts. liked marks posts the current user already likes.
func NewFeedView(api Liker, posts []models.Post, liked map[string]bool) *FeedView {
	v := &FeedView{api: api, posts: make(map[string]*PostState, len(posts))}
	for _, p := range posts {
		if _, dup := v.posts[p.ID]; dup {
			continue
		}
		v.order = append(v.order, p.ID)
		v.posts[p.ID] = &PostState{Post: p, Liked: liked[p.ID]}
	}
	return v
}

// Get returns a copy of the state of one post.
func (v *FeedView) Get(postID string) (PostState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.posts[postID]
	if !ok {
		return PostState{}, false
	}
	return *st, true
}

// Posts returns the displayed posts in feed order.
func (v *FeedView) Posts() []PostState {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]PostState, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, *v.posts[id])
	}
	return out
}

// ToggleLike flips the liked flag and count at once, then confirms with the
// server. On failure the previous flag and count are restored.
func (v *FeedView) ToggleLike(ctx context.Context, postID string) error {
	v.mu.Lock()
	st, ok := v.posts[postID]
	if !ok {
		v.mu.Unlock()
		return &APIError{Message: "post not found"}
	}
	prev := *st
	st.Liked = !prev.Liked
	if st.Liked {
		st.Post.LikesCount++
	} else if st.Post.LikesCount > 0 {
		st.Post.LikesCount--
	}
	v.mu.Unlock()

	var (
		count int64
		err   error
	)
	if prev.Liked {
		count, err = v.api.Unlike(ctx, postID)
	} else {
		count, err = v.api.Like(ctx, postID)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		st.Liked = prev.Liked
		st.Post.LikesCount = prev.Post.LikesCount
		return err
	}
	st.Post.LikesCount = count
	return nil
}
