package services

// Live event actions published after successful writes.
const (
	EventPostCreated    = "post.created"
	EventPostDeleted    = "post.deleted"
	EventPostLiked      = "post.liked"
	EventPostUnliked    = "post.unliked"
	EventCommentCreated = "comment.created"
)

// Publisher fans out events to live subscribers. Publish must not block.
type Publisher interface {
	Publish(action string, payload interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// LikeEvent is the payload of post.liked and post.unliked.
type LikeEvent struct {
	PostID     string `json:"postId"`
	UserID     string `json:"userId"`
	LikesCount int64  `json:"likesCount"`
}
