package models

import "time"

// Post is an uploaded image with its caption and denormalized counters.
type Post struct {
	ID            string    `json:"id" bson:"_id"`
	AuthorID      string    `json:"-" bson:"authorId"`
	Author        *Author   `json:"author" bson:"-"`
	ImageURL      string    `json:"imageUrl" bson:"imageUrl"`
	ImageKey      string    `json:"-" bson:"imageKey"`
	Caption       string    `json:"caption" bson:"caption"`
	LikesCount    int64     `json:"likesCount" bson:"likesCount"`
	CommentsCount int64     `json:"commentsCount" bson:"commentsCount"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
}

// Like records that a user liked a post. At most one exists per (UserID, PostID).
type Like struct {
	UserID    string    `json:"userId" bson:"userId"`
	PostID    string    `json:"postId" bson:"postId"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
