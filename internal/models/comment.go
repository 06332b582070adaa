package models

import "time"

type Comment struct {
	ID        string    `json:"id" bson:"_id"`
	PostID    string    `json:"postId" bson:"postId"`
	AuthorID  string    `json:"-" bson:"authorId"`
	Author    *Author   `json:"author" bson:"-"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
