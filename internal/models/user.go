package models

import "time"

// User represents a registered account.
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Username     string    `json:"username" bson:"username"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"passwordHash"` // Never expose this to the client
	AvatarURL    *string   `json:"avatarUrl" bson:"avatarUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// Author is the public projection of a User embedded in posts and comments.
type Author struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
}

// Author returns the public projection of u.
func (u User) Author() *Author {
	return &Author{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
	}
}

// Sanitized returns a copy of u without the password hash.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}
