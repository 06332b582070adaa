package services

import (
	"context"

	"github.com/isdelr/milligram-be/internal/database"
	"github.com/isdelr/milligram-be/internal/models"
)

// authorsByID loads the public author projection for each distinct id in one query.
func authorsByID(ctx context.Context, store database.Store, ids []string) (map[string]*models.Author, error) {
	seen := make(map[string]bool, len(ids))
	distinct := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}

	users, err := store.FindUsersByIDs(ctx, distinct)
	if err != nil {
		return nil, err
	}
	authors := make(map[string]*models.Author, len(users))
	for id, user := range users {
		authors[id] = user.Author()
	}
	return authors, nil
}

func attachPostAuthors(ctx context.Context, store database.Store, posts []models.Post) error {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.AuthorID
	}
	authors, err := authorsByID(ctx, store, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		posts[i].Author = authors[posts[i].AuthorID]
	}
	return nil
}

func attachCommentAuthors(ctx context.Context, store database.Store, comments []models.Comment) error {
	ids := make([]string, len(comments))
	for i, c := range comments {
		ids[i] = c.AuthorID
	}
	authors, err := authorsByID(ctx, store, ids)
	if err != nil {
		return err
	}
	for i := range comments {
		comments[i].Author = authors[comments[i].AuthorID]
	}
	return nil
}
