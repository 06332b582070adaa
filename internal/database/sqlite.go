package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/milligram-be/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// New opens a SQLite database. The pool is limited to a single connection so
// that writers serialize instead of failing with SQLITE_BUSY.
func New(dataSourceName string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(dataSourceName, "?") {
		sep = "&"
	}
	dsn := dataSourceName + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		username TEXT NOT NULL UNIQUE COLLATE NOCASE,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		avatar_url TEXT,
		created_at INTEGER NOT NULL -- unix nanoseconds
	);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT NOT NULL PRIMARY KEY,
		author_id TEXT NOT NULL REFERENCES users(id),
		image_url TEXT NOT NULL,
		image_key TEXT NOT NULL DEFAULT '',
		caption TEXT NOT NULL DEFAULT '',
		likes_count INTEGER NOT NULL DEFAULT 0,
		comments_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS likes (
		user_id TEXT NOT NULL REFERENCES users(id),
		post_id TEXT NOT NULL REFERENCES posts(id),
		created_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, post_id)
	);
	CREATE INDEX IF NOT EXISTS idx_likes_post ON likes(post_id);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT NOT NULL PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES posts(id),
		author_id TEXT NOT NULL REFERENCES users(id),
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id, created_at DESC);
	`
	_, err := db.Exec(sqlStmt)
	return err
}

const (
	userColumns    = "id, name, username, email, password_hash, avatar_url, created_at"
	postColumns    = "id, author_id, image_url, image_key, caption, likes_count, comments_count, created_at"
	commentColumns = "id, post_id, author_id, text, created_at"
)

// SQLStore implements Store on top of database/sql and SQLite.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore over an already migrated database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		user      models.User
		avatar    sql.NullString
		createdAt int64
	)
	if err := row.Scan(&user.ID, &user.Name, &user.Username, &user.Email, &user.PasswordHash, &avatar, &createdAt); err != nil {
		return models.User{}, err
	}
	if avatar.Valid {
		user.AvatarURL = &avatar.String
	}
	user.CreatedAt = fromNanos(createdAt)
	return user, nil
}

func scanPost(row rowScanner) (models.Post, error) {
	var (
		post      models.Post
		createdAt int64
	)
	err := row.Scan(&post.ID, &post.AuthorID, &post.ImageURL, &post.ImageKey, &post.Caption,
		&post.LikesCount, &post.CommentsCount, &createdAt)
	if err != nil {
		return models.Post{}, err
	}
	post.CreatedAt = fromNanos(createdAt)
	return post, nil
}

func scanComment(row rowScanner) (models.Comment, error) {
	var (
		comment   models.Comment
		createdAt int64
	)
	if err := row.Scan(&comment.ID, &comment.PostID, &comment.AuthorID, &comment.Text, &createdAt); err != nil {
		return models.Comment{}, err
	}
	comment.CreatedAt = fromNanos(createdAt)
	return comment, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users(id, name, username, email, password_hash, avatar_url, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Name, user.Username, user.Email, user.PasswordHash, user.AvatarURL, user.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLStore) getUser(ctx context.Context, column, value string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+column+" = ?", value)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}
	return user, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = ? OR email = ?)", username, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (s *SQLStore) FindUsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")

	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users[user.ID] = user
	}
	return users, rows.Err()
}

func (s *SQLStore) CreatePost(ctx context.Context, post *models.Post) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO posts("+postColumns+") VALUES(?, ?, ?, ?, ?, ?, ?, ?)",
		post.ID, post.AuthorID, post.ImageURL, post.ImageKey, post.Caption,
		post.LikesCount, post.CommentsCount, post.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *SQLStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	post, err := scanPost(s.db.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("select post: %w", err)
	}
	return post, nil
}

func (s *SQLStore) queryPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (s *SQLStore) ListPosts(ctx context.Context, skip, limit int) ([]models.Post, error) {
	return s.queryPosts(ctx,
		"SELECT "+postColumns+" FROM posts ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?", limit, skip)
}

func (s *SQLStore) ListPostsByAuthor(ctx context.Context, authorID string) ([]models.Post, error) {
	return s.queryPosts(ctx,
		"SELECT "+postColumns+" FROM posts WHERE author_id = ? ORDER BY created_at DESC, rowid DESC", authorID)
}

func (s *SQLStore) DeletePostCascade(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE post_id = ?", id); err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM likes WHERE post_id = ?", id); err != nil {
			return fmt.Errorf("delete likes: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLStore) AddLike(ctx context.Context, userID, postID string) (int64, error) {
	var count int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"UPDATE posts SET likes_count = likes_count + 1 WHERE id = ? RETURNING likes_count", postID).Scan(&count)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("increment likes: %w", err)
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO likes(user_id, post_id, created_at) VALUES(?, ?, ?)",
			userID, postID, time.Now().UnixNano())
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert like: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLStore) RemoveLike(ctx context.Context, userID, postID string) (int64, error) {
	var count int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM likes WHERE user_id = ? AND post_id = ?", userID, postID)
		if err != nil {
			return fmt.Errorf("delete like: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		err = tx.QueryRowContext(ctx,
			"UPDATE posts SET likes_count = likes_count - 1 WHERE id = ? RETURNING likes_count", postID).Scan(&count)
		if err != nil {
			return fmt.Errorf("decrement likes: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLStore) AddComment(ctx context.Context, comment *models.Comment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE posts SET comments_count = comments_count + 1 WHERE id = ?", comment.PostID)
		if err != nil {
			return fmt.Errorf("increment comments: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO comments("+commentColumns+") VALUES(?, ?, ?, ?, ?)",
			comment.ID, comment.PostID, comment.AuthorID, comment.Text, comment.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+commentColumns+" FROM comments WHERE post_id = ? ORDER BY created_at DESC, rowid DESC", postID)
	if err != nil {
		return nil, fmt.Errorf("select comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

func (s *SQLStore) ReconcileCounters(ctx context.Context) (int, error) {
	const likes = "(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id)"
	const comments = "(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id)"

	res, err := s.db.ExecContext(ctx,
		"UPDATE posts SET likes_count = "+likes+", comments_count = "+comments+
			" WHERE likes_count != "+likes+" OR comments_count != "+comments)
	if err != nil {
		return 0, fmt.Errorf("reconcile counters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
