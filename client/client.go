// Package client is a Go client for the milligram HTTP API. It keeps the
// session cookie in a cookie jar so calls after Register or Login are
// authenticated.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/isdelr/milligram-be/internal/models"
)

// FallbackMessage is reported when the server gives no usable error message.
const FallbackMessage = "something went wrong"

// APIError is returned for every failed call. Status is 0 when no response was received.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Client talks to a milligram server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client with its own cookie jar.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return NewWithHTTPClient(baseURL, &http.Client{Jar: jar, Timeout: 30 * time.Second}), nil
}

// NewWithHTTPClient uses hc as is. hc needs a cookie jar for cookie sessions.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// RegisterRequest is the body of a registration.
type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FeedPage is one page of the global feed.
type FeedPage struct {
	Posts []models.Post `json:"posts"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type userEnvelope struct {
	User models.User `json:"user"`
}

type postEnvelope struct {
	Post models.Post `json:"post"`
}

type postsEnvelope struct {
	Posts []models.Post `json:"posts"`
}

type commentEnvelope struct {
	Comment models.Comment `json:"comment"`
}

type commentsEnvelope struct {
	Comments []models.Comment `json:"comments"`
}

type likeResponse struct {
	Message    string `json:"message"`
	LikesCount int64  `json:"likesCount"`
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &APIError{Message: FallbackMessage, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Message: FallbackMessage, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return &APIError{Status: resp.StatusCode, Message: FallbackMessage, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var msg struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &msg) != nil || msg.Message == "" {
			msg.Message = FallbackMessage
		}
		return &APIError{Status: resp.StatusCode, Message: msg.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Status: resp.StatusCode, Message: FallbackMessage, Err: err}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &APIError{Message: FallbackMessage, Err: err}
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, method, path, body, "application/json", out)
}

func (c *Client) Register(ctx context.Context, in RegisterRequest) (models.User, error) {
	var env userEnvelope
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/register", in, &env)
	return env.User, err
}

func (c *Client) Login(ctx context.Context, email, password string) (models.User, error) {
	var env userEnvelope
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &env)
	return env.User, err
}

// Me returns the user of the current session.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	var env userEnvelope
	err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &env)
	return env.User, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// CreatePost uploads image with caption. Files that do not look like images
// are rejected before anything is sent.
func (c *Client) CreatePost(ctx context.Context, filename string, image io.Reader, caption string) (models.Post, error) {
	data, err := io.ReadAll(image)
	if err != nil {
		return models.Post{}, &APIError{Message: FallbackMessage, Err: err}
	}
	if len(data) == 0 {
		return models.Post{}, &APIError{Message: "image is required!"}
	}
	if !strings.HasPrefix(mimetype.Detect(data).String(), "image/") {
		return models.Post{}, &APIError{Message: "file must be an image!"}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("caption", caption); err != nil {
		return models.Post{}, &APIError{Message: FallbackMessage, Err: err}
	}
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return models.Post{}, &APIError{Message: FallbackMessage, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return models.Post{}, &APIError{Message: FallbackMessage, Err: err}
	}
	if err := mw.Close(); err != nil {
		return models.Post{}, &APIError{Message: FallbackMessage, Err: err}
	}

	var env postEnvelope
	err = c.do(ctx, http.MethodPost, "/api/posts", &buf, mw.FormDataContentType(), &env)
	return env.Post, err
}

// Feed fetches a page of the global feed. Zero values use the server defaults.
func (c *Client) Feed(ctx context.Context, page, limit int) (FeedPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/posts"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out FeedPage
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Like likes a post and returns its new like count.
func (c *Client) Like(ctx context.Context, postID string) (int64, error) {
	var out likeResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/likes", nil, &out)
	return out.LikesCount, err
}

// Unlike removes the caller's like and returns the new like count.
func (c *Client) Unlike(ctx context.Context, postID string) (int64, error) {
	var out likeResponse
	err := c.doJSON(ctx, http.MethodDelete, "/api/posts/"+url.PathEscape(postID)+"/likes", nil, &out)
	return out.LikesCount, err
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/posts/"+url.PathEscape(postID), nil, nil)
}

func (c *Client) AddComment(ctx context.Context, postID, text string) (models.Comment, error) {
	var env commentEnvelope
	err := c.doJSON(ctx, http.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/comments", map[string]string{"text": text}, &env)
	return env.Comment, err
}

// Comments lists a post's comments, newest first.
func (c *Client) Comments(ctx context.Context, postID string) ([]models.Comment, error) {
	var env commentsEnvelope
	err := c.doJSON(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(postID)+"/comments", nil, &env)
	return env.Comments, err
}

func (c *Client) Profile(ctx context.Context, username string) (models.User, error) {
	var env userEnvelope
	err := c.doJSON(ctx, http.MethodGet, "/api/users/"+url.PathEscape(username), nil, &env)
	return env.User, err
}

func (c *Client) UserPosts(ctx context.Context, username string) ([]models.Post, error) {
	var env postsEnvelope
	err := c.doJSON(ctx, http.MethodGet, "/api/users/"+url.PathEscape(username)+"/posts", nil, &env)
	return env.Posts, err
}
