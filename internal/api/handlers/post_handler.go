package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/milligram-be/internal/apperror"
	"github.com/isdelr/milligram-be/internal/auth"
	"github.com/isdelr/milligram-be/internal/services"
)

// multipartOverhead allows for form fields and boundaries on top of the image itself.
const multipartOverhead = 1 << 20

// PostHandler handles HTTP requests for posts and the feed.
type PostHandler struct {
	service        services.PostServiceProvider
	maxUploadBytes int64
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(service services.PostServiceProvider, maxUploadBytes int64) *PostHandler {
	return &PostHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Create handles a multipart upload with an "image" file and optional "caption".
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			WriteError(w, r, apperror.Validation("image is too large!"))
		case errors.Is(err, http.ErrNotMultipart):
			WriteError(w, r, apperror.Validation("image is required!"))
		default:
			WriteError(w, r, apperror.Validation("invalid upload"))
		}
		return
	}
	defer r.MultipartForm.RemoveAll()

	var upload *services.Upload
	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		upload = &services.Upload{Filename: header.Filename, Body: file, Size: header.Size}
	}

	post, err := h.service.CreatePost(r.Context(), user, upload, r.FormValue("caption"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, M{"post": post})
}

// Feed returns a page of posts, newest first.
func (h *PostHandler) Feed(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, limit = services.NormalizePage(page, limit)

	posts, err := h.service.Feed(r.Context(), page, limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, M{"posts": posts, "page": page, "limit": limit})
}

// Delete removes the caller's own post together with its comments and likes.
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	if err := h.service.DeletePost(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, M{"message": "post deleted with comments and likes"})
}

// UserPosts lists a user's posts, newest first.
func (h *PostHandler) UserPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.PostsByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, M{"posts": posts})
}
