package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/milligram-be/internal/apperror"
	"github.com/isdelr/milligram-be/internal/auth"
	"github.com/isdelr/milligram-be/internal/services"
)

type LikeHandler struct {
	service services.LikeServiceProvider
}

func NewLikeHandler(service services.LikeServiceProvider) *LikeHandler {
	return &LikeHandler{service: service}
}

// Like answers a repeated like with 400 rather than 409.
func (h *LikeHandler) Like(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	count, err := h.service.Like(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		if apperror.Is(err, apperror.KindConflict) {
			writeErrorStatus(w, r, http.StatusBadRequest, err)
			return
		}
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, M{"message": "post liked", "likesCount": count})
}

func (h *LikeHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	count, err := h.service.Unlike(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, M{"message": "post unliked", "likesCount": count})
}
