package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/marknest/internal/apperr"
	"github.com/starford/marknest/internal/filetree"
)

// FeedLimits bounds public feed pagination.
type FeedLimits struct {
	Default int
	Max     int
}

// PublicHandler serves the unauthenticated public feed.
type PublicHandler struct {
	svc    *filetree.Service
	limits FeedLimits
}

// NewPublicHandler creates a new PublicHandler.
func NewPublicHandler(svc *filetree.Service, limits FeedLimits) *PublicHandler {
	if limits.Default <= 0 {
		limits.Default = 20
	}
	if limits.Max < limits.Default {
		limits.Max = limits.Default
	}
	return &PublicHandler{svc: svc, limits: limits}
}

// page parses limit and offset, clamping limit to the configured maximum.
func (h *PublicHandler) page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = h.limits.Default
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
			return 0, 0, fmt.Errorf("limit must be a positive integer: %w", apperr.ErrInvalidArgument)
		}
	}
	limit = min(limit, h.limits.Max)
	if s := q.Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer: %w", apperr.ErrInvalidArgument)
		}
	}
	return limit, offset, nil
}

// ListNotes handles GET /api/public/notes.
//
//	@Summary		List public notes of all users, newest first
//	@Tags			public
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	FeedResponse
//	@Router			/public/notes [get]
func (h *PublicHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := h.page(r)
	if err != nil {
		writeError(w, "public feed", err)
		return
	}
	notes, err := h.svc.ListPublic(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "public feed", err)
		return
	}
	writeJSON(w, http.StatusOK, FeedResponse{Notes: feedItems(notes), Limit: limit, Offset: offset})
}

// ListUserNotes handles GET /api/public/users/{userID}/notes.
//
//	@Summary		List one user's public notes
//	@Tags			public
//	@Produce		json
//	@Param			userID	path		string	true	"Owner id"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	FeedResponse
//	@Failure		404		{object}	errResponse
//	@Router			/public/users/{userID}/notes [get]
func (h *PublicHandler) ListUserNotes(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := h.page(r)
	if err != nil {
		writeError(w, "user feed", err)
		return
	}
	notes, err := h.svc.ListPublicByOwner(r.Context(), chi.URLParam(r, "userID"), limit, offset)
	if err != nil {
		writeError(w, "user feed", err)
		return
	}
	writeJSON(w, http.StatusOK, FeedResponse{Notes: feedItems(notes), Limit: limit, Offset: offset})
}

// GetNote handles GET /api/public/notes/{id}/content.
//
//	@Summary		Read a public note
//	@Tags			public
//	@Produce		json
//	@Param			id	path		string	true	"File id"
//	@Success		200	{object}	PublicContent
//	@Failure		404	{object}	errResponse
//	@Router			/public/notes/{id}/content [get]
func (h *PublicHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.PublicNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "public note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}
