package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/marknest/internal/apperr"
	"github.com/starford/marknest/internal/auth"
	"github.com/starford/marknest/internal/checksum"
	"github.com/starford/marknest/internal/filetree"
	"github.com/starford/marknest/internal/store"
)

// FileHandler serves the caller's files and folders.
type FileHandler struct {
	svc *filetree.Service
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(svc *filetree.Service) *FileHandler {
	return &FileHandler{svc: svc}
}

// currentUser returns the authenticated user. Routes using it are always
// behind Authenticate.
func currentUser(r *http.Request) *store.User {
	u, _ := auth.UserFrom(r.Context())
	return u
}

func pathParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := r.URL.Query().Get("path")
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return "", false
	}
	return p, true
}

// GetTree handles GET /api/files/tree.
//
//	@Summary		Get the caller's file tree
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	TreeResponse
//	@Security		BearerAuth
//	@Router			/files/tree [get]
func (h *FileHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	nodes, err := h.svc.GetTree(r.Context(), u.ID)
	if err != nil {
		writeError(w, "get tree", err, slog.String("user", u.ID))
		return
	}
	writeJSON(w, http.StatusOK, TreeResponse{Tree: nodes})
}

// GetContent handles GET /api/files/content.
//
//	@Summary		Read a note
//	@Tags			files
//	@Produce		json
//	@Param			path	query		string	true	"Logical path"
//	@Success		200		{object}	ContentResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/content [get]
func (h *FileHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	p, ok := pathParam(w, r)
	if !ok {
		return
	}
	u := currentUser(r)
	content, err := h.svc.Read(r.Context(), u.ID, p)
	if err != nil {
		writeError(w, "read file", err, slog.String("path", p))
		return
	}
	w.Header().Set("ETag", checksum.ETag([]byte(content)))
	writeJSON(w, http.StatusOK, ContentResponse{Path: p, Content: content})
}

// WriteFile handles POST and PUT /api/files.
//
//	@Summary		Create or update a note
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body		body		WriteFileRequest	true	"Note to write"
//	@Param			If-Match	header		string				false	"ETag from a previous read"
//	@Success		200		{object}	Record
//	@Success		201		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		412		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
//	@Router			/files [put]
func (h *FileHandler) WriteFile(w http.ResponseWriter, r *http.Request) {
	var req WriteFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "write file", err)
		return
	}
	u := currentUser(r)
	rec, err := h.svc.Write(r.Context(), u.ID, filetree.WriteInput{
		Path:    req.Path,
		Content: req.Content,
		Title:   req.Title,
		IfMatch: r.Header.Get("If-Match"),
	})
	if err != nil {
		writeError(w, "write file", err, slog.String("path", req.Path))
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, rec)
}

// DeleteFile handles DELETE /api/files.
//
//	@Summary		Delete a note
//	@Tags			files
//	@Param			path	query	string	true	"Logical path"
//	@Success		204		"File deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [delete]
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	p, ok := pathParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), currentUser(r).ID, p); err != nil {
		writeError(w, "delete file", err, slog.String("path", p))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMetadata handles GET /api/files/metadata.
//
//	@Summary		List the caller's file metadata
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	MetadataResponse
//	@Security		BearerAuth
//	@Router			/files/metadata [get]
func (h *FileHandler) ListMetadata(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.ListMetadata(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, "list metadata", err)
		return
	}
	writeJSON(w, http.StatusOK, MetadataResponse{Files: recs})
}

// SetVisibility handles PATCH /api/files/{id}/visibility.
//
//	@Summary		Make a note public or private
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"File id"
//	@Param			body	body		VisibilityRequest	true	"New visibility"
//	@Success		200		{object}	Record
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{id}/visibility [patch]
func (h *FileHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "set visibility", err)
		return
	}
	if req.IsPublic == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("is_public is required"))
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := h.svc.ToggleVisibility(r.Context(), currentUser(r).ID, id, *req.IsPublic)
	if err != nil {
		writeError(w, "set visibility", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Search handles GET /api/files/search.
//
//	@Summary		Search the caller's notes
//	@Tags			files
//	@Produce		json
//	@Param			q	query		string	true	"Search query"
//	@Success		200	{object}	SearchResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/search [get]
func (h *FileHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	hits, err := h.svc.Search(r.Context(), currentUser(r).ID, q)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits, Count: len(hits)})
}

// Reconcile handles POST /api/files/reconcile.
//
//	@Summary		Resync the caller's metadata from disk
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	filetree.ReconcileResult
//	@Security		BearerAuth
//	@Router			/files/reconcile [post]
func (h *FileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reconcile(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder
//	@Tags			folders
//	@Accept			json
//	@Param			body	body	FolderRequest	true	"Folder to create"
//	@Success		201		{object}	FolderRequest
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *FileHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "create folder", err)
		return
	}
	if err := h.svc.CreateFolder(r.Context(), currentUser(r).ID, req.Path); err != nil {
		writeError(w, "create folder", err, slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// DeleteFolder handles DELETE /api/folders.
//
//	@Summary		Delete a folder recursively
//	@Tags			folders
//	@Param			path	query	string	true	"Logical path"
//	@Success		204		"Folder deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [delete]
func (h *FileHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	p, ok := pathParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteFolder(r.Context(), currentUser(r).ID, p); err != nil {
		writeError(w, "delete folder", err, slog.String("path", p))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CopyFolder handles POST /api/folders/copy.
//
//	@Summary		Copy a folder
//	@Tags			folders
//	@Accept			json
//	@Param			body	body	CopyFolderRequest	true	"Source and destination"
//	@Success		201		{object}	CopyFolderRequest
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders/copy [post]
func (h *FileHandler) CopyFolder(w http.ResponseWriter, r *http.Request) {
	var req CopyFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "copy folder", err)
		return
	}
	if req.SourcePath == "" || req.DestPath == "" {
		writeError(w, "copy folder", apperr.ErrInvalidPath)
		return
	}
	if err := h.svc.CopyFolder(r.Context(), currentUser(r).ID, req.SourcePath, req.DestPath); err != nil {
		writeError(w, "copy folder", err, slog.String("source", req.SourcePath))
		return
	}
	writeJSON(w, http.StatusCreated, req)
}
