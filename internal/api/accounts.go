package api

import (
	"net/http"

	"github.com/starford/marknest/internal/auth"
	"github.com/starford/marknest/internal/filetree"
)

// AccountHandler serves registration, login and the caller's account.
type AccountHandler struct {
	accounts *auth.Service
	files    *filetree.Service
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *auth.Service, files *filetree.Service) *AccountHandler {
	return &AccountHandler{accounts: accounts, files: files}
}

// Register handles POST /api/auth/register.
//
//	@Summary		Register a new account
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		auth.RegisterInput	true	"Account"
//	@Success		201		{object}	UserResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/auth/register [post]
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "register", err)
		return
	}
	u, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeError(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /api/auth/login.
//
//	@Summary		Exchange credentials for a bearer token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		auth.LoginInput	true	"Credentials"
//	@Success		200		{object}	auth.Token
//	@Failure		401		{object}	errResponse
//	@Failure		429		{object}	errResponse
//	@Router			/auth/login [post]
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "login", err)
		return
	}
	tok, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		writeError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// Me handles GET /api/auth/me.
//
//	@Summary		Get the caller's account
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	UserResponse
//	@Security		BearerAuth
//	@Router			/auth/me [get]
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

// DeleteMe handles DELETE /api/auth/me. The account, its metadata and every
// file of the user are removed.
//
//	@Summary		Delete the caller's account
//	@Tags			auth
//	@Success		204	"Account deleted"
//	@Security		BearerAuth
//	@Router			/auth/me [delete]
func (h *AccountHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	if err := h.files.RemoveUser(r.Context(), currentUser(r).ID); err != nil {
		writeError(w, "delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
