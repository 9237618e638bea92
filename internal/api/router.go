package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/marknest/internal/auth"
	"github.com/starford/marknest/internal/filetree"
	"github.com/starford/marknest/internal/sse"
)

// Deps are the services the API is built on.
type Deps struct {
	Files    *filetree.Service
	Accounts *auth.Service
	Events   *sse.Broker // optional
	Feed     FeedLimits
	// LoginRate and LoginBurst bound login attempts per client IP.
	LoginRate  float64
	LoginBurst int
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	files := NewFileHandler(d.Files)
	accounts := NewAccountHandler(d.Accounts, d.Files)
	public := NewPublicHandler(d.Files, d.Feed)

	loginRate, loginBurst := d.LoginRate, d.LoginBurst
	if loginRate <= 0 {
		loginRate = 1
	}
	if loginBurst <= 0 {
		loginBurst = 5
	}

	r := chi.NewRouter()

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", accounts.Register)
		r.With(RateLimit(loginRate, loginBurst)).Post("/login", accounts.Login)
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(d.Accounts))
			r.Get("/me", accounts.Me)
			r.Delete("/me", accounts.DeleteMe)
		})
	})

	// Public feed (no authentication).
	r.Route("/public", func(r chi.Router) {
		r.Get("/notes", public.ListNotes)
		r.Get("/notes/{id}/content", public.GetNote)
		r.Get("/users/{userID}/notes", public.ListUserNotes)
	})

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(d.Accounts))

		r.Get("/files/tree", files.GetTree)
		r.Get("/files/content", files.GetContent)
		r.Get("/files/search", files.Search)
		r.Get("/files/metadata", files.ListMetadata)
		r.Post("/files", files.WriteFile)
		r.Put("/files", files.WriteFile)
		r.Delete("/files", files.DeleteFile)
		r.Patch("/files/{id}/visibility", files.SetVisibility)
		r.Post("/files/reconcile", files.Reconcile)

		r.Post("/folders", files.CreateFolder)
		r.Delete("/folders", files.DeleteFolder)
		r.Post("/folders/copy", files.CopyFolder)

		if d.Events != nil {
			r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
				d.Events.ServeUser(w, r, currentUser(r).ID)
			})
		}
	})

	return r
}
