// internal/app/features/guestteam/routes.go
package guestteam

import "github.com/go-chi/chi/v5"

// Routes returns the guest router, mounted at /guest-team. The guest session
// restore middleware must already be on the parent router.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeLanding)
	r.Get("/prompts", h.ServePrompts)
	r.Post("/exit", h.ServeExit)
	return r
}
