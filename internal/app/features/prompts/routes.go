// internal/app/features/prompts/routes.go
package prompts

import "github.com/go-chi/chi/v5"

// Routes mounts the prompt action routes. There is no sign-in requirement:
// each handler admits team members and guests whose session allows the
// action.
//
// Example from bootstrap:
//
//	h := prompts.NewHandler(db, links, audit, logger)
//	r.Mount("/prompts", prompts.Routes(h))
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/{id}/copy", h.HandleCopy)

	r.Get("/{id}/comments", h.ServeComments)
	r.Post("/{id}/comments", h.HandleCreateComment)
	r.Delete("/{id}/comments/{commentID}", h.HandleDeleteComment)

	r.Post("/{id}/rating", h.HandleRate)

	return r
}
