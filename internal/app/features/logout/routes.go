// internal/app/features/logout/routes.go
package logout

import (
	"github.com/dalemusser/promptshelf/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts /logout for signed-in members. A guest or anonymous caller
// gets RequireSignedIn's 401 or sign-in redirect.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/", h.ServeLogout)
	r.Post("/", h.ServeLogout)
	return r
}
