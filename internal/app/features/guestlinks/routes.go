// internal/app/features/guestlinks/routes.go
package guestlinks

import (
	"github.com/dalemusser/promptshelf/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the guest link admin API. The mount pattern must carry the
// {teamID} parameter.
//
// Example from bootstrap:
//
//	h := guestlinks.NewHandler(links, teams, audit, logger)
//	r.Mount("/teams/{teamID}/guest-links", guestlinks.Routes(h, sessionMgr))
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Post("/", h.HandleIssue)
	r.Get("/", h.ServeList)
	r.Get("/stats", h.ServeStats)
	r.Delete("/{linkID}", h.HandleRevoke)

	return r
}
