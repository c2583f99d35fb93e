// internal/app/features/guestlinks/handler.go
package guestlinks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/policy/teampolicy"
	teamstore "github.com/dalemusser/promptshelf/internal/app/store/teams"
	"github.com/dalemusser/promptshelf/internal/app/system/accesslinks"
	"github.com/dalemusser/promptshelf/internal/app/system/auditlog"
	"github.com/dalemusser/promptshelf/internal/app/system/auth"
	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler is the team admin API for guest access links.
type Handler struct {
	Links *accesslinks.Service
	Teams *teamstore.Store
	Audit *auditlog.Logger
	Log   *zap.Logger
}

func NewHandler(links *accesslinks.Service, teams *teamstore.Store, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Links: links, Teams: teams, Audit: audit, Log: logger}
}

// manager loads {teamID} and checks the signed-in user may manage its links.
// On failure the response has been written.
func (h *Handler) manager(w http.ResponseWriter, r *http.Request) (*auth.SessionUser, models.Team, bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "sign in required")
		return nil, models.Team{}, false
	}

	team, err := h.Teams.GetByHex(r.Context(), chi.URLParam(r, "teamID"))
	if errors.Is(err, teamstore.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "team not found")
		return nil, models.Team{}, false
	}
	if err != nil {
		h.Log.Error("guest links: load team", zap.Error(err))
		writeJSONError(w, http.StatusServiceUnavailable, "could not load team")
		return nil, models.Team{}, false
	}

	if !teampolicy.CanManageGuestLinks(r, team) {
		writeJSONError(w, http.StatusForbidden, "only team owners and admins can manage guest links")
		return nil, models.Team{}, false
	}
	return user, team, true
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /teams/{teamID}/guest-links                                             |
*─────────────────────────────────────────────────────────────────────────────*/

type issueRequest struct {
	TTLDays int `json:"ttlDays"`
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	user, team, ok := h.manager(w, r)
	if !ok {
		return
	}

	var req issueRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "issue guest link")
	defer cancel()

	link, err := h.Links.IssueLink(ctx, accesslinks.IssueRequest{
		TeamID:      team.ID.Hex(),
		TeamName:    team.Name,
		CreatedBy:   user.ID,
		CreatorName: user.Name,
		TTLDays:     req.TTLDays,
	})
	if errors.Is(err, accesslinks.ErrInvalidInput) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.Log.Error("issue guest link", zap.Error(err), zap.String("team_id", team.ID.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not create guest link")
		return
	}

	h.Audit.LinkIssued(r.Context(), r, user.ID, team.ID.Hex(), link.ID, link.ExpiresAt)
	writeJSON(w, http.StatusCreated, link)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /teams/{teamID}/guest-links                                              |
*─────────────────────────────────────────────────────────────────────────────*/

type linkItem struct {
	ID           string                  `json:"id"`
	URL          string                  `json:"url"`
	CreatedBy    string                  `json:"createdBy"`
	CreatorName  string                  `json:"creatorName,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
	ExpiresAt    *time.Time              `json:"expiresAt,omitempty"`
	AccessCount  int64                   `json:"accessCount"`
	LastAccessed *time.Time              `json:"lastAccessed,omitempty"`
	Permissions  models.GuestPermissions `json:"permissions"`
}

func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	_, team, ok := h.manager(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list guest links")
	defer cancel()

	links, err := h.Links.ListActiveLinks(ctx, team.ID.Hex())
	if err != nil {
		h.Log.Error("list guest links", zap.Error(err), zap.String("team_id", team.ID.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not load guest links")
		return
	}

	items := make([]linkItem, 0, len(links))
	for _, g := range links {
		items = append(items, linkItem{
			ID:           g.ID,
			URL:          h.Links.LinkURL(g.ID),
			CreatedBy:    g.CreatedBy,
			CreatorName:  g.CreatorName,
			CreatedAt:    g.CreatedAt,
			ExpiresAt:    g.ExpiresAt,
			AccessCount:  g.AccessCount,
			LastAccessed: g.LastAccessed,
			Permissions:  g.Permissions,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"links":     items,
		"inviteUrl": h.Links.InviteURL(team.ID.Hex()),
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /teams/{teamID}/guest-links/stats                                        |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeStats(w http.ResponseWriter, r *http.Request) {
	_, team, ok := h.manager(w, r)
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "guest link stats")
	defer cancel()

	st, err := h.Links.GetStats(ctx, team.ID.Hex())
	if err != nil {
		h.Log.Error("guest link stats", zap.Error(err), zap.String("team_id", team.ID.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not load guest link stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

/*─────────────────────────────────────────────────────────────────────────────*
| DELETE /teams/{teamID}/guest-links/{linkID}                                  |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	user, team, ok := h.manager(w, r)
	if !ok {
		return
	}
	linkID := chi.URLParam(r, "linkID")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "revoke guest link")
	defer cancel()

	// Another team's link is reported as missing.
	g, err := h.Links.GetLink(ctx, linkID)
	if errors.Is(err, accesslinks.ErrLinkNotFound) || (err == nil && g.TeamID != team.ID.Hex()) {
		writeJSONError(w, http.StatusNotFound, "guest link not found")
		return
	}
	if err != nil {
		h.Log.Error("load guest link", zap.Error(err))
		writeJSONError(w, http.StatusServiceUnavailable, "could not load guest link")
		return
	}

	if err := h.Links.RevokeLink(ctx, linkID, user.ID); err != nil {
		if errors.Is(err, accesslinks.ErrLinkNotFound) {
			writeJSONError(w, http.StatusNotFound, "guest link not found")
			return
		}
		h.Log.Error("revoke guest link", zap.Error(err))
		writeJSONError(w, http.StatusServiceUnavailable, "could not revoke guest link")
		return
	}

	h.Audit.LinkRevoked(r.Context(), r, user.ID, team.ID.Hex(), linkID)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
