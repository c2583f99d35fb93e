// internal/app/features/guestteam/handler.go
package guestteam

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/system/auditlog"
	"github.com/dalemusser/promptshelf/internal/app/system/events"
	"github.com/dalemusser/promptshelf/internal/app/system/guestboot"
	"github.com/dalemusser/promptshelf/internal/app/system/guestgate"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/dalemusser/promptshelf/internal/app/system/htmlsanitize"
	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/templates"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	promptsPath = guestboot.ReloadURL + "/prompts"
	exitPath    = guestboot.ReloadURL + "/exit"
	homePath    = "/"
)

// PromptLister reads a team's prompt library.
type PromptLister interface {
	ListByTeam(ctx context.Context, teamID primitive.ObjectID, limit int64) ([]models.Prompt, error)
}

// Handler serves the guest landing page and the guest read paths.
type Handler struct {
	Boot    *guestboot.Bootstrapper
	Links   guestboot.GrantChecker
	Prompts PromptLister
	Audit   *auditlog.Logger
	Events  events.Publisher
	Log     *zap.Logger
}

// NewHandler wires the guest team handler.
func NewHandler(boot *guestboot.Bootstrapper, links guestboot.GrantChecker, prompts PromptLister, audit *auditlog.Logger, pub events.Publisher, logger *zap.Logger) *Handler {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Boot: boot, Links: links, Prompts: prompts, Audit: audit, Events: pub, Log: logger}
}

type pageData struct {
	Title   string
	State   guestboot.State
	Reason  guestboot.Reason
	Message string

	HasAccess  bool
	PromptsURL string
	ExitURL    string

	ReloadURL     string
	ReloadSeconds int
	RetryURL      string
	HomeURL       string
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /guest-team[?token=]                                                     |
| Validates a token from the URL or shows the guest's current state.           |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeLanding(w http.ResponseWriter, r *http.Request) {
	store := guestsession.FromRequest(r)
	if store == nil {
		h.Log.Error("guest team: no guest session store on request")
		http.Error(w, "guest sessions are not available", http.StatusInternalServerError)
		return
	}

	token := r.URL.Query().Get("token")
	out := h.Boot.Run(r.Context(), store, token)

	data := pageData{
		State:      out.State,
		Reason:     out.Reason,
		Message:    out.Message,
		HomeURL:    homePath,
		PromptsURL: promptsPath,
		ExitURL:    exitPath,
	}
	status := http.StatusOK

	switch out.State {
	case guestboot.StateGranted:
		data.Title = "Access granted"
		data.ReloadURL = out.ReloadURL
		data.ReloadSeconds = int((out.ReloadAfter + time.Second - 1) / time.Second)
		h.Audit.GuestAccessGranted(r.Context(), r, out.Grant.Token, out.Grant.TeamID)

	case guestboot.StateDenied:
		data.Title = "Access link problem"
		if out.Retryable {
			data.RetryURL = guestboot.ReloadURL + "?" + url.Values{"token": {token}}.Encode()
			status = http.StatusServiceUnavailable
		} else {
			status = http.StatusForbidden
		}
		h.Audit.GuestAccessDenied(r.Context(), r, token, string(out.Reason))

	default:
		sess := store.Session()
		data.HasAccess = sess.HasAccess
		if sess.HasAccess {
			data.Title = "Guest access"
		} else {
			data.Title = "No access link"
			data.Message = "Open the access link you were given to browse this team's prompts."
		}
	}

	h.render(w, r, status, data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	templates.Render(w, r, "guest_team", data)
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /guest-team/prompts                                                      |
| Lists the guest's team library. Requires the view permission and a link     |
| that still grants access.                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

type promptItem struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Body          string        `json:"body"`
	HTML          template.HTML `json:"html"`
	Tags          []string      `json:"tags,omitempty"`
	CopyCount     int64         `json:"copyCount"`
	CommentCount  int64         `json:"commentCount"`
	AverageRating float64       `json:"averageRating"`
}

type promptsResponse struct {
	TeamID      string                  `json:"teamId"`
	Permissions models.GuestPermissions `json:"permissions"`
	Prompts     []promptItem            `json:"prompts"`
}

func (h *Handler) ServePrompts(w http.ResponseWriter, r *http.Request) {
	store := guestsession.FromRequest(r)
	gate := guestgate.FromRequest(r)
	if store == nil || !gate.CanPerform(guestgate.ActionView) {
		token := ""
		if store != nil {
			token = store.Token()
		}
		h.Audit.GuestActionDenied(r.Context(), r, token, "", guestgate.ActionView.String())
		writeJSONError(w, http.StatusForbidden, "guest access required")
		return
	}

	sess := store.Session()
	if err := guestboot.Revalidate(r.Context(), h.Links, store); err != nil {
		if errors.Is(err, guestboot.ErrAccessEnded) {
			h.Audit.GuestActionDenied(r.Context(), r, sess.Token, sess.TeamID, guestgate.ActionView.String())
			writeJSONError(w, http.StatusForbidden, "guest access has ended")
			return
		}
		h.Log.Warn("guest team: recheck link", zap.Error(err), zap.String("team_id", sess.TeamID))
		writeJSONError(w, http.StatusServiceUnavailable, "could not check guest access")
		return
	}

	teamID, err := primitive.ObjectIDFromHex(sess.TeamID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "team not found")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "guest list prompts")
	defer cancel()

	list, err := h.Prompts.ListByTeam(ctx, teamID, 0)
	if err != nil {
		h.Log.Error("guest team: list prompts", zap.Error(err), zap.String("team_id", sess.TeamID))
		writeJSONError(w, http.StatusServiceUnavailable, "could not load prompts")
		return
	}

	resp := promptsResponse{TeamID: sess.TeamID, Prompts: make([]promptItem, 0, len(list))}
	if sess.Permissions != nil {
		resp.Permissions = *sess.Permissions
	}
	for _, p := range list {
		resp.Prompts = append(resp.Prompts, promptItem{
			ID:            p.ID.Hex(),
			Title:         p.Title,
			Body:          p.Body,
			HTML:          htmlsanitize.PrepareForDisplay(p.Body),
			Tags:          p.Tags,
			CopyCount:     p.CopyCount,
			CommentCount:  p.CommentCount,
			AverageRating: p.AverageRating(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /guest-team/exit                                                        |
| Leaves guest mode: a forced clear of every tier.                             |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeExit(w http.ResponseWriter, r *http.Request) {
	store := guestsession.FromRequest(r)
	if store != nil {
		sess := store.Session()
		token := store.Token()
		if store.ClearSession(true) && token != "" {
			h.Audit.GuestExit(r.Context(), r, token, sess.TeamID)
			if err := h.Events.Publish(r.Context(), events.Event{
				Type:   events.TypeGuestExited,
				LinkID: token,
				TeamID: sess.TeamID,
				Actor:  guestsession.GuestUserID(token),
				At:     time.Now().UTC(),
			}); err != nil {
				h.Log.Warn("publish guest exit failed", zap.Error(err))
			}
		}
	}

	if r.Header.Get("HX-Request") != "" {
		w.Header().Set("HX-Redirect", homePath)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, homePath, http.StatusSeeOther)
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
