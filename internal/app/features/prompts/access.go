// internal/app/features/prompts/access.go
package prompts

import (
	"errors"
	"net/http"

	"github.com/dalemusser/promptshelf/internal/app/policy/teampolicy"
	teamstore "github.com/dalemusser/promptshelf/internal/app/store/teams"
	"github.com/dalemusser/promptshelf/internal/app/system/auth"
	"github.com/dalemusser/promptshelf/internal/app/system/guestboot"
	"github.com/dalemusser/promptshelf/internal/app/system/guestgate"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"go.uber.org/zap"
)

// actor is the caller of a prompt action once authorized.
type actor struct {
	Attribution guestgate.Attribution
	Name        string
	Team        models.Team
}

// authorize lets team members do anything here. Anyone else needs a live
// guest session for the prompt's team whose permissions allow action, and
// the link behind it must still grant access. On failure the response has
// been written.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, p models.Prompt, action guestgate.Action) (actor, bool) {
	team, err := h.Teams.GetByID(r.Context(), p.TeamID)
	if errors.Is(err, teamstore.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "prompt not found")
		return actor{}, false
	}
	if err != nil {
		h.Log.Error("load team", zap.Error(err), zap.String("team_id", p.TeamID.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not load team")
		return actor{}, false
	}

	if user, ok := auth.CurrentUser(r); ok && teampolicy.IsMember(r, team) {
		return actor{Attribution: guestgate.Attribution{UserID: user.ID}, Name: user.Name, Team: team}, true
	}

	store := guestsession.FromRequest(r)
	if store == nil {
		writeJSONError(w, http.StatusForbidden, "not a member of this team")
		return actor{}, false
	}
	sess := store.Session()
	if !sess.HasAccess || sess.TeamID != team.ID.Hex() {
		writeJSONError(w, http.StatusForbidden, "not a member of this team")
		return actor{}, false
	}

	gate := guestgate.New(store)
	if !gate.CanPerform(action) {
		h.Audit.GuestActionDenied(r.Context(), r, sess.Token, sess.TeamID, action.String())
		writeJSONError(w, http.StatusForbidden, "guest access does not allow "+action.String())
		return actor{}, false
	}

	if err := guestboot.Revalidate(r.Context(), h.Links, store); err != nil {
		if errors.Is(err, guestboot.ErrAccessEnded) {
			h.Audit.GuestActionDenied(r.Context(), r, sess.Token, sess.TeamID, action.String())
			writeJSONError(w, http.StatusForbidden, "guest access has ended")
			return actor{}, false
		}
		h.Log.Warn("recheck guest link", zap.Error(err), zap.String("team_id", sess.TeamID))
		writeJSONError(w, http.StatusServiceUnavailable, "could not check guest access")
		return actor{}, false
	}

	attr, err := gate.IdentityFor(nil)
	if err != nil {
		writeJSONError(w, http.StatusForbidden, "guest access required")
		return actor{}, false
	}
	return actor{Attribution: attr, Name: "Guest", Team: team}, true
}
