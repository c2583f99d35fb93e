// internal/app/policy/teampolicy/teampolicy.go
package teampolicy

import (
	"net/http"

	"github.com/dalemusser/promptshelf/internal/app/system/auth"
	"github.com/dalemusser/promptshelf/internal/domain/models"
)

// RoleIn returns the signed-in user's role in team and whether the user is a
// member at all. Guests are never members.
func RoleIn(r *http.Request, team models.Team) (string, bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "", false
	}
	role := team.RoleOf(user.ID)
	return role, role != ""
}

// IsMember reports whether the signed-in user belongs to team.
func IsMember(r *http.Request, team models.Team) bool {
	_, ok := RoleIn(r, team)
	return ok
}

// CanManageGuestLinks reports whether the signed-in user may issue, list and
// revoke guest links for team: owners and admins only.
func CanManageGuestLinks(r *http.Request, team models.Team) bool {
	role, ok := RoleIn(r, team)
	return ok && (role == models.TeamRoleOwner || role == models.TeamRoleAdmin)
}

// CanDeleteComment reports whether the caller may delete c:
//   - the signed-in author
//   - a team owner or admin
//   - the guest whose token wrote it (guestToken is the caller's live token)
func CanDeleteComment(r *http.Request, team models.Team, c models.Comment, guestToken string) bool {
	if user, ok := auth.CurrentUser(r); ok {
		if !c.IsGuest && c.AuthorID == user.ID {
			return true
		}
		if role := team.RoleOf(user.ID); role == models.TeamRoleOwner || role == models.TeamRoleAdmin {
			return true
		}
	}
	return c.IsGuest && guestToken != "" && c.GuestToken == guestToken
}
