// Package guestgate decides whether the current guest may perform a write,
// and stamps guest writes with a stable identity.
package guestgate

import (
	"errors"
	"net/http"

	"github.com/dalemusser/promptshelf/internal/app/system/auth"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/dalemusser/promptshelf/internal/app/system/metrics"
	"github.com/dalemusser/promptshelf/internal/domain/models"
)

// ErrNoIdentity is returned by IdentityFor when there is neither a signed-in
// user nor a guest token to attribute a write to.
var ErrNoIdentity = errors.New("no signed-in user or guest token to attribute this write to")

// Action is a guest-initiated operation.
type Action int

const (
	ActionView Action = iota
	ActionCopy
	ActionComment
	ActionRate
	ActionCreate
	ActionEdit
	ActionDelete
	ActionInvite
	ActionManageMembers

	actionCount
)

var actionNames = [actionCount]string{
	ActionView:          "view",
	ActionCopy:          "copy",
	ActionComment:       "comment",
	ActionRate:          "rate",
	ActionCreate:        "create",
	ActionEdit:          "edit",
	ActionDelete:        "delete",
	ActionInvite:        "invite",
	ActionManageMembers: "manage_members",
}

func (a Action) String() string {
	if a < 0 || a >= actionCount {
		return "unknown"
	}
	return actionNames[a]
}

// ParseAction maps an action name to its Action.
func ParseAction(name string) (Action, bool) {
	for i, n := range actionNames {
		if n == name {
			return Action(i), true
		}
	}
	return 0, false
}

// allowed maps an action to its permission flag. Every Action must have a
// case; anything else is denied.
func allowed(p *models.GuestPermissions, a Action) bool {
	switch a {
	case ActionView:
		return p.CanView
	case ActionCopy:
		return p.CanCopy
	case ActionComment:
		return p.CanComment
	case ActionRate:
		return p.CanRate
	case ActionCreate:
		return p.CanCreate
	case ActionEdit:
		return p.CanEdit
	case ActionDelete:
		return p.CanDelete
	case ActionInvite:
		return p.CanInvite
	case ActionManageMembers:
		return p.CanManageMembers
	default:
		return false
	}
}

// SessionSource is the part of *guestsession.Store the gate reads.
type SessionSource interface {
	Session() guestsession.Session
	Token() string
}

// Gate checks guest permissions against one page load's session.
type Gate struct {
	src SessionSource
}

// New returns a Gate over src. A nil src denies everything.
func New(src SessionSource) *Gate {
	return &Gate{src: src}
}

// FromRequest returns a Gate over the request's guest session.
func FromRequest(r *http.Request) *Gate {
	if s := guestsession.FromRequest(r); s != nil {
		return New(s)
	}
	return New(nil)
}

// CanPerform reports whether the guest session allows a. It is false when
// there is no session.
func (g *Gate) CanPerform(a Action) bool {
	ok := g.canPerform(a)
	if !ok {
		metrics.GateDenials.WithLabelValues(a.String()).Inc()
	}
	return ok
}

func (g *Gate) canPerform(a Action) bool {
	if g == nil || g.src == nil {
		return false
	}
	sess := g.src.Session()
	if !sess.HasAccess || sess.Permissions == nil {
		return false
	}
	return allowed(sess.Permissions, a)
}

// CanPerformNamed is CanPerform for an action name. Unknown names are denied.
func (g *Gate) CanPerformNamed(name string) bool {
	a, ok := ParseAction(name)
	if !ok {
		metrics.GateDenials.WithLabelValues("unknown").Inc()
		return false
	}
	return g.CanPerform(a)
}

// Attribution identifies who performed a write.
type Attribution struct {
	UserID     string
	IsGuest    bool
	GuestToken string // set for guests so later edits can match on the token
}

// IdentityFor attributes a write. A signed-in user wins; otherwise the guest
// token is used. With neither it returns ErrNoIdentity.
func (g *Gate) IdentityFor(user *auth.SessionUser) (Attribution, error) {
	if user != nil && user.ID != "" {
		return Attribution{UserID: user.ID}, nil
	}
	if g == nil || g.src == nil {
		return Attribution{}, ErrNoIdentity
	}
	token := g.src.Token()
	if token == "" {
		return Attribution{}, ErrNoIdentity
	}
	return Attribution{
		UserID:     guestsession.GuestUserID(token),
		IsGuest:    true,
		GuestToken: token,
	}, nil
}
