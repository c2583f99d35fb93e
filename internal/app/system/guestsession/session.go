// Package guestsession holds the guest's access session across three tiers:
// memory (one page load), a primary tier in reload-surviving storage, and a
// backup key in the same storage that only a forced clear removes.
//
// A session is usable only when token, team id and permissions are all
// present. Anything less is reported as no session.
package guestsession

import (
	"errors"

	"github.com/dalemusser/promptshelf/internal/domain/models"
)

// GuestUserIDPrefix prefixes the token to form a guest's pseudo user id.
const GuestUserIDPrefix = "guest_"

var (
	// ErrMissingToken is returned by SetSession when the token is empty.
	ErrMissingToken = errors.New("guest session: token is required")
	// ErrMissingTeam is returned by SetSession when the team id is empty.
	ErrMissingTeam = errors.New("guest session: team id is required")
)

// GuestUserID derives the stable guest identity for a token.
// It returns "" for an empty token.
func GuestUserID(token string) string {
	if token == "" {
		return ""
	}
	return GuestUserIDPrefix + token
}

// Tier identifies where a session was resolved from.
type Tier int

const (
	TierNone Tier = iota
	TierMemory
	TierPrimary
	TierBackup
)

func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierPrimary:
		return "primary"
	case TierBackup:
		return "backup"
	default:
		return "none"
	}
}

// Session is a snapshot of the current guest session.
type Session struct {
	Token       string
	TeamID      string
	Permissions *models.GuestPermissions
	HasAccess   bool
	Source      Tier
}

// GuestUserID returns the derived guest identity, or "" without access.
func (s Session) GuestUserID() string {
	if !s.HasAccess {
		return ""
	}
	return GuestUserID(s.Token)
}

func newSession(token, teamID string, perms *models.GuestPermissions, src Tier) Session {
	if token == "" || teamID == "" || perms == nil {
		return Session{}
	}
	return Session{
		Token:       token,
		TeamID:      teamID,
		Permissions: clonePerms(perms),
		HasAccess:   true,
		Source:      src,
	}
}

func clonePerms(p *models.GuestPermissions) *models.GuestPermissions {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// RestoreResult reports what the load-time restore step found.
type RestoreResult int

const (
	RestoreNone RestoreResult = iota
	RestoreFromPrimary
	RestoreFromBackup
)

func (r RestoreResult) String() string {
	switch r {
	case RestoreFromPrimary:
		return "primary"
	case RestoreFromBackup:
		return "backup"
	default:
		return "none"
	}
}
