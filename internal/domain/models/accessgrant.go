package models

import "time"

// Access grant statuses.
const (
	GrantStatusActive  = "active"
	GrantStatusRevoked = "revoked"
)

// GuestPermissions is the fixed set of capabilities a guest access link grants.
// The same shape is stored on the link record and carried in the guest's
// browser session.
type GuestPermissions struct {
	CanView          bool `bson:"can_view" json:"canView"`
	CanCopy          bool `bson:"can_copy" json:"canCopy"`
	CanComment       bool `bson:"can_comment" json:"canComment"`
	CanRate          bool `bson:"can_rate" json:"canRate"`
	CanCreate        bool `bson:"can_create" json:"canCreate"`
	CanEdit          bool `bson:"can_edit" json:"canEdit"`
	CanDelete        bool `bson:"can_delete" json:"canDelete"`
	CanInvite        bool `bson:"can_invite" json:"canInvite"`
	CanManageMembers bool `bson:"can_manage_members" json:"canManageMembers"`
}

// DefaultGuestPermissions returns the read-heavy permission set every new
// link is created with: view, copy, comment and rate; nothing that mutates
// the library.
func DefaultGuestPermissions() GuestPermissions {
	return GuestPermissions{
		CanView:    true,
		CanCopy:    true,
		CanComment: true,
		CanRate:    true,
	}
}

// AccessGrant is a shareable guest access link for a team's prompt library.
// The document ID doubles as the token embedded in the link, so one token maps
// to exactly one record and one permission set; revoking the record kills the
// token.
type AccessGrant struct {
	ID string `bson:"_id" json:"id"`

	TeamID   string `bson:"team_id" json:"teamId"`
	TeamName string `bson:"team_name" json:"teamName"`

	CreatedBy   string    `bson:"created_by" json:"createdBy"`
	CreatorName string    `bson:"creator_name,omitempty" json:"creatorName,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`

	// ExpiresAt is nil for links that never expire.
	ExpiresAt *time.Time `bson:"expires_at,omitempty" json:"expiresAt,omitempty"`

	// Status: "active" or "revoked"
	Status string `bson:"status" json:"status"`

	// Usage tracking (approximate, best-effort)
	AccessCount  int64      `bson:"access_count" json:"accessCount"`
	LastAccessed *time.Time `bson:"last_accessed,omitempty" json:"lastAccessed,omitempty"`

	Permissions GuestPermissions `bson:"permissions" json:"permissions"`

	RevokedAt *time.Time `bson:"revoked_at,omitempty" json:"revokedAt,omitempty"`
	RevokedBy string     `bson:"revoked_by,omitempty" json:"revokedBy,omitempty"`
}

// IsExpired reports whether the link has an expiry at or before now.
// The boundary is exclusive: a link expiring exactly at now is expired.
func (g AccessGrant) IsExpired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// GrantsAccess reports whether the link currently admits a guest. Status and
// expiry are independent; both must pass.
func (g AccessGrant) GrantsAccess(now time.Time) bool {
	return g.Status == GrantStatusActive && !g.IsExpired(now)
}
