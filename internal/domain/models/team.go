package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Team roles
const (
	TeamRoleOwner  = "owner"
	TeamRoleAdmin  = "admin"
	TeamRoleMember = "member"
)

// TeamMember links an identity-provider user to a team.
type TeamMember struct {
	UserID string `bson:"user_id" json:"user_id"` // opaque id from the identity provider
	Email  string `bson:"email,omitempty" json:"email,omitempty"`
	Role   string `bson:"role" json:"role"` // "owner", "admin", or "member"
}

// Team owns a prompt library. Guest links are always scoped to one team.
type Team struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name   string             `bson:"name" json:"name"`
	NameCI string             `bson:"name_ci" json:"name_ci"`

	Members []TeamMember `bson:"members" json:"members"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// RoleOf returns the role userID holds in the team, or "" if not a member.
func (t Team) RoleOf(userID string) string {
	for _, m := range t.Members {
		if m.UserID == userID {
			return m.Role
		}
	}
	return ""
}
