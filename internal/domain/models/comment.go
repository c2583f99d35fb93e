package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Comment is a note left on a prompt by a team member or a guest.
type Comment struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PromptID primitive.ObjectID `bson:"prompt_id" json:"prompt_id"`
	TeamID   primitive.ObjectID `bson:"team_id" json:"team_id"`

	// AuthorID is the identity-provider uid, or "guest_<token>" for guests.
	AuthorID   string `bson:"author_id" json:"author_id"`
	AuthorName string `bson:"author_name,omitempty" json:"author_name,omitempty"`

	// Guest attribution. GuestToken lets a guest delete their own comment
	// later without having a user id.
	IsGuest    bool   `bson:"is_guest" json:"is_guest"`
	GuestToken string `bson:"guest_token,omitempty" json:"-"`

	Body      string    `bson:"body" json:"body"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
