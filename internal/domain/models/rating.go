package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Rating bounds
const (
	MinRating = 1
	MaxRating = 5
)

// Rating is one rater's score for a prompt. There is at most one rating per
// (prompt_id, user_id); re-rating replaces the value.
type Rating struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PromptID primitive.ObjectID `bson:"prompt_id" json:"prompt_id"`
	TeamID   primitive.ObjectID `bson:"team_id" json:"team_id"`

	UserID     string `bson:"user_id" json:"user_id"`
	IsGuest    bool   `bson:"is_guest" json:"is_guest"`
	GuestToken string `bson:"guest_token,omitempty" json:"-"`

	Value     int       `bson:"value" json:"value"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
