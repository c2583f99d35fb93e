package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Prompt is one entry in a team's prompt library.
type Prompt struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TeamID primitive.ObjectID `bson:"team_id" json:"team_id"`

	Title   string   `bson:"title" json:"title"`
	TitleCI string   `bson:"title_ci" json:"-"`
	Body    string   `bson:"body" json:"body"`
	Tags    []string `bson:"tags,omitempty" json:"tags,omitempty"`

	CreatedBy string `bson:"created_by" json:"created_by"`

	// Counters maintained by the copy/comment/rating write paths
	CopyCount    int64 `bson:"copy_count" json:"copy_count"`
	CommentCount int64 `bson:"comment_count" json:"comment_count"`
	RatingSum    int64 `bson:"rating_sum" json:"rating_sum"`
	RatingCount  int64 `bson:"rating_count" json:"rating_count"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// AverageRating returns the mean rating, or 0 when unrated.
func (p Prompt) AverageRating() float64 {
	if p.RatingCount == 0 {
		return 0
	}
	return float64(p.RatingSum) / float64(p.RatingCount)
}
