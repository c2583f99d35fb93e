package ratingstore_test

import (
	"errors"
	"testing"

	ratingstore "github.com/dalemusser/promptshelf/internal/app/store/ratings"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/dalemusser/promptshelf/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Upsert(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := ratingstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}

	promptID := primitive.NewObjectID()
	r := models.Rating{PromptID: promptID, TeamID: primitive.NewObjectID(), UserID: "guest_abc", IsGuest: true, GuestToken: "abc", Value: 4}

	prev, err := store.Upsert(ctx, r)
	if err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	if prev != 0 {
		t.Errorf("first rating previous: got %d, want 0", prev)
	}

	r.Value = 2
	prev, err = store.Upsert(ctx, r)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if prev != 4 {
		t.Errorf("re-rate previous: got %d, want 4", prev)
	}

	n, err := db.Collection("ratings").CountDocuments(ctx, bson.M{"prompt_id": promptID})
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected one rating per rater, got %d", n)
	}

	var stored models.Rating
	if err := db.Collection("ratings").FindOne(ctx, bson.M{"prompt_id": promptID}).Decode(&stored); err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	if stored.Value != 2 || stored.GuestToken != "abc" {
		t.Errorf("stored rating: %+v", stored)
	}
}

func TestStore_Upsert_OutOfRange(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := ratingstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for _, v := range []int{0, 6, -1} {
		_, err := store.Upsert(ctx, models.Rating{PromptID: primitive.NewObjectID(), UserID: "u1", Value: v})
		if !errors.Is(err, ratingstore.ErrOutOfRange) {
			t.Errorf("value %d: got %v, want ErrOutOfRange", v, err)
		}
	}
}
