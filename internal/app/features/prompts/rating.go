// internal/app/features/prompts/rating.go
package prompts

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	ratingstore "github.com/dalemusser/promptshelf/internal/app/store/ratings"
	"github.com/dalemusser/promptshelf/internal/app/system/guestgate"
	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"go.uber.org/zap"
)

type ratingResponse struct {
	Value         int     `json:"value"`
	AverageRating float64 `json:"averageRating"`
	RatingCount   int64   `json:"ratingCount"`
}

// HandleRate sets the caller's 1-5 rating. Re-rating replaces the old value.
func (h *Handler) HandleRate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPrompt(w, r)
	if !ok {
		return
	}
	a, ok := h.authorize(w, r, p, guestgate.ActionRate)
	if !ok {
		return
	}

	value, err := strconv.Atoi(strings.TrimSpace(r.FormValue("value")))
	if err != nil || value < models.MinRating || value > models.MaxRating {
		writeJSONError(w, http.StatusBadRequest, "rating must be 1 to 5")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "rate prompt")
	defer cancel()

	prev, err := h.Ratings.Upsert(ctx, models.Rating{
		PromptID:   p.ID,
		TeamID:     p.TeamID,
		UserID:     a.Attribution.UserID,
		IsGuest:    a.Attribution.IsGuest,
		GuestToken: a.Attribution.GuestToken,
		Value:      value,
	})
	if errors.Is(err, ratingstore.ErrOutOfRange) {
		writeJSONError(w, http.StatusBadRequest, "rating must be 1 to 5")
		return
	}
	if err != nil {
		h.Log.Error("rate prompt", zap.Error(err), zap.String("prompt_id", p.ID.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not save rating")
		return
	}

	sumDelta, countDelta := int64(value), int64(1)
	if prev != 0 {
		sumDelta, countDelta = int64(value-prev), 0
	}
	if err := h.Prompts.ApplyRating(ctx, p.ID, sumDelta, countDelta); err != nil {
		h.Log.Warn("rating totals", zap.Error(err), zap.String("prompt_id", p.ID.Hex()))
	}
	p.RatingSum += sumDelta
	p.RatingCount += countDelta

	writeJSON(w, http.StatusOK, ratingResponse{
		Value:         value,
		AverageRating: p.AverageRating(),
		RatingCount:   p.RatingCount,
	})
}
