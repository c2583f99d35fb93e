// internal/app/features/prompts/handler.go
package prompts

import (
	"encoding/json"
	"errors"
	"net/http"

	commentstore "github.com/dalemusser/promptshelf/internal/app/store/comments"
	promptstore "github.com/dalemusser/promptshelf/internal/app/store/prompts"
	ratingstore "github.com/dalemusser/promptshelf/internal/app/store/ratings"
	teamstore "github.com/dalemusser/promptshelf/internal/app/store/teams"
	"github.com/dalemusser/promptshelf/internal/app/system/auditlog"
	"github.com/dalemusser/promptshelf/internal/app/system/guestboot"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler serves the per-prompt write paths shared by team members and guests.
type Handler struct {
	Prompts  *promptstore.Store
	Comments *commentstore.Store
	Ratings  *ratingstore.Store
	Teams    *teamstore.Store
	Links    guestboot.GrantChecker
	Audit    *auditlog.Logger
	Log      *zap.Logger
}

func NewHandler(db *mongo.Database, links guestboot.GrantChecker, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Prompts:  promptstore.New(db),
		Comments: commentstore.New(db),
		Ratings:  ratingstore.New(db),
		Teams:    teamstore.New(db),
		Links:    links,
		Audit:    audit,
		Log:      logger,
	}
}

// loadPrompt resolves the {id} URL parameter. It writes the error response
// and returns false when the prompt cannot be loaded.
func (h *Handler) loadPrompt(w http.ResponseWriter, r *http.Request) (models.Prompt, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "prompt not found")
		return models.Prompt{}, false
	}
	p, err := h.Prompts.GetByID(r.Context(), id)
	if errors.Is(err, promptstore.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "prompt not found")
		return models.Prompt{}, false
	}
	if err != nil {
		h.Log.Error("load prompt", zap.Error(err), zap.String("prompt_id", id.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not load prompt")
		return models.Prompt{}, false
	}
	return p, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
