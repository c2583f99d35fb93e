// internal/app/features/prompts/copy.go
package prompts

import (
	"net/http"

	"github.com/dalemusser/promptshelf/internal/app/system/guestgate"
	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// HandleCopy records that the caller copied the prompt body.
func (h *Handler) HandleCopy(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPrompt(w, r)
	if !ok {
		return
	}
	if _, ok := h.authorize(w, r, p, guestgate.ActionCopy); !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "prompt copy")
	defer cancel()

	if err := h.Prompts.IncCopyCount(ctx, p.ID); err != nil {
		h.Log.Error("copy count", zap.Error(err), zap.String("prompt_id", p.ID.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not record copy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"copyCount": p.CopyCount + 1})
}
