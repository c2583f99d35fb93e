// internal/app/features/prompts/comments.go
package prompts

import (
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/policy/teampolicy"
	commentstore "github.com/dalemusser/promptshelf/internal/app/store/comments"
	"github.com/dalemusser/promptshelf/internal/app/system/guestgate"
	"github.com/dalemusser/promptshelf/internal/app/system/htmlsanitize"
	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type commentItem struct {
	ID         string        `json:"id"`
	AuthorID   string        `json:"authorId"`
	AuthorName string        `json:"authorName,omitempty"`
	IsGuest    bool          `json:"isGuest"`
	Body       string        `json:"body"`
	HTML       template.HTML `json:"html"`
	CreatedAt  time.Time     `json:"createdAt"`
}

func toItem(c models.Comment) commentItem {
	return commentItem{
		ID:         c.ID.Hex(),
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		IsGuest:    c.IsGuest,
		Body:       c.Body,
		HTML:       htmlsanitize.PlainTextToHTML(c.Body),
		CreatedAt:  c.CreatedAt,
	}
}

// ServeComments lists a prompt's comments, oldest first.
func (h *Handler) ServeComments(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPrompt(w, r)
	if !ok {
		return
	}
	if _, ok := h.authorize(w, r, p, guestgate.ActionView); !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list comments")
	defer cancel()

	list, err := h.Comments.ListByPrompt(ctx, p.ID)
	if err != nil {
		h.Log.Error("list comments", zap.Error(err), zap.String("prompt_id", p.ID.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not load comments")
		return
	}
	items := make([]commentItem, 0, len(list))
	for _, c := range list {
		items = append(items, toItem(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": items})
}

// HandleCreateComment adds a comment. The body is reduced to plain text.
func (h *Handler) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPrompt(w, r)
	if !ok {
		return
	}
	a, ok := h.authorize(w, r, p, guestgate.ActionComment)
	if !ok {
		return
	}

	body := htmlsanitize.CommentText(r.FormValue("body"))
	if body == "" {
		writeJSONError(w, http.StatusBadRequest, "comment is empty")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "create comment")
	defer cancel()

	c, err := h.Comments.Create(ctx, models.Comment{
		PromptID:   p.ID,
		TeamID:     p.TeamID,
		AuthorID:   a.Attribution.UserID,
		AuthorName: a.Name,
		IsGuest:    a.Attribution.IsGuest,
		GuestToken: a.Attribution.GuestToken,
		Body:       body,
	})
	if err != nil {
		h.Log.Error("create comment", zap.Error(err), zap.String("prompt_id", p.ID.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not save comment")
		return
	}
	// The counter is a display hint; the comment itself is saved.
	if err := h.Prompts.IncCommentCount(ctx, p.ID, 1); err != nil {
		h.Log.Warn("comment count", zap.Error(err), zap.String("prompt_id", p.ID.Hex()))
	}
	writeJSON(w, http.StatusCreated, toItem(c))
}

// HandleDeleteComment removes a comment. Authors, team owners and admins may
// delete; a guest may delete what their current token wrote.
func (h *Handler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPrompt(w, r)
	if !ok {
		return
	}
	a, ok := h.authorize(w, r, p, guestgate.ActionView)
	if !ok {
		return
	}

	cid, err := primitive.ObjectIDFromHex(chi.URLParam(r, "commentID"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "comment not found")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "delete comment")
	defer cancel()

	c, err := h.Comments.GetByID(ctx, cid)
	if errors.Is(err, commentstore.ErrNotFound) || (err == nil && c.PromptID != p.ID) {
		writeJSONError(w, http.StatusNotFound, "comment not found")
		return
	}
	if err != nil {
		h.Log.Error("load comment", zap.Error(err), zap.String("comment_id", cid.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not load comment")
		return
	}

	var guestToken string
	if a.Attribution.IsGuest {
		guestToken = a.Attribution.GuestToken
	}
	if !teampolicy.CanDeleteComment(r, a.Team, c, guestToken) {
		if a.Attribution.IsGuest {
			h.Audit.GuestActionDenied(ctx, r, guestToken, p.TeamID.Hex(), "delete_comment")
		}
		writeJSONError(w, http.StatusForbidden, "you can only delete your own comments")
		return
	}

	n, err := h.Comments.Delete(ctx, cid)
	if err != nil {
		h.Log.Error("delete comment", zap.Error(err), zap.String("comment_id", cid.Hex()))
		writeJSONError(w, http.StatusServiceUnavailable, "could not delete comment")
		return
	}
	if n > 0 {
		if err := h.Prompts.IncCommentCount(ctx, p.ID, -1); err != nil {
			h.Log.Warn("comment count", zap.Error(err), zap.String("prompt_id", p.ID.Hex()))
		}
		h.Log.Info("comment deleted",
			zap.String("comment_id", cid.Hex()),
			zap.String("by", a.Attribution.UserID),
			zap.Bool("guest", a.Attribution.IsGuest))
	}
	w.WriteHeader(http.StatusNoContent)
}
