package home

import (
	"net/http"

	"github.com/dalemusser/promptshelf/internal/app/system/auth"
	"github.com/dalemusser/promptshelf/internal/app/system/guestboot"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/dalemusser/waffle/pantry/templates"
	"go.uber.org/zap"
)

// Handler serves the landing page.
type Handler struct {
	Log *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{Log: logger}
}

type pageData struct {
	Title    string
	UserName string
	SignedIn bool
	IsGuest  bool

	LoginURL  string
	LogoutURL string
	GuestURL  string
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET / – landing                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

func (h *Handler) ServeRoot(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:     "Welcome",
		LoginURL:  auth.LoginPath,
		LogoutURL: "/logout",
		GuestURL:  guestboot.ReloadURL,
	}
	if u, ok := auth.CurrentUser(r); ok {
		data.SignedIn = true
		data.UserName = u.Name
	}
	if s := guestsession.FromRequest(r); s != nil {
		data.IsGuest = s.Session().HasAccess
	}

	w.Header().Set("Cache-Control", "no-store")
	templates.Render(w, r, "home", data)
}
