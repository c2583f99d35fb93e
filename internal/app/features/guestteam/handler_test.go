package guestteam_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/dalemusser/promptshelf/internal/app/features/guestteam"
	"github.com/dalemusser/promptshelf/internal/app/system/accesslinks"
	"github.com/dalemusser/promptshelf/internal/app/system/events"
	"github.com/dalemusser/promptshelf/internal/app/system/guestboot"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/dalemusser/promptshelf/internal/app/system/tabstore"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/dalemusser/promptshelf/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMain(m *testing.M) {
	if err := testutil.BootTemplates(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const token = "0f8fad5b-d9cb-469f-a165-70867728950e"

var teamID = primitive.NewObjectID()

type validatorFunc func(ctx context.Context, token string) (accesslinks.Grant, error)

func (f validatorFunc) ValidateToken(ctx context.Context, token string) (accesslinks.Grant, error) {
	return f(ctx, token)
}

func granting(_ context.Context, tok string) (accesslinks.Grant, error) {
	return accesslinks.Grant{Token: tok, TeamID: teamID.Hex(), TeamName: "Support", Permissions: models.DefaultGuestPermissions()}, nil
}

func failing(code accesslinks.Code) validatorFunc {
	return func(context.Context, string) (accesslinks.Grant, error) {
		return accesslinks.Grant{}, &accesslinks.ValidationError{Code: code}
	}
}

type fakePrompts struct {
	list []models.Prompt
	err  error
	team primitive.ObjectID
}

func (f *fakePrompts) ListByTeam(_ context.Context, id primitive.ObjectID, _ int64) ([]models.Prompt, error) {
	f.team = id
	return f.list, f.err
}

type checkerFunc func(ctx context.Context, token string) error

func (f checkerFunc) CheckGrant(ctx context.Context, token string) error { return f(ctx, token) }

func stillActive(context.Context, string) error { return nil }

func newHandler(v guestboot.Validator, prompts guestteam.PromptLister, pub events.Publisher) *guestteam.Handler {
	return guestteam.NewHandler(guestboot.New(v, guestboot.Config{}, nil), checkerFunc(stillActive), prompts, nil, pub, nil)
}

// serve runs one page load against mem through the restore middleware.
func serve(h *guestteam.Handler, mem *tabstore.Memory, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(guestboot.RestoreMiddleware(func(http.ResponseWriter, *http.Request) guestsession.Storage { return mem }, guestsession.Options{}))
	r.Mount("/guest-team", guestteam.Routes(h))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestServeLanding_Granted(t *testing.T) {
	mem := tabstore.NewMemory()
	h := newHandler(validatorFunc(granting), &fakePrompts{}, nil)

	rec := serve(h, mem, httptest.NewRequest("GET", "/guest-team?token="+token, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `data-state="GRANTED"`) {
		t.Errorf("expected granted state in page")
	}
	if !strings.Contains(body, `content="3;url=/guest-team"`) {
		t.Errorf("expected meta refresh to the tokenless guest url, body: %s", body)
	}

	// The next page load finds the session without a token.
	s := guestsession.New(mem, guestsession.Options{})
	s.Restore()
	if got := s.Session(); !got.HasAccess || got.Token != token {
		t.Errorf("session after grant: %+v", got)
	}
}

func TestServeLanding_Denied(t *testing.T) {
	tests := []struct {
		code      accesslinks.Code
		status    int
		reason    string
		wantRetry bool
	}{
		{accesslinks.CodeExpired, http.StatusForbidden, "expired", false},
		{accesslinks.CodeDeactivated, http.StatusForbidden, "deactivated", false},
		{accesslinks.CodeNotFound, http.StatusForbidden, "invalid", false},
		{accesslinks.CodeTimedOut, http.StatusServiceUnavailable, "timed_out", true},
		{accesslinks.CodeUnavailable, http.StatusServiceUnavailable, "generic", true},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			mem := tabstore.NewMemory()
			h := newHandler(failing(tc.code), &fakePrompts{}, nil)

			rec := serve(h, mem, httptest.NewRequest("GET", "/guest-team?token="+token, nil))

			if rec.Code != tc.status {
				t.Errorf("status: got %d, want %d", rec.Code, tc.status)
			}
			body := rec.Body.String()
			if !strings.Contains(body, `data-reason="`+tc.reason+`"`) {
				t.Errorf("expected reason %q in page", tc.reason)
			}
			if got := strings.Contains(body, `class="retry"`); got != tc.wantRetry {
				t.Errorf("retry link present = %v, want %v", got, tc.wantRetry)
			}
			if !strings.Contains(body, `class="home"`) {
				t.Error("expected a home link")
			}
			if mem.Len() != 0 {
				t.Errorf("denial must not write a session, found %d keys", mem.Len())
			}
		})
	}
}

func TestServeLanding_NoToken(t *testing.T) {
	h := newHandler(validatorFunc(granting), &fakePrompts{}, nil)

	t.Run("no session", func(t *testing.T) {
		rec := serve(h, tabstore.NewMemory(), httptest.NewRequest("GET", "/guest-team", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "No access link") {
			t.Error("expected the no access page")
		}
	})

	t.Run("existing session", func(t *testing.T) {
		mem := tabstore.NewMemory()
		perms := models.DefaultGuestPermissions()
		if err := guestsession.New(mem, guestsession.Options{}).SetSession(teamID.Hex(), &perms, token); err != nil {
			t.Fatalf("SetSession: %v", err)
		}
		rec := serve(h, mem, httptest.NewRequest("GET", "/guest-team", nil))
		body := rec.Body.String()
		if !strings.Contains(body, `data-state="NO_TOKEN_IN_URL"`) || !strings.Contains(body, "Exit guest mode") {
			t.Errorf("expected guest home with exit form, body: %s", body)
		}
	})
}

func TestServeLanding_NoStore(t *testing.T) {
	h := newHandler(validatorFunc(granting), &fakePrompts{}, nil)
	rec := httptest.NewRecorder()
	h.ServeLanding(rec, httptest.NewRequest("GET", "/guest-team?token="+token, nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
}

func TestServePrompts(t *testing.T) {
	prompts := &fakePrompts{list: []models.Prompt{
		{ID: primitive.NewObjectID(), TeamID: teamID, Title: "Greeting", Body: "Say hi\nthen wait", RatingSum: 9, RatingCount: 2},
		{ID: primitive.NewObjectID(), TeamID: teamID, Title: "Markup", Body: `<b>Bold</b><script>alert(1)</script>`},
	}}
	h := newHandler(validatorFunc(granting), prompts, nil)

	t.Run("guest with view", func(t *testing.T) {
		mem := tabstore.NewMemory()
		if rec := serve(h, mem, httptest.NewRequest("GET", "/guest-team?token="+token, nil)); rec.Code != http.StatusOK {
			t.Fatalf("grant: %d", rec.Code)
		}
		rec := serve(h, mem, httptest.NewRequest("GET", "/guest-team/prompts", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: got %d, want 200", rec.Code)
		}
		var resp struct {
			TeamID  string `json:"teamId"`
			Prompts []struct {
				Title         string  `json:"title"`
				HTML          string  `json:"html"`
				AverageRating float64 `json:"averageRating"`
			} `json:"prompts"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.TeamID != teamID.Hex() || prompts.team != teamID {
			t.Errorf("team: got %q, lister saw %v", resp.TeamID, prompts.team)
		}
		if len(resp.Prompts) != 2 || resp.Prompts[0].Title != "Greeting" || resp.Prompts[0].AverageRating != 4.5 {
			t.Fatalf("prompts: %+v", resp.Prompts)
		}
		if got := resp.Prompts[0].HTML; got != "Say hi<br>then wait" {
			t.Errorf("plain body html: got %q", got)
		}
		if got := resp.Prompts[1].HTML; !strings.Contains(got, "<b>Bold</b>") || strings.Contains(got, "script") {
			t.Errorf("markup body html not sanitized: %q", got)
		}
	})

	t.Run("view not granted", func(t *testing.T) {
		mem := tabstore.NewMemory()
		perms := models.DefaultGuestPermissions()
		perms.CanView = false
		if err := guestsession.New(mem, guestsession.Options{}).SetSession(teamID.Hex(), &perms, token); err != nil {
			t.Fatalf("SetSession: %v", err)
		}
		rec := serve(h, mem, httptest.NewRequest("GET", "/guest-team/prompts", nil))
		if rec.Code != http.StatusForbidden {
			t.Errorf("status: got %d, want 403", rec.Code)
		}
	})

	t.Run("no session", func(t *testing.T) {
		rec := serve(h, tabstore.NewMemory(), httptest.NewRequest("GET", "/guest-team/prompts", nil))
		if rec.Code != http.StatusForbidden {
			t.Errorf("status: got %d, want 403", rec.Code)
		}
	})

	t.Run("link ended", func(t *testing.T) {
		for _, code := range []accesslinks.Code{accesslinks.CodeDeactivated, accesslinks.CodeExpired, accesslinks.CodeNotFound} {
			ended := guestteam.NewHandler(guestboot.New(validatorFunc(granting), guestboot.Config{}, nil),
				checkerFunc(func(context.Context, string) error { return &accesslinks.ValidationError{Code: code} }),
				prompts, nil, nil, nil)
			mem := tabstore.NewMemory()
			perms := models.DefaultGuestPermissions()
			if err := guestsession.New(mem, guestsession.Options{}).SetSession(teamID.Hex(), &perms, token); err != nil {
				t.Fatalf("SetSession: %v", err)
			}

			rec := serve(ended, mem, httptest.NewRequest("GET", "/guest-team/prompts", nil))

			if rec.Code != http.StatusForbidden {
				t.Errorf("%s: status got %d, want 403", code, rec.Code)
			}
			if mem.Len() != 0 {
				t.Errorf("%s: ended link must clear the session, %d keys remain", code, mem.Len())
			}
		}
	})

	t.Run("link check unavailable", func(t *testing.T) {
		flaky := guestteam.NewHandler(guestboot.New(validatorFunc(granting), guestboot.Config{}, nil),
			checkerFunc(func(context.Context, string) error { return &accesslinks.ValidationError{Code: accesslinks.CodeUnavailable} }),
			prompts, nil, nil, nil)
		mem := tabstore.NewMemory()
		perms := models.DefaultGuestPermissions()
		if err := guestsession.New(mem, guestsession.Options{}).SetSession(teamID.Hex(), &perms, token); err != nil {
			t.Fatalf("SetSession: %v", err)
		}

		rec := serve(flaky, mem, httptest.NewRequest("GET", "/guest-team/prompts", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status: got %d, want 503", rec.Code)
		}
		if mem.Len() == 0 {
			t.Error("a backend failure must leave the session in place")
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		broken := newHandler(validatorFunc(granting), &fakePrompts{err: errors.New("mongo down")}, nil)
		mem := tabstore.NewMemory()
		perms := models.DefaultGuestPermissions()
		if err := guestsession.New(mem, guestsession.Options{}).SetSession(teamID.Hex(), &perms, token); err != nil {
			t.Fatalf("SetSession: %v", err)
		}
		rec := serve(broken, mem, httptest.NewRequest("GET", "/guest-team/prompts", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status: got %d, want 503", rec.Code)
		}
	})
}

func TestServeExit(t *testing.T) {
	rec := &events.Recorder{}
	h := newHandler(validatorFunc(granting), &fakePrompts{}, rec)
	mem := tabstore.NewMemory()
	perms := models.DefaultGuestPermissions()
	if err := guestsession.New(mem, guestsession.Options{}).SetSession(teamID.Hex(), &perms, token); err != nil {
		t.Fatalf("SetSession: %v", err)
	}

	resp := serve(h, mem, httptest.NewRequest("POST", "/guest-team/exit", nil))

	if resp.Code != http.StatusSeeOther || resp.Header().Get("Location") != "/" {
		t.Errorf("expected redirect home, got %d %q", resp.Code, resp.Header().Get("Location"))
	}
	if mem.Len() != 0 {
		t.Errorf("exit must clear every tier, %d keys remain", mem.Len())
	}
	evs := rec.Events()
	if len(evs) != 1 || evs[0].Type != events.TypeGuestExited || evs[0].LinkID != token {
		t.Errorf("events: %+v", evs)
	}

	// Exiting again with nothing stored publishes nothing.
	serve(h, mem, httptest.NewRequest("POST", "/guest-team/exit", nil))
	if len(rec.Events()) != 1 {
		t.Errorf("second exit published %d events", len(rec.Events())-1)
	}
}
