package prompts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/features/prompts"
	"github.com/dalemusser/promptshelf/internal/app/store/accessgrants"
	promptstore "github.com/dalemusser/promptshelf/internal/app/store/prompts"
	"github.com/dalemusser/promptshelf/internal/app/system/accesslinks"
	"github.com/dalemusser/promptshelf/internal/app/system/clock"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/dalemusser/promptshelf/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type env struct {
	db     *mongo.Database
	fx     *testutil.Fixtures
	clock  *clock.Manual
	links  *accesslinks.Service
	router http.Handler
	team   models.Team
	prompt models.Prompt
	owner  testutil.TestUser
}

func setup(t *testing.T) (*env, context.Context) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	t.Cleanup(cancel)

	fx := testutil.NewFixtures(t, db)
	owner := testutil.OwnerUser()
	team := fx.CreateTeam(ctx, "Support", owner.ID)
	p := fx.CreatePrompt(ctx, team.ID, "Greeting")

	clk := clock.NewManual(time.Now().UTC())
	links := accesslinks.New(accessgrants.New(db), accesslinks.Config{}, clk, nil, nil)

	return &env{
		db:     db,
		fx:     fx,
		clock:  clk,
		links:  links,
		router: prompts.Routes(prompts.NewHandler(db, links, nil, nil)),
		team:   team,
		prompt: p,
		owner:  owner,
	}, ctx
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) asGuest(req *http.Request, token string, perms models.GuestPermissions) *http.Request {
	req, _ = testutil.WithGuest(req, e.team.ID.Hex(), token, perms)
	return req
}

// guestToken issues a live link for the env's team and returns its token.
func (e *env) guestToken(t *testing.T, ctx context.Context) string {
	t.Helper()
	return e.fx.CreateAccessGrant(ctx, e.team, 24*time.Hour).ID
}

func (e *env) reload(t *testing.T, ctx context.Context) models.Prompt {
	t.Helper()
	p, err := promptstore.New(e.db).GetByID(ctx, e.prompt.ID)
	if err != nil {
		t.Fatalf("reload prompt: %v", err)
	}
	return p
}

func TestHandleCopy(t *testing.T) {
	e, ctx := setup(t)
	path := "/" + e.prompt.ID.Hex() + "/copy"
	token := e.guestToken(t, ctx)

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
	}{
		{"member", func() *http.Request {
			return testutil.NewAuthenticatedRequest("POST", path, e.owner)
		}, http.StatusOK},
		{"guest with copy", func() *http.Request {
			return e.asGuest(testutil.NewRequest("POST", path), token, models.DefaultGuestPermissions())
		}, http.StatusOK},
		{"guest without copy", func() *http.Request {
			perms := models.DefaultGuestPermissions()
			perms.CanCopy = false
			return e.asGuest(testutil.NewRequest("POST", path), token, perms)
		}, http.StatusForbidden},
		{"guest of another team", func() *http.Request {
			req, _ := testutil.WithGuest(testutil.NewRequest("POST", path), primitive.NewObjectID().Hex(), token, models.DefaultGuestPermissions())
			return req
		}, http.StatusForbidden},
		{"signed-in outsider", func() *http.Request {
			return testutil.NewAuthenticatedRequest("POST", path, testutil.OutsiderUser())
		}, http.StatusForbidden},
		{"anonymous", func() *http.Request {
			return testutil.NewRequest("POST", path)
		}, http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := e.do(tc.req()); rec.Code != tc.status {
				t.Errorf("status: got %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
		})
	}

	if got := e.reload(t, ctx).CopyCount; got != 2 {
		t.Errorf("copy_count: got %d, want 2", got)
	}
}

func TestHandleCopy_UnknownPrompt(t *testing.T) {
	e, _ := setup(t)

	rec := e.do(testutil.NewAuthenticatedRequest("POST", "/"+primitive.NewObjectID().Hex()+"/copy", e.owner))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: got %d, want 404", rec.Code)
	}
	rec = e.do(testutil.NewAuthenticatedRequest("POST", "/not-an-id/copy", e.owner))
	if rec.Code != http.StatusNotFound {
		t.Errorf("malformed id: got %d, want 404", rec.Code)
	}
}

func TestComments_GuestLifecycle(t *testing.T) {
	e, ctx := setup(t)
	base := "/" + e.prompt.ID.Hex() + "/comments"
	token := e.guestToken(t, ctx)
	perms := models.DefaultGuestPermissions()

	// Create: markup is stripped and the guest identity is recorded.
	rec := e.do(e.asGuest(formRequest("POST", base, url.Values{"body": {"<b>Works</b> well<script>x()</script>"}}), token, perms))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		ID       string `json:"id"`
		AuthorID string `json:"authorId"`
		IsGuest  bool   `json:"isGuest"`
		Body     string `json:"body"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Body != "Works well" {
		t.Errorf("body: got %q", created.Body)
	}
	if !created.IsGuest || created.AuthorID != "guest_"+token {
		t.Errorf("attribution: %+v", created)
	}
	if got := e.reload(t, ctx).CommentCount; got != 1 {
		t.Errorf("comment_count after create: got %d", got)
	}

	// List as the owner.
	rec = e.do(testutil.NewAuthenticatedRequest("GET", base, e.owner))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Works well") {
		t.Errorf("list: got %d %s", rec.Code, rec.Body.String())
	}

	// Another guest token cannot delete it.
	rec = e.do(e.asGuest(testutil.NewRequest("DELETE", base+"/"+created.ID), e.guestToken(t, ctx), perms))
	if rec.Code != http.StatusForbidden {
		t.Errorf("delete by other guest: got %d, want 403", rec.Code)
	}

	// The writing guest can.
	rec = e.do(e.asGuest(testutil.NewRequest("DELETE", base+"/"+created.ID), token, perms))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete by author guest: got %d (%s)", rec.Code, rec.Body.String())
	}
	if got := e.reload(t, ctx).CommentCount; got != 0 {
		t.Errorf("comment_count after delete: got %d", got)
	}
}

func TestComments_OwnerDeletesGuestComment(t *testing.T) {
	e, ctx := setup(t)
	base := "/" + e.prompt.ID.Hex() + "/comments"

	rec := e.do(e.asGuest(formRequest("POST", base, url.Values{"body": {"hello"}}), e.guestToken(t, ctx), models.DefaultGuestPermissions()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rec.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = e.do(testutil.NewAuthenticatedRequest("DELETE", base+"/"+created.ID, e.owner))
	if rec.Code != http.StatusNoContent {
		t.Errorf("owner delete: got %d", rec.Code)
	}
}

func TestComments_Rejections(t *testing.T) {
	e, ctx := setup(t)
	base := "/" + e.prompt.ID.Hex() + "/comments"

	rec := e.do(testutil.WithUser(formRequest("POST", base, url.Values{"body": {"<p>  </p>"}}), e.owner))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty comment: got %d, want 400", rec.Code)
	}

	perms := models.DefaultGuestPermissions()
	perms.CanComment = false
	rec = e.do(e.asGuest(formRequest("POST", base, url.Values{"body": {"hi"}}), e.guestToken(t, ctx), perms))
	if rec.Code != http.StatusForbidden {
		t.Errorf("guest without comment: got %d, want 403", rec.Code)
	}

	rec = e.do(testutil.NewAuthenticatedRequest("DELETE", base+"/"+primitive.NewObjectID().Hex(), e.owner))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown comment: got %d, want 404", rec.Code)
	}
}

func TestHandleRate(t *testing.T) {
	e, ctx := setup(t)
	path := "/" + e.prompt.ID.Hex() + "/rating"
	token := e.guestToken(t, ctx)
	perms := models.DefaultGuestPermissions()

	rate := func(req *http.Request) (int, float64, int64) {
		t.Helper()
		rec := e.do(req)
		var resp struct {
			AverageRating float64 `json:"averageRating"`
			RatingCount   int64   `json:"ratingCount"`
		}
		if rec.Code == http.StatusOK {
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
		}
		return rec.Code, resp.AverageRating, resp.RatingCount
	}

	if code, avg, n := rate(e.asGuest(formRequest("POST", path, url.Values{"value": {"4"}}), token, perms)); code != http.StatusOK || avg != 4 || n != 1 {
		t.Errorf("first rating: %d %v %d", code, avg, n)
	}
	// Re-rating replaces the guest's value rather than adding a second one.
	if code, avg, n := rate(e.asGuest(formRequest("POST", path, url.Values{"value": {"2"}}), token, perms)); code != http.StatusOK || avg != 2 || n != 1 {
		t.Errorf("re-rating: %d %v %d", code, avg, n)
	}
	if code, avg, n := rate(testutil.WithUser(formRequest("POST", path, url.Values{"value": {"5"}}), e.owner)); code != http.StatusOK || avg != 3.5 || n != 2 {
		t.Errorf("member rating: %d %v %d", code, avg, n)
	}

	p := e.reload(t, ctx)
	if p.RatingSum != 7 || p.RatingCount != 2 {
		t.Errorf("stored totals: sum %d count %d", p.RatingSum, p.RatingCount)
	}
	n, err := e.db.Collection("ratings").CountDocuments(ctx, bson.M{"prompt_id": e.prompt.ID})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 2 {
		t.Errorf("rating documents: got %d, want 2", n)
	}

	for _, v := range []string{"0", "6", "abc", ""} {
		if code, _, _ := rate(testutil.WithUser(formRequest("POST", path, url.Values{"value": {v}}), e.owner)); code != http.StatusBadRequest {
			t.Errorf("value %q: got %d, want 400", v, code)
		}
	}

	perms.CanRate = false
	if code, _, _ := rate(e.asGuest(formRequest("POST", path, url.Values{"value": {"3"}}), e.guestToken(t, ctx), perms)); code != http.StatusForbidden {
		t.Errorf("guest without rate: got %d, want 403", code)
	}
}

func TestGuestWrites_EndWithTheLink(t *testing.T) {
	e, ctx := setup(t)
	comments := "/" + e.prompt.ID.Hex() + "/comments"
	rating := "/" + e.prompt.ID.Hex() + "/rating"
	perms := models.DefaultGuestPermissions()

	t.Run("revoked", func(t *testing.T) {
		token := e.guestToken(t, ctx)
		if rec := e.do(e.asGuest(formRequest("POST", comments, url.Values{"body": {"before"}}), token, perms)); rec.Code != http.StatusCreated {
			t.Fatalf("comment while active: got %d (%s)", rec.Code, rec.Body.String())
		}
		if err := e.links.RevokeLink(ctx, token, e.owner.ID); err != nil {
			t.Fatalf("RevokeLink: %v", err)
		}

		req, store := testutil.WithGuest(formRequest("POST", comments, url.Values{"body": {"after"}}), e.team.ID.Hex(), token, perms)
		if rec := e.do(req); rec.Code != http.StatusForbidden {
			t.Errorf("comment after revoke: got %d, want 403", rec.Code)
		}
		if store.Session().HasAccess {
			t.Error("revoked link must end the guest session")
		}
	})

	t.Run("expired", func(t *testing.T) {
		token := e.guestToken(t, ctx)
		if rec := e.do(e.asGuest(formRequest("POST", rating, url.Values{"value": {"4"}}), token, perms)); rec.Code != http.StatusOK {
			t.Fatalf("rate while active: got %d (%s)", rec.Code, rec.Body.String())
		}
		e.clock.Advance(25 * time.Hour)

		req, store := testutil.WithGuest(formRequest("POST", rating, url.Values{"value": {"1"}}), e.team.ID.Hex(), token, perms)
		if rec := e.do(req); rec.Code != http.StatusForbidden {
			t.Errorf("rate after expiry: got %d, want 403", rec.Code)
		}
		if store.Session().HasAccess {
			t.Error("expired link must end the guest session")
		}
	})

	t.Run("members unaffected", func(t *testing.T) {
		if rec := e.do(testutil.WithUser(formRequest("POST", comments, url.Values{"body": {"member"}}), e.owner)); rec.Code != http.StatusCreated {
			t.Errorf("member comment: got %d", rec.Code)
		}
	})
}
