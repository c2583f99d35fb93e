package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/system/auditlog"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/dalemusser/promptshelf/internal/testutil"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:               "mongodb://localhost:27017",
		MongoDatabase:          "promptshelf",
		SessionKey:             "test-session-key-0123456789abcdef-xyz",
		SessionName:            "test-session",
		SessionMaxAge:          time.Hour,
		BaseURL:                "https://shelf.test",
		GuestLinkTTLDays:       7,
		GuestValidateTimeout:   10 * time.Second,
		GuestReloadDelay:       3 * time.Second,
		GuestMemoTTL:           time.Second,
		GuestStorage:           GuestStorageCookie,
		GuestValidateRateLimit: 30,
		AuditLogAuth:           auditlog.DestAll,
		AuditLogGuest:          auditlog.DestLog,
		AuditLogAdmin:          auditlog.DestDB,
		MetricsRefreshInterval: time.Minute,
		StateCleanupInterval:   15 * time.Minute,
	}
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid cookie mode", func(*AppConfig) {}, ""},
		{"valid redis mode", func(c *AppConfig) { c.GuestStorage = GuestStorageRedis; c.RedisAddr = "localhost:6379" }, ""},
		{"short session key", func(c *AppConfig) { c.SessionKey = "short" }, "session key"},
		{"redis without address", func(c *AppConfig) { c.GuestStorage = GuestStorageRedis }, "redis_addr"},
		{"unknown storage", func(c *AppConfig) { c.GuestStorage = "local" }, "guest_storage"},
		{"ttl zero", func(c *AppConfig) { c.GuestLinkTTLDays = 0 }, "guest_link_ttl_days"},
		{"ttl too long", func(c *AppConfig) { c.GuestLinkTTLDays = 366 }, "guest_link_ttl_days"},
		{"negative rate limit", func(c *AppConfig) { c.GuestValidateRateLimit = -1 }, "guest_validate_rate_limit"},
		{"bad audit setting", func(c *AppConfig) { c.AuditLogGuest = "everything" }, "audit_log_guest"},
		{"zero worker interval", func(c *AppConfig) { c.MetricsRefreshInterval = 0 }, "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := validateApp(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig_BadMongoURI(t *testing.T) {
	cfg := validConfig()
	cfg.MongoURI = "postgres://nope"
	if err := ValidateConfig(&config.CoreConfig{}, cfg, testLogger()); err == nil {
		t.Fatal("expected invalid MongoDB URI to be rejected")
	}
}

type orderStopper struct {
	id  int
	out *[]int
}

func (s orderStopper) Stop() { *s.out = append(*s.out, s.id) }

func TestBackground_StopsInReverseOnce(t *testing.T) {
	var stopped []int
	bg := &background{}
	for i := 1; i <= 3; i++ {
		bg.add(orderStopper{id: i, out: &stopped})
	}

	bg.stopAll()
	bg.stopAll()

	if len(stopped) != 3 || stopped[0] != 3 || stopped[2] != 1 {
		t.Errorf("stop order: got %v, want [3 2 1]", stopped)
	}

	var nilBG *background
	nilBG.add(orderStopper{id: 9, out: &stopped})
	nilBG.stopAll()
}

func TestCarriesToken(t *testing.T) {
	if !carriesToken(httptest.NewRequest("GET", "/guest-team?token=abc", nil)) {
		t.Error("request with token should be limited")
	}
	if carriesToken(httptest.NewRequest("GET", "/guest-team", nil)) {
		t.Error("request without token should not be limited")
	}
	if carriesToken(httptest.NewRequest("GET", "/guest-team?token=", nil)) {
		t.Error("empty token should not be limited")
	}
}

func TestGuestStorage_CookieSurvivesReload(t *testing.T) {
	open := guestStorage(validConfig(), DBDeps{}, false, testLogger())

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/guest-team?token=abc", nil)
	perms := models.DefaultGuestPermissions()
	if err := guestsession.New(open(w, r), guestsession.Options{}).SetSession("T1", &perms, "abc"); err != nil {
		t.Fatalf("SetSession failed: %v", err)
	}

	if n := len(w.Header().Values("Set-Cookie")); n != 1 {
		t.Fatalf("expected one Set-Cookie header per session write, got %d", n)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "test-session-guest" {
		t.Fatalf("expected one guest cookie, got %+v", cookies)
	}
	if cookies[0].MaxAge != 0 {
		t.Errorf("guest cookie should end with the browser session, MaxAge=%d", cookies[0].MaxAge)
	}

	reload := httptest.NewRequest("GET", "/guest-team", nil)
	reload.AddCookie(cookies[0])
	sess := guestsession.New(open(httptest.NewRecorder(), reload), guestsession.Options{}).Session()
	if !sess.HasAccess || sess.Token != "abc" || sess.TeamID != "T1" {
		t.Errorf("after reload: got %+v", sess)
	}
}

func TestEnsureSchema(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db}
	if err := EnsureSchema(ctx, &config.CoreConfig{}, validConfig(), deps, testLogger()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
}

func TestStartup_ConfiguresTimeoutsAndWorkers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	t.Cleanup(timeouts.Reset)

	cfg := validConfig()
	cfg.TimeoutShort = 3 * time.Second
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db, bg: &background{}}

	if err := Startup(ctx, &config.CoreConfig{}, cfg, deps, testLogger()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	if got := timeouts.Short(); got != 3*time.Second {
		t.Errorf("Short timeout: got %v", got)
	}
	if got := timeouts.Medium(); got != timeouts.DefaultMedium {
		t.Errorf("zero Medium should keep default, got %v", got)
	}
	if n := len(deps.bg.items); n != 2 {
		t.Errorf("expected 2 background workers, got %d", n)
	}
	deps.bg.stopAll()
}

func TestBuildHandler_Routes(t *testing.T) {
	db := testutil.SetupTestDB(t)

	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db, bg: &background{}}
	t.Cleanup(deps.bg.stopAll)

	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validConfig(), deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler failed: %v", err)
	}

	tests := []struct {
		name     string
		method   string
		target   string
		wantCode int
		wantBody string
	}{
		{"health", "GET", "/health", http.StatusOK, `"database":"ok"`},
		{"home", "GET", "/", http.StatusOK, "Sign in with Google"},
		{"exit lands on home", "POST", "/guest-team/exit", http.StatusSeeOther, ""},
		{"unknown path", "GET", "/nope", http.StatusNotFound, ""},
		{"metrics", "GET", "/metrics", http.StatusOK, "promptshelf_guest_links_active"},
		{"guest landing without token", "GET", "/guest-team", http.StatusOK, "No access link"},
		{"guest prompts without session", "GET", "/guest-team/prompts", http.StatusForbidden, ""},
		{"link admin requires sign-in", "GET", "/teams/abc/guest-links", http.StatusUnauthorized, ""},
		{"unknown prompt", "POST", "/prompts/000000000000000000000000/copy", http.StatusNotFound, ""},
		{"google not configured", "GET", "/auth/google", http.StatusSeeOther, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status: got %d, want %d (body %q)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body missing %q: %s", tt.wantBody, rec.Body.String())
			}
		})
	}
}
