// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	authgooglefeature "github.com/dalemusser/promptshelf/internal/app/features/authgoogle"
	guestlinksfeature "github.com/dalemusser/promptshelf/internal/app/features/guestlinks"
	guestteamfeature "github.com/dalemusser/promptshelf/internal/app/features/guestteam"
	healthfeature "github.com/dalemusser/promptshelf/internal/app/features/health"
	homefeature "github.com/dalemusser/promptshelf/internal/app/features/home"
	logoutfeature "github.com/dalemusser/promptshelf/internal/app/features/logout"
	promptsfeature "github.com/dalemusser/promptshelf/internal/app/features/prompts"
	"github.com/dalemusser/promptshelf/internal/app/resources"
	"github.com/dalemusser/promptshelf/internal/app/store/accessgrants"
	"github.com/dalemusser/promptshelf/internal/app/store/audit"
	"github.com/dalemusser/promptshelf/internal/app/store/oauthstate"
	promptstore "github.com/dalemusser/promptshelf/internal/app/store/prompts"
	teamstore "github.com/dalemusser/promptshelf/internal/app/store/teams"
	"github.com/dalemusser/promptshelf/internal/app/system/accesslinks"
	"github.com/dalemusser/promptshelf/internal/app/system/auditlog"
	"github.com/dalemusser/promptshelf/internal/app/system/auth"
	"github.com/dalemusser/promptshelf/internal/app/system/clock"
	"github.com/dalemusser/promptshelf/internal/app/system/events"
	"github.com/dalemusser/promptshelf/internal/app/system/guestboot"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/dalemusser/promptshelf/internal/app/system/metrics"
	"github.com/dalemusser/promptshelf/internal/app/system/ratelimit"
	"github.com/dalemusser/promptshelf/internal/app/system/tabstore"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Cookie names derived from the session cookie name.
const (
	guestCookieSuffix = "-guest"
	tabCookieSuffix   = "-tab"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// Middleware order matters: the guest session restore runs first so that
// the identity middleware's anonymous hook sees a restored guest session
// and leaves it alone.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// Initialize and boot the template engine once at startup.
	resources.LoadSharedTemplates()
	eng := templates.New(coreCfg.Env == "dev")
	if err := eng.Boot(logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return nil, err
	}
	templates.UseEngine(eng, logger)

	db := deps.MongoDatabase
	auditLogger := auditlog.New(audit.New(db), logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Guest: appCfg.AuditLogGuest,
		Admin: appCfg.AuditLogAdmin,
	})

	var publisher events.Publisher = events.Nop{}
	if deps.NATS != nil {
		publisher = events.NewNATSPublisher(deps.NATS, events.DefaultSubjectPrefix, logger)
	}

	links := accesslinks.New(accessgrants.New(db), accesslinks.Config{
		BaseURL:        appCfg.BaseURL,
		DefaultTTLDays: appCfg.GuestLinkTTLDays,
	}, clock.Real(), publisher, logger)

	boot := guestboot.New(links, guestboot.Config{
		ValidateTimeout: appCfg.GuestValidateTimeout,
		ReloadDelay:     appCfg.GuestReloadDelay,
	}, logger)

	openStorage := guestStorage(appCfg, deps, secure, logger)
	guestOpts := guestsession.Options{
		Clock:   clock.Real(),
		MemoTTL: appCfg.GuestMemoTTL,
		Logger:  logger,
	}

	// A request with no signed-in user issues an unforced clear. It is a
	// no-op while a guest token is resolvable.
	sessionMgr.OnAnonymous(func(r *http.Request) {
		if store := guestsession.FromRequest(r); store != nil {
			store.ClearSession(false)
		}
	})

	r := chi.NewRouter()

	r.Use(guestboot.RestoreMiddleware(openStorage, guestOpts))
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	checks := []healthfeature.Check{healthfeature.MongoCheck(deps.MongoClient)}
	if deps.Redis != nil {
		checks = append(checks, healthfeature.RedisCheck(deps.Redis))
	}
	if deps.NATS != nil {
		checks = append(checks, healthfeature.NATSCheck(deps.NATS))
	}
	healthHandler := healthfeature.NewHandler(logger, checks...)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Handle("/metrics", metrics.Handler())

	homeHandler := homefeature.NewHandler(logger)
	r.Mount("/", homefeature.Routes(homeHandler))

	// Authentication
	googleHandler := authgooglefeature.NewHandler(sessionMgr, auditLogger, oauthstate.New(db),
		appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL, logger)
	r.Mount(auth.LoginPath, authgooglefeature.Routes(googleHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, auditLogger, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

	// Guest landing page, rate limited per client IP when carrying a token.
	guestHandler := guestteamfeature.NewHandler(boot, links, promptstore.New(db), auditLogger, publisher, logger)
	guestRoutes := guestteamfeature.Routes(guestHandler)
	if appCfg.GuestValidateRateLimit > 0 {
		limiter := ratelimit.New(appCfg.GuestValidateRateLimit, time.Minute)
		deps.bg.add(limiter)
		r.Group(func(gr chi.Router) {
			gr.Use(ratelimit.Middleware(limiter, carriesToken, logger))
			gr.Mount(guestboot.ReloadURL, guestRoutes)
		})
	} else {
		r.Mount(guestboot.ReloadURL, guestRoutes)
	}

	// Prompt actions for members and guests
	promptsHandler := promptsfeature.NewHandler(db, links, auditLogger, logger)
	r.Mount("/prompts", promptsfeature.Routes(promptsHandler))

	// Guest link administration
	linksHandler := guestlinksfeature.NewHandler(links, teamstore.New(db), auditLogger, logger)
	r.Mount("/teams/{teamID}/guest-links", guestlinksfeature.Routes(linksHandler, sessionMgr))

	return r, nil
}

// carriesToken reports whether the request will run a token validation.
func carriesToken(r *http.Request) bool {
	return r.URL.Query().Get("token") != ""
}

// guestStorage picks the reload-surviving storage for guest sessions.
func guestStorage(appCfg AppConfig, deps DBDeps, secure bool, logger *zap.Logger) guestboot.StorageFunc {
	name := appCfg.SessionName
	if name == "" {
		name = auth.DefaultSessionName
	}

	if appCfg.GuestStorage == GuestStorageRedis && deps.Redis != nil {
		f := tabstore.NewRedisFactory(deps.Redis, auth.DeriveKey(appCfg.SessionKey, auth.PurposeTabHash),
			name+tabCookieSuffix, appCfg.SessionDomain, secure, logger)
		logger.Info("guest sessions stored in Redis")
		return func(w http.ResponseWriter, r *http.Request) guestsession.Storage {
			return f.For(w, r)
		}
	}

	f := tabstore.NewCookieFactory(
		auth.DeriveKey(appCfg.SessionKey, auth.PurposeGuestHash),
		auth.DeriveKey(appCfg.SessionKey, auth.PurposeGuestBlock),
		name+guestCookieSuffix, appCfg.SessionDomain, secure)
	logger.Info("guest sessions stored in cookies")
	return func(w http.ResponseWriter, r *http.Request) guestsession.Storage {
		return f.For(w, r)
	}
}
