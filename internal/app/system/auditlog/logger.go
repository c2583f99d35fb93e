// internal/app/system/auditlog/logger.go
package auditlog

// Terminology: Actors
//   - ActorID / actor_id: the identity-provider uid of a signed-in user, or
//     "guest_<token>" for a guest acting through an access link
//   - LinkID / link_id: the access link record id, which is also its token

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/store/audit"
	"go.uber.org/zap"
)

// Destination settings for each category.
const (
	DestAll = "all" // MongoDB + zap
	DestDB  = "db"  // MongoDB only
	DestLog = "log" // zap only
	DestOff = "off" // disabled
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for sign-in and sign-out events.
	Auth string
	// Guest controls logging for guest link validation, exit and denied actions.
	Guest string
	// Admin controls logging for link issue and revoke.
	Admin string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger. store may be nil, in which case every
// category behaves as "log" or "off".
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.TeamID != "" {
		fields = append(fields, zap.String("team_id", event.TeamID))
	}
	if event.LinkID != "" {
		fields = append(fields, zap.String("link_id", event.LinkID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

func (l *Logger) setting(category string) string {
	var s string
	switch category {
	case audit.CategoryAuth:
		s = l.config.Auth
	case audit.CategoryGuest:
		s = l.config.Guest
	case audit.CategoryAdmin:
		s = l.config.Admin
	}
	if s == "" {
		s = DestAll
	}
	return s
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	setting := l.setting(event.Category)
	if setting == DestOff {
		return
	}

	if setting == DestAll || setting == DestLog {
		l.logToZap(event)
	}

	if (setting == DestAll || setting == DestDB) && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func fromRequest(r *http.Request, category, eventType string) audit.Event {
	return audit.Event{
		Category:  category,
		EventType: eventType,
		IP:        getClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Authentication Events                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// LoginSuccess logs a successful sign-in.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID, email string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventLoginSuccess)
	e.ActorID = userID
	e.Success = true
	e.Details = map[string]string{"email": email}
	l.Log(ctx, e)
}

// LoginFailed logs a failed sign-in.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, reason string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventLoginFailed)
	e.FailureReason = reason
	l.Log(ctx, e)
}

// Logout logs a sign-out.
func (l *Logger) Logout(ctx context.Context, r *http.Request, userID string) {
	e := fromRequest(r, audit.CategoryAuth, audit.EventLogout)
	e.ActorID = userID
	e.Success = true
	l.Log(ctx, e)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Guest Events                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// GuestAccessGranted logs a successful link validation.
func (l *Logger) GuestAccessGranted(ctx context.Context, r *http.Request, linkID, teamID string) {
	e := fromRequest(r, audit.CategoryGuest, audit.EventGuestAccessGranted)
	e.LinkID = linkID
	e.TeamID = teamID
	e.ActorID = "guest_" + linkID
	e.Success = true
	l.Log(ctx, e)
}

// GuestAccessDenied logs a failed link validation. reason is the denial
// category shown to the guest.
func (l *Logger) GuestAccessDenied(ctx context.Context, r *http.Request, token, reason string) {
	e := fromRequest(r, audit.CategoryGuest, audit.EventGuestAccessDenied)
	e.LinkID = token
	e.FailureReason = reason
	l.Log(ctx, e)
}

// GuestExit logs a guest leaving guest mode.
func (l *Logger) GuestExit(ctx context.Context, r *http.Request, token, teamID string) {
	e := fromRequest(r, audit.CategoryGuest, audit.EventGuestExit)
	e.LinkID = token
	e.TeamID = teamID
	e.ActorID = "guest_" + token
	e.Success = true
	l.Log(ctx, e)
}

// GuestActionDenied logs an action a guest attempted without permission.
func (l *Logger) GuestActionDenied(ctx context.Context, r *http.Request, token, teamID, action string) {
	e := fromRequest(r, audit.CategoryGuest, audit.EventGuestActionDenied)
	e.LinkID = token
	e.TeamID = teamID
	if token != "" {
		e.ActorID = "guest_" + token
	}
	e.FailureReason = "permission denied"
	e.Details = map[string]string{"action": action}
	l.Log(ctx, e)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Admin Events                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// LinkIssued logs the creation of a guest access link.
func (l *Logger) LinkIssued(ctx context.Context, r *http.Request, actorID, teamID, linkID string, expiresAt time.Time) {
	e := fromRequest(r, audit.CategoryAdmin, audit.EventLinkIssued)
	e.ActorID = actorID
	e.TeamID = teamID
	e.LinkID = linkID
	e.Success = true
	e.Details = map[string]string{"expires_at": expiresAt.UTC().Format(time.RFC3339)}
	l.Log(ctx, e)
}

// LinkRevoked logs the revocation of a guest access link.
func (l *Logger) LinkRevoked(ctx context.Context, r *http.Request, actorID, teamID, linkID string) {
	e := fromRequest(r, audit.CategoryAdmin, audit.EventLinkRevoked)
	e.ActorID = actorID
	e.TeamID = teamID
	e.LinkID = linkID
	e.Success = true
	l.Log(ctx, e)
}
