// Package guestboot reconciles the guest session on each page load: it
// validates a token arriving in the URL and commits the grant, and it
// restores a prior grant from storage before anything else sees the request.
package guestboot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/system/accesslinks"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is where the bootstrap state machine ended up.
type State string

const (
	StateNoToken    State = "NO_TOKEN_IN_URL"
	StateValidating State = "VALIDATING"
	StateGranted    State = "GRANTED"
	StateDenied     State = "DENIED"
)

// Reason explains a denial to the guest.
type Reason string

const (
	ReasonExpired     Reason = "expired"
	ReasonDeactivated Reason = "deactivated"
	ReasonInvalid     Reason = "invalid"
	ReasonTimedOut    Reason = "timed_out"
	ReasonGeneric     Reason = "generic"
)

// Defaults for Config.
const (
	DefaultValidateTimeout = 10 * time.Second
	DefaultReloadDelay     = 3 * time.Second
	ReloadURL              = "/guest-team"
)

var errVerifyFailed = errors.New("guest session not readable after write")

// Validator checks a token. *accesslinks.Service implements it.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (accesslinks.Grant, error)
}

// Config tunes the bootstrapper.
type Config struct {
	ValidateTimeout time.Duration // <= 0 uses DefaultValidateTimeout
	ReloadDelay     time.Duration // < 0 disables the delay; 0 uses DefaultReloadDelay
}

// Outcome is the result of one Run.
type Outcome struct {
	State     State
	Reason    Reason // set when State is StateDenied
	Message   string
	Retryable bool
	Grant     *accesslinks.Grant

	// Where and when the page must fully reload after a grant.
	ReloadURL   string
	ReloadAfter time.Duration
}

// Bootstrapper runs the token flow.
type Bootstrapper struct {
	validator   Validator
	timeout     time.Duration
	reloadDelay time.Duration
	log         *zap.Logger
}

// New creates a Bootstrapper.
func New(v Validator, cfg Config, logger *zap.Logger) *Bootstrapper {
	timeout := cfg.ValidateTimeout
	if timeout <= 0 {
		timeout = DefaultValidateTimeout
	}
	delay := cfg.ReloadDelay
	switch {
	case delay == 0:
		delay = DefaultReloadDelay
	case delay < 0:
		delay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{validator: v, timeout: timeout, reloadDelay: delay, log: logger}
}

// Run handles a page load that may carry a token.
//
// Without a token it reports StateNoToken and leaves the store alone; the
// load-time Restore has already done whatever there was to do. With a token
// it validates (bounded by the configured timeout), commits the grant to
// every tier and checks it reads back. A denial leaves no session behind.
func (b *Bootstrapper) Run(ctx context.Context, store *guestsession.Store, token string) Outcome {
	token = strings.TrimSpace(token)
	if token == "" {
		return Outcome{State: StateNoToken}
	}
	if _, err := uuid.Parse(token); err != nil {
		b.log.Info("guest token malformed")
		return denied(ReasonGeneric, "This access link is not valid.", false)
	}

	// StateValidating lasts for the duration of this call.
	vctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	grant, err := b.validator.ValidateToken(vctx, token)
	if err != nil {
		out := deniedFor(err)
		b.log.Info("guest access denied",
			zap.String("reason", string(out.Reason)),
			zap.String("code", string(accesslinks.CodeOf(err))))
		return out
	}

	perms := grant.Permissions
	if err := store.SetSession(grant.TeamID, &perms, grant.Token); err != nil {
		b.log.Error("guest session write failed", zap.Error(err))
		store.ClearSession(true)
		return denied(ReasonGeneric, "Your browser would not store the guest session. Check that cookies are enabled and try again.", true)
	}
	if err := verify(store, grant); err != nil {
		b.log.Error("guest session verification failed", zap.Error(err))
		store.ClearSession(true)
		return denied(ReasonGeneric, "Your browser would not store the guest session. Check that cookies are enabled and try again.", true)
	}

	b.log.Info("guest access granted", zap.String("team_id", grant.TeamID))
	return Outcome{
		State:       StateGranted,
		Message:     "Access granted to " + grant.TeamName + ".",
		Grant:       &grant,
		ReloadURL:   ReloadURL,
		ReloadAfter: b.reloadDelay,
	}
}

func verify(store *guestsession.Store, g accesslinks.Grant) error {
	sess := store.Session()
	if !sess.HasAccess || sess.Token != g.Token || sess.TeamID != g.TeamID {
		return errVerifyFailed
	}
	return nil
}

func deniedFor(err error) Outcome {
	switch accesslinks.CodeOf(err) {
	case accesslinks.CodeExpired:
		return denied(ReasonExpired, "This access link has expired. Ask the team for a new one.", false)
	case accesslinks.CodeDeactivated:
		return denied(ReasonDeactivated, "This access link has been deactivated by the team.", false)
	case accesslinks.CodeNoToken, accesslinks.CodeNotFound:
		return denied(ReasonInvalid, "This access link is not valid.", false)
	case accesslinks.CodeTimedOut:
		return denied(ReasonTimedOut, "Checking the access link took too long.", true)
	default:
		return denied(ReasonGeneric, "We could not check the access link right now.", true)
	}
}

func denied(r Reason, msg string, retryable bool) Outcome {
	return Outcome{State: StateDenied, Reason: r, Message: msg, Retryable: retryable}
}

// Restore is the load-time restore step. It must run before any other code
// reads or clears the session on this page load.
func Restore(store *guestsession.Store) guestsession.RestoreResult {
	return store.Restore()
}
