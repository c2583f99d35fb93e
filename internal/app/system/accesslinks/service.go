// Package accesslinks issues and validates guest access links. A link is a
// record in the backend whose id doubles as the token handed to the guest;
// revoking the record kills the token.
package accesslinks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/store/accessgrants"
	"github.com/dalemusser/promptshelf/internal/app/system/clock"
	"github.com/dalemusser/promptshelf/internal/app/system/events"
	"github.com/dalemusser/promptshelf/internal/app/system/metrics"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Link lifetimes, in days.
const (
	DefaultTTLDays = 7
	MaxTTLDays     = 365
)

// Paths embedded in generated URLs.
const (
	GuestPath = "/guest-team"
	JoinPath  = "/join"
)

// Repository is the durable side of access links. *accessgrants.Store
// implements it. Get, RecordAccess and Revoke return accessgrants.ErrNotFound
// for unknown ids.
type Repository interface {
	Create(ctx context.Context, g models.AccessGrant) error
	Get(ctx context.Context, id string) (models.AccessGrant, error)
	RecordAccess(ctx context.Context, id string, at time.Time) error
	ListByTeam(ctx context.Context, teamID string) ([]models.AccessGrant, error)
	Revoke(ctx context.Context, id, revokedBy string, at time.Time) error
}

// Config holds service settings.
type Config struct {
	BaseURL        string // scheme://host used for shareable links; empty yields relative URLs
	DefaultTTLDays int    // used when a request passes ttlDays <= 0
}

// Service issues, validates and administers access links.
type Service struct {
	repo       Repository
	clock      clock.Clock
	events     events.Publisher
	log        *zap.Logger
	baseURL    string
	defaultTTL int
}

// New creates a Service. A nil clock uses the wall clock, a nil publisher
// drops events and a nil logger discards logs.
func New(repo Repository, cfg Config, clk clock.Clock, pub events.Publisher, logger *zap.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.DefaultTTLDays
	if ttl <= 0 {
		ttl = DefaultTTLDays
	}
	return &Service{
		repo:       repo,
		clock:      clk,
		events:     pub,
		log:        logger,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		defaultTTL: ttl,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Issue                                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// IssueRequest describes a link to create.
type IssueRequest struct {
	TeamID      string
	TeamName    string
	CreatedBy   string
	CreatorName string
	TTLDays     int // <= 0 uses the configured default
}

// IssuedLink is what the issuer hands back to the team admin.
type IssuedLink struct {
	ID          string                  `json:"id"`
	Token       string                  `json:"token"`
	URL         string                  `json:"url"`
	ExpiresAt   time.Time               `json:"expiresAt"`
	Permissions models.GuestPermissions `json:"permissions"`
}

// IssueLink creates an active link with the default guest permissions.
// Nothing is written when validation fails.
func (s *Service) IssueLink(ctx context.Context, req IssueRequest) (IssuedLink, error) {
	teamID := strings.TrimSpace(req.TeamID)
	teamName := strings.TrimSpace(req.TeamName)
	createdBy := strings.TrimSpace(req.CreatedBy)

	switch {
	case teamID == "":
		return IssuedLink{}, fmt.Errorf("%w: team id is required", ErrInvalidInput)
	case teamName == "":
		return IssuedLink{}, fmt.Errorf("%w: team name is required", ErrInvalidInput)
	case createdBy == "":
		return IssuedLink{}, fmt.Errorf("%w: creator is required", ErrInvalidInput)
	case req.TTLDays > MaxTTLDays:
		return IssuedLink{}, fmt.Errorf("%w: ttl may not exceed %d days", ErrInvalidInput, MaxTTLDays)
	}

	ttl := req.TTLDays
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.clock.Now()
	expiresAt := now.Add(time.Duration(ttl) * 24 * time.Hour)
	g := models.AccessGrant{
		ID:          uuid.NewString(),
		TeamID:      teamID,
		TeamName:    teamName,
		CreatedBy:   createdBy,
		CreatorName: strings.TrimSpace(req.CreatorName),
		CreatedAt:   now,
		ExpiresAt:   &expiresAt,
		Status:      models.GrantStatusActive,
		Permissions: models.DefaultGuestPermissions(),
	}

	if err := s.repo.Create(ctx, g); err != nil {
		return IssuedLink{}, fmt.Errorf("create access link: %w", err)
	}

	metrics.LinksIssued.Inc()
	s.publish(ctx, events.Event{Type: events.TypeLinkIssued, LinkID: g.ID, TeamID: teamID, Actor: createdBy, At: now})
	s.log.Info("guest access link issued",
		zap.String("team_id", teamID),
		zap.String("created_by", createdBy),
		zap.Int("ttl_days", ttl))

	return IssuedLink{
		ID:          g.ID,
		Token:       g.ID,
		URL:         s.LinkURL(g.ID),
		ExpiresAt:   expiresAt,
		Permissions: g.Permissions,
	}, nil
}

// LinkURL is the shareable guest URL for token.
func (s *Service) LinkURL(token string) string {
	return s.baseURL + GuestPath + "?" + url.Values{"token": {token}}.Encode()
}

// InviteURL is the member invite URL for a team.
func (s *Service) InviteURL(teamID string) string {
	return s.baseURL + JoinPath + "?" + url.Values{"teamId": {teamID}}.Encode()
}

/*─────────────────────────────────────────────────────────────────────────────*
| Validate                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

// Grant is a successfully validated link.
type Grant struct {
	Token       string                  `json:"token"`
	TeamID      string                  `json:"teamId"`
	TeamName    string                  `json:"teamName"`
	Permissions models.GuestPermissions `json:"permissions"`
	ExpiresAt   *time.Time              `json:"expiresAt,omitempty"`
}

// ValidateToken checks token against its record. Failures are
// *ValidationError, checked in order: NO_TOKEN, NOT_FOUND, DEACTIVATED,
// EXPIRED. A link that is both revoked and expired reports DEACTIVATED.
// Backend failures report TIMED_OUT (ctx deadline) or UNAVAILABLE.
//
// A successful validation bumps the link's usage counters; failure to do so
// is logged and does not fail the validation.
func (s *Service) ValidateToken(ctx context.Context, token string) (grant Grant, err error) {
	start := time.Now()
	defer func() {
		metrics.ValidationDuration.Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil {
			result = string(CodeOf(err))
		}
		metrics.Validations.WithLabelValues(result).Inc()
	}()

	g, now, err := s.lookup(ctx, token)
	if err != nil {
		return Grant{}, err
	}

	if err := s.repo.RecordAccess(ctx, g.ID, now); err != nil {
		s.log.Warn("record guest link access failed", zap.String("link_id", g.ID), zap.Error(err))
	}
	s.publish(ctx, events.Event{Type: events.TypeLinkAccessed, LinkID: g.ID, TeamID: g.TeamID, At: now})

	return Grant{
		Token:       g.ID,
		TeamID:      g.TeamID,
		TeamName:    g.TeamName,
		Permissions: g.Permissions,
		ExpiresAt:   g.ExpiresAt,
	}, nil
}

// CheckGrant re-reads the record behind a token already in use and reports
// whether it still grants access. Failures are *ValidationError with the
// same codes as ValidateToken. Nothing is counted or published.
func (s *Service) CheckGrant(ctx context.Context, token string) error {
	_, _, err := s.lookup(ctx, token)
	return err
}

// lookup loads the record for token and applies the status and expiry
// checks in order. DEACTIVATED wins over EXPIRED.
func (s *Service) lookup(ctx context.Context, token string) (models.AccessGrant, time.Time, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.AccessGrant{}, time.Time{}, fail(CodeNoToken, nil)
	}

	g, err := s.repo.Get(ctx, token)
	if err != nil {
		return models.AccessGrant{}, time.Time{}, s.classify(ctx, err)
	}

	now := s.clock.Now()
	if g.Status != models.GrantStatusActive {
		return models.AccessGrant{}, now, fail(CodeDeactivated, nil)
	}
	if g.IsExpired(now) {
		return models.AccessGrant{}, now, fail(CodeExpired, nil)
	}
	return g, now, nil
}

func (s *Service) classify(ctx context.Context, err error) *ValidationError {
	switch {
	case errors.Is(err, accessgrants.ErrNotFound):
		return fail(CodeNotFound, nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fail(CodeTimedOut, err)
	default:
		s.log.Warn("guest link lookup failed", zap.Error(err))
		return fail(CodeUnavailable, err)
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Admin                                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// ListActiveLinks returns the team's links that currently grant access,
// newest first. Revoked and expired links are filtered out.
func (s *Service) ListActiveLinks(ctx context.Context, teamID string) ([]models.AccessGrant, error) {
	all, err := s.repo.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list access links: %w", err)
	}
	now := s.clock.Now()
	out := make([]models.AccessGrant, 0, len(all))
	for _, g := range all {
		if g.GrantsAccess(now) {
			out = append(out, g)
		}
	}
	return out, nil
}

// GetLink loads one link by id.
func (s *Service) GetLink(ctx context.Context, linkID string) (models.AccessGrant, error) {
	g, err := s.repo.Get(ctx, linkID)
	if errors.Is(err, accessgrants.ErrNotFound) {
		return models.AccessGrant{}, ErrLinkNotFound
	}
	if err != nil {
		return models.AccessGrant{}, fmt.Errorf("get access link: %w", err)
	}
	return g, nil
}

// RevokeLink deactivates a link. The record is kept. Revoking an already
// revoked link succeeds without changing it.
func (s *Service) RevokeLink(ctx context.Context, linkID, revokedBy string) error {
	if strings.TrimSpace(linkID) == "" {
		return fmt.Errorf("%w: link id is required", ErrInvalidInput)
	}
	now := s.clock.Now()
	err := s.repo.Revoke(ctx, linkID, revokedBy, now)
	if errors.Is(err, accessgrants.ErrNotFound) {
		return ErrLinkNotFound
	}
	if err != nil {
		return fmt.Errorf("revoke access link: %w", err)
	}

	metrics.LinksRevoked.Inc()
	teamID := ""
	if g, err := s.repo.Get(ctx, linkID); err == nil {
		teamID = g.TeamID
	}
	s.publish(ctx, events.Event{Type: events.TypeLinkRevoked, LinkID: linkID, TeamID: teamID, Actor: revokedBy, At: now})
	s.log.Info("guest access link revoked", zap.String("link_id", linkID), zap.String("revoked_by", revokedBy))
	return nil
}

// Stats summarises a team's links.
type Stats struct {
	Total         int        `json:"total"`
	Active        int        `json:"active"`
	Revoked       int        `json:"revoked"`
	Expired       int        `json:"expired"`
	TotalAccesses int64      `json:"totalAccesses"`
	LastAccessed  *time.Time `json:"lastAccessed,omitempty"`
}

// GetStats aggregates over every link the team has ever issued. A link that
// is revoked counts as revoked even if it has also expired.
func (s *Service) GetStats(ctx context.Context, teamID string) (Stats, error) {
	all, err := s.repo.ListByTeam(ctx, teamID)
	if err != nil {
		return Stats{}, fmt.Errorf("list access links: %w", err)
	}
	now := s.clock.Now()
	var st Stats
	for _, g := range all {
		st.Total++
		switch {
		case g.Status != models.GrantStatusActive:
			st.Revoked++
		case g.IsExpired(now):
			st.Expired++
		default:
			st.Active++
		}
		st.TotalAccesses += g.AccessCount
		if g.LastAccessed != nil && (st.LastAccessed == nil || g.LastAccessed.After(*st.LastAccessed)) {
			t := *g.LastAccessed
			st.LastAccessed = &t
		}
	}
	return st, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish guest link event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}
