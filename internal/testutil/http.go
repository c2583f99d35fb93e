package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/dalemusser/promptshelf/internal/app/system/auth"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/dalemusser/promptshelf/internal/app/system/tabstore"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/google/uuid"
)

// TestUser represents a signed-in user for testing HTTP handlers.
type TestUser struct {
	ID    string
	Name  string
	Email string
}

// OwnerUser returns a TestUser suitable as a team owner.
func OwnerUser() TestUser {
	return TestUser{
		ID:    "owner-" + uuid.NewString()[:8],
		Name:  "Test Owner",
		Email: "owner@test.com",
	}
}

// OutsiderUser returns a signed-in user who belongs to no team.
func OutsiderUser() TestUser {
	return TestUser{
		ID:    "outsider-" + uuid.NewString()[:8],
		Name:  "Test Outsider",
		Email: "outsider@test.com",
	}
}

// WithUser adds a user to the request context for testing authenticated handlers.
// This bypasses the session middleware and injects the user directly.
func WithUser(r *http.Request, user TestUser) *http.Request {
	return auth.WithTestUser(r, &auth.SessionUser{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
	})
}

// WithGuest attaches a guest session for teamID to the request, backed by
// an in-memory tab store. The store is returned so tests can inspect it.
func WithGuest(r *http.Request, teamID, token string, perms models.GuestPermissions) (*http.Request, *guestsession.Store) {
	s := guestsession.New(tabstore.NewMemory(), guestsession.Options{})
	if err := s.SetSession(teamID, &perms, token); err != nil {
		panic(err)
	}
	return r.WithContext(guestsession.WithStore(r.Context(), s)), s
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

// NewAuthenticatedRequest creates an HTTP request with a user in context.
func NewAuthenticatedRequest(method, target string, user TestUser) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return WithUser(req, user)
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d", r.Code, expected)
	}
}

// AssertRedirect checks for a redirect to the expected location.
func (r *ResponseRecorder) AssertRedirect(t interface{ Errorf(string, ...any) }, expectedLocation string) {
	if r.Code != http.StatusSeeOther && r.Code != http.StatusFound && r.Code != http.StatusMovedPermanently {
		t.Errorf("expected redirect status, got %d", r.Code)
	}
	location := r.Header().Get("Location")
	if location != expectedLocation {
		t.Errorf("redirect location: got %q, want %q", location, expectedLocation)
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}
