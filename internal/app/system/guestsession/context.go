package guestsession

import (
	"context"
	"net/http"
)

type ctxKey struct{}

// WithStore returns a copy of ctx carrying s.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request's Store, or nil if none was attached.
func FromContext(ctx context.Context) *Store {
	s, _ := ctx.Value(ctxKey{}).(*Store)
	return s
}

// FromRequest is FromContext(r.Context()).
func FromRequest(r *http.Request) *Store {
	return FromContext(r.Context())
}
