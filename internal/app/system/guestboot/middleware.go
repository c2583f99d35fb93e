package guestboot

import (
	"net/http"

	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"go.uber.org/zap"
)

// StorageFunc opens the reload-surviving storage for one request.
type StorageFunc func(w http.ResponseWriter, r *http.Request) guestsession.Storage

// RestoreMiddleware gives every request its own guest session Store and runs
// Restore on it before calling next. Mount it ahead of the identity
// middleware, whose "no user" hook issues an unforced clear.
func RestoreMiddleware(open StorageFunc, opts guestsession.Options) func(http.Handler) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := guestsession.New(open(w, r), opts)
			if res := Restore(store); res == guestsession.RestoreFromBackup {
				log.Info("guest session restored at page load",
					zap.String("path", r.URL.Path),
					zap.String("source", res.String()))
			}
			next.ServeHTTP(w, r.WithContext(guestsession.WithStore(r.Context(), store)))
		})
	}
}
