package guestboot

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/promptshelf/internal/app/system/accesslinks"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/dalemusser/promptshelf/internal/app/system/timeouts"
)

// ErrAccessEnded is wrapped by Revalidate when the link behind a guest
// session no longer grants access.
var ErrAccessEnded = errors.New("guest access has ended")

// GrantChecker re-reads the record behind a token. *accesslinks.Service
// implements it.
type GrantChecker interface {
	CheckGrant(ctx context.Context, token string) error
}

// Revalidate confirms the session's link is still active and unexpired.
// When the link was revoked, has expired or is gone, the session is cleared
// with force and the error wraps ErrAccessEnded. Backend failures are
// returned as they are and leave the session in place.
func Revalidate(ctx context.Context, c GrantChecker, store *guestsession.Store) error {
	token := store.Token()
	if token == "" {
		return fmt.Errorf("%w: %w", ErrAccessEnded, accesslinks.ErrNoToken)
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	err := c.CheckGrant(ctx, token)
	switch accesslinks.CodeOf(err) {
	case "":
		return err
	case accesslinks.CodeNotFound, accesslinks.CodeDeactivated, accesslinks.CodeExpired, accesslinks.CodeNoToken:
		store.ClearSession(true)
		return fmt.Errorf("%w: %w", ErrAccessEnded, err)
	default:
		return err
	}
}
