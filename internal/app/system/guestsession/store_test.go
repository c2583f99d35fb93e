package guestsession_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/system/clock"
	"github.com/dalemusser/promptshelf/internal/app/system/guestsession"
	"github.com/dalemusser/promptshelf/internal/app/system/tabstore"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func viewOnly() *models.GuestPermissions {
	return &models.GuestPermissions{CanView: true}
}

func newStore(storage guestsession.Storage, clk clock.Clock) *guestsession.Store {
	return guestsession.New(storage, guestsession.Options{Clock: clk})
}

// reload simulates a full page reload: the memory tier is gone, the storage
// (primary + backup tiers) survives.
func reload(storage guestsession.Storage, clk clock.Clock) *guestsession.Store {
	return newStore(storage, clk)
}

// failingStorage returns errors for every call.
type failingStorage struct{}

var errStorageDisabled = errors.New("storage disabled")

func (failingStorage) Get(string) (string, bool, error) { return "", false, errStorageDisabled }
func (failingStorage) Set(string, string) error         { return errStorageDisabled }
func (failingStorage) Remove(string) error              { return errStorageDisabled }

// countingStorage counts reads so memoization can be observed.
type countingStorage struct {
	*tabstore.Memory
	gets int
}

func (c *countingStorage) Get(key string) (string, bool, error) {
	c.gets++
	return c.Memory.Get(key)
}

func TestSetSession_RequiresTokenAndTeam(t *testing.T) {
	mem := tabstore.NewMemory()
	s := newStore(mem, clock.NewManual(t0))

	err := s.SetSession("T1", viewOnly(), "")
	assert.ErrorIs(t, err, guestsession.ErrMissingToken)

	err = s.SetSession("", viewOnly(), "abc123")
	assert.ErrorIs(t, err, guestsession.ErrMissingTeam)

	assert.Equal(t, 0, mem.Len(), "a rejected SetSession must not write anything")
	assert.False(t, s.Session().HasAccess)
}

func TestSetSession_WritesAllTiers(t *testing.T) {
	mem := tabstore.NewMemory()
	s := newStore(mem, clock.NewManual(t0))

	require.NoError(t, s.SetSession("T1", viewOnly(), "abc123"))

	sess := s.Session()
	assert.True(t, sess.HasAccess)
	assert.Equal(t, guestsession.TierMemory, sess.Source)

	for _, key := range []string{"guest.token", "guest.teamId", "guest.permissions", "guest.isGuestMode", "guestSessionBackup"} {
		_, ok, _ := mem.Get(key)
		assert.True(t, ok, "expected key %q to be written", key)
	}
	mode, _, _ := mem.Get("guest.isGuestMode")
	assert.Equal(t, "true", mode)
}

func TestSession_ValidityInvariant(t *testing.T) {
	full := map[string]string{
		"guest.token":       "abc123",
		"guest.teamId":      "T1",
		"guest.permissions": `{"canView":true}`,
	}
	tests := []struct {
		name    string
		drop    string
		want    bool
		replace map[string]string
	}{
		{name: "complete", want: true},
		{name: "missing token", drop: "guest.token"},
		{name: "missing team", drop: "guest.teamId"},
		{name: "missing permissions", drop: "guest.permissions"},
		{name: "null permissions", replace: map[string]string{"guest.permissions": "null"}},
		{name: "empty token", replace: map[string]string{"guest.token": ""}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mem := tabstore.NewMemory()
			for k, v := range full {
				if k == tc.drop {
					continue
				}
				_ = mem.Set(k, v)
			}
			for k, v := range tc.replace {
				_ = mem.Set(k, v)
			}

			sess := newStore(mem, clock.NewManual(t0)).Session()
			assert.Equal(t, tc.want, sess.HasAccess)
			if !tc.want {
				assert.Empty(t, sess.Token, "partial sessions must read as absent")
				assert.Empty(t, sess.TeamID)
				assert.Nil(t, sess.Permissions)
			}
		})
	}
}

func TestClearSession_UnforcedIsBlockedWhileTokenResolvable(t *testing.T) {
	mem := tabstore.NewMemory()
	s := newStore(mem, clock.NewManual(t0))
	require.NoError(t, s.SetSession("T1", viewOnly(), "abc123"))

	for i := 0; i < 5; i++ {
		assert.False(t, s.ClearSession(false), "unforced clear #%d should be blocked", i+1)
	}
	sess := s.Session()
	assert.True(t, sess.HasAccess)
	assert.Equal(t, "abc123", sess.Token)

	// Also blocked from a fresh page load where only storage holds the token.
	again := reload(mem, clock.NewManual(t0))
	assert.False(t, again.ClearSession(false))
	assert.True(t, again.Session().HasAccess)
}

func TestClearSession_ForcedRemovesEveryTier(t *testing.T) {
	mem := tabstore.NewMemory()
	s := newStore(mem, clock.NewManual(t0))
	require.NoError(t, s.SetSession("T1", viewOnly(), "abc123"))

	assert.True(t, s.ClearSession(true))
	assert.Equal(t, 0, mem.Len(), "forced clear must remove primary and backup keys")
	assert.False(t, s.Session().HasAccess)
	assert.Empty(t, s.Token())

	after := reload(mem, clock.NewManual(t0))
	assert.Equal(t, guestsession.RestoreNone, after.Restore())
	assert.False(t, after.Session().HasAccess)
}

func TestClearSession_UnforcedWithoutTokenKeepsBackup(t *testing.T) {
	mem := tabstore.NewMemory()
	s := newStore(mem, clock.NewManual(t0))
	require.NoError(t, s.SetSession("T1", viewOnly(), "abc123"))

	// Simulate an unguarded wipe of the primary tier (nothing in memory on
	// the next load, primary keys gone).
	for _, k := range []string{"guest.token", "guest.teamId", "guest.permissions", "guest.isGuestMode"} {
		_ = mem.Remove(k)
	}
	next := reload(mem, clock.NewManual(t0))

	// Nothing resolvable in memory or primary, so the clear proceeds, but it
	// must leave the backup alone.
	assert.True(t, next.ClearSession(false))
	_, ok, _ := mem.Get("guestSessionBackup")
	assert.True(t, ok)
	assert.True(t, next.Session().HasAccess)
}

func TestSession_RestoresFromBackupAndHeals(t *testing.T) {
	mem := tabstore.NewMemory()
	require.NoError(t, newStore(mem, clock.NewManual(t0)).SetSession("T1", viewOnly(), "abc123"))

	// Primary tier wiped before restore logic ran; memory gone after reload.
	for _, k := range []string{"guest.token", "guest.teamId", "guest.permissions", "guest.isGuestMode"} {
		require.NoError(t, mem.Remove(k))
	}

	s := reload(mem, clock.NewManual(t0))
	sess := s.Session()
	require.True(t, sess.HasAccess)
	assert.Equal(t, "T1", sess.TeamID)
	assert.Equal(t, "abc123", sess.Token)
	assert.Equal(t, guestsession.TierBackup, sess.Source)

	// Primary tier rewritten from the backup.
	tok, ok, _ := mem.Get("guest.token")
	assert.True(t, ok)
	assert.Equal(t, "abc123", tok)
	team, _, _ := mem.Get("guest.teamId")
	assert.Equal(t, "T1", team)

	// A later page load resolves from primary without touching the backup.
	assert.Equal(t, guestsession.TierPrimary, reload(mem, clock.NewManual(t0)).Session().Source)
}

func TestRestore_Order(t *testing.T) {
	t.Run("primary complete", func(t *testing.T) {
		mem := tabstore.NewMemory()
		require.NoError(t, newStore(mem, clock.NewManual(t0)).SetSession("T1", viewOnly(), "abc123"))

		s := reload(mem, clock.NewManual(t0))
		assert.Equal(t, guestsession.RestoreFromPrimary, s.Restore())
		assert.Equal(t, guestsession.TierMemory, s.Session().Source)
	})

	t.Run("backup only", func(t *testing.T) {
		mem := tabstore.NewMemory()
		require.NoError(t, newStore(mem, clock.NewManual(t0)).SetSession("T1", viewOnly(), "abc123"))
		require.NoError(t, mem.Remove("guest.permissions"))

		s := reload(mem, clock.NewManual(t0))
		assert.Equal(t, guestsession.RestoreFromBackup, s.Restore())
		raw, ok, _ := mem.Get("guest.permissions")
		assert.True(t, ok)
		assert.JSONEq(t, `{"canView":true,"canCopy":false,"canComment":false,"canRate":false,"canCreate":false,"canEdit":false,"canDelete":false,"canInvite":false,"canManageMembers":false}`, raw)
	})

	t.Run("nothing stored", func(t *testing.T) {
		s := newStore(tabstore.NewMemory(), clock.NewManual(t0))
		assert.Equal(t, guestsession.RestoreNone, s.Restore())
		assert.False(t, s.Session().HasAccess)
	})

	t.Run("corrupt backup", func(t *testing.T) {
		mem := tabstore.NewMemory()
		_ = mem.Set("guestSessionBackup", "{not json")
		s := newStore(mem, clock.NewManual(t0))
		assert.Equal(t, guestsession.RestoreNone, s.Restore())
	})
}

func TestReloadSurvival(t *testing.T) {
	mem := tabstore.NewMemory()
	first := newStore(mem, clock.NewManual(t0))
	require.NoError(t, first.SetSession("T1", viewOnly(), "abc123"))

	second := reload(mem, clock.NewManual(t0))
	second.Restore()

	sess := second.Session()
	assert.True(t, sess.HasAccess)
	assert.Equal(t, "T1", sess.TeamID)
}

func TestGuestUserID_StableAcrossReloadAndRestore(t *testing.T) {
	mem := tabstore.NewMemory()
	s := newStore(mem, clock.NewManual(t0))
	require.NoError(t, s.SetSession("T1", viewOnly(), "abc123"))

	before := s.GuestUserID()
	assert.Equal(t, "guest_abc123", before)

	for _, k := range []string{"guest.token", "guest.teamId", "guest.permissions", "guest.isGuestMode"} {
		_ = mem.Remove(k)
	}
	after := reload(mem, clock.NewManual(t0))
	after.Restore()

	assert.Equal(t, before, after.GuestUserID())
	assert.Equal(t, before, after.GuestUserID())
}

func TestToken_FallsBackToBackup(t *testing.T) {
	mem := tabstore.NewMemory()
	require.NoError(t, newStore(mem, clock.NewManual(t0)).SetSession("T1", viewOnly(), "abc123"))
	_ = mem.Remove("guest.token")

	s := reload(mem, clock.NewManual(t0))
	assert.Equal(t, "abc123", s.Token())
	tok, ok, _ := mem.Get("guest.token")
	assert.True(t, ok, "token read from backup should re-hydrate the primary tier")
	assert.Equal(t, "abc123", tok)
}

func TestSession_Memoized(t *testing.T) {
	cs := &countingStorage{Memory: tabstore.NewMemory()}
	clk := clock.NewManual(t0)
	require.NoError(t, newStore(cs, clk).SetSession("T1", viewOnly(), "abc123"))

	s := newStore(cs, clk)
	cs.gets = 0

	first := s.Session()
	require.True(t, first.HasAccess)
	reads := cs.gets
	require.Positive(t, reads)

	for i := 0; i < 10; i++ {
		s.Session()
	}
	assert.Equal(t, reads, cs.gets, "reads inside the memo window must not hit storage")

	clk.Advance(guestsession.DefaultMemoTTL)
	s.Session()
	assert.Equal(t, reads, cs.gets, "after expiry memory tier answers without storage reads")
}

func TestSession_MemoInvalidatedByWrites(t *testing.T) {
	mem := tabstore.NewMemory()
	clk := clock.NewManual(t0)
	s := newStore(mem, clk)

	assert.False(t, s.Session().HasAccess)
	require.NoError(t, s.SetSession("T1", viewOnly(), "abc123"))
	assert.True(t, s.Session().HasAccess, "SetSession must invalidate a cached miss")

	require.True(t, s.ClearSession(true))
	assert.False(t, s.Session().HasAccess, "forced clear must invalidate a cached hit")
}

func TestStorageFailure_DegradesToNoSession(t *testing.T) {
	s := newStore(failingStorage{}, clock.NewManual(t0))

	assert.NotPanics(t, func() {
		sess := s.Session()
		assert.False(t, sess.HasAccess)
		assert.Empty(t, s.Token())
		assert.Empty(t, s.GuestUserID())
		assert.Equal(t, guestsession.RestoreNone, s.Restore())
		assert.True(t, s.ClearSession(true))
	})

	err := s.SetSession("T1", viewOnly(), "abc123")
	assert.ErrorIs(t, err, errStorageDisabled)
}

func TestSession_PermissionsAreCopies(t *testing.T) {
	s := newStore(tabstore.NewMemory(), clock.NewManual(t0))
	perms := viewOnly()
	require.NoError(t, s.SetSession("T1", perms, "abc123"))

	perms.CanDelete = true
	got := s.Session().Permissions
	require.NotNil(t, got)
	assert.False(t, got.CanDelete)

	got.CanEdit = true
	assert.False(t, s.Session().Permissions.CanEdit)
}

func TestCustomNamespaces(t *testing.T) {
	mem := tabstore.NewMemory()
	s := guestsession.New(mem, guestsession.Options{
		Namespace: "tab",
		BackupKey: "tab.backup",
		Clock:     clock.NewManual(t0),
	})
	require.NoError(t, s.SetSession("T1", viewOnly(), "abc123"))

	_, ok, _ := mem.Get("tab.token")
	assert.True(t, ok)
	_, ok, _ = mem.Get("tab.backup")
	assert.True(t, ok)
	_, ok, _ = mem.Get("guest.token")
	assert.False(t, ok)
}
