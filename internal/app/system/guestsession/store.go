package guestsession

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/promptshelf/internal/app/system/clock"
	"github.com/dalemusser/promptshelf/internal/app/system/metrics"
	"github.com/dalemusser/promptshelf/internal/domain/models"
	"go.uber.org/zap"
)

// Storage is the reload-surviving key/value store behind the primary and
// backup tiers. Implementations live in package tabstore.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Remove(key string) error
}

// Flusher is implemented by Storage that buffers writes. The Store calls
// Flush once after each session write or clear.
type Flusher interface {
	Flush() error
}

// Defaults for Options.
const (
	DefaultNamespace = "guest"
	DefaultBackupKey = "guestSessionBackup"
	DefaultMemoTTL   = time.Second
)

// Options configures a Store. Zero values take the defaults above.
type Options struct {
	Namespace string // primary tier key prefix
	BackupKey string // backup tier key
	Clock     clock.Clock
	MemoTTL   time.Duration
	Logger    *zap.Logger
}

type keys struct {
	token       string
	teamID      string
	permissions string
	guestMode   string
	backup      string
}

type memoryTier struct {
	token  string
	teamID string
	perms  *models.GuestPermissions
}

func (m memoryTier) complete() bool {
	return m.token != "" && m.teamID != "" && m.perms != nil
}

// backupPayload is the JSON stored under the backup key.
type backupPayload struct {
	Token       string                   `json:"token"`
	TeamID      string                   `json:"teamId"`
	Permissions *models.GuestPermissions `json:"permissions"`
	Timestamp   int64                    `json:"timestamp"` // unix millis of the write
}

// Store is the guest session for one page load. The memory tier lives on the
// Store; the primary and backup tiers live in Storage and outlast it.
//
// Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	storage Storage
	keys    keys
	clock   clock.Clock
	log     *zap.Logger

	mem  memoryTier
	memo *memo
}

// New creates a Store over storage.
func New(storage Storage, opts Options) *Store {
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	backup := opts.BackupKey
	if backup == "" {
		backup = DefaultBackupKey
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	ttl := opts.MemoTTL
	if ttl == 0 {
		ttl = DefaultMemoTTL
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		storage: storage,
		keys: keys{
			token:       ns + ".token",
			teamID:      ns + ".teamId",
			permissions: ns + ".permissions",
			guestMode:   ns + ".isGuestMode",
			backup:      backup,
		},
		clock: clk,
		log:   log,
		memo:  newMemo(ttl),
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Writes                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

// SetSession commits a guest session to every tier: memory, then primary,
// then backup. Token and team id must be non-empty; nothing is written
// otherwise.
func (s *Store) SetSession(teamID string, perms *models.GuestPermissions, token string) error {
	token = strings.TrimSpace(token)
	teamID = strings.TrimSpace(teamID)
	if token == "" {
		return ErrMissingToken
	}
	if teamID == "" {
		return ErrMissingTeam
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.memo.invalidate()
	s.mem = memoryTier{token: token, teamID: teamID, perms: clonePerms(perms)}

	if err := s.writePrimary(s.mem); err != nil {
		s.log.Warn("guest session: primary tier write failed", zap.Error(err))
		return fmt.Errorf("write primary tier: %w", err)
	}
	if err := s.writeBackup(s.mem); err != nil {
		s.log.Warn("guest session: backup tier write failed", zap.Error(err))
		return fmt.Errorf("write backup tier: %w", err)
	}
	if err := s.flush(); err != nil {
		s.log.Warn("guest session: storage flush failed", zap.Error(err))
		return fmt.Errorf("flush guest storage: %w", err)
	}

	s.log.Debug("guest session stored", zap.String("team_id", teamID))
	return nil
}

// ClearSession clears the guest session.
//
// Without force, the call is refused (returns false) while a token is
// resolvable from memory or the primary tier. Identity callbacks that report
// "no user" on every load call it this way, and must not wipe a live guest.
//
// With force, memory, primary and backup are all cleared. This is the only
// way a guest session really ends.
func (s *Store) ClearSession(force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !force && s.resolvableTokenLocked() != "" {
		metrics.GuestClearBlocked.Inc()
		s.log.Debug("guest session: unforced clear blocked")
		return false
	}

	s.memo.invalidate()
	s.mem = memoryTier{}
	s.removePrimary()
	if force {
		if err := s.storage.Remove(s.keys.backup); err != nil {
			s.log.Warn("guest session: backup tier remove failed", zap.Error(err))
		}
	}
	if err := s.flush(); err != nil {
		s.log.Warn("guest session: storage flush failed", zap.Error(err))
	}
	if force {
		s.log.Info("guest session ended")
	}
	return true
}

/*─────────────────────────────────────────────────────────────────────────────*
| Reads                                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// Session resolves the current session from memory, then the primary tier,
// then the backup tier. A backup hit re-hydrates memory and the primary tier.
// Results are memoized for the configured window.
func (s *Store) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if cached, ok := s.memo.get(now); ok {
		cached.Permissions = clonePerms(cached.Permissions)
		return cached
	}
	sess := s.resolveLocked()
	s.memo.set(sess, now)
	sess.Permissions = clonePerms(sess.Permissions)
	return sess
}

// Token returns the guest token with the same fallback and re-hydration as
// Session, or "" if there is none.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem.token != "" {
		return s.mem.token
	}
	if tok := s.get(s.keys.token); tok != "" {
		s.mem.token = tok
		return tok
	}
	if b, ok := s.readBackup(); ok {
		s.rehydrateLocked(b)
		return b.token
	}
	return ""
}

// GuestUserID returns "guest_<token>", or "" when no token is resolvable.
func (s *Store) GuestUserID() string {
	return GuestUserID(s.Token())
}

// Restore is the load-time restore step. It must run before anything else
// touches the session on a page load:
//
//  1. primary tier complete: hydrate memory from it.
//  2. else backup complete: hydrate memory and rewrite the primary tier.
//  3. else leave everything empty.
func (s *Store) Restore() RestoreResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memo.invalidate()

	if p, ok := s.readPrimary(); ok {
		s.mem = p
		metrics.GuestRestores.WithLabelValues(RestoreFromPrimary.String()).Inc()
		return RestoreFromPrimary
	}
	if b, ok := s.readBackup(); ok {
		s.rehydrateLocked(b)
		metrics.GuestRestores.WithLabelValues(RestoreFromBackup.String()).Inc()
		return RestoreFromBackup
	}
	return RestoreNone
}

/*─────────────────────────────────────────────────────────────────────────────*
| Tier helpers (callers hold s.mu)                                             |
*─────────────────────────────────────────────────────────────────────────────*/

func (s *Store) resolveLocked() Session {
	if s.mem.complete() {
		return newSession(s.mem.token, s.mem.teamID, s.mem.perms, TierMemory)
	}
	if p, ok := s.readPrimary(); ok {
		s.mem = p
		return newSession(p.token, p.teamID, p.perms, TierPrimary)
	}
	if b, ok := s.readBackup(); ok {
		s.rehydrateLocked(b)
		return newSession(b.token, b.teamID, b.perms, TierBackup)
	}
	return Session{}
}

// rehydrateLocked copies a backup payload into memory and the primary tier.
func (s *Store) rehydrateLocked(b memoryTier) {
	s.memo.invalidate()
	s.mem = b
	if err := s.writePrimary(b); err != nil {
		s.log.Warn("guest session: primary tier rewrite from backup failed", zap.Error(err))
		return
	}
	if err := s.flush(); err != nil {
		s.log.Warn("guest session: storage flush failed", zap.Error(err))
		return
	}
	s.log.Info("guest session restored from backup", zap.String("team_id", b.teamID))
}

func (s *Store) resolvableTokenLocked() string {
	if s.mem.token != "" {
		return s.mem.token
	}
	return s.get(s.keys.token)
}

// get reads one key, treating storage errors as absence.
func (s *Store) get(key string) string {
	v, ok, err := s.storage.Get(key)
	if err != nil {
		s.log.Warn("guest session: storage read failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (s *Store) readPrimary() (memoryTier, bool) {
	m := memoryTier{
		token:  s.get(s.keys.token),
		teamID: s.get(s.keys.teamID),
	}
	if raw := s.get(s.keys.permissions); raw != "" {
		var p models.GuestPermissions
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.log.Warn("guest session: unreadable permissions in primary tier", zap.Error(err))
		} else if raw != "null" {
			m.perms = &p
		}
	}
	return m, m.complete()
}

func (s *Store) readBackup() (memoryTier, bool) {
	raw := s.get(s.keys.backup)
	if raw == "" {
		return memoryTier{}, false
	}
	var b backupPayload
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		s.log.Warn("guest session: unreadable backup payload", zap.Error(err))
		return memoryTier{}, false
	}
	m := memoryTier{token: b.Token, teamID: b.TeamID, perms: b.Permissions}
	return m, m.complete()
}

func (s *Store) writePrimary(m memoryTier) error {
	perms, err := json.Marshal(m.perms)
	if err != nil {
		return err
	}
	if err := s.storage.Set(s.keys.token, m.token); err != nil {
		return err
	}
	if err := s.storage.Set(s.keys.teamID, m.teamID); err != nil {
		return err
	}
	if err := s.storage.Set(s.keys.permissions, string(perms)); err != nil {
		return err
	}
	return s.storage.Set(s.keys.guestMode, "true")
}

func (s *Store) flush() error {
	if f, ok := s.storage.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (s *Store) writeBackup(m memoryTier) error {
	raw, err := json.Marshal(backupPayload{
		Token:       m.token,
		TeamID:      m.teamID,
		Permissions: m.perms,
		Timestamp:   s.clock.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return s.storage.Set(s.keys.backup, string(raw))
}

func (s *Store) removePrimary() {
	for _, k := range []string{s.keys.token, s.keys.teamID, s.keys.permissions, s.keys.guestMode} {
		if err := s.storage.Remove(k); err != nil {
			s.log.Warn("guest session: primary tier remove failed", zap.String("key", k), zap.Error(err))
		}
	}
}
