package guestsession

import "time"

// memo caches the last resolved Session for a short window so bursts of
// reads in one request don't re-read storage. Every write invalidates it.
type memo struct {
	ttl      time.Duration
	value    Session
	storedAt time.Time
	valid    bool
}

func newMemo(ttl time.Duration) *memo {
	return &memo{ttl: ttl}
}

func (m *memo) get(now time.Time) (Session, bool) {
	if !m.valid || m.ttl <= 0 || now.Sub(m.storedAt) >= m.ttl {
		return Session{}, false
	}
	return m.value, true
}

func (m *memo) set(s Session, now time.Time) {
	m.value = s
	m.storedAt = now
	m.valid = true
}

func (m *memo) invalidate() {
	m.value = Session{}
	m.valid = false
}
