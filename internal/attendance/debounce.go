package attendance

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/rollcall/internal/database"
)

const (
	DefaultAcceptCooldown  = 2 * time.Second
	DefaultUnknownCooldown = 3 * time.Second
)

// Debouncer rate-limits repeated recognition events from a camera stream.
// An accepted identity is written to the ledger at most once per accept cooldown
// per session; an unknown face counts at most once per unknown cooldown per session.
type Debouncer struct {
	acceptCooldown  time.Duration
	unknownCooldown time.Duration
	now             func() time.Time

	mu       sync.Mutex
	accepted map[string]time.Time    // record key -> last allowed write
	unknown  map[uuid.UUID]time.Time // session -> last counted unknown
}

// NewDebouncer creates a debouncer. Non-positive cooldowns fall back to defaults.
func NewDebouncer(acceptCooldown, unknownCooldown time.Duration) *Debouncer {
	if acceptCooldown <= 0 {
		acceptCooldown = DefaultAcceptCooldown
	}
	if unknownCooldown <= 0 {
		unknownCooldown = DefaultUnknownCooldown
	}
	return &Debouncer{
		acceptCooldown:  acceptCooldown,
		unknownCooldown: unknownCooldown,
		now:             time.Now,
		accepted:        make(map[string]time.Time),
		unknown:         make(map[uuid.UUID]time.Time),
	}
}

// AllowAccepted reports whether an accepted decision for identity should be written.
// A true result starts a new cooldown window.
func (d *Debouncer) AllowAccepted(sessionID uuid.UUID, identity string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return allowAt(d.accepted, database.RecordKey(sessionID, identity), d.acceptCooldown, d.now())
}

// AllowUnknown reports whether an unknown face in the session should be counted.
func (d *Debouncer) AllowUnknown(sessionID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return allowAt(d.unknown, sessionID, d.unknownCooldown, d.now())
}

func allowAt[K comparable](m map[K]time.Time, key K, cooldown time.Duration, now time.Time) bool {
	if last, ok := m[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	m[key] = now
	return true
}

// Forget drops the cooldown state of a session.
func (d *Debouncer) Forget(sessionID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prefix := sessionID.String() + "/"
	for key := range d.accepted {
		if strings.HasPrefix(key, prefix) {
			delete(d.accepted, key)
		}
	}
	delete(d.unknown, sessionID)
}

// Prune drops entries whose cooldown has elapsed and returns how many were removed.
func (d *Debouncer) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for key, last := range d.accepted {
		if now.Sub(last) >= d.acceptCooldown {
			delete(d.accepted, key)
			removed++
		}
	}
	for key, last := range d.unknown {
		if now.Sub(last) >= d.unknownCooldown {
			delete(d.unknown, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked cooldown windows.
func (d *Debouncer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.accepted) + len(d.unknown)
}
