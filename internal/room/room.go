// Package room implements the Room Registry: room creation with unique
// codes, the 1-hour live TTL, the 6-hour post-expiry download cooldown,
// and ownership of each room's ptt.Handler.
package room

import (
	"time"

	"github.com/n0remac/classroom-ptt/internal/ptt"
	"github.com/n0remac/classroom-ptt/internal/storage"
)

// Room is one classroom session: a code, its lifecycle instants, and the
// handler coordinating its WebSocket traffic.
type Room struct {
	Code                 string
	CreatedAt            time.Time
	ExpiredAt            time.Time
	Persistent           bool
	EnableCloudRecording bool

	Handler *ptt.Handler
	Sink    storage.Sink
}

// TTL returns the time remaining until expiry, floored at zero.
func (r *Room) TTL(now time.Time) time.Duration {
	if now.After(r.ExpiredAt) {
		return 0
	}
	return r.ExpiredAt.Sub(now)
}

// Expired reports whether the room has passed its TTL.
func (r *Room) Expired(now time.Time) bool {
	return now.After(r.ExpiredAt)
}

// cooldownEntry tracks a room code that has expired but whose captures are
// still downloadable.
type cooldownEntry struct {
	code      string
	sink      storage.Sink
	expiresAt time.Time
}

func (c *cooldownEntry) Cooldown(now time.Time) time.Duration {
	if now.After(c.expiresAt) {
		return 0
	}
	return c.expiresAt.Sub(now)
}
