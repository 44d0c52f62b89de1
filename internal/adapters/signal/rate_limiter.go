package signal

import (
	"sync"
	"time"

	"github.com/dkeye/callbroker/internal/domain"
	"golang.org/x/time/rate"
)

type clientKey struct {
	room   domain.RoomID
	client domain.ClientID
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// ClientRateLimiter bounds fallback deliveries per (room, client).
type ClientRateLimiter struct {
	mu      sync.Mutex
	clients map[clientKey]*limiterEntry
	every   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

// NewClientRateLimiter allows limit requests per interval, with the full
// limit available as a burst.
func NewClientRateLimiter(limit int, interval time.Duration) *ClientRateLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &ClientRateLimiter{
		clients: make(map[clientKey]*limiterEntry),
		every:   rate.Every(interval / time.Duration(limit)),
		burst:   limit,
		idle:    2 * interval,
		now:     time.Now,
	}
}

func (rl *ClientRateLimiter) Allow(room domain.RoomID, client domain.ClientID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for k, e := range rl.clients {
		if now.Sub(e.seen) > rl.idle {
			delete(rl.clients, k)
		}
	}

	k := clientKey{room: room, client: client}
	e, ok := rl.clients[k]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rl.every, rl.burst)}
		rl.clients[k] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}
