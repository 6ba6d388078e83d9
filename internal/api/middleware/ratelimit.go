package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/solid/oidc-auth-manager/internal/api/presenter"
)

// staleAfter is how long an idle client keeps its bucket before it is
// pruned.
const staleAfter = 3 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per remote address. It is meant
// for credential endpoints, where unbounded guessing must stay expensive.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rps     rate.Limit
	burst   int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (rl *RateLimiter) allow(addr string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	c, ok := rl.clients[addr]
	if !ok {
		c = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst), lastSeen: now}
		rl.clients[addr] = c

		// prune stale buckets while we hold the lock anyway
		for k, v := range rl.clients {
			if now.Sub(v.lastSeen) > staleAfter {
				delete(rl.clients, k)
			}
		}
	}
	c.lastSeen = now
	return c.limiter.Allow()
}

// Middleware rejects clients that exceed their bucket with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !rl.allow(host) {
			log.Ctx(r.Context()).Warn().Str("remote", host).Msg("rate limit exceeded")
			presenter.Error(w, r, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
