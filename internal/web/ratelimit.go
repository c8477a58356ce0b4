package web

import (
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiter enforces a per-client request rate, keyed by remote IP.
type rateLimiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	clients map[string]*rate.Limiter
}

func newRateLimiter(perSec float64) *rateLimiter {
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		perSec:  rate.Limit(perSec),
		burst:   burst,
		clients: make(map[string]*rate.Limiter),
	}
}

func (rl *rateLimiter) allow(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	rl.mu.Lock()
	lim, ok := rl.clients[host]
	if !ok {
		lim = rate.NewLimiter(rl.perSec, rl.burst)
		rl.clients[host] = lim
	}
	rl.mu.Unlock()

	return lim.Allow()
}
