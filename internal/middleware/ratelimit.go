package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

// RateLimiter throttles requests per client IP. A client that drains its bucket is refused
// until the block expires, even if tokens refill earlier.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*client
	attempts int
	per      time.Duration
	block    time.Duration
	now      func() time.Time
}

type client struct {
	limiter      *rate.Limiter
	blockedUntil time.Time
	lastSeen     time.Time
}

// NewRateLimiter allows attempts requests per window for each IP, refilling evenly.
func NewRateLimiter(attempts int, window, block time.Duration) *RateLimiter {
	if attempts <= 0 {
		attempts = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		clients:  make(map[string]*client),
		attempts: attempts,
		per:      window / time.Duration(attempts),
		block:    block,
		now:      time.Now,
	}
}

// Middleware rejects throttled requests with 429 and a Retry-After header.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if wait, ok := r.allow(c.ClientIP()); !ok {
			c.Header("Retry-After", strconv.Itoa(int((wait+time.Second-1)/time.Second)))
			response.Error(c, appErrors.Clone(appErrors.ErrTooManyRequests, "too many login attempts, try again later"))
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) allow(ip string) (time.Duration, bool) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	cl, ok := r.clients[ip]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(rate.Every(r.per), r.attempts)}
		r.clients[ip] = cl
	}
	cl.lastSeen = now

	if now.Before(cl.blockedUntil) {
		return cl.blockedUntil.Sub(now), false
	}
	if !cl.limiter.AllowN(now, 1) {
		cl.blockedUntil = now.Add(r.block)
		return r.block, false
	}
	return 0, true
}

// Sweep forgets clients idle for longer than idle and no longer blocked. It returns how many were dropped.
func (r *RateLimiter) Sweep(idle time.Duration) int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for ip, cl := range r.clients {
		if now.Sub(cl.lastSeen) > idle && !now.Before(cl.blockedUntil) {
			delete(r.clients, ip)
			dropped++
		}
	}
	return dropped
}
