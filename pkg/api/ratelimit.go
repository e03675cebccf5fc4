package api

import (
	"sync"
	"time"

	echo "github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/errkind"
)

// limiterClass selects the per-route token bucket.
type limiterClass int

const (
	classAnalyze limiterClass = iota
	classSearch
	classAdmin
)

// visitorTTL is how long an idle client's buckets are kept before pruning.
const visitorTTL = 3 * time.Hour

// visitor holds the token buckets for one client IP.
type visitor struct {
	analyze    *rate.Limiter
	search     *rate.Limiter
	admin      *rate.Limiter
	globalMin  *rate.Limiter
	globalHour *rate.Limiter
	lastSeen   time.Time
}

// rateLimiters enforces the inbound per-client-IP limits: one bucket per
// route class plus a minute and an hourly global ceiling.
type rateLimiters struct {
	cfg *config.RateLimitConfig

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPrune time.Time
}

func newRateLimiters(cfg *config.RateLimitConfig) *rateLimiters {
	if cfg == nil {
		cfg = config.DefaultRateLimitConfig()
	}
	return &rateLimiters{
		cfg:       cfg,
		visitors:  make(map[string]*visitor),
		lastPrune: time.Now(),
	}
}

func perMinute(n int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(n)/60.0), n)
}

func perHour(n int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(n)/3600.0), n)
}

func (rl *rateLimiters) visitor(ip string) *visitor {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastPrune) > visitorTTL {
		for addr, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(rl.visitors, addr)
			}
		}
		rl.lastPrune = now
	}

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{
			analyze:    perMinute(rl.cfg.AnalyzePerMinute),
			search:     perMinute(rl.cfg.SearchPerMinute),
			admin:      perMinute(rl.cfg.AdminPerMinute),
			globalMin:  perMinute(rl.cfg.GlobalPerMinute),
			globalHour: perHour(rl.cfg.GlobalPerHour),
		}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v
}

// global returns middleware enforcing the cross-route ceiling.
func (rl *rateLimiters) global() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			v := rl.visitor(c.RealIP())
			if !v.globalMin.Allow() || !v.globalHour.Allow() {
				return writeErrorKind(c, errkind.HTTPStatus(errkind.RateLimited),
					errkind.RateLimited, "global request limit exceeded")
			}
			return next(c)
		}
	}
}

// route returns middleware enforcing one route class's bucket.
func (rl *rateLimiters) route(class limiterClass) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			v := rl.visitor(c.RealIP())
			var limiter *rate.Limiter
			switch class {
			case classAnalyze:
				limiter = v.analyze
			case classAdmin:
				limiter = v.admin
			default:
				limiter = v.search
			}
			if !limiter.Allow() {
				return writeErrorKind(c, errkind.HTTPStatus(errkind.RateLimited),
					errkind.RateLimited, "request limit exceeded for this route")
			}
			return next(c)
		}
	}
}
