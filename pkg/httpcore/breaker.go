package httpcore

import (
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	// breakerFailureThreshold is the consecutive-failure count that opens a
	// host's circuit.
	breakerFailureThreshold = 5

	// breakerResetTimeout is how long an open circuit waits before letting a
	// probe request through.
	breakerResetTimeout = 60 * time.Second
)

// breakerSet holds one circuit breaker per upstream host, created lazily.
type breakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	log      *slog.Logger
	metrics  *Metrics
}

func newBreakerSet(log *slog.Logger, metrics *Metrics) *breakerSet {
	return &breakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		log:      log,
		metrics:  metrics,
	}
}

func (s *breakerSet) forHost(host string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if br, ok := s.breakers[host]; ok {
		return br
	}
	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1, // a single probe in half-open
		Timeout:     breakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn("Circuit breaker state changed",
				"host", name, "from", from.String(), "to", to.String())
			s.metrics.breakerTransitions.WithLabelValues(name, to.String()).Inc()
		},
	})
	s.breakers[host] = br
	return br
}

func (s *breakerSet) states() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.breakers))
	for host, br := range s.breakers {
		out[host] = br.State().String()
	}
	return out
}

// reset drops the breaker for a host so the next request starts with a fresh
// closed circuit. Returns false if the host had no breaker.
func (s *breakerSet) reset(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.breakers[host]; !ok {
		return false
	}
	delete(s.breakers, host)
	return true
}

var errNoHost = errors.New("URL has no host")

func hostOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", errNoHost
	}
	return u.Host, nil
}

// hostLabel is hostOf for metric labels, tolerating bad URLs.
func hostLabel(raw string) string {
	host, err := hostOf(raw)
	if err != nil {
		return "invalid"
	}
	return host
}
