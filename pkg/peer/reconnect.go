package peer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Target is a satellite the controller keeps reconnecting to
type Target struct {
	Node string
	Addr string
}

// DialFunc makes one connection attempt to a target
type DialFunc func(ctx context.Context, target Target) error

type pending struct {
	target  Target
	backoff *backoff.ExponentialBackOff
	next    time.Time
}

// ReconnectService retries connections to disconnected satellites. Each
// target backs off exponentially on its own; a shared limiter bounds the
// attempt rate across all targets.
type ReconnectService struct {
	dial     DialFunc
	interval time.Duration
	limiter  *rate.Limiter
	logger   zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	targets map[string]*pending
	wakeCh  chan struct{}
}

// NewReconnectService creates a reconnect service. interval is the first
// retry delay and the cadence of the retry loop; attemptsPerSecond bounds
// the global attempt rate.
func NewReconnectService(dial DialFunc, interval time.Duration, attemptsPerSecond float64) *ReconnectService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if attemptsPerSecond <= 0 {
		attemptsPerSecond = 5
	}
	burst := int(attemptsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &ReconnectService{
		dial:     dial,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Limit(attemptsPerSecond), burst),
		logger:   log.WithComponent("reconnect"),
		now:      time.Now,
		targets:  make(map[string]*pending),
		wakeCh:   make(chan struct{}, 1),
	}
}

func targetKey(node string) string { return strings.ToUpper(node) }

// Add schedules reconnect attempts to target. Adding a node that is
// already pending only updates its address.
func (s *ReconnectService) Add(target Target) {
	s.mu.Lock()
	key := targetKey(target.Node)
	if p, ok := s.targets[key]; ok {
		p.target.Addr = target.Addr
		s.mu.Unlock()
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.interval
	b.MaxInterval = 10 * s.interval
	b.MaxElapsedTime = 0 // Retry until removed
	b.Reset()
	s.targets[key] = &pending{target: target, backoff: b, next: s.now()}
	s.mu.Unlock()

	s.logger.Debug().Str("node", target.Node).Str("addr", target.Addr).Msg("Scheduled reconnect")
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Remove stops reconnect attempts to a node
func (s *ReconnectService) Remove(node string) {
	s.mu.Lock()
	delete(s.targets, targetKey(node))
	s.mu.Unlock()
}

// Pending returns the nodes with scheduled reconnect attempts
func (s *ReconnectService) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.targets))
	for _, p := range s.targets {
		out = append(out, p.target.Node)
	}
	return out
}

// Run retries pending targets until ctx is done
func (s *ReconnectService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("Reconnect service started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Reconnect service stopped")
			return nil
		case <-ticker.C:
		case <-s.wakeCh:
		}
		if err := s.attemptDue(ctx); err != nil {
			return nil
		}
	}
}

// due returns the targets whose next attempt time has passed
func (s *ReconnectService) due() []Target {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Target
	for _, p := range s.targets {
		if !p.next.After(now) {
			out = append(out, p.target)
		}
	}
	return out
}

// attemptDue makes one attempt per due target. It returns an error only
// when ctx ends while waiting for the limiter.
func (s *ReconnectService) attemptDue(ctx context.Context) error {
	for _, target := range s.due() {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		err := s.dial(ctx, target)

		s.mu.Lock()
		p, ok := s.targets[targetKey(target.Node)]
		if !ok {
			s.mu.Unlock()
			continue
		}
		if err == nil {
			delete(s.targets, targetKey(target.Node))
			s.mu.Unlock()
			metrics.ReconnectAttemptsTotal.WithLabelValues("success").Inc()
			s.logger.Info().Str("node", target.Node).Str("addr", target.Addr).Msg("Reconnected to satellite")
			continue
		}
		delay := p.backoff.NextBackOff()
		p.next = s.now().Add(delay)
		s.mu.Unlock()

		metrics.ReconnectAttemptsTotal.WithLabelValues("failure").Inc()
		s.logger.Debug().Err(err).
			Str("node", target.Node).
			Str("addr", target.Addr).
			Dur("retry_in", delay).
			Msg("Reconnect attempt failed")
	}
	return nil
}
