package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/depo-front/internal/ioutil"
	"github.com/dgellow/depo-front/internal/log"
	"github.com/dgellow/depo-front/internal/metrics"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds configuration for the provider circuit breaker.
type BreakerConfig struct {
	Name string

	// MaxRequests is the number of requests allowed in the half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration

	// Timeout is how long the breaker stays open before moving to half-open.
	Timeout time.Duration

	// FailureRatio trips the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig returns the breaker settings used for providers.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// BreakerTransport is an http.RoundTripper that fails fast while the
// provider is unhealthy. Transport errors and 5xx responses count as
// failures; a cancelled request does not.
type BreakerTransport struct {
	base    http.RoundTripper
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewBreakerTransport wraps base with a circuit breaker.
func NewBreakerTransport(base http.RoundTripper, cfg BreakerConfig, m *metrics.Metrics) *BreakerTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.LogWarnWithFields("idp", "Circuit breaker state change", map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			m.SetBreakerState(name, stateToFloat(to))
		},
	}
	m.SetBreakerState(cfg.Name, 0)

	return &BreakerTransport{
		base:    base,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// RoundTrip implements http.RoundTripper.
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %v", ctxErr, err)
			}
			return nil, err
		}
		if resp.StatusCode >= 500 {
			body := ioutil.ReadLimited(resp.Body, 1024)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("%w: server error %d: %s", ErrUnavailable, resp.StatusCode, body)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, err
}

// State returns the current breaker state.
func (t *BreakerTransport) State() gobreaker.State {
	return t.breaker.State()
}

// NewHTTPClient returns a client for provider calls protected by a breaker.
func NewHTTPClient(name string, timeout time.Duration, m *metrics.Metrics) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewBreakerTransport(http.DefaultTransport, DefaultBreakerConfig(name), m),
		// Provider endpoints answer directly; a redirect is a misconfiguration.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
