package resilience

import (
	"math"
	"time"
)

// Outbound dependencies. Each gets its own policy and its own breakers.
const (
	DependencyGenerator = "generator"
	DependencyEmbedder  = "embedder"
	DependencyQueue     = "queue"
)

// Policy bounds retries and circuit breaking for one outbound dependency.
type Policy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	BreakerEnabled       bool
	BreakerMinRequests   uint32
	BreakerFailureRatio  float64
	BreakerOpenTimeout   time.Duration
	BreakerHalfOpenCalls uint32
}

// Policies maps a dependency name to its policy.
type Policies map[string]Policy

// DefaultPolicies returns the built-in policy of every known dependency.
// Generation retries once and trips after fewer failures than embedding.
func DefaultPolicies() Policies {
	return Policies{
		DependencyGenerator: {
			Attempts:             2,
			InitialBackoff:       500 * time.Millisecond,
			MaxBackoff:           2 * time.Second,
			Multiplier:           2,
			BreakerEnabled:       true,
			BreakerMinRequests:   5,
			BreakerFailureRatio:  0.6,
			BreakerOpenTimeout:   time.Minute,
			BreakerHalfOpenCalls: 1,
		},
		DependencyEmbedder: {
			Attempts:             3,
			InitialBackoff:       100 * time.Millisecond,
			MaxBackoff:           400 * time.Millisecond,
			Multiplier:           2,
			BreakerEnabled:       true,
			BreakerMinRequests:   10,
			BreakerFailureRatio:  0.5,
			BreakerOpenTimeout:   30 * time.Second,
			BreakerHalfOpenCalls: 2,
		},
		DependencyQueue: {
			Attempts:             5,
			InitialBackoff:       200 * time.Millisecond,
			MaxBackoff:           2 * time.Second,
			Multiplier:           2,
			BreakerEnabled:       true,
			BreakerMinRequests:   10,
			BreakerFailureRatio:  0.5,
			BreakerOpenTimeout:   15 * time.Second,
			BreakerHalfOpenCalls: 1,
		},
	}
}

// For returns the policy of dependency with unset fields taken from its
// default. Unknown dependencies run once without a breaker.
func (p Policies) For(dependency string) Policy {
	def, known := DefaultPolicies()[dependency]
	if !known {
		def = Policy{Attempts: 1, Multiplier: 1}
	}
	policy, ok := p[dependency]
	if !ok {
		return def
	}
	return policy.withDefaults(def)
}

func (p Policy) withDefaults(def Policy) Policy {
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	p.MaxBackoff = max(p.MaxBackoff, p.InitialBackoff)
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.BreakerMinRequests == 0 {
		p.BreakerMinRequests = def.BreakerMinRequests
	}
	if p.BreakerFailureRatio <= 0 || p.BreakerFailureRatio > 1 {
		p.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if p.BreakerOpenTimeout <= 0 {
		p.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if p.BreakerHalfOpenCalls == 0 {
		p.BreakerHalfOpenCalls = def.BreakerHalfOpenCalls
	}
	return p
}

// backoff is the wait after the given failed attempt, starting at 1.
func (p Policy) backoff(attempt int) time.Duration {
	wait := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if wait >= float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(wait)
}
