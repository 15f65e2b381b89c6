package resilience

import "time"

// CallClass groups upstream calls that share one retry and breaker policy.
type CallClass string

const (
	ClassGenerate CallClass = "generate"
	ClassEmbed    CallClass = "embed"
	ClassSearch   CallClass = "search"
)

// Policy bounds one class of upstream calls.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter spreads each wait by up to this fraction in either direction.
	Jitter float64
	// AttemptTimeout caps one attempt. The attempt context ends when fn
	// returns, so calls that hand back an open response body must leave it zero.
	AttemptTimeout time.Duration
	// MaxRetryAfter is the longest upstream Retry-After hint that is waited
	// out. Longer hints end the call with the upstream error.
	MaxRetryAfter time.Duration

	BreakerEnabled       bool
	BreakerMinRequests   uint32
	BreakerFailureRatio  float64
	BreakerOpenTimeout   time.Duration
	BreakerHalfOpenCalls uint32
}

// DefaultPolicy returns the built-in policy for a call class. Unknown classes
// get the generation policy.
func DefaultPolicy(class CallClass) Policy {
	switch class {
	case ClassEmbed:
		return Policy{
			MaxAttempts:          3,
			InitialBackoff:       100 * time.Millisecond,
			MaxBackoff:           800 * time.Millisecond,
			Jitter:               0.2,
			AttemptTimeout:       10 * time.Second,
			MaxRetryAfter:        5 * time.Second,
			BreakerEnabled:       true,
			BreakerMinRequests:   10,
			BreakerFailureRatio:  0.5,
			BreakerOpenTimeout:   30 * time.Second,
			BreakerHalfOpenCalls: 2,
		}
	case ClassSearch:
		return Policy{
			MaxAttempts:          2,
			InitialBackoff:       250 * time.Millisecond,
			MaxBackoff:           time.Second,
			Jitter:               0.2,
			AttemptTimeout:       15 * time.Second,
			MaxRetryAfter:        5 * time.Second,
			BreakerEnabled:       true,
			BreakerMinRequests:   5,
			BreakerFailureRatio:  0.5,
			BreakerOpenTimeout:   time.Minute,
			BreakerHalfOpenCalls: 1,
		}
	default:
		return Policy{
			MaxAttempts:          2,
			InitialBackoff:       500 * time.Millisecond,
			MaxBackoff:           4 * time.Second,
			Jitter:               0.2,
			MaxRetryAfter:        10 * time.Second,
			BreakerEnabled:       true,
			BreakerMinRequests:   10,
			BreakerFailureRatio:  0.5,
			BreakerOpenTimeout:   30 * time.Second,
			BreakerHalfOpenCalls: 2,
		}
	}
}

// Policies holds one policy per call class. Missing classes use
// DefaultPolicy.
type Policies map[CallClass]Policy

func DefaultPolicies() Policies {
	return Policies{
		ClassGenerate: DefaultPolicy(ClassGenerate),
		ClassEmbed:    DefaultPolicy(ClassEmbed),
		ClassSearch:   DefaultPolicy(ClassSearch),
	}
}

func (p Policies) For(class CallClass) Policy {
	if policy, ok := p[class]; ok {
		return policy.normalize(class)
	}
	return DefaultPolicy(class)
}

// normalize fills unset numeric fields from the class default. BreakerEnabled
// is taken as given.
func (p Policy) normalize(class CallClass) Policy {
	out := p
	def := DefaultPolicy(class)

	if out.MaxAttempts <= 0 {
		out.MaxAttempts = def.MaxAttempts
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = def.InitialBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = def.MaxBackoff
	}
	if out.MaxBackoff < out.InitialBackoff {
		out.MaxBackoff = out.InitialBackoff
	}
	if out.Jitter < 0 || out.Jitter > 1 {
		out.Jitter = def.Jitter
	}
	if out.AttemptTimeout < 0 {
		out.AttemptTimeout = 0
	}
	if out.MaxRetryAfter <= 0 {
		out.MaxRetryAfter = def.MaxRetryAfter
	}
	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenCalls == 0 {
		out.BreakerHalfOpenCalls = def.BreakerHalfOpenCalls
	}
	return out
}

// backoff is the wait after the given failed attempt: the initial backoff
// doubled per attempt, capped, then spread by jitter. spread is in [0, 1).
func (p Policy) backoff(attempt int, spread float64) time.Duration {
	wait := p.InitialBackoff
	for i := 1; i < attempt && wait < p.MaxBackoff; i++ {
		wait *= 2
	}
	if wait > p.MaxBackoff {
		wait = p.MaxBackoff
	}
	if p.Jitter > 0 {
		wait = time.Duration(float64(wait) * (1 + p.Jitter*(2*spread-1)))
	}
	return wait
}
