// Package health tracks per-source availability as a circuit breaker.
//
// A source starts Healthy. Threshold consecutive failures trip it Open for
// the cool-down window, during which Allow refuses every call. Once the
// window passes the source is Degraded: exactly one trial call is let
// through, and its outcome either closes the circuit or re-opens it.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/rolodex/pkg/logger"
)

const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
)

// State is the circuit state of one source.
type State int

const (
	Healthy State = iota
	Open
	Degraded
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Open:
		return "open"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Record is a point-in-time copy of a source's health.
type Record struct {
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	OpenUntil           *time.Time `json:"open_until,omitempty"`
}

// Config configures a Policy.
type Config struct {
	// Threshold is the consecutive failure count that opens a circuit.
	Threshold int

	// Cooldown is how long an open circuit refuses calls.
	Cooldown time.Duration

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Policy owns the health records of every source. A single Policy is shared
// by all adapters in a process; records are created on first use.
type Policy struct {
	threshold int
	cooldown  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	sources map[string]*entry
}

// entry guards one source's record; transitions on different sources never
// contend.
type entry struct {
	mu sync.Mutex

	state         State
	failures      int
	lastSuccessAt time.Time
	openUntil     time.Time

	trialInFlight bool
	trialStarted  time.Time
}

// NewPolicy creates a Policy.
func NewPolicy(c Config) *Policy {
	p := &Policy{
		threshold: c.Threshold,
		cooldown:  c.Cooldown,
		logger:    c.Logger,
		now:       c.Now,
		sources:   make(map[string]*entry),
	}
	if p.threshold <= 0 {
		p.threshold = DefaultThreshold
	}
	if p.cooldown <= 0 {
		p.cooldown = DefaultCooldown
	}
	if p.logger == nil {
		p.logger = logger.Nop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

func (p *Policy) entry(source string) *entry {
	p.mu.RLock()
	e, ok := p.sources[source]
	p.mu.RUnlock()
	if ok {
		return e
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.sources[source]; ok {
		return e
	}
	e = &entry{}
	p.sources[source] = e
	return e
}

// Allow reports whether a call to source may proceed. While Degraded it
// admits a single trial; a trial that never reports back is forgotten after
// one cool-down window so the source cannot wedge.
func (p *Policy) Allow(source string) bool {
	e := p.entry(source)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := p.now()

	switch e.state {
	case Open:
		if now.Before(e.openUntil) {
			return false
		}
		e.state = Degraded
		p.logger.Info("source circuit half open", "source", source)
		fallthrough

	case Degraded:
		if e.trialInFlight && now.Sub(e.trialStarted) < p.cooldown {
			return false
		}
		e.trialInFlight = true
		e.trialStarted = now
		return true

	default:
		return true
	}
}

// ReportSuccess closes the source's circuit and resets its failure streak.
func (p *Policy) ReportSuccess(source string) {
	e := p.entry(source)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Healthy {
		p.logger.Info("source circuit closed", "source", source)
	}

	e.state = Healthy
	e.failures = 0
	e.lastSuccessAt = p.now()
	e.openUntil = time.Time{}
	e.trialInFlight = false
}

// ReportFailure extends the source's failure streak, opening the circuit
// at the threshold or when a trial call fails.
func (p *Policy) ReportFailure(source string) {
	e := p.entry(source)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.failures++

	switch e.state {
	case Healthy:
		if e.failures >= p.threshold {
			p.open(source, e)
		}
	case Degraded:
		p.open(source, e)
	case Open:
		// Late report from a call admitted before the circuit opened.
	}
}

func (p *Policy) open(source string, e *entry) {
	e.state = Open
	e.openUntil = p.now().Add(p.cooldown)
	e.trialInFlight = false

	p.logger.Warn("source circuit opened",
		"source", source,
		"consecutive_failures", e.failures,
		"open_until", e.openUntil,
	)
}

// Record returns a copy of the source's current health.
func (p *Policy) Record(source string) Record {
	e := p.entry(source)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record()
}

// Snapshot copies every known source's record.
func (p *Policy) Snapshot() map[string]Record {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]Record, len(p.sources))
	for name, e := range p.sources {
		e.mu.Lock()
		out[name] = e.record()
		e.mu.Unlock()
	}
	return out
}

func (e *entry) record() Record {
	r := Record{
		State:               e.state,
		ConsecutiveFailures: e.failures,
	}
	if !e.lastSuccessAt.IsZero() {
		t := e.lastSuccessAt
		r.LastSuccessAt = &t
	}
	if e.state == Open {
		t := e.openUntil
		r.OpenUntil = &t
	}
	return r
}
