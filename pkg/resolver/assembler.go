package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/papercomputeco/rolodex/pkg/cache"
	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/logger"
	"github.com/papercomputeco/rolodex/pkg/telemetry"
)

const (
	DefaultMaxSlots    = 5
	DefaultDegradedTTL = 30 * time.Second
)

// AssemblerConfig configures an Assembler.
type AssemblerConfig struct {
	Fanout *Fanout
	Cache  *cache.Tiered

	// MaxSlots caps the slots offered to the caller. Defaults to 5.
	MaxSlots int

	// DegradedTTL is the full context TTL used when any source failed, so
	// an outage does not pin a partial answer for the namespace's full TTL.
	DegradedTTL time.Duration

	// Location renders slot and booking labels. Defaults to UTC.
	Location *time.Location

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Now     func() time.Time
}

// Assembler turns a Resolution into a caller.Context and keeps the merged
// result in the full_context namespace.
type Assembler struct {
	fanout      *Fanout
	cache       *cache.Tiered
	maxSlots    int
	degradedTTL time.Duration
	loc         *time.Location
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	now         func() time.Time
}

// NewAssembler creates an Assembler.
func NewAssembler(c AssemblerConfig) *Assembler {
	a := &Assembler{
		fanout:      c.Fanout,
		cache:       c.Cache,
		maxSlots:    c.MaxSlots,
		degradedTTL: c.DegradedTTL,
		loc:         c.Location,
		logger:      c.Logger,
		metrics:     c.Metrics,
		now:         c.Now,
	}
	if a.maxSlots <= 0 {
		a.maxSlots = DefaultMaxSlots
	}
	if a.degradedTTL <= 0 {
		a.degradedTTL = DefaultDegradedTTL
	}
	if a.loc == nil {
		a.loc = time.UTC
	}
	if a.logger == nil {
		a.logger = logger.Nop()
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Assemble returns the caller's context. A live full_context entry is
// returned as is with every field marked as cached and no source is called.
// Assemble never fails; the worst case is the all-empty indeterminate
// context.
func (a *Assembler) Assemble(ctx context.Context, key caller.Key) *caller.Context {
	start := time.Now()

	if a.cache != nil {
		if cached, _, ok := cache.Load[caller.Context](ctx, a.cache, cache.NamespaceFullContext, string(key)); ok {
			out := cached.WithOrigin(caller.OriginCache)
			a.metrics.ResolveDuration(ctx, time.Since(start), true, string(out.Known))
			return out
		}
	}

	out := a.build(ctx, key)
	a.metrics.ResolveDuration(ctx, time.Since(start), false, string(out.Known))
	return out
}

// Refresh resolves key from the sources, skipping the full_context read,
// and stores the new version.
func (a *Assembler) Refresh(ctx context.Context, key caller.Key) *caller.Context {
	return a.build(ctx, key)
}

func (a *Assembler) build(ctx context.Context, key caller.Key) *caller.Context {
	res := a.fanout.Resolve(ctx, key)
	out := a.merge(key, res)

	if a.cache != nil {
		ttl := a.cache.Policy(cache.NamespaceFullContext).TTL
		if out.Degraded() {
			ttl = min(ttl, a.degradedTTL)
		}
		if err := cache.StoreWithTTL(ctx, a.cache, cache.NamespaceFullContext, string(key), out, ttl); err != nil {
			a.logger.Warn("failed to encode caller context", "key", string(key), "error", err)
		}
	}

	if out.Degraded() {
		a.logger.Info("resolved degraded caller context",
			"key", string(key),
			"memory", res.Memory.Status.String(),
			"directory", res.Directory.Status.String(),
			"availability", res.Availability.Status.String(),
		)
	}

	return out
}

// merge maps each result onto the field it owns. Failed sources fall back
// to the field's empty value with a default origin.
func (a *Assembler) merge(key caller.Key, res Resolution) *caller.Context {
	now := a.now().UTC()
	out := caller.Empty(key, now)

	if res.Memory.OK() {
		facts := res.Memory.Value
		if facts == nil {
			facts = []string{}
		}
		out.Facts = fieldFor(facts, res.Memory.Cached)
	}

	if res.Directory.OK() {
		rec := res.Directory.Value
		out.ReferenceID = fieldFor(rec.ReferenceID, res.Directory.Cached)

		bookings := make([]caller.Booking, 0, len(rec.Appointments))
		for _, appt := range rec.Appointments {
			// Cached records may hold appointments that have since passed.
			if !appt.Start.After(now) {
				continue
			}
			bookings = append(bookings, caller.Booking{
				ID:      appt.ID,
				Title:   appt.Title,
				Instant: appt.Start.UTC(),
				Label:   caller.RenderLabel(appt.Start, a.loc),
				Status:  appt.Status,
			})
		}
		out.Bookings = fieldFor(bookings, res.Directory.Cached)
	}

	if res.Availability.OK() {
		instants := res.Availability.Value
		if len(instants) > a.maxSlots {
			instants = instants[:a.maxSlots]
		}
		slots := make([]caller.Slot, 0, len(instants))
		for _, t := range instants {
			slots = append(slots, caller.NewSlot(t, a.loc))
		}
		out.Slots = fieldFor(slots, res.Availability.Cached)
	}

	out.Known = knownness(res)
	return out
}

// knownness is known when either identity source recognized the caller,
// unknown when both answered without a record, and indeterminate when
// either could not be asked.
func knownness(res Resolution) caller.Knownness {
	memoryKnows := res.Memory.OK() && len(res.Memory.Value) > 0
	directoryKnows := res.Directory.OK() && res.Directory.Value.ReferenceID != ""

	switch {
	case memoryKnows || directoryKnows:
		return caller.Known
	case res.Memory.OK() && res.Directory.OK():
		return caller.Unknown
	default:
		return caller.Indeterminate
	}
}

func fieldFor[T any](v T, cached bool) caller.Field[T] {
	if cached {
		return caller.FromCache(v)
	}
	return caller.FromSource(v)
}
