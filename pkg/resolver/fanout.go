// Package resolver builds caller contexts by fanning out to every source in
// parallel and merging whatever came back in time.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/rolodex/pkg/cache"
	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/health"
	"github.com/papercomputeco/rolodex/pkg/logger"
	"github.com/papercomputeco/rolodex/pkg/source"
	"github.com/papercomputeco/rolodex/pkg/telemetry"
)

// Source names, used for health records and metrics.
const (
	SourceMemory       = "memory"
	SourceDirectory    = "directory"
	SourceAvailability = "availability"
)

const (
	DefaultWindow = 7 * 24 * time.Hour
	dateLayout    = "2006-01-02"
)

// DirectoryRecord is the directory adapter's answer: the caller's contact
// id and the appointments already booked on it.
type DirectoryRecord struct {
	ReferenceID  string               `json:"reference_id"`
	Name         string               `json:"name,omitempty"`
	Appointments []source.Appointment `json:"appointments"`
}

// Resolution holds one result per source.
type Resolution struct {
	Memory       source.Result[[]string]
	Directory    source.Result[DirectoryRecord]
	Availability source.Result[[]time.Time]
}

// Timeouts bounds each adapter.
type Timeouts struct {
	Memory       time.Duration
	Directory    time.Duration
	Availability time.Duration
}

// FanoutConfig configures a Fanout. A nil source is treated as configured
// away: it answers Ok with nothing, without any call.
type FanoutConfig struct {
	Memory    source.Memory
	Directory source.Directory

	// Scope is the calendar availability is read from. Empty disables the
	// availability lookup.
	Scope string

	// Window is the availability horizon starting today. Defaults to 7 days.
	Window time.Duration

	// Location decides where "today" starts. Defaults to UTC.
	Location *time.Location

	Timeouts Timeouts
	Cache    *cache.Tiered
	Health   *health.Policy
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Fanout queries memory, directory and availability concurrently. Wall
// clock cost is the slowest adapter's bound, never the sum.
type Fanout struct {
	memory       *source.Adapter[[]string]
	directory    *source.Adapter[DirectoryRecord]
	availability *source.Adapter[[]time.Time]

	scope  string
	window time.Duration
	loc    *time.Location
	now    func() time.Time
}

// NewFanout builds the three adapters over the configured sources.
func NewFanout(c FanoutConfig) *Fanout {
	f := &Fanout{
		scope:  c.Scope,
		window: c.Window,
		loc:    c.Location,
		now:    c.Now,
	}
	if f.window <= 0 {
		f.window = DefaultWindow
	}
	if f.loc == nil {
		f.loc = time.UTC
	}
	if f.now == nil {
		f.now = time.Now
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	if c.Memory != nil {
		mem := c.Memory
		f.memory = source.NewAdapter(source.Config[[]string]{
			Name:      SourceMemory,
			Namespace: cache.NamespaceFactMemory,
			Timeout:   c.Timeouts.Memory,
			Fetch: func(ctx context.Context, key caller.Key, _ source.Params) ([]string, error) {
				return mem.FetchFacts(ctx, key)
			},
			Cache:   c.Cache,
			Health:  c.Health,
			Logger:  c.Logger,
			Metrics: c.Metrics,
		})
	}

	if c.Directory != nil {
		dir := c.Directory
		f.directory = source.NewAdapter(source.Config[DirectoryRecord]{
			Name:      SourceDirectory,
			Namespace: cache.NamespaceDirectory,
			Timeout:   c.Timeouts.Directory,
			Fetch: func(ctx context.Context, key caller.Key, _ source.Params) (DirectoryRecord, error) {
				return f.lookupDirectory(ctx, dir, key)
			},
			Cache:   c.Cache,
			Health:  c.Health,
			Logger:  c.Logger,
			Metrics: c.Metrics,
		})

		if c.Scope != "" {
			f.availability = source.NewAdapter(source.Config[[]time.Time]{
				Name:      SourceAvailability,
				Namespace: cache.NamespaceAvailability,
				Timeout:   c.Timeouts.Availability,
				Fetch: func(ctx context.Context, _ caller.Key, p source.Params) ([]time.Time, error) {
					return dir.ListFreeSlots(ctx, p.Scope, p.From, p.To)
				},
				CacheKey: AvailabilityCacheKey,
				Cache:    c.Cache,
				Health:   c.Health,
				Logger:   c.Logger,
				Metrics:  c.Metrics,
			})
		}
	}

	return f
}

// AvailabilityCacheKey is "<scope>:<from>:<to>:<caller>" so that a booking
// can drop every window of a calendar with one prefix delete.
func AvailabilityCacheKey(key caller.Key, p source.Params) string {
	return ScopePrefix(p.Scope) + p.From.Format(dateLayout) + ":" + p.To.Format(dateLayout) + ":" + string(key)
}

// ScopePrefix is the availability cache key prefix shared by every window
// of scope.
func ScopePrefix(scope string) string {
	return scope + ":"
}

// Scope returns the configured availability scope.
func (f *Fanout) Scope() string {
	return f.scope
}

// Resolve runs every adapter concurrently and waits for all of them. Each
// adapter enforces its own deadline, so Resolve needs none.
func (f *Fanout) Resolve(ctx context.Context, key caller.Key) Resolution {
	var (
		res Resolution
		wg  sync.WaitGroup
	)

	params := f.availabilityWindow()

	wg.Add(3)
	go func() {
		defer wg.Done()
		res.Memory = fetchOrEmpty(ctx, f.memory, key, source.Params{})
	}()
	go func() {
		defer wg.Done()
		res.Directory = fetchOrEmpty(ctx, f.directory, key, source.Params{})
	}()
	go func() {
		defer wg.Done()
		res.Availability = fetchOrEmpty(ctx, f.availability, key, params)
	}()
	wg.Wait()

	return res
}

// availabilityWindow is the availability window [today, today+window) in f.loc.
func (f *Fanout) availabilityWindow() source.Params {
	now := f.now().In(f.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, f.loc)
	return source.Params{
		Scope: f.scope,
		From:  today,
		To:    today.Add(f.window),
	}
}

func fetchOrEmpty[T any](ctx context.Context, a *source.Adapter[T], key caller.Key, p source.Params) source.Result[T] {
	if a == nil {
		return source.Result[T]{Status: source.Ok}
	}
	return a.Fetch(ctx, key, p)
}

// lookupDirectory resolves the contact, then its future appointments.
func (f *Fanout) lookupDirectory(ctx context.Context, dir source.Directory, key caller.Key) (DirectoryRecord, error) {
	contact, err := dir.Lookup(ctx, key)
	if err != nil {
		return DirectoryRecord{}, err
	}

	appts, err := dir.ListUpcoming(ctx, contact.ID)
	if err != nil && !errors.Is(err, source.ErrNotFound) {
		return DirectoryRecord{}, err
	}

	now := f.now()
	upcoming := make([]source.Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Start.After(now) {
			upcoming = append(upcoming, a)
		}
	}

	return DirectoryRecord{
		ReferenceID:  contact.ID,
		Name:         contact.Name,
		Appointments: upcoming,
	}, nil
}
