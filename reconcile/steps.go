package reconcile

import (
	"context"
	"maps"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/papercomputeco/rolodex/pkg/cache"
	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/eventstream"
	"github.com/papercomputeco/rolodex/pkg/resolver"
	"github.com/papercomputeco/rolodex/pkg/source"
	"github.com/papercomputeco/rolodex/pkg/storage"
)

// processJob runs every step of a job. Steps fail independently; the only
// ordering is that invalidation waits for the directory sync and is skipped
// when the sync gave up.
func (s *Scheduler) processJob(job Job) {
	if job.Inbound() {
		s.processInbound(job)
		return
	}

	ctx := context.Background()
	in := s.complete(job)

	inserted, logErr := s.logInteraction(in)
	if logErr == nil && !inserted {
		s.logger.Info("interaction already reconciled, skipping",
			"key", string(job.Key),
			"interaction_id", in.ID,
		)
		return
	}

	syncErr := s.syncDirectory(job.Key, &in)
	contact := s.upsertContact(in)
	s.storeSession(ctx, job.Key, in)

	if syncErr != nil {
		s.logger.Warn("cache invalidation skipped after failed directory sync",
			"key", string(job.Key),
			"interaction_id", in.ID,
		)
	} else {
		s.invalidate(ctx, job.Key, in)
	}

	_ = s.incrementCounters(in, contact)

	if logErr == nil {
		_ = s.publish(in, contact)
	}

	s.logger.Info("interaction reconciled",
		"key", string(job.Key),
		"interaction_id", in.ID,
		"outcome", string(in.Outcome),
	)
}

// processInbound syncs a caller whose call was just resolved. The contact
// row is only touched when the call has an id, so the end-of-call update for
// the same id does not count the call twice.
func (s *Scheduler) processInbound(job Job) {
	ctx := context.Background()
	hasID := job.Interaction.ID != ""
	in := s.complete(job)

	known := in.ReferenceID
	syncErr := s.syncDirectory(job.Key, &in)
	if hasID {
		s.upsertContact(in)
	}

	if syncErr == nil && s.config.Cache != nil {
		s.config.Cache.Invalidate(ctx, cache.NamespaceDirectory, string(job.Key))
		if in.ReferenceID != known {
			s.config.Cache.Invalidate(ctx, cache.NamespaceFullContext, string(job.Key))
		}
		s.config.Metrics.ReconcileStep(ctx, string(StepInvalidate), true)
	}

	s.logger.Info("inbound caller synced",
		"key", string(job.Key),
		"interaction_id", in.ID,
		"reference_id_learned", in.ReferenceID != known,
	)
}

// complete fills the interaction fields a caller may leave empty.
func (s *Scheduler) complete(job Job) storage.Interaction {
	in := job.Interaction
	in.Metadata = maps.Clone(in.Metadata)

	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Key == "" {
		in.Key = job.Key
	}
	if in.EndedAt.IsZero() {
		in.EndedAt = s.config.Now()
	}
	if in.StartedAt.IsZero() {
		in.StartedAt = in.EndedAt
	}
	if in.ReferenceID == "" && job.Context != nil {
		in.ReferenceID = job.Context.ReferenceID.Value
	}
	if in.Scope == "" {
		in.Scope = s.config.Scope
	}
	return in
}

// logInteraction appends the immutable interaction record.
func (s *Scheduler) logInteraction(in storage.Interaction) (bool, error) {
	var inserted bool
	err := s.run(StepInteraction, in, func(ctx context.Context) error {
		var err error
		inserted, err = s.config.Store.AppendInteraction(ctx, in)
		return err
	})
	return inserted, err
}

// syncDirectory upserts the caller in the directory. A reference id learned
// from the directory is written back into in.
func (s *Scheduler) syncDirectory(key caller.Key, in *storage.Interaction) error {
	if s.config.Directory == nil {
		return nil
	}

	attrs := s.contactAttrs(*in)
	return s.run(StepDirectory, *in, func(ctx context.Context) error {
		id, err := s.config.Directory.FindOrCreate(ctx, key, attrs)
		if err != nil {
			return err
		}
		if id != "" {
			in.ReferenceID = id
		}
		return nil
	})
}

// upsertContact bumps the stored contact row. It runs whether or not the
// directory sync succeeded, with whatever reference id is known.
func (s *Scheduler) upsertContact(in storage.Interaction) *storage.Contact {
	var contact storage.Contact
	err := s.run(StepContact, in, func(ctx context.Context) error {
		var err error
		contact, err = s.config.Store.UpsertContact(ctx, storage.ContactUpdate{
			Key:           in.Key,
			ReferenceID:   in.ReferenceID,
			CalledAt:      in.StartedAt,
			InteractionID: in.ID,
		})
		return err
	})
	if err != nil {
		return nil
	}
	return &contact
}

// storeSession writes the call's transcript to the memory store and drops
// the caller's cached facts once it is stored.
func (s *Scheduler) storeSession(ctx context.Context, key caller.Key, in storage.Interaction) {
	if s.config.Memory == nil || in.Transcript == "" {
		return
	}

	session := source.Session{
		ID:         in.ID,
		Transcript: in.Transcript,
		EndedAt:    in.EndedAt,
		Metadata:   map[string]string{"outcome": string(in.Outcome)},
	}
	err := s.run(StepMemory, in, func(ctx context.Context) error {
		return s.config.Memory.StoreSession(ctx, key, session)
	})
	if err != nil || s.config.Cache == nil {
		return
	}

	s.config.Cache.Invalidate(ctx, cache.NamespaceFactMemory, string(key))
}

func (s *Scheduler) contactAttrs(in storage.Interaction) source.ContactAttrs {
	fields := map[string]string{
		"last_call_id":   in.ID,
		"last_call_time": in.EndedAt.UTC().Format(time.RFC3339),
	}
	maps.Copy(fields, in.Metadata)

	return source.ContactAttrs{
		Source: s.config.ContactSource,
		Tags:   s.config.ContactTags,
		Fields: fields,
	}
}

// invalidate drops the entries the call changed and optionally rebuilds the
// full context.
func (s *Scheduler) invalidate(ctx context.Context, key caller.Key, in storage.Interaction) {
	if s.config.Cache == nil {
		return
	}

	s.config.Cache.Invalidate(ctx, cache.NamespaceDirectory, string(key))
	s.config.Cache.Invalidate(ctx, cache.NamespaceFullContext, string(key))

	removed := 0
	if in.Outcome == storage.OutcomeBooked && in.Scope != "" {
		removed = s.config.Cache.InvalidatePrefix(ctx, cache.NamespaceAvailability, resolver.ScopePrefix(in.Scope))
	}

	s.config.Metrics.ReconcileStep(ctx, string(StepInvalidate), true)
	s.logger.Debug("caches invalidated",
		"key", string(key),
		"interaction_id", in.ID,
		"availability_removed", removed,
	)

	if s.config.Refresh && s.config.Assembler != nil {
		refreshCtx, cancel := context.WithTimeout(ctx, s.config.StepTimeout)
		defer cancel()
		s.config.Assembler.Refresh(refreshCtx, key)
	}
}

// incrementCounters adds this call to its day's counters.
func (s *Scheduler) incrementCounters(in storage.Interaction, contact *storage.Contact) error {
	delta := storage.Counters{CallsTotal: 1}
	if contact != nil && contact.New() {
		delta.NewCallers = 1
	}
	switch in.Outcome {
	case storage.OutcomeBooked:
		delta.AppointmentsBooked = 1
	case storage.OutcomeTransferred:
		delta.Transfers = 1
	}

	day := storage.DayKey(in.StartedAt, s.config.Location)
	return s.run(StepCounters, in, func(ctx context.Context) error {
		return s.config.Store.IncrementCounters(ctx, day, delta)
	})
}

// publish emits the reconciled event.
func (s *Scheduler) publish(in storage.Interaction, contact *storage.Contact) error {
	event := eventstream.NewInteractionReconciledEvent(in, contact, s.config.Now())
	return s.run(StepPublish, in, func(ctx context.Context) error {
		return s.config.Publisher.PublishInteraction(ctx, event)
	})
}

// run retries op with exponential backoff until it succeeds or MaxTries is
// spent. Each attempt gets its own StepTimeout.
func (s *Scheduler) run(step Step, in storage.Interaction, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.InitialInterval
	b.MaxInterval = s.config.MaxInterval

	attempts := 0
	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		attempts++
		ctx, cancel := context.WithTimeout(context.Background(), s.config.StepTimeout)
		defer cancel()
		return struct{}{}, op(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.config.MaxTries),
	)

	s.config.Metrics.ReconcileStep(context.Background(), string(step), err == nil)
	if err == nil {
		return nil
	}

	stepErr := &StepError{Step: step, Err: err}
	s.logger.Error("reconciliation step failed",
		"step", string(step),
		"key", string(in.Key),
		"interaction_id", in.ID,
		"attempts", attempts,
		"error", stepErr,
	)
	return stepErr
}
