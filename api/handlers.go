package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/health"
	"github.com/papercomputeco/rolodex/pkg/storage"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ResolveRequest is the body of POST /v1/callers/resolve.
type ResolveRequest struct {
	FromNumber string `json:"from_number"`
	CallID     string `json:"call_id,omitempty"`
}

// ResolveResponse wraps the resolved context.
type ResolveResponse struct {
	CallID  string          `json:"call_id,omitempty"`
	Context *caller.Context `json:"context"`
}

// InteractionRequest is the body of POST /v1/interactions.
type InteractionRequest struct {
	CallID      string            `json:"call_id"`
	FromNumber  string            `json:"from_number"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Outcome     storage.Outcome   `json:"outcome"`
	Scope       string            `json:"scope,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Transcript  string            `json:"transcript,omitempty"`
}

// InteractionResponse acknowledges a scheduled interaction.
type InteractionResponse struct {
	CallID string     `json:"call_id,omitempty"`
	Key    caller.Key `json:"key"`
	Status string     `json:"status"`
}

// HealthResponse reports per-source circuit state.
type HealthResponse struct {
	Status  string                   `json:"status"`
	Sources map[string]health.Record `json:"sources"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleHealth reports "degraded" while any source is not healthy.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ok", Sources: map[string]health.Record{}}
	if s.health != nil {
		resp.Sources = s.health.Snapshot()
	}

	for _, rec := range resp.Sources {
		if rec.State != health.Healthy {
			resp.Status = "degraded"
			break
		}
	}

	return c.JSON(resp)
}

// handleResolve resolves the context for an inbound call and schedules the
// caller's directory sync. A full queue does not fail the resolution.
func (s *Server) handleResolve(c *fiber.Ctx) error {
	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	key, err := caller.Parse(req.FromNumber)
	if err != nil {
		return s.keyError(c, err)
	}

	cctx := s.resolver.Assemble(c.UserContext(), key)
	s.scheduler.Schedule(key, cctx, storage.Interaction{ID: req.CallID, Key: key})

	return c.JSON(ResolveResponse{CallID: req.CallID, Context: cctx})
}

// handleGetContext resolves the context for the number in the path.
func (s *Server) handleGetContext(c *fiber.Ctx) error {
	key, err := caller.Parse(c.Params("number"))
	if err != nil {
		return s.keyError(c, err)
	}

	return c.JSON(s.resolver.Assemble(c.UserContext(), key))
}

// handleInteraction schedules reconciliation of a finished call and returns
// without waiting on any store or source.
func (s *Server) handleInteraction(c *fiber.Ctx) error {
	var req InteractionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	key, err := caller.Parse(req.FromNumber)
	if err != nil {
		return s.keyError(c, err)
	}

	if !req.Outcome.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid outcome"})
	}

	in := storage.Interaction{
		ID:          req.CallID,
		Key:         key,
		ReferenceID: req.ReferenceID,
		Scope:       req.Scope,
		Outcome:     req.Outcome,
		StartedAt:   req.StartedAt,
		EndedAt:     req.EndedAt,
		Metadata:    req.Metadata,
		Transcript:  req.Transcript,
	}

	if !s.scheduler.Schedule(key, nil, in) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "reconciliation queue full"})
	}

	return c.Status(fiber.StatusAccepted).JSON(InteractionResponse{
		CallID: req.CallID,
		Key:    key,
		Status: "scheduled",
	})
}

// handleDailyMetrics returns the counters for a day ("YYYY-MM-DD" or
// "today").
func (s *Server) handleDailyMetrics(c *fiber.Ctx) error {
	day := c.Params("day")
	if day == "today" {
		day = storage.DayKey(s.config.Now(), s.config.Location)
	} else if _, err := time.Parse(storage.DayLayout, day); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "day must be YYYY-MM-DD or today"})
	}

	m, err := s.store.DailyMetrics(c.UserContext(), day)
	if err != nil {
		s.logger.Error("failed to read daily metrics", "day", day, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to read daily metrics"})
	}

	return c.JSON(m)
}

func (s *Server) keyError(c *fiber.Ctx, err error) error {
	if errors.Is(err, caller.ErrUnidentifiable) {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "caller is unidentifiable"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
}
