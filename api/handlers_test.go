package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/health"
	"github.com/papercomputeco/rolodex/pkg/logger"
	"github.com/papercomputeco/rolodex/pkg/storage"
	"github.com/papercomputeco/rolodex/pkg/storage/inmemory"
)

type fakeResolver struct {
	mu   sync.Mutex
	keys []caller.Key
}

func (f *fakeResolver) Assemble(_ context.Context, key caller.Key) *caller.Context {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()

	out := caller.Empty(key, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC))
	out.Known = caller.Known
	out.ReferenceID = caller.FromSource("contact-1")
	return out
}

type fakeScheduler struct {
	mu       sync.Mutex
	reject   bool
	keys     []caller.Key
	contexts []*caller.Context
	jobs     []storage.Interaction
}

func (f *fakeScheduler) Schedule(key caller.Key, cctx *caller.Context, in storage.Interaction) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.keys = append(f.keys, key)
	f.contexts = append(f.contexts, cctx)
	f.jobs = append(f.jobs, in)
	return true
}

type fakeHealth map[string]health.Record

func (f fakeHealth) Snapshot() map[string]health.Record { return f }

func doJSON(app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	Expect(err).NotTo(HaveOccurred())

	out, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, out
}

var _ = Describe("Server", func() {
	var (
		server    *Server
		resolver  *fakeResolver
		scheduler *fakeScheduler
		store     *inmemory.Driver
		sources   fakeHealth
		now       time.Time
	)

	BeforeEach(func() {
		resolver = &fakeResolver{}
		scheduler = &fakeScheduler{}
		store = inmemory.NewDriver()
		sources = fakeHealth{
			"memory":    {State: health.Healthy},
			"directory": {State: health.Healthy},
		}
		now = time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)

		var err error
		server, err = NewServer(
			Config{ListenAddr: ":0", Now: func() time.Time { return now }},
			resolver,
			scheduler,
			store,
			sources,
			logger.Nop(),
		)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("requires a resolver, scheduler and store", func() {
			_, err := NewServer(Config{}, nil, scheduler, store, nil, nil)
			Expect(err).To(HaveOccurred())
			_, err = NewServer(Config{}, resolver, nil, store, nil, nil)
			Expect(err).To(HaveOccurred())
			_, err = NewServer(Config{}, resolver, scheduler, nil, nil, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GET /ping", func() {
		It("answers pong", func() {
			resp, body := doJSON(server.app, http.MethodGet, "/ping", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(Equal(`"pong"`))
		})
	})

	Describe("GET /health", func() {
		It("reports ok when every source is healthy", func() {
			resp, body := doJSON(server.app, http.MethodGet, "/health", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out map[string]any
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out["status"]).To(Equal("ok"))
			Expect(out["sources"]).To(HaveKey("memory"))
		})

		It("reports degraded when a circuit is open", func() {
			sources["directory"] = health.Record{State: health.Open, ConsecutiveFailures: 5}

			_, body := doJSON(server.app, http.MethodGet, "/health", nil)

			var out struct {
				Status  string `json:"status"`
				Sources map[string]struct {
					State               string `json:"state"`
					ConsecutiveFailures int    `json:"consecutive_failures"`
				} `json:"sources"`
			}
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Status).To(Equal("degraded"))
			Expect(out.Sources["directory"].State).To(Equal("open"))
			Expect(out.Sources["directory"].ConsecutiveFailures).To(Equal(5))
		})
	})

	Describe("POST /v1/callers/resolve", func() {
		It("resolves the normalized caller key", func() {
			resp, body := doJSON(server.app, http.MethodPost, "/v1/callers/resolve", ResolveRequest{
				FromNumber: "(555) 123-4567",
				CallID:     "call-1",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(resolver.keys).To(Equal([]caller.Key{"5551234567"}))

			var out ResolveResponse
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.CallID).To(Equal("call-1"))
			Expect(out.Context.Key).To(Equal(caller.Key("5551234567")))
			Expect(out.Context.ReferenceID.Value).To(Equal("contact-1"))
		})

		It("schedules the caller's sync with the resolved context", func() {
			resp, _ := doJSON(server.app, http.MethodPost, "/v1/callers/resolve", ResolveRequest{
				FromNumber: "(555) 123-4567",
				CallID:     "call-1",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			Expect(scheduler.keys).To(Equal([]caller.Key{"5551234567"}))
			Expect(scheduler.contexts).To(HaveLen(1))
			Expect(scheduler.contexts[0]).NotTo(BeNil())
			Expect(scheduler.contexts[0].ReferenceID.Value).To(Equal("contact-1"))

			job := scheduler.jobs[0]
			Expect(job.ID).To(Equal("call-1"))
			Expect(job.Outcome).To(BeEmpty())
		})

		It("still answers when the queue is full", func() {
			scheduler.reject = true
			resp, _ := doJSON(server.app, http.MethodPost, "/v1/callers/resolve", ResolveRequest{FromNumber: "5551234567"})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})

		It("returns 400 for an unidentifiable caller", func() {
			resp, body := doJSON(server.app, http.MethodPost, "/v1/callers/resolve", ResolveRequest{FromNumber: " () "})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("unidentifiable"))
			Expect(resolver.keys).To(BeEmpty())
			Expect(scheduler.keys).To(BeEmpty())
		})

		It("returns 400 for a malformed body", func() {
			req, err := http.NewRequest(http.MethodPost, "/v1/callers/resolve", bytes.NewBufferString("{"))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/callers/:number/context", func() {
		It("returns the context for the number", func() {
			resp, body := doJSON(server.app, http.MethodGet, "/v1/callers/555-123-4567/context", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out caller.Context
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Key).To(Equal(caller.Key("5551234567")))
			Expect(out.Known).To(Equal(caller.Known))
		})
	})

	Describe("POST /v1/interactions", func() {
		It("schedules reconciliation and answers 202", func() {
			started := now.Add(-5 * time.Minute)
			resp, body := doJSON(server.app, http.MethodPost, "/v1/interactions", InteractionRequest{
				CallID:     "call-1",
				FromNumber: "555-123-4567",
				Outcome:    storage.OutcomeBooked,
				Scope:      "cal-1",
				StartedAt:  started,
				EndedAt:    now,
				Metadata:   map[string]string{"agent": "front-desk"},
				Transcript: "Agent: Hi!",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusAccepted))
			Expect(string(body)).To(ContainSubstring(`"scheduled"`))

			Expect(scheduler.keys).To(Equal([]caller.Key{"5551234567"}))
			Expect(scheduler.jobs).To(HaveLen(1))
			job := scheduler.jobs[0]
			Expect(job.ID).To(Equal("call-1"))
			Expect(job.Outcome).To(Equal(storage.OutcomeBooked))
			Expect(job.Scope).To(Equal("cal-1"))
			Expect(job.StartedAt.Equal(started)).To(BeTrue())
			Expect(job.Metadata).To(HaveKeyWithValue("agent", "front-desk"))
			Expect(job.Transcript).To(Equal("Agent: Hi!"))
		})

		It("rejects an unknown outcome", func() {
			resp, _ := doJSON(server.app, http.MethodPost, "/v1/interactions", InteractionRequest{
				FromNumber: "5551234567",
				Outcome:    "voicemail",
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(scheduler.jobs).To(BeEmpty())
		})

		It("rejects an unidentifiable caller", func() {
			resp, _ := doJSON(server.app, http.MethodPost, "/v1/interactions", InteractionRequest{
				FromNumber: "",
				Outcome:    storage.OutcomeCompleted,
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("answers 503 when the queue is full", func() {
			scheduler.reject = true
			resp, _ := doJSON(server.app, http.MethodPost, "/v1/interactions", InteractionRequest{
				FromNumber: "5551234567",
				Outcome:    storage.OutcomeCompleted,
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusServiceUnavailable))
		})
	})

	Describe("GET /v1/metrics/:day", func() {
		BeforeEach(func() {
			ctx := context.Background()
			Expect(store.IncrementCounters(ctx, "2024-01-15", storage.Counters{CallsTotal: 4, AppointmentsBooked: 1})).To(Succeed())
		})

		It("returns the counters and the conversion rate", func() {
			resp, body := doJSON(server.app, http.MethodGet, "/v1/metrics/2024-01-15", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var out storage.DailyMetrics
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.CallsTotal).To(Equal(int64(4)))
			Expect(out.ConversionRate).To(BeNumerically("~", 0.25))
		})

		It("resolves today in the configured location", func() {
			_, body := doJSON(server.app, http.MethodGet, "/v1/metrics/today", nil)

			var out storage.DailyMetrics
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out.Day).To(Equal("2024-01-15"))
			Expect(out.CallsTotal).To(Equal(int64(4)))
		})

		It("rejects a malformed day", func() {
			resp, _ := doJSON(server.app, http.MethodGet, "/v1/metrics/yesterday", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})
})
