package memory_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/source"
	"github.com/papercomputeco/rolodex/pkg/source/memory"
)

var _ = Describe("Client", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
		client  *memory.Client
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			handler(w, r)
		}))
		client = memory.NewClient(memory.Config{URL: server.URL + "/", APIKey: "secret"})
	})

	AfterEach(func() {
		server.Close()
	})

	It("reads facts from the user's metadata", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/v2/users/5551234567"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer secret"))
			w.Write([]byte(`{"metadata":{"facts":["prefers mornings",{"fact":"has a dog"}," "]}}`))
		}

		facts, err := client.FetchFacts(ctx, caller.Key("5551234567"))
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(Equal([]string{"prefers mornings", "has a dog"}))
	})

	It("returns an empty list for a user without facts", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"metadata":{}}`))
		}

		facts, err := client.FetchFacts(ctx, caller.Key("5551234567"))
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(BeEmpty())
	})

	It("maps 404 to not found", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}

		_, err := client.FetchFacts(ctx, caller.Key("5551234567"))
		Expect(err).To(MatchError(source.ErrNotFound))
	})

	It("reports other statuses as errors", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"bad token"}`))
		}

		_, err := client.FetchFacts(ctx, caller.Key("5551234567"))
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(source.ErrNotFound))
		Expect(err.Error()).To(ContainSubstring("status 401"))
	})

	Describe("StoreSession", func() {
		session := source.Session{
			ID:         "call-1",
			Transcript: "Agent: Hi! Caller: I'd like to book a cleaning.",
			EndedAt:    time.Date(2024, 1, 15, 14, 4, 0, 0, time.UTC),
		}

		It("creates the session and appends the transcript", func() {
			var paths []string
			handler = func(w http.ResponseWriter, r *http.Request) {
				paths = append(paths, r.URL.Path)
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer secret"))

				var body map[string]any
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())

				switch r.URL.Path {
				case "/api/v2/sessions":
					Expect(body).To(HaveKeyWithValue("session_id", "call-1"))
					Expect(body).To(HaveKeyWithValue("user_id", "5551234567"))
					Expect(body["metadata"]).To(HaveKeyWithValue("timestamp", "2024-01-15T14:04:00Z"))
				case "/api/v2/sessions/call-1/messages":
					messages := body["messages"].([]any)
					Expect(messages).To(HaveLen(1))
					Expect(messages[0]).To(HaveKeyWithValue("role", "assistant"))
					Expect(messages[0]).To(HaveKeyWithValue("content", session.Transcript))
				}
				w.WriteHeader(http.StatusCreated)
			}

			Expect(client.StoreSession(ctx, caller.Key("5551234567"), session)).To(Succeed())
			Expect(paths).To(Equal([]string{"/api/v2/sessions", "/api/v2/sessions/call-1/messages"}))
		})

		It("reuses a session that already exists", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/v2/sessions" {
					w.WriteHeader(http.StatusConflict)
					return
				}
				w.WriteHeader(http.StatusOK)
			}

			Expect(client.StoreSession(ctx, caller.Key("5551234567"), session)).To(Succeed())
		})

		It("reports a failed message write", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/api/v2/sessions" {
					w.WriteHeader(http.StatusCreated)
					return
				}
				w.WriteHeader(http.StatusBadGateway)
			}

			err := client.StoreSession(ctx, caller.Key("5551234567"), session)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("status 502"))
		})

		It("requires a session id", func() {
			handler = func(http.ResponseWriter, *http.Request) {
				Fail("no request expected")
			}

			Expect(client.StoreSession(ctx, caller.Key("5551234567"), source.Session{})).NotTo(Succeed())
		})
	})
})
