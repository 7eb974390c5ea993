// Package memory provides a source.Memory client for a Zep-style long-term
// memory API, where each caller is a user whose metadata carries facts.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/source"
	"github.com/papercomputeco/rolodex/pkg/utils"
)

const DefaultURL = "https://api.getzep.com"

// Config holds the memory API settings.
type Config struct {
	URL    string
	APIKey string

	// HTTPClient overrides the transport. The adapter enforces the real
	// deadline; the client timeout is only a backstop.
	HTTPClient *http.Client
}

// Client implements source.Memory.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ source.Memory = (*Client)(nil)

// NewClient creates a memory API client.
func NewClient(c Config) *Client {
	baseURL := c.URL
	if baseURL == "" {
		baseURL = DefaultURL
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     c.APIKey,
		httpClient: httpClient,
	}
}

type userResponse struct {
	Metadata struct {
		Facts []fact `json:"facts"`
	} `json:"metadata"`
}

// fact accepts both a bare string and an object with a "fact" field.
type fact string

func (f *fact) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = fact(s)
		return nil
	}

	var obj struct {
		Fact string `json:"fact"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decoding fact: %w", err)
	}
	*f = fact(obj.Fact)
	return nil
}

// FetchFacts returns the facts stored for the caller. An unknown user is
// source.ErrNotFound.
func (c *Client) FetchFacts(ctx context.Context, key caller.Key) ([]string, error) {
	endpoint := fmt.Sprintf("%s/api/v2/users/%s", c.baseURL, url.PathEscape(string(key)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating user request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending user request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, source.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("memory api: status %d: %s", resp.StatusCode, utils.Truncate(string(body), 200))
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decoding user response: %w", err)
	}

	facts := make([]string, 0, len(user.Metadata.Facts))
	for _, f := range user.Metadata.Facts {
		if s := strings.TrimSpace(string(f)); s != "" {
			facts = append(facts, s)
		}
	}
	return facts, nil
}

type sessionRequest struct {
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Metadata  map[string]string `json:"metadata"`
}

type message struct {
	Role     string            `json:"role"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type messagesRequest struct {
	Messages []message `json:"messages"`
}

// StoreSession creates the call's session under the caller's user and
// appends the transcript as one assistant message. A session that already
// exists is reused.
func (c *Client) StoreSession(ctx context.Context, key caller.Key, session source.Session) error {
	if session.ID == "" {
		return errors.New("cannot store a session without id")
	}

	metadata := map[string]string{
		"call_type": "inbound",
		"timestamp": session.EndedAt.UTC().Format(time.RFC3339),
	}
	maps.Copy(metadata, session.Metadata)

	err := c.post(ctx, "/api/v2/sessions", sessionRequest{
		SessionID: session.ID,
		UserID:    string(key),
		Metadata:  metadata,
	}, http.StatusConflict)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	err = c.post(ctx, "/api/v2/sessions/"+url.PathEscape(session.ID)+"/messages", messagesRequest{
		Messages: []message{{
			Role:     "assistant",
			Content:  session.Transcript,
			Metadata: map[string]string{"source": "call_transcript"},
		}},
	})
	if err != nil {
		return fmt.Errorf("adding session messages: %w", err)
	}
	return nil
}

// post sends body as JSON to path. Any 2xx status or one of accept is a
// success.
func (c *Client) post(ctx context.Context, path string, body any, accept ...int) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 || slices.Contains(accept, resp.StatusCode) {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("memory api: status %d: %s", resp.StatusCode, utils.Truncate(string(msg), 200))
}
