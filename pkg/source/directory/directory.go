// Package directory provides a source.Directory client for a CRM-style
// contacts and calendar API (LeadConnector shaped).
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/source"
	"github.com/papercomputeco/rolodex/pkg/utils"
)

const (
	DefaultURL = "https://services.leadconnectorhq.com"
	apiVersion = "2021-07-28"
	dateLayout = "2006-01-02"
)

// Config holds the directory API settings.
type Config struct {
	URL        string
	APIKey     string
	LocationID string

	// Timezone is sent with free-slot queries. Defaults to UTC.
	Timezone string

	HTTPClient *http.Client
}

// Client implements source.Directory.
type Client struct {
	baseURL    string
	apiKey     string
	locationID string
	timezone   string
	httpClient *http.Client
}

var _ source.Directory = (*Client)(nil)

// NewClient creates a directory API client.
func NewClient(c Config) *Client {
	baseURL := c.URL
	if baseURL == "" {
		baseURL = DefaultURL
	}
	tz := c.Timezone
	if tz == "" {
		tz = "UTC"
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     c.APIKey,
		locationID: c.LocationID,
		timezone:   tz,
		httpClient: httpClient,
	}
}

type wireContact struct {
	ID        string   `json:"id"`
	Phone     string   `json:"phone"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Email     string   `json:"email,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

func (w wireContact) contact() source.Contact {
	return source.Contact{
		ID:    w.ID,
		Phone: w.Phone,
		Name:  strings.TrimSpace(w.FirstName + " " + w.LastName),
		Email: w.Email,
		Tags:  w.Tags,
	}
}

type contactEnvelope struct {
	ID      string       `json:"id"`
	Contact *wireContact `json:"contact"`
}

// Lookup searches for the caller's contact by phone.
func (c *Client) Lookup(ctx context.Context, key caller.Key) (source.Contact, error) {
	var env contactEnvelope
	err := c.do(ctx, http.MethodPost, "/contacts/search/duplicate", nil, map[string]string{
		"locationId": c.locationID,
		"phone":      string(key),
	}, &env)
	if err != nil {
		return source.Contact{}, err
	}

	if env.Contact == nil || env.Contact.ID == "" {
		return source.Contact{}, source.ErrNotFound
	}
	return env.Contact.contact(), nil
}

// FindOrCreate updates the caller's contact with attrs, creating it when
// it does not exist, and returns the contact id.
func (c *Client) FindOrCreate(ctx context.Context, key caller.Key, attrs source.ContactAttrs) (string, error) {
	existing, err := c.Lookup(ctx, key)
	if err != nil && !errors.Is(err, source.ErrNotFound) {
		return "", err
	}

	body := map[string]any{
		"locationId": c.locationID,
		"phone":      string(key),
	}
	if attrs.Name != "" {
		body["name"] = attrs.Name
	}
	if attrs.Source != "" {
		body["source"] = attrs.Source
	}
	if len(attrs.Tags) > 0 {
		body["tags"] = attrs.Tags
	}
	if len(attrs.Fields) > 0 {
		body["customField"] = attrs.Fields
	}

	var env contactEnvelope
	if existing.ID != "" {
		delete(body, "locationId")
		if err := c.do(ctx, http.MethodPut, "/contacts/"+url.PathEscape(existing.ID), nil, body, &env); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	if err := c.do(ctx, http.MethodPost, "/contacts/", nil, body, &env); err != nil {
		return "", err
	}

	switch {
	case env.Contact != nil && env.Contact.ID != "":
		return env.Contact.ID, nil
	case env.ID != "":
		return env.ID, nil
	default:
		return "", fmt.Errorf("directory create contact: response carried no id")
	}
}

type eventsResponse struct {
	Events []struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		StartTime string `json:"startTime"`
		Status    string `json:"appointmentStatus"`
	} `json:"events"`
}

// ListUpcoming returns the contact's appointments. Events with an
// unparseable start time are skipped.
func (c *Client) ListUpcoming(ctx context.Context, referenceID string) ([]source.Appointment, error) {
	q := url.Values{}
	q.Set("locationId", c.locationID)
	q.Set("contactId", referenceID)

	var resp eventsResponse
	if err := c.do(ctx, http.MethodGet, "/calendars/events", q, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]source.Appointment, 0, len(resp.Events))
	for _, e := range resp.Events {
		start, err := time.Parse(time.RFC3339, e.StartTime)
		if err != nil {
			continue
		}
		title := e.Title
		if title == "" {
			title = "Appointment"
		}
		status := e.Status
		if status == "" {
			status = "unknown"
		}
		out = append(out, source.Appointment{ID: e.ID, Title: title, Start: start, Status: status})
	}
	return out, nil
}

type slotsResponse struct {
	Slots []string `json:"slots"`
}

// ListFreeSlots returns open start times on calendar scope within
// [from, to), in ascending order as the API returns them.
func (c *Client) ListFreeSlots(ctx context.Context, scope string, from, to time.Time) ([]time.Time, error) {
	q := url.Values{}
	q.Set("startDate", from.Format(dateLayout))
	q.Set("endDate", to.Format(dateLayout))
	q.Set("timezone", c.timezone)

	var resp slotsResponse
	if err := c.do(ctx, http.MethodGet, "/calendars/"+url.PathEscape(scope)+"/free-slots", q, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, len(resp.Slots))
	for _, raw := range resp.Slots {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		if t.Before(from) || !t.Before(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s %s request: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return source.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("directory api %s %s: status %d: %s", method, path, resp.StatusCode, utils.Truncate(string(raw), 200))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
