// Package remote is the transport to the remote record store: a MockAPI-style
// REST endpoint exposing CRUD on /notes. It keeps no state between calls.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/notesync/pkg/core"
)

const (
	// DefaultTimeout bounds every call.
	DefaultTimeout = 10 * time.Second
	// DefaultSearchParam is the query parameter MockAPI filters titles by.
	DefaultSearchParam = "title"
)

// Client implements core.RemoteStore over HTTP.
type Client struct {
	baseURL     string
	resource    string
	searchParam string
	timeout     time.Duration
	http        *http.Client
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient injects the HTTP client (e.g. httptest's).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithSearchParam sets the query parameter used for text filtering.
func WithSearchParam(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.searchParam = name
		}
	}
}

// WithResource sets the collection path segment. Defaults to "notes".
func WithResource(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.resource = strings.Trim(name, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client for the store at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		resource:    "notes",
		searchParam: DefaultSearchParam,
		timeout:     DefaultTimeout,
		http:        http.DefaultClient,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MockAPIURL returns the base URL of a mockapi.io project.
func MockAPIURL(projectID string) string {
	return fmt.Sprintf("https://%s.mockapi.io", projectID)
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// List fetches one page of notes.
//
// MockAPI does not report a total, so unless the server sends X-Total-Count the
// total is estimated: a full page means at least one more note exists,
// otherwise this is the last page.
func (c *Client) List(ctx context.Context, q core.Query) (core.Page, error) {
	q = q.Normalize()

	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.PageSize))
	params.Set("sortBy", string(q.SortBy))
	params.Set("order", string(q.Order))
	if q.Search != "" {
		params.Set(c.searchParam, q.Search)
	}

	var wire []wireNote
	header, err := c.do(ctx, http.MethodGet, c.collectionURL()+"?"+params.Encode(), nil, &wire)
	if err != nil {
		// MockAPI answers a filter without matches with 404.
		if q.Search != "" && core.StatusOf(err) == http.StatusNotFound {
			return core.Page{Notes: []core.Note{}, Total: 0}, nil
		}
		return core.Page{}, err
	}

	notes := make([]core.Note, 0, len(wire))
	for _, w := range wire {
		notes = append(notes, w.note())
	}

	return core.Page{Notes: notes, Total: estimateTotal(header, q.Page, q.PageSize, len(notes))}, nil
}

func estimateTotal(header http.Header, page, limit, got int) int {
	if v := header.Get("X-Total-Count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	if got == limit {
		return page*limit + 1
	}
	return (page-1)*limit + got
}

// Get fetches a single note.
func (c *Client) Get(ctx context.Context, id string) (core.Note, error) {
	var w wireNote
	if _, err := c.do(ctx, http.MethodGet, c.itemURL(id), nil, &w); err != nil {
		return core.Note{}, err
	}
	return w.note(), nil
}

// Create stores a new note. The store assigns the ID and timestamps, so neither
// is sent.
func (c *Client) Create(ctx context.Context, in core.NoteInput) (core.Note, error) {
	var w wireNote
	if _, err := c.do(ctx, http.MethodPost, c.collectionURL(), in, &w); err != nil {
		return core.Note{}, err
	}
	c.logger.Debug("note created", "id", w.ID.String())
	return w.note(), nil
}

// Update sends a partial update and returns the stored note.
func (c *Client) Update(ctx context.Context, id string, patch core.NotePatch) (core.Note, error) {
	var w wireNote
	if _, err := c.do(ctx, http.MethodPut, c.itemURL(id), patch, &w); err != nil {
		return core.Note{}, err
	}
	return w.note(), nil
}

// Delete removes a note.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.itemURL(id), nil, nil)
	return err
}

// Ping checks that the store answers at all. Any HTTP response counts as
// reachable; only transport failures and timeouts are errors.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.collectionURL()+"?page=1&limit=1", nil, nil)
	var re *core.RemoteError
	if errors.As(err, &re) && re.Status != 0 && !re.Timeout() {
		return nil
	}
	return err
}

func (c *Client) collectionURL() string {
	return c.baseURL + "/" + c.resource
}

func (c *Client) itemURL(id string) string {
	return c.collectionURL() + "/" + url.PathEscape(id)
}

// do performs one bounded request. Every failure comes back as *core.RemoteError.
func (c *Client) do(ctx context.Context, method, target string, body, out any) (http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &core.RemoteError{Message: fmt.Sprintf("marshal request: %v", err), Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &core.RemoteError{Message: fmt.Sprintf("create request: %v", err), Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, method, target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = fmt.Sprintf("API error: %s", http.StatusText(resp.StatusCode))
		}
		c.logger.Debug("remote rejected request", "method", method, "url", target, "status", resp.StatusCode, "body", msg)
		return resp.Header, &core.RemoteError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.Header, &core.RemoteError{
				Status:  resp.StatusCode,
				Message: fmt.Sprintf("decode response: %v", err),
				Err:     err,
			}
		}
	}
	return resp.Header, nil
}

func (c *Client) transportError(ctx context.Context, method, target string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		c.logger.Debug("remote request timed out", "method", method, "url", target, "timeout", c.timeout)
		return core.NewTimeoutError()
	}
	c.logger.Debug("remote request failed", "method", method, "url", target, "error", err)
	return &core.RemoteError{Message: err.Error(), Err: errors.Join(core.ErrUnreachable, err)}
}

var _ core.RemoteStore = (*Client)(nil)
