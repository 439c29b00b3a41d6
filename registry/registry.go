// Package registry is a thin client for the schema-registry HTTP API.
//
// Schemas are keyed two ways: by the opaque id the registry assigns on
// creation, and by the composite version name ("<name>@<version>") that
// callers use to refer to a specific published revision. All operations
// take a context and surface non-2xx responses as *APIError, with 404
// mapped to ErrNotFound so callers can branch without inspecting codes.
package registry

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
	"time"
)

// ErrNotFound is returned when the registry has no schema for the
// requested id or version name.
var ErrNotFound = errors.New("registry: schema not found")

// APIError carries a non-2xx registry response.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("registry: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("registry: %s (status %d)", e.Message, e.StatusCode)
}

// Schema is one schema revision as the registry stores it.
type Schema struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	VersionName string    `json:"version_name,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// VersionName composes the registry's canonical version key.
func VersionName(name, version string) string {
	return name + "@" + version
}

// ValidationResult reports whether a schema document parses under its
// declared content type.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// BreakingChange is one incompatibility between two schema revisions.
type BreakingChange struct {
	Type        string `json:"type"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
}

// BreakingChangeReport is the result of comparing a proposed revision
// against the stored one.
type BreakingChangeReport struct {
	Breaking bool             `json:"breaking"`
	Changes  []BreakingChange `json:"changes,omitempty"`
}

// Page is one page of a paged listing.
type Page struct {
	Items    []Schema `json:"items"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	Total    int      `json:"total"`
}

// Client talks to a single registry endpoint. The zero value is not
// usable; construct with NewClient.
type Client struct {
	baseURL *url.URL
	hc      *http.Client
	log     *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient validates baseURL and returns a client rooted at it.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse registry url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("registry url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL: u,
		hc:      &http.Client{Timeout: 30 * time.Second},
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// List returns every schema the registry holds.
func (c *Client) List(ctx context.Context) ([]Schema, error) {
	var out []Schema
	if err := c.do(ctx, http.MethodGet, "/schemas", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPage returns one page of the listing. Page numbering starts at 1;
// pageSize <= 0 lets the registry pick its default.
func (c *Client) ListPage(ctx context.Context, page, pageSize int) (*Page, error) {
	path := "/schemas?page=" + strconv.Itoa(page)
	if pageSize > 0 {
		path += "&page_size=" + strconv.Itoa(pageSize)
	}
	var out Page
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches a schema by its opaque id.
func (c *Client) Get(ctx context.Context, id string) (*Schema, error) {
	var out Schema
	if err := c.do(ctx, http.MethodGet, "/schemas/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetVersion fetches a schema by its composite version name.
func (c *Client) GetVersion(ctx context.Context, versionName string) (*Schema, error) {
	var out Schema
	if err := c.do(ctx, http.MethodGet, "/schemas/versions/"+url.PathEscape(versionName), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create registers a new schema revision and returns it with the
// registry-assigned id and version name filled in.
func (c *Client) Create(ctx context.Context, s *Schema) (*Schema, error) {
	var out Schema
	if err := c.do(ctx, http.MethodPost, "/schemas", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the stored schema with the given id.
func (c *Client) Update(ctx context.Context, id string, s *Schema) (*Schema, error) {
	var out Schema
	if err := c.do(ctx, http.MethodPut, "/schemas/"+url.PathEscape(id), s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the schema with the given id.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/schemas/"+url.PathEscape(id), nil, nil)
}

// Exists reports whether a schema with the given id is registered. A 404
// is not an error here; it is the negative answer.
func (c *Client) Exists(ctx context.Context, id string) (bool, error) {
	err := c.do(ctx, http.MethodHead, "/schemas/"+url.PathEscape(id), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Validate asks the registry to parse content under the given content
// type without storing anything.
func (c *Client) Validate(ctx context.Context, content, contentType string) (*ValidationResult, error) {
	body := struct {
		Content     string `json:"content"`
		ContentType string `json:"content_type,omitempty"`
	}{Content: content, ContentType: contentType}
	var out ValidationResult
	if err := c.do(ctx, http.MethodPost, "/schemas/validate", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckBreaking compares newContent against the stored schema with the
// given id and reports any incompatibilities.
func (c *Client) CheckBreaking(ctx context.Context, id, newContent string) (*BreakingChangeReport, error) {
	body := struct {
		Content string `json:"content"`
	}{Content: newContent}
	var out BreakingChangeReport
	if err := c.do(ctx, http.MethodPost, "/schemas/"+url.PathEscape(id)+"/breaking-changes", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one request against the registry. A nil in means no body;
// a nil out discards the response body after the status check.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("build registry path %q: %w", path, err)
	}
	u := c.baseURL.ResolveReference(ref)

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode registry request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("registry %s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	c.log.DebugContext(ctx, "registry.request",
		slog.String("method", method),
		slog.String("path", u.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode registry response: %w", err)
	}
	return nil
}

// apiError builds an *APIError from a failed response, preferring the
// registry's own message field when the body carries one.
func (c *Client) apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && len(raw) > 0 {
		var payload struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			if payload.Message != "" {
				apiErr.Message = payload.Message
			} else {
				apiErr.Message = payload.Error
			}
		}
	}
	return apiErr
}
