package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout is the default HTTP client timeout.
const DefaultTimeout = 30 * time.Second

// Client performs operations against a cellar server.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a Client for the server at endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}

	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	c := &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Create stores a new record. Records with Data are sent as
// multipart/form-data; directories are sent as JSON. Non-string fields sent
// with Data are JSON-encoded form values.
func (c *Client) Create(ctx context.Context, ns string, req CreateRequest) (*Record, error) {
	if ns == "" {
		return nil, fmt.Errorf("create: %w", ErrEmptyNamespace)
	}

	fields := make(map[string]any, len(req.Fields)+3)
	for k, v := range req.Fields {
		fields[k] = v
	}
	for k, v := range map[string]string{"name": req.Name, "dir": req.Dir, "type": req.Type} {
		if v != "" {
			fields[k] = v
		}
	}

	if req.Data == nil {
		body, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("create: encode fields: %w", err)
		}
		var rec Record
		err = c.do(ctx, http.MethodPost, c.url(ns), "application/json", bytes.NewReader(body), http.StatusCreated, &rec)
		if err != nil {
			return nil, fmt.Errorf("create: %w", err)
		}
		return &rec, nil
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, fields, req))
	}()

	var rec Record
	err := c.do(ctx, http.MethodPost, c.url(ns), mw.FormDataContentType(), pr, http.StatusCreated, &rec)
	_ = pr.Close()
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return &rec, nil
}

func writeMultipart(mw *multipart.Writer, fields map[string]any, req CreateRequest) error {
	for k, v := range fields {
		value, err := formValue(v)
		if err != nil {
			return fmt.Errorf("encode field %s: %w", k, err)
		}
		if err := mw.WriteField(k, value); err != nil {
			return err
		}
	}

	filename := req.Name
	if filename == "" {
		filename = "data"
	}
	part, err := mw.CreateFormFile("data", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Data); err != nil {
		return err
	}
	return mw.Close()
}

func formValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Get returns the record with id.
func (c *Client) Get(ctx context.Context, ns, id string) (*Record, error) {
	if err := checkRef(ns, id); err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}

	var rec Record
	if err := c.do(ctx, http.MethodGet, c.url(ns, id), "", nil, http.StatusOK, &rec); err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	return &rec, nil
}

// List returns a page of records in creation order.
func (c *Client) List(ctx context.Context, ns string, opts ListOptions) (*ListResult, error) {
	if ns == "" {
		return nil, fmt.Errorf("list: %w", ErrEmptyNamespace)
	}

	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Skip > 0 {
		q.Set("skip", strconv.Itoa(opts.Skip))
	}

	u := c.url(ns)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var result ListResult
	if err := c.do(ctx, http.MethodGet, u, "", nil, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return &result, nil
}

// ListAll pages through every record of ns.
func (c *Client) ListAll(ctx context.Context, ns string, pageSize int) ([]Record, error) {
	var all []Record
	opts := ListOptions{Limit: pageSize}
	for {
		page, err := c.List(ctx, ns, opts)
		if err != nil {
			return all, err
		}
		all = append(all, page.Data...)

		next := page.Next()
		if next < 0 {
			return all, nil
		}
		opts.Skip = next
	}
}

// Patch updates fields of a record. Fields not named keep their values.
func (c *Client) Patch(ctx context.Context, ns, id string, fields map[string]any) (*Record, error) {
	if err := checkRef(ns, id); err != nil {
		return nil, fmt.Errorf("patch: %w", err)
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("patch: encode fields: %w", err)
	}

	var rec Record
	err = c.do(ctx, http.MethodPatch, c.url(ns, id), "application/json", bytes.NewReader(body), http.StatusOK, &rec)
	if err != nil {
		return nil, fmt.Errorf("patch: %w", err)
	}
	return &rec, nil
}

// Remove deletes a record and returns it as it was.
func (c *Client) Remove(ctx context.Context, ns, id string) (*Record, error) {
	if err := checkRef(ns, id); err != nil {
		return nil, fmt.Errorf("remove: %w", err)
	}

	var rec Record
	if err := c.do(ctx, http.MethodDelete, c.url(ns, id), "", nil, http.StatusOK, &rec); err != nil {
		return nil, fmt.Errorf("remove: %w", err)
	}
	return &rec, nil
}

// Download streams the content of a record. The caller closes the body.
func (c *Client) Download(ctx context.Context, ns, id string) (io.ReadCloser, *ContentInfo, error) {
	if err := checkRef(ns, id); err != nil {
		return nil, nil, fmt.Errorf("download: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(ns, id, "data"), http.NoBody)
	if err != nil {
		return nil, nil, fmt.Errorf("download: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("download: do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		return nil, nil, fmt.Errorf("download: %w", parseServerError(resp.StatusCode, body))
	}

	info := &ContentInfo{
		Type: resp.Header.Get("Content-Type"),
		Size: resp.ContentLength,
		ETag: strings.Trim(resp.Header.Get("ETag"), `"`),
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, parseErr := http.ParseTime(lm); parseErr == nil {
			info.LastModified = t
		}
	}

	return resp.Body, info, nil
}

// Replace swaps the content of a record. An empty contentType lets the
// server detect it.
func (c *Client) Replace(ctx context.Context, ns, id, contentType string, data io.Reader) (*Record, error) {
	if err := checkRef(ns, id); err != nil {
		return nil, fmt.Errorf("replace: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var rec Record
	if err := c.do(ctx, http.MethodPut, c.url(ns, id, "data"), contentType, data, http.StatusOK, &rec); err != nil {
		return nil, fmt.Errorf("replace: %w", err)
	}
	return &rec, nil
}

// do sends a request and decodes a JSON response with status want into out.
func (c *Client) do(ctx context.Context, method, u, contentType string, body io.Reader, want int, out any) error {
	if body == nil {
		body = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != want {
		return parseServerError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *Client) url(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.endpoint + "/" + strings.Join(escaped, "/")
}

func checkRef(ns, id string) error {
	if ns == "" {
		return ErrEmptyNamespace
	}
	if id == "" {
		return ErrEmptyID
	}
	return nil
}
