// Package remote talks to xsyncd over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"xsync-go/internal/ratelimit"
	"xsync-go/internal/xsync"
)

// Options configures a Client.
type Options struct {
	ServerURL  string
	Token      string
	UploadRate int // bytes per second, 0 = unlimited
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements xsync.Remote against the xsyncd HTTP API.
type Client struct {
	base       *url.URL
	token      string
	uploadRate int
	http       *http.Client
}

var _ xsync.Remote = (*Client)(nil)

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.ServerURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid server url %q", xsync.ErrConfiguration, opts.ServerURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{base: base, token: opts.Token, uploadRate: opts.UploadRate, http: hc}, nil
}

// SetToken replaces the bearer token sent with authenticated requests.
func (c *Client) SetToken(token string) { c.token = token }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body"`
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", xsync.ErrTransferFailure, method, path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}
	return resp, nil
}

// responseError turns a non-2xx response into a classified error.
func responseError(resp *http.Response) error {
	var env envelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &env) == nil && env.Message != "" {
		msg = env.Message
	}
	var kind error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		kind = xsync.ErrValidation
	case http.StatusUnauthorized:
		kind = xsync.ErrUnauthenticated
	case http.StatusNotFound:
		kind = xsync.ErrNotFound
	case http.StatusConflict:
		kind = xsync.ErrConflict
	default:
		kind = xsync.ErrTransferFailure
	}
	return fmt.Errorf("%w: server answered %d: %s", kind, resp.StatusCode, msg)
}

// call performs a request whose answer is a JSON envelope and decodes its
// body into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, method, path, query, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", xsync.ErrTransferFailure, path, err)
	}
	if out == nil || len(env.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Body, out); err != nil {
		return fmt.Errorf("%w: decoding %s body: %w", xsync.ErrTransferFailure, path, err)
	}
	return nil
}

func (c *Client) callJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	return c.call(ctx, method, path, query, "application/json", bytes.NewReader(raw), out)
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	return c.credentials(ctx, "/user/register", email, password)
}

// Login returns a fresh token for an existing account.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	return c.credentials(ctx, "/user/login", email, password)
}

func (c *Client) credentials(ctx context.Context, path, email, password string) (string, error) {
	form := url.Values{"email": {email}, "password": {password}}
	var out struct {
		Token string `json:"token"`
	}
	err := c.call(ctx, http.MethodPost, path, nil, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &out)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: server returned no token", xsync.ErrTransferFailure)
	}
	c.token = out.Token
	return out.Token, nil
}

func (c *Client) FetchMetadata(ctx context.Context, path string) (*xsync.Metadata, error) {
	var meta xsync.Metadata
	err := c.call(ctx, http.MethodGet, "/metadata/fetch", url.Values{"path": {path}}, "", nil, &meta)
	if errors.Is(err, xsync.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// UpsertMetadata commits metadata whose chunks the server already holds.
func (c *Client) UpsertMetadata(ctx context.Context, meta *xsync.Metadata) (*xsync.Metadata, error) {
	var out xsync.Metadata
	if err := c.callJSON(ctx, http.MethodPut, "/metadata/upsert", url.Values{"path": {meta.FilePath}}, meta, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMetadata(ctx context.Context, path string) (bool, error) {
	err := c.call(ctx, http.MethodDelete, "/metadata/delete", url.Values{"path": {path}}, "", nil, nil)
	if errors.Is(err, xsync.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (c *Client) MissingChunks(ctx context.Context, hashes []string) ([]string, error) {
	var missing []string
	if err := c.callJSON(ctx, http.MethodPost, "/chunk/missing", nil, hashes, &missing); err != nil {
		return nil, err
	}
	return missing, nil
}

func (c *Client) FetchBatch(ctx context.Context, hashes []string) (io.ReadCloser, error) {
	raw, err := json.Marshal(hashes)
	if err != nil {
		return nil, fmt.Errorf("encoding hash list: %w", err)
	}
	resp, err := c.send(ctx, http.MethodPost, "/chunk/fetch/batch", nil, "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// FetchChunk returns a single stored payload.
func (c *Client) FetchChunk(ctx context.Context, hash string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, "/chunk/fetch/"+url.PathEscape(hash), nil, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading chunk %s: %w", xsync.ErrTransferFailure, hash, err)
	}
	return data, nil
}

// UploadBatch streams the multipart form through a pipe so the batch is
// never held in memory. The file part is throttled to the upload rate.
func (c *Client) UploadBatch(ctx context.Context, batchDigest, algorithm string, meta *xsync.Metadata, batch io.Reader) error {
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeUploadForm(ctx, mw, batchDigest, algorithm, rawMeta, batch, c.uploadRate))
	}()

	err = c.call(ctx, http.MethodPost, "/chunk/upload/batch", nil, mw.FormDataContentType(), pr, nil)
	// Unblock the writer if the server answered before draining the body.
	pr.CloseWithError(io.ErrClosedPipe)
	<-done
	return err
}

func writeUploadForm(ctx context.Context, mw *multipart.Writer, digest, algorithm string, meta []byte, batch io.Reader, rate int) error {
	fields := []struct{ name, value string }{
		{"hash", digest},
		{"hash-algorithm", algorithm},
		{"metadata", string(meta)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", "batch")
	if err != nil {
		return err
	}
	if _, err := io.Copy(ratelimit.NewWriter(ctx, part, rate), batch); err != nil {
		return fmt.Errorf("streaming batch: %w", err)
	}
	return mw.Close()
}
