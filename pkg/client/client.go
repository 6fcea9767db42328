// Package client talks to the blob API, sending and receiving blob bodies as
// structured messages.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ssargent/structmsg/pkg/api"
	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/reliable"
	"github.com/ssargent/structmsg/pkg/structmsg"
)

// ErrNotFound is matched by APIErrors for missing blobs
var ErrNotFound = errors.New("blob not found")

// APIError is a non-success answer from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Is makes errors.Is(err, ErrNotFound) hold for 404 answers
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

func (e *APIError) retryable() bool {
	return e.StatusCode >= 500
}

// Options configures a Client
type Options struct {
	APIKey     string
	HTTPClient *http.Client
	Encoding   structmsg.EncodingOptions
	Retry      reliable.Options
}

// Client is a blob API client
type Client struct {
	baseURL string
	options Options
	http    *http.Client
	logger  zerolog.Logger
}

// BlobInfo is what Stat reports about a blob
type BlobInfo struct {
	ID      string
	Length  int64
	Crc64   string
	Created time.Time
}

// New creates a client for the server at baseURL
func New(baseURL string, options Options) *Client {
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}
	if options.Retry.MaxRetryRequests < 1 {
		options.Retry.MaxRetryRequests = 1
	}
	if options.Retry.BackoffMultiplier < 1 {
		options.Retry.BackoffMultiplier = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		options: options,
		http:    options.HTTPClient,
		logger:  options.Retry.Logger,
	}
}

// Upload sends content as a structured message. Transport failures and 5xx
// answers rewind the message and resend it, up to MaxRetryRequests attempts.
// content is borrowed and must be rewindable for resends to work.
func (c *Client) Upload(ctx context.Context, content bodystream.BodyStream) (api.BlobResponse, error) {
	enc, err := structmsg.NewEncodingStream(content, c.options.Encoding)
	if err != nil {
		return api.BlobResponse{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.options.Retry.MaxRetryRequests; attempt++ {
		if attempt > 1 {
			backoff := c.options.Retry.Backoff(attempt - 2)
			c.logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("upload failed, resending")

			select {
			case <-ctx.Done():
				return api.BlobResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
			if err := enc.Rewind(); err != nil {
				return api.BlobResponse{}, fmt.Errorf("cannot resend upload: %w (after %v)", err, lastErr)
			}
		}

		blob, err := c.upload(ctx, enc, content.Length())
		if err == nil {
			return blob, nil
		}
		if ctx.Err() != nil {
			return api.BlobResponse{}, ctx.Err()
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return api.BlobResponse{}, err
		}
		lastErr = err
	}

	return api.BlobResponse{}, fmt.Errorf("upload failed after %d attempts: %w", c.options.Retry.MaxRetryRequests, lastErr)
}

func (c *Client) upload(ctx context.Context, enc *structmsg.EncodingStream, contentLength int64) (api.BlobResponse, error) {
	body := &requestBody{ctx: ctx, stream: enc}
	// The transport may still be reading when Do returns
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/blobs", body)
	if err != nil {
		return api.BlobResponse{}, err
	}
	req.ContentLength = enc.Length()
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(structmsg.HeaderStructuredBody, structmsg.HeaderValue(enc.Flags()))
	req.Header.Set(structmsg.HeaderStructuredContentLength, strconv.FormatInt(contentLength, 10))

	var blob api.BlobResponse
	if err := c.do(req, &blob); err != nil {
		return api.BlobResponse{}, err
	}
	return blob, nil
}

// requestBody is the io.ReadCloser handed to the transport. Close waits for
// an in-flight Read so the stream can be rewound safely afterwards.
type requestBody struct {
	mu     sync.Mutex
	ctx    context.Context
	stream bodystream.BodyStream
	closed bool
}

func (b *requestBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, bodystream.ErrClosed
	}
	return b.stream.Read(b.ctx, p)
}

func (b *requestBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Download opens a blob as a structured message. The returned stream
// verifies every checksum while it is read and resumes with a ranged request
// if the connection breaks. Close it when done.
func (c *Client) Download(ctx context.Context, id string) (*reliable.Stream, error) {
	open := func(ctx context.Context, offset int64) (bodystream.BodyStream, error) {
		return c.openStructured(ctx, id, offset)
	}
	first, err := open(ctx, 0)
	if err != nil {
		return nil, err
	}
	return reliable.New(first, c.options.Retry, open), nil
}

func (c *Client) openStructured(ctx context.Context, id string, offset int64) (*structmsg.DecodingStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/blobs/"+id, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	flags := c.options.Encoding.Flags
	req.Header.Set(structmsg.HeaderStructuredBody, structmsg.HeaderValue(flags))
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}

	contentLength, err := strconv.ParseInt(resp.Header.Get(structmsg.HeaderStructuredContentLength), 10, 64)
	if err != nil || resp.Header.Get(structmsg.HeaderStructuredBody) == "" {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: server did not answer with a structured body", structmsg.ErrMalformedMessage)
	}
	if resp.ContentLength < 0 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: structured response without Content-Length", structmsg.ErrMalformedMessage)
	}

	inner := bodystream.NewReaderStream(resp.Body, resp.ContentLength)
	return structmsg.NewDecodingStream(inner, structmsg.DecodingOptions{ContentLength: contentLength}), nil
}

// Stat returns blob metadata
func (c *Client) Stat(ctx context.Context, id string) (BlobInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/blobs/"+id, nil)
	if err != nil {
		return BlobInfo{}, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return BlobInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return BlobInfo{}, &APIError{StatusCode: resp.StatusCode}
	}

	created, _ := time.Parse(time.RFC3339, resp.Header.Get(api.HeaderBlobCreated))
	return BlobInfo{
		ID:      id,
		Length:  resp.ContentLength,
		Crc64:   resp.Header.Get(api.HeaderBlobCrc64),
		Created: created,
	}, nil
}

// Delete removes a blob
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/blobs/"+id, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// List returns all blobs on the server
func (c *Client) List(ctx context.Context) ([]api.BlobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/blobs", nil)
	if err != nil {
		return nil, err
	}
	var blobs []api.BlobResponse
	if err := c.do(req, &blobs); err != nil {
		return nil, err
	}
	return blobs, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.options.APIKey != "" {
		req.Header.Set("X-API-Key", c.options.APIKey)
	}
}

// do sends req and decodes the data of a JSON APIResponse into out
func (c *Client) do(req *http.Request, out interface{}) error {
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}

	envelope := struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
		Error   string      `json:"error"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	var body api.APIResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}
