package postpolicy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxResponseBody bounds how much of a response body is kept
const maxResponseBody = 64 * 1024

// Client submits signed upload forms to the storage service
type Client struct {
	httpClient   *http.Client
	progressFunc ProgressFunc
	logger       *slog.Logger
}

// ProgressFunc is called while the form body is sent
// It receives the number of bytes written so far
type ProgressFunc func(bytesUploaded int64)

// ClientOption is a functional option for configuring a Client
type ClientOption func(*Client)

// NewClient creates a new form upload client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithProgress sets a progress callback function
func WithProgress(fn ProgressFunc) ClientOption {
	return func(c *Client) {
		c.progressFunc = fn
	}
}

// WithClientLogger sets the client logger
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Response is what the storage service answered, unchanged
type Response struct {
	StatusCode int
	// Status is the full status line, e.g. "403 Forbidden"
	Status string
	// StatusText is the reason phrase, e.g. "Forbidden"
	StatusText string
	Header     http.Header
	Body       []byte
}

// OK reports whether the service accepted the upload
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Submit posts the form to upload.URL exactly once.
//
// Any HTTP response is returned. A non-2xx response is also reported as a
// *StatusError carrying the same Response; network failures return a nil
// Response and a wrapped error.
func (c *Client) Submit(ctx context.Context, upload *Upload) (*Response, error) {
	body, contentType, err := encodeForm(upload)
	if err != nil {
		return nil, err
	}

	var reader io.Reader = body
	if c.progressFunc != nil {
		reader = &progressReader{
			reader:   body,
			callback: c.progressFunc,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upload.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = int64(body.Len())
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %w", err)
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		StatusText: reasonPhrase(resp),
		Header:     resp.Header,
		Body:       respBody,
	}

	c.logger.Debug("upload submitted", "url", upload.URL, "key", upload.Key, "status", result.Status)

	if !result.OK() {
		return result, &StatusError{Response: result}
	}
	return result, nil
}

// Upload builds req with signer and submits it. No request is sent when
// validation fails.
func (c *Client) Upload(ctx context.Context, signer *Signer, req UploadRequest) (*Response, error) {
	upload, err := signer.Build(req)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, upload)
}

// encodeForm writes the text fields in order, then the file part
func encodeForm(upload *Upload) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for _, f := range upload.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f.Name, err)
		}
	}

	part, err := w.CreateFormFile(FieldFile, upload.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(upload.File); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}

	return body, w.FormDataContentType(), nil
}

// reasonPhrase returns the server's reason phrase, falling back to the
// standard text when the status line carries none
func reasonPhrase(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	text = strings.TrimSpace(text)
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}

// progressReader wraps an io.Reader to track upload progress
type progressReader struct {
	reader    io.Reader
	bytesRead int64
	callback  ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.bytesRead += int64(n)
	if pr.callback != nil && n > 0 {
		pr.callback(pr.bytesRead)
	}
	return n, err
}
