package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/odindexer/internal/model"
)

// requester performs HTTP requests on behalf of the HTTP-based adapters and
// classifies their failures.
type requester struct {
	client      *http.Client
	userAgent   string
	header      http.Header
	username    string
	password    string
	maxBodySize int64
}

func newRequester(o Options) *requester {
	return &requester{
		client:      o.HTTPClient,
		userAgent:   o.UserAgent,
		header:      o.Header,
		username:    o.Username,
		password:    o.Password,
		maxBodySize: o.MaxBodySize,
	}
}

// response is a fully read HTTP response.
type response struct {
	status   int
	header   http.Header
	body     []byte
	finalURL string
}

// do sends a request and reads the body. Non-2xx responses are returned as
// classified backend errors.
func (r *requester) do(ctx context.Context, method, rawURL string, body io.Reader, header http.Header) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, model.Fatal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", r.userAgent)
	for k, vs := range r.header {
		req.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.username != "" || r.password != "" {
		req.SetBasicAuth(r.username, r.password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, model.Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodySize+1))
	if err != nil {
		return nil, model.Transient(fmt.Errorf("read body: %w", err))
	}
	tooLarge := int64(len(data)) > r.maxBodySize
	if tooLarge {
		data = data[:r.maxBodySize]
	}

	if err := statusError(resp, data); err != nil {
		return nil, err
	}
	// A cut listing would drop entries without any sign of it.
	if tooLarge {
		return nil, model.Fatal(fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, r.maxBodySize))
	}
	return &response{
		status:   resp.StatusCode,
		header:   resp.Header,
		body:     data,
		finalURL: resp.Request.URL.String(),
	}, nil
}

// get performs a GET request.
func (r *requester) get(ctx context.Context, rawURL string) (*response, error) {
	return r.do(ctx, http.MethodGet, rawURL, nil, nil)
}

// getJSON performs a GET request and decodes a JSON body into v.
func (r *requester) getJSON(ctx context.Context, rawURL string, header http.Header, v any) error {
	if header == nil {
		header = http.Header{}
	}
	header.Set("Accept", "application/json")
	resp, err := r.do(ctx, http.MethodGet, rawURL, nil, header)
	if err != nil {
		return err
	}
	return decodeJSON(resp.body, v)
}

// postJSON performs a POST request with a JSON body and decodes the JSON
// response into v.
func (r *requester) postJSON(ctx context.Context, rawURL string, payload, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.Fatal(fmt.Errorf("encode request: %w", err))
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	resp, err := r.do(ctx, http.MethodPost, rawURL, bytes.NewReader(data), header)
	if err != nil {
		return err
	}
	return decodeJSON(resp.body, v)
}

func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		// A truncated or garbled body is usually a flaky proxy or server.
		return model.Transient(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// HTTPStatusError is the cause of a non-2xx response.
type HTTPStatusError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Status is the status line text.
	Status string
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return "http status " + e.Status
}

// statusError classifies a non-2xx response.
//
//   - 429 and 503 with Retry-After are throttling
//   - 408, 425 and other 5xx are transient
//   - every other 4xx is fatal (missing, forbidden, gone)
func statusError(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	cause := &HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	after := retryAfter(resp.Header.Get("Retry-After"))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return model.RateLimited(cause, after)
	case resp.StatusCode == http.StatusServiceUnavailable && after > 0:
		return model.RateLimited(cause, after)
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooEarly:
		return model.Transient(cause)
	case resp.StatusCode >= 500:
		return model.Transient(cause)
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return model.Fatal(fmt.Errorf("%w: unfollowed redirect to %q", cause, resp.Header.Get("Location")))
	default:
		if isRateLimitBody(body) {
			return model.RateLimited(cause, after)
		}
		return model.Fatal(cause)
	}
}

// isRateLimitBody detects APIs that report throttling with 403.
func isRateLimitBody(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "ratelimitexceeded") || strings.Contains(lower, "rate limit exceeded")
}

// retryAfter parses a Retry-After header (seconds or HTTP date).
func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// IsStatus reports whether err was caused by the given HTTP status code.
func IsStatus(err error, code int) bool {
	var se *HTTPStatusError
	return errors.As(err, &se) && se.StatusCode == code
}
