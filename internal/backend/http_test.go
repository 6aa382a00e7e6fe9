package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/odindexer/internal/model"
)

// TestStatusError tests HTTP status classification.
func TestStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		code       int
		retryAfter string
		body       string
		wantNil    bool
		wantKind   model.ErrorKind
		wantAfter  time.Duration
	}{
		{name: "ok", code: http.StatusOK, wantNil: true},
		{name: "no content", code: http.StatusNoContent, wantNil: true},
		{name: "too many requests", code: http.StatusTooManyRequests, wantKind: model.KindRateLimited},
		{name: "too many requests with retry after", code: http.StatusTooManyRequests, retryAfter: "7", wantKind: model.KindRateLimited, wantAfter: 7 * time.Second},
		{name: "unavailable with retry after", code: http.StatusServiceUnavailable, retryAfter: "2", wantKind: model.KindRateLimited, wantAfter: 2 * time.Second},
		{name: "unavailable", code: http.StatusServiceUnavailable, wantKind: model.KindTransient},
		{name: "internal error", code: http.StatusInternalServerError, wantKind: model.KindTransient},
		{name: "request timeout", code: http.StatusRequestTimeout, wantKind: model.KindTransient},
		{name: "not found", code: http.StatusNotFound, wantKind: model.KindFatal},
		{name: "forbidden", code: http.StatusForbidden, wantKind: model.KindFatal},
		{name: "forbidden rate limit", code: http.StatusForbidden, body: `{"error":{"errors":[{"reason":"userRateLimitExceeded"}]}}`, wantKind: model.KindRateLimited},
		{name: "redirect", code: http.StatusFound, wantKind: model.KindFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp := &http.Response{
				StatusCode: tt.code,
				Status:     http.StatusText(tt.code),
				Header:     http.Header{},
			}
			if tt.retryAfter != "" {
				resp.Header.Set("Retry-After", tt.retryAfter)
			}

			err := statusError(resp, []byte(tt.body))
			if tt.wantNil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}

			be, ok := model.AsBackendError(err)
			if !ok {
				t.Fatalf("expected backend error, got %v", err)
			}
			if be.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, be.Kind)
			}
			if be.RetryAfter != tt.wantAfter {
				t.Errorf("expected retry after %s, got %s", tt.wantAfter, be.RetryAfter)
			}
			if !IsStatus(err, tt.code) {
				t.Errorf("expected IsStatus(%d) to be true", tt.code)
			}
		})
	}
}

// TestRetryAfter tests Retry-After header parsing.
func TestRetryAfter(t *testing.T) {
	t.Parallel()

	if got := retryAfter("120"); got != 2*time.Minute {
		t.Errorf("expected 2m, got %s", got)
	}
	if got := retryAfter(""); got != 0 {
		t.Errorf("expected 0, got %s", got)
	}
	if got := retryAfter("soon"); got != 0 {
		t.Errorf("expected 0, got %s", got)
	}

	date := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	if got := retryAfter(date); got <= 58*time.Minute || got > time.Hour {
		t.Errorf("expected about 1h, got %s", got)
	}

	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	if got := retryAfter(past); got != 0 {
		t.Errorf("expected 0 for a past date, got %s", got)
	}
}

// TestRequesterBodyLimit tests that oversized responses fail instead of
// being parsed partially.
func TestRequesterBodyLimit(t *testing.T) {
	t.Parallel()

	var listing strings.Builder
	listing.WriteString("<html><body><pre>\n")
	for i := range 100 {
		fmt.Fprintf(&listing, "<a href=\"file%03d.bin\">file%03d.bin</a>  01-Jan-2023 10:00  %d\n", i, i, i+1)
	}
	listing.WriteString("</pre></body></html>")
	big := listing.String()

	mux := http.NewServeMux()
	mux.HandleFunc("/big/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(big))
	})
	mux.HandleFunc("/exact/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("x", 1024)))
	})
	mux.HandleFunc("/json/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"files":["` + strings.Repeat("a", 2048) + `"]}`))
	})
	mux.HandleFunc("/broken/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("e", 4096)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	opts := Options{HTTPClient: srv.Client(), MaxBodySize: 1024}

	t.Run("html listing over the limit is fatal", func(t *testing.T) {
		t.Parallel()

		page, err := NewHTML(opts).ListPage(ctx, model.Folder{URL: srv.URL + "/big/"}, "")
		if page != nil {
			t.Errorf("expected no page, got %d files", len(page.Files))
		}
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Fatalf("expected ErrBodyTooLarge, got %v", err)
		}
		be, ok := model.AsBackendError(err)
		if !ok || be.Kind != model.KindFatal {
			t.Errorf("expected fatal backend error, got %v", err)
		}
	})

	t.Run("html listing under the limit is complete", func(t *testing.T) {
		t.Parallel()

		a := NewHTML(Options{HTTPClient: srv.Client(), MaxBodySize: int64(len(big))})
		page, err := a.ListPage(ctx, model.Folder{URL: srv.URL + "/big/"}, "")
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(page.Files) != 100 {
			t.Errorf("expected 100 files, got %d", len(page.Files))
		}
	})

	t.Run("body exactly at the limit is read", func(t *testing.T) {
		t.Parallel()

		resp, err := newRequester(opts.withDefaults()).get(ctx, srv.URL+"/exact/")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if len(resp.body) != 1024 {
			t.Errorf("expected 1024 bytes, got %d", len(resp.body))
		}
	})

	t.Run("json over the limit is fatal", func(t *testing.T) {
		t.Parallel()

		var v map[string]any
		err := newRequester(opts.withDefaults()).getJSON(ctx, srv.URL+"/json/", nil, &v)
		be, ok := model.AsBackendError(err)
		if !ok || be.Kind != model.KindFatal || !errors.Is(err, ErrBodyTooLarge) {
			t.Errorf("expected fatal ErrBodyTooLarge, got %v", err)
		}
	})

	t.Run("status error wins over the limit", func(t *testing.T) {
		t.Parallel()

		_, err := newRequester(opts.withDefaults()).get(ctx, srv.URL+"/broken/")
		be, ok := model.AsBackendError(err)
		if !ok || be.Kind != model.KindTransient {
			t.Errorf("expected transient error, got %v", err)
		}
		if errors.Is(err, ErrBodyTooLarge) {
			t.Errorf("expected the status error, got %v", err)
		}
	})
}
