package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestRetryHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("envelope"))
	}))
	defer srv.Close()

	// BaseBackoff is a millisecond, so any wait near a second can only
	// come from the header.
	client, err := NewClient(Config{
		BaseURL:     srv.URL,
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	start := time.Now()
	got, hit, err := client.Get(context.Background(), "k")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !hit || string(got) != "envelope" {
		t.Errorf("hit=%v body=%q", hit, got)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("server saw %d calls, want 2", n)
	}
	if elapsed < time.Second {
		t.Errorf("retry arrived after %v, want at least the advertised second", elapsed)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	mk := func(v string) *http.Response {
		h := http.Header{}
		if v != "" {
			h.Set("Retry-After", v)
		}
		return &http.Response{Header: h}
	}

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"missing", "", 0},
		{"seconds", "3", 3 * time.Second},
		{"zero", "0", 0},
		{"negative", "-5", 0},
		{"capped at five minutes", "900", 5 * time.Minute},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(mk(tt.value)); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}

	if got := parseRetryAfter(nil); got != 0 {
		t.Errorf("parseRetryAfter(nil) = %v, want 0", got)
	}

	future := time.Now().Add(2 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(mk(future)); got <= 0 || got > 2*time.Second {
		t.Errorf("parseRetryAfter(%q) = %v, want within (0, 2s]", future, got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(mk(past)); got != 0 {
		t.Errorf("parseRetryAfter(%q) = %v, want 0", past, got)
	}
}
