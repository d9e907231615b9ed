package blocklist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPostSendsExpectedPayload(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("want application/json content-type, got %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	if err := c.Post(context.Background(), "bbbb", 86400, false); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got.Key != "bbbb" || got.BlockTime != 86400 || got.Realert != "false" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestPostNonSuccessStatusIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	if err := c.Post(context.Background(), "bbbb", 86400, false); err == nil {
		t.Fatalf("want error on 500 response")
	}
}

func TestPostRealertTrue(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	if err := c.Post(context.Background(), "cccc", 60, true); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got.Realert != "true" {
		t.Fatalf("want realert literal string true, got %q", got.Realert)
	}
}

func TestDryRunClientNeverCallsNetwork(t *testing.T) {
	d := NewDryRun(zerolog.Nop())
	if err := d.Post(context.Background(), "bbbb", 86400, false); err != nil {
		t.Fatalf("dry-run Post should never error: %v", err)
	}
}
