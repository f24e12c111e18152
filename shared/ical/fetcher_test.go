package ical

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

func TestFetchAndParse(t *testing.T) {
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(calendar("UID:x1\nDTSTART;VALUE=DATE:20250110\nDTEND;VALUE=DATE:20250112\nSUMMARY:Guest")))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	got, err := f.FetchAndParse(context.Background(), srv.URL+"/feed.ics")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ExternalID != "x1" {
		t.Fatalf("unexpected reservations %+v", got)
	}
	if ua, _ := gotUA.Load().(string); ua != defaultUserAgent {
		t.Fatalf("expected user agent %q, got %q", defaultUserAgent, ua)
	}
}

func TestFetchNon2xxIsFeedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher(5*time.Second).FetchAndParse(context.Background(), srv.URL)
	if !apperr.IsExternalFeed(err) {
		t.Fatalf("expected ExternalFeedError, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("status should be reported: %v", err)
	}
}

func TestFetchMalformedBodyIsFeedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>login required</html>"))
	}))
	defer srv.Close()

	_, err := NewFetcher(5*time.Second).FetchAndParse(context.Background(), srv.URL)
	if !apperr.IsExternalFeed(err) {
		t.Fatalf("expected ExternalFeedError, got %v", err)
	}
}

func TestFetchEnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("X", 2048)))
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	f.MaxBytes = 1024
	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, errFeedTooLarge) {
		t.Fatalf("expected size cap error, got %v", err)
	}
}

func TestFetchRejectsBadURL(t *testing.T) {
	_, err := NewFetcher(time.Second).Fetch(context.Background(), "ftp://example.com/feed.ics")
	if !apperr.IsExternalFeed(err) {
		t.Fatalf("expected ExternalFeedError, got %v", err)
	}
}

func TestFetchOpensCircuitPerHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	for i := 0; i < 5; i++ {
		_, _ = f.Fetch(context.Background(), srv.URL)
	}
	if n := hits.Load(); n != 3 {
		t.Fatalf("expected the breaker to stop calls after 3 failures, got %d hits", n)
	}

	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, utils.ErrCircuitOpen) || !apperr.IsExternalFeed(err) {
		t.Fatalf("expected short-circuit feed error, got %v", err)
	}
	for _, state := range f.BreakerStates() {
		if state != utils.StateOpen {
			t.Fatalf("expected open breaker, got %s", state)
		}
	}
}
