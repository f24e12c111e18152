package ical

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
	"github.com/Wollie333/vilo-sub009/shared/metrics"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

const (
	// MaxFeedBytes caps the size of a downloaded calendar
	MaxFeedBytes = 5 << 20

	defaultUserAgent = "Vilo-ChannelSync/1.0"
)

var errFeedTooLarge = fmt.Errorf("feed exceeds %d bytes", MaxFeedBytes)

// Fetcher downloads calendar feeds with one circuit breaker per host
type Fetcher struct {
	HTTP      *http.Client
	UserAgent string
	MaxBytes  int64
	breakers  *utils.BreakerSet
}

// NewFetcher creates a fetcher with the given request timeout
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		HTTP: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		UserAgent: defaultUserAgent,
		MaxBytes:  MaxFeedBytes,
		breakers:  utils.NewBreakerSet(3, 5*time.Minute),
	}
}

// Fetch downloads the raw calendar at rawURL
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.FeedError(rawURL, errors.New("invalid feed URL"))
	}

	var body []byte
	start := time.Now()
	err = f.breakers.For(u.Host).Call(func() error {
		var callErr error
		body, callErr = f.get(ctx, u.String())
		return callErr
	})
	metrics.ObserveFeedFetch(u.Host, outcome(err), time.Since(start))
	if err != nil {
		return nil, apperr.FeedError(rawURL, err)
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.5")

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = MaxFeedBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, errFeedTooLarge
	}
	return body, nil
}

// BreakerStates reports the circuit state of every host fetched so far
func (f *Fetcher) BreakerStates() map[string]utils.CircuitState {
	return f.breakers.States()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, utils.ErrCircuitOpen), errors.Is(err, utils.ErrTooManyRequests):
		return "short_circuit"
	default:
		return "error"
	}
}

// FetchAndParse downloads and parses a feed. Every failure is an ExternalFeedError.
func (f *Fetcher) FetchAndParse(ctx context.Context, rawURL string) ([]Reservation, error) {
	body, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	reservations, err := ParseBytes(body)
	if err != nil {
		return nil, apperr.FeedError(rawURL, err)
	}
	return reservations, nil
}
