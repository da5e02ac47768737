// Package geocode provides address geocoding via the Google Geocoding API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes formatted address strings.
type Client interface {
	// Geocode resolves a single formatted address to coordinates.
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address.
type Result struct {
	Lat              float64
	Lng              float64
	FormattedAddress string // provider's canonical form of the address
	Matched          bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for API calls. Every
// request waits on this limiter, so it doubles as the global submission
// throttle for concurrent fetch pipelines.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type geocoder struct {
	httpClient *http.Client
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient creates a geocoding Client using the given API key.
func NewClient(apiKey string, opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(30, 1), // Google blocks past 50 req/s
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
