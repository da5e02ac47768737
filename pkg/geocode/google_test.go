package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeocode_Match(t *testing.T) {
	var gotAddress, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [{
				"geometry": {"location": {"lat": 39.78, "lng": -89.65}},
				"formatted_address": "1 Main St, Springfield, IL 62701, USA"
			}]
		}`)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, googleGeocodeURL),
		apiKey:     "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.Geocode(context.Background(), "1 Main St Springfield IL 62701")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 39.78, result.Lat, 0.0001)
	assert.InDelta(t, -89.65, result.Lng, 0.0001)
	assert.Equal(t, "1 Main St, Springfield, IL 62701, USA", result.FormattedAddress)
	assert.Equal(t, "1 Main St Springfield IL 62701", gotAddress)
	assert.Equal(t, "test-key", gotKey)
}

func TestGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, googleGeocodeURL),
		apiKey:     "test-key",
		limiter:    newTestLimiter(),
	}

	result, err := g.Geocode(context.Background(), "000 Nonexistent Nowhere XX")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGeocode_QuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status": "OVER_QUERY_LIMIT", "results": []}`)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, googleGeocodeURL),
		apiKey:     "test-key",
		limiter:    newTestLimiter(),
	}

	_, err := g.Geocode(context.Background(), "1 Main St Springfield IL")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrQuotaExceeded))
}

func TestGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, googleGeocodeURL),
		apiKey:     "test-key",
		limiter:    newTestLimiter(),
	}

	_, err := g.Geocode(context.Background(), "1 Main St Springfield IL")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestGeocode_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, googleGeocodeURL),
		apiKey:     "test-key",
		limiter:    newTestLimiter(),
	}

	_, err := g.Geocode(context.Background(), "1 Main St Springfield IL")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestGeocode_NoKey(t *testing.T) {
	g := &geocoder{
		httpClient: http.DefaultClient,
		limiter:    newTestLimiter(),
	}

	_, err := g.Geocode(context.Background(), "1 Main St Springfield IL")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
