package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/geollm/geollm/internal/llm"
)

// FeatureCache caches marshaled feature collections by intent fingerprint.
// *cache.Cache satisfies this.
type FeatureCache interface {
	GetFeatureCollection(ctx context.Context, intentKey string) ([]byte, error)
	SetFeatureCollection(ctx context.Context, intentKey string, data []byte, ttl time.Duration) error
}

// Doer performs HTTP requests. Satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource fetches features from a Mapbox-style geocoding endpoint,
// caching responses in Redis keyed by intent fingerprint.
type HTTPSource struct {
	token    string
	apiURL   string
	http     Doer
	cache    FeatureCache
	cacheTTL time.Duration
}

// NewHTTPSource creates an HTTPSource. Fails when the access token is
// missing (fatal config error). cache may be nil to disable caching.
func NewHTTPSource(token, apiURL string, httpClient Doer, cache FeatureCache, cacheTTL time.Duration) (*HTTPSource, error) {
	if token == "" {
		return nil, fmt.Errorf("geo provider access token is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &HTTPSource{
		token:    token,
		apiURL:   strings.TrimRight(apiURL, "/"),
		http:     httpClient,
		cache:    cache,
		cacheTTL: cacheTTL,
	}, nil
}

// geocodingResponse is the subset of the provider response we read.
type geocodingResponse struct {
	Features []struct {
		PlaceName string         `json:"place_name"`
		Center    []float64      `json:"center"`
		Geometry  Geometry       `json:"geometry"`
		Props     map[string]any `json:"properties"`
	} `json:"features"`
}

// FetchFeatures geocodes the intent's location and returns the matching
// features. An intent with no location yields an empty collection without a
// provider call.
func (s *HTTPSource) FetchFeatures(ctx context.Context, intent *llm.Intent) (*FeatureCollection, error) {
	if intent == nil || intent.Location == nil || *intent.Location == "" {
		return NewFeatureCollection(), nil
	}

	intentKey := intent.Fingerprint()
	if s.cache != nil {
		if data, err := s.cache.GetFeatureCollection(ctx, intentKey); err == nil {
			var fc FeatureCollection
			if err := json.Unmarshal(data, &fc); err == nil {
				return &fc, nil
			}
			// Corrupted entry - refetch
		}
	}

	fc, err := s.geocode(ctx, *intent.Location, intent)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(fc); err == nil {
			// Best effort; a failed cache write must not fail the fetch
			_ = s.cache.SetFeatureCollection(ctx, intentKey, data, s.cacheTTL)
		}
	}

	return fc, nil
}

// geocode performs the forward-geocoding call.
func (s *HTTPSource) geocode(ctx context.Context, location string, intent *llm.Intent) (*FeatureCollection, error) {
	endpoint := fmt.Sprintf("%s/geocoding/v5/mapbox.places/%s.json", s.apiURL, url.PathEscape(location))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build geocoding request: %w", err)
	}

	q := req.URL.Query()
	q.Set("access_token", s.token)
	q.Set("limit", "10")
	req.URL.RawQuery = q.Encode()

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read geocoding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo provider returned status %d", resp.StatusCode)
	}

	var parsed geocodingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode geocoding response: %w", err)
	}

	fc := NewFeatureCollection()
	for _, f := range parsed.Features {
		props := map[string]any{"name": f.PlaceName}
		for k, v := range f.Props {
			props[k] = v
		}
		if intent.DataType != nil {
			props["data_type"] = *intent.DataType
		}

		geometry := f.Geometry
		if geometry.Type == "" && len(f.Center) == 2 {
			geometry = Geometry{Type: TypePoint, Coordinates: f.Center}
		}

		fc.Features = append(fc.Features, Feature{
			Type:       TypeFeature,
			Geometry:   geometry,
			Properties: props,
		})
	}

	return fc, nil
}
