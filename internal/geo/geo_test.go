package geo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geollm/geollm/internal/llm"
)

func strPtr(s string) *string { return &s }

func TestMockSource_Deterministic(t *testing.T) {
	src := NewMockSource()
	intent := &llm.Intent{
		Location:   strPtr("Hanoi"),
		DataType:   strPtr("population"),
		Parameters: map[string]any{},
	}

	first, err := src.FetchFeatures(context.Background(), intent)
	require.NoError(t, err)
	second, err := src.FetchFeatures(context.Background(), intent)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same intent must synthesize the same features")
	assert.Equal(t, TypeFeatureCollection, first.Type)
	assert.Len(t, first.Features, 3)

	for _, f := range first.Features {
		assert.Equal(t, TypeFeature, f.Type)
		assert.Equal(t, "Hanoi", f.Properties["name"])
		assert.Equal(t, "population", f.Properties["data_type"])

		coords, ok := f.Geometry.Coordinates.([]float64)
		require.True(t, ok)
		assert.GreaterOrEqual(t, coords[0], -180.0)
		assert.LessOrEqual(t, coords[0], 180.0)
		assert.GreaterOrEqual(t, coords[1], -90.0)
		assert.LessOrEqual(t, coords[1], 90.0)
	}
}

func TestMockSource_DistinctLocations(t *testing.T) {
	src := NewMockSource()

	a, err := src.FetchFeatures(context.Background(), &llm.Intent{Location: strPtr("Hanoi")})
	require.NoError(t, err)
	b, err := src.FetchFeatures(context.Background(), &llm.Intent{Location: strPtr("Reykjavik")})
	require.NoError(t, err)

	assert.NotEqual(t, a.Features[0].Geometry.Coordinates, b.Features[0].Geometry.Coordinates)
}

func TestMockSource_NilIntent(t *testing.T) {
	src := NewMockSource()

	fc, err := src.FetchFeatures(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 3)
	assert.Equal(t, "unknown", fc.Features[0].Properties["name"])
}

// geoDoer scripts geocoding responses and counts calls.
type geoDoer struct {
	calls int
	body  string
}

func (d *geoDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls++
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(d.body)),
	}, nil
}

// memoryFeatureCache is an in-memory FeatureCache.
type memoryFeatureCache struct {
	entries map[string][]byte
}

func (m *memoryFeatureCache) GetFeatureCollection(_ context.Context, key string) ([]byte, error) {
	data, ok := m.entries[key]
	if !ok {
		return nil, assert.AnError
	}
	return data, nil
}

func (m *memoryFeatureCache) SetFeatureCollection(_ context.Context, key string, data []byte, _ time.Duration) error {
	m.entries[key] = data
	return nil
}

const geocodingBody = `{
	"features": [
		{"place_name": "Hanoi, Vietnam", "center": [105.85, 21.03], "properties": {"wikidata": "Q1858"}}
	]
}`

func TestHTTPSource_RequiresToken(t *testing.T) {
	_, err := NewHTTPSource("", "https://api.mapbox.com", nil, nil, time.Hour)
	require.Error(t, err)
}

func TestHTTPSource_FetchFeatures(t *testing.T) {
	doer := &geoDoer{body: geocodingBody}
	src, err := NewHTTPSource("pk.test", "https://api.mapbox.com", doer, nil, time.Hour)
	require.NoError(t, err)

	intent := &llm.Intent{Location: strPtr("Hanoi"), DataType: strPtr("population")}

	fc, err := src.FetchFeatures(context.Background(), intent)
	require.NoError(t, err)

	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, "Hanoi, Vietnam", f.Properties["name"])
	assert.Equal(t, "population", f.Properties["data_type"])
	assert.Equal(t, "Q1858", f.Properties["wikidata"])
	assert.Equal(t, TypePoint, f.Geometry.Type)
}

func TestHTTPSource_NoLocationSkipsProvider(t *testing.T) {
	doer := &geoDoer{body: geocodingBody}
	src, err := NewHTTPSource("pk.test", "https://api.mapbox.com", doer, nil, time.Hour)
	require.NoError(t, err)

	fc, err := src.FetchFeatures(context.Background(), llm.DefaultIntent())
	require.NoError(t, err)

	assert.Empty(t, fc.Features)
	assert.NotNil(t, fc.Features, "features must marshal as [], not null")
	assert.Equal(t, 0, doer.calls)
}

func TestHTTPSource_CacheHitSkipsProvider(t *testing.T) {
	doer := &geoDoer{body: geocodingBody}
	cache := &memoryFeatureCache{entries: make(map[string][]byte)}
	src, err := NewHTTPSource("pk.test", "https://api.mapbox.com", doer, cache, time.Hour)
	require.NoError(t, err)

	intent := &llm.Intent{Location: strPtr("Hanoi"), Parameters: map[string]any{}}

	first, err := src.FetchFeatures(context.Background(), intent)
	require.NoError(t, err)
	second, err := src.FetchFeatures(context.Background(), intent)
	require.NoError(t, err)

	assert.Equal(t, 1, doer.calls, "second fetch must come from cache")

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))
}

func TestNewFeatureCollection_MarshalsEmptyFeatures(t *testing.T) {
	data, err := json.Marshal(NewFeatureCollection())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
}
