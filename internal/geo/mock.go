package geo

import (
	"context"
	"hash/fnv"

	"github.com/geollm/geollm/internal/llm"
)

// MockSource returns deterministic synthetic features. Enabled by
// USE_MOCK_GEO_DATA; the development and testing profiles default to it.
type MockSource struct{}

// NewMockSource creates a MockSource.
func NewMockSource() *MockSource {
	return &MockSource{}
}

// FetchFeatures synthesizes a small feature collection from the intent.
// The same intent always produces the same features.
func (s *MockSource) FetchFeatures(_ context.Context, intent *llm.Intent) (*FeatureCollection, error) {
	location := "unknown"
	if intent != nil && intent.Location != nil {
		location = *intent.Location
	}

	dataType := "generic"
	if intent != nil && intent.DataType != nil {
		dataType = *intent.DataType
	}

	// Seed coordinates from the location name so distinct places map to
	// distinct, stable points.
	h := fnv.New32a()
	h.Write([]byte(location))
	seed := h.Sum32()

	lon := float64(seed%3600)/10.0 - 180.0
	lat := float64((seed/3600)%1800)/10.0 - 90.0

	fc := NewFeatureCollection()
	for i := 0; i < 3; i++ {
		offset := float64(i) * 0.01
		fc.Features = append(fc.Features, Feature{
			Type: TypeFeature,
			Geometry: Geometry{
				Type:        TypePoint,
				Coordinates: []float64{lon + offset, lat + offset},
			},
			Properties: map[string]any{
				"name":      location,
				"data_type": dataType,
				"mock":      true,
				"index":     i,
			},
		})
	}

	return fc, nil
}
