// Package geo provides access to geospatial feature data.
package geo

import (
	"context"

	"github.com/geollm/geollm/internal/llm"
)

// GeoJSON type names.
const (
	TypeFeatureCollection = "FeatureCollection"
	TypeFeature           = "Feature"
	TypePoint             = "Point"
)

// Geometry is a GeoJSON geometry. Coordinates stay loosely typed since
// providers return points, polygons, and multipolygons interchangeably.
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// Feature is a single GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection returns an empty, well-formed collection.
// Features is never nil so the JSON form is always "features": [].
func NewFeatureCollection() *FeatureCollection {
	return &FeatureCollection{
		Type:     TypeFeatureCollection,
		Features: []Feature{},
	}
}

// Source fetches geospatial features matching a structured intent.
type Source interface {
	FetchFeatures(ctx context.Context, intent *llm.Intent) (*FeatureCollection, error)
}
