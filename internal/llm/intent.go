// Package llm provides language model clients for intent extraction.
package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Intent is the structured interpretation of a natural-language query.
// Fields the model could not extract stay null; Parameters is never nil.
type Intent struct {
	Location   *string        `json:"location"`
	TimePeriod *string        `json:"time_period"`
	DataType   *string        `json:"data_type"`
	Parameters map[string]any `json:"parameters"`
}

// DefaultIntent returns the all-null intent with an empty parameters map.
// This is the degraded result when provider output cannot be parsed.
func DefaultIntent() *Intent {
	return &Intent{Parameters: map[string]any{}}
}

// Fingerprint returns a stable hash of the intent, used as a cache key for
// feature collections fetched for equivalent intents.
func (i *Intent) Fingerprint() string {
	data, _ := json.Marshal(i)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
