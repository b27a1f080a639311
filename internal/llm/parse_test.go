package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntent_CleanJSON(t *testing.T) {
	raw := `{"location": "Hanoi", "time_period": "2020-2023", "data_type": "population", "parameters": {"min_density": 500}}`

	intent := parseIntent(raw)

	require.NotNil(t, intent)
	require.NotNil(t, intent.Location)
	assert.Equal(t, "Hanoi", *intent.Location)
	require.NotNil(t, intent.TimePeriod)
	assert.Equal(t, "2020-2023", *intent.TimePeriod)
	require.NotNil(t, intent.DataType)
	assert.Equal(t, "population", *intent.DataType)
	assert.Equal(t, float64(500), intent.Parameters["min_density"])
}

func TestParseIntent_EmbeddedInProse(t *testing.T) {
	raw := "Sure! Here is the extracted intent:\n```json\n" +
		`{"location": "Lake Tahoe", "time_period": null, "data_type": "elevation", "parameters": {}}` +
		"\n```\nLet me know if you need anything else."

	intent := parseIntent(raw)

	require.NotNil(t, intent.Location)
	assert.Equal(t, "Lake Tahoe", *intent.Location)
	assert.Nil(t, intent.TimePeriod)
	require.NotNil(t, intent.DataType)
	assert.Equal(t, "elevation", *intent.DataType)
}

func TestParseIntent_NestedBracesInStrings(t *testing.T) {
	raw := `prefix {"location": "weird {place}", "time_period": null, "data_type": null, "parameters": {"note": "contains } brace"}} suffix`

	intent := parseIntent(raw)

	require.NotNil(t, intent.Location)
	assert.Equal(t, "weird {place}", *intent.Location)
	assert.Equal(t, "contains } brace", intent.Parameters["note"])
}

func TestParseIntent_GarbageDegradesToDefault(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "plain text", raw: "I could not understand the question."},
		{name: "truncated json", raw: `{"location": "Paris", "time_`},
		{name: "array not object", raw: `["location", "Paris"]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			intent := parseIntent(tc.raw)

			// Degraded output still carries all four keys
			require.NotNil(t, intent)
			assert.Nil(t, intent.Location)
			assert.Nil(t, intent.TimePeriod)
			assert.Nil(t, intent.DataType)
			assert.NotNil(t, intent.Parameters)
			assert.Empty(t, intent.Parameters)
		})
	}
}

func TestParseIntent_NilParametersNormalized(t *testing.T) {
	intent := parseIntent(`{"location": "Oslo", "time_period": null, "data_type": null, "parameters": null}`)

	assert.NotNil(t, intent.Parameters)
}

func TestExtractJSONObject(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{name: "bare object", input: `{"a":1}`, want: `{"a":1}`, found: true},
		{name: "surrounded", input: `text {"a":1} more`, want: `{"a":1}`, found: true},
		{name: "no object", input: "nothing here", found: false},
		{name: "unbalanced", input: `{"a": {"b": 1}`, found: false},
		{name: "nested", input: `{"a": {"b": 1}}`, want: `{"a": {"b": 1}}`, found: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := extractJSONObject(tc.input)
			assert.Equal(t, tc.found, found)
			if tc.found {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}
