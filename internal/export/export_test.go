package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/geollm/geollm/internal/model"
)

func sampleRecords() []*model.QueryHistory {
	loc := "Hanoi"
	return []*model.QueryHistory{
		{
			ID:          "01J0000000000000000000000A",
			UserID:      "01J0000000000000000000000U",
			Prompt:      "population density in Hanoi",
			Intent:      model.IntentJSON{Location: &loc, Parameters: map[string]any{}},
			DurationMs:  1234,
			IsFavorited: true,
			CreatedAt:   time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC),
		},
		{
			ID:         "01J0000000000000000000000B",
			UserID:     "01J0000000000000000000000U",
			Prompt:     "parks near \"Old Quarter\", with commas",
			Intent:     model.IntentJSON{Parameters: map[string]any{}},
			DurationMs: 87,
			CreatedAt:  time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleRecords()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines (header + 2 records), got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "id,user_id,prompt,created_at,duration_ms,is_favorited" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "01J0000000000000000000000A,") {
		t.Errorf("first record row = %q", lines[1])
	}
	if !strings.HasSuffix(lines[1], ",1234,true") {
		t.Errorf("first record row = %q", lines[1])
	}
	// Quoted prompt with commas must stay a single line
	if !strings.Contains(lines[2], `"parks near ""Old Quarter"", with commas"`) {
		t.Errorf("second record row = %q", lines[2])
	}
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected header only, got %d lines", len(lines))
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleRecords()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var decoded []*model.QueryHistory
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(decoded))
	}
	if decoded[0].Intent.Location == nil || *decoded[0].Intent.Location != "Hanoi" {
		t.Errorf("intent not preserved: %+v", decoded[0].Intent)
	}
}

func TestWriteJSON_NilIsEmptyArray(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("expected empty array, got %q", got)
	}
}
