// Package export serializes query history for the admin export command.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/geollm/geollm/internal/model"
)

// csvColumns is the fixed CSV column set, in order. Intent and result
// summary are JSON-only: they do not flatten cleanly into cells.
var csvColumns = []string{"id", "user_id", "prompt", "created_at", "duration_ms", "is_favorited"}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []*model.QueryHistory) error {
	if records == nil {
		records = []*model.QueryHistory{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return nil
}

// WriteCSV writes records as CSV with a header row. N records always
// produce exactly N+1 lines.
func WriteCSV(w io.Writer, records []*model.QueryHistory) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.UserID,
			rec.Prompt,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(rec.DurationMs, 10),
			strconv.FormatBool(rec.IsFavorited),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %s: %w", rec.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
