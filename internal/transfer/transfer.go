// Package transfer reads and writes the portable activity file. Exports made
// on a machine without credentials can be imported and created elsewhere.
package transfer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"boardfill/internal/domain"
)

// Envelope is the on-disk format.
type Envelope struct {
	ExportedAt string   `json:"exported_at"`
	Activities []Record `json:"activities"`
}

// Record is one exported activity. Dates are plain calendar days; the
// optional activity_datetime keeps the precise start time when known.
type Record struct {
	Title         string   `json:"title"`
	Source        string   `json:"source"`
	Date          string   `json:"date"`
	Hours         float64  `json:"hours"`
	Description   string   `json:"description,omitempty"`
	AreaPath      string   `json:"area_path,omitempty"`
	IterationPath string   `json:"iteration_path,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	StartedAt     string   `json:"activity_datetime,omitempty"`
}

// Export writes activities to path, creating parent directories as needed.
func Export(path string, activities []domain.Activity, now time.Time) error {
	records := make([]Record, 0, len(activities))
	for _, a := range activities {
		r := Record{
			Title:         a.Title,
			Source:        string(a.Source),
			Date:          a.Date.Format("2006-01-02"),
			Hours:         a.Hours,
			Description:   a.Description,
			AreaPath:      a.AreaPath,
			IterationPath: a.IterationPath,
			Tags:          a.Tags,
		}
		if !a.StartedAt.IsZero() {
			r.StartedAt = a.StartedAt.Format(time.RFC3339)
		}
		records = append(records, r)
	}
	envelope := Envelope{
		ExportedAt: now.Format("2006-01-02"),
		Activities: records,
	}
	raw, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// Import reads an exported file back into activities. Records with an
// unknown source or an unparseable date fail the whole import; a partially
// trusted file should not half-run.
func Import(path string) ([]domain.Activity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	activities := make([]domain.Activity, 0, len(envelope.Activities))
	for i, r := range envelope.Activities {
		kind := domain.SourceKind(r.Source)
		if !kind.Valid() {
			return nil, fmt.Errorf("activity %d: unknown source %q", i, r.Source)
		}
		day, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			return nil, fmt.Errorf("activity %d: bad date %q", i, r.Date)
		}
		a := domain.Activity{
			Title:         r.Title,
			Source:        kind,
			Date:          day,
			Hours:         r.Hours,
			Description:   r.Description,
			AreaPath:      r.AreaPath,
			IterationPath: r.IterationPath,
			Tags:          r.Tags,
		}
		if r.StartedAt != "" {
			startedAt, err := time.Parse(time.RFC3339, r.StartedAt)
			if err != nil {
				return nil, fmt.Errorf("activity %d: bad activity_datetime %q", i, r.StartedAt)
			}
			a.StartedAt = startedAt
		}
		activities = append(activities, a)
	}
	return activities, nil
}
