// Package ledger owns the on-disk idempotency state: a single JSON file
// mapping content fingerprints to the work items already created for them.
// The file is human-diffable and safe to edit between runs.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"boardfill/internal/domain"
)

// Entry records one processed activity.
type Entry struct {
	Source      domain.SourceKind `json:"source"`
	Title       string            `json:"title"`
	Date        string            `json:"date"`
	TaskID      int               `json:"task_id,omitempty"`
	TaskURL     string            `json:"task_url,omitempty"`
	ProcessedAt string            `json:"processed_at"`
}

// MonthEntry records one created monthly parent story.
type MonthEntry struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	StoryID   int    `json:"user_story_id"`
	StoryURL  string `json:"user_story_url"`
	CreatedAt string `json:"created_at"`
}

type fileSchema struct {
	Processed   map[string]Entry      `json:"processed"`
	UserStories map[string]MonthEntry `json:"user_stories"`
}

// Stats summarizes the activity table.
type Stats struct {
	Total    int
	BySource map[domain.SourceKind]int
}

// Ledger is the single writer of the idempotency file. The file is loaded
// once, cached, and rewritten in full on every mutation. Not safe for use
// from multiple goroutines; the pipeline is strictly sequential.
type Ledger struct {
	Path string
	Now  func() time.Time

	data *fileSchema
}

// New returns a ledger backed by the given file path. The file need not
// exist; a first run starts from empty tables.
func New(path string) *Ledger {
	return &Ledger{Path: path, Now: time.Now}
}

func (l *Ledger) load() (*fileSchema, error) {
	if l.data != nil {
		return l.data, nil
	}
	empty := &fileSchema{
		Processed:   map[string]Entry{},
		UserStories: map[string]MonthEntry{},
	}
	raw, err := os.ReadFile(l.Path)
	if os.IsNotExist(err) || (err == nil && len(raw) == 0) {
		l.data = empty
		return l.data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", l.Path, err)
	}
	var data fileSchema
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("ledger %s is not valid JSON: %w", l.Path, err)
	}
	if data.Processed == nil {
		data.Processed = map[string]Entry{}
	}
	// Files written before monthly parents existed lack the user_stories
	// table; synthesize it instead of failing.
	if data.UserStories == nil {
		data.UserStories = map[string]MonthEntry{}
	}
	l.data = &data
	return l.data, nil
}

func (l *Ledger) save() error {
	if dir := filepath.Dir(l.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	raw, err := json.MarshalIndent(l.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.Path, append(raw, '\n'), 0o644)
}

func (l *Ledger) today() string {
	now := l.Now
	if now == nil {
		now = time.Now
	}
	return now().Format("2006-01-02")
}

// IsProcessed reports whether the activity's fingerprint is already recorded.
func (l *Ledger) IsProcessed(a domain.Activity) (bool, error) {
	data, err := l.load()
	if err != nil {
		return false, err
	}
	_, ok := data.Processed[activityFingerprint(a)]
	return ok, nil
}

// MarkProcessed records the activity as handled, overwriting any prior entry
// for the same identity, and returns its fingerprint. taskID/taskURL are zero
// for entries recorded without a backend creation.
func (l *Ledger) MarkProcessed(a domain.Activity, taskID int, taskURL string) (string, error) {
	data, err := l.load()
	if err != nil {
		return "", err
	}
	fp := activityFingerprint(a)
	data.Processed[fp] = Entry{
		Source:      a.Source,
		Title:       a.Title,
		Date:        a.Date.Format("2006-01-02"),
		TaskID:      taskID,
		TaskURL:     taskURL,
		ProcessedAt: l.today(),
	}
	if err := l.save(); err != nil {
		return "", err
	}
	return fp, nil
}

// IsMonthProcessed reports whether a parent story exists for the month.
func (l *Ledger) IsMonthProcessed(year int, month time.Month) (bool, error) {
	data, err := l.load()
	if err != nil {
		return false, err
	}
	_, ok := data.UserStories[MonthFingerprint(year, month)]
	return ok, nil
}

// MarkMonthProcessed records the created parent story for a month.
func (l *Ledger) MarkMonthProcessed(year int, month time.Month, storyID int, storyURL string) error {
	data, err := l.load()
	if err != nil {
		return err
	}
	data.UserStories[MonthFingerprint(year, month)] = MonthEntry{
		Year:      year,
		Month:     int(month),
		StoryID:   storyID,
		StoryURL:  storyURL,
		CreatedAt: l.today(),
	}
	return l.save()
}

// ParentID returns the recorded parent story id for a month, or 0 when the
// month has no entry. Lookup only, no side effects.
func (l *Ledger) ParentID(year int, month time.Month) (int, error) {
	data, err := l.load()
	if err != nil {
		return 0, err
	}
	entry, ok := data.UserStories[MonthFingerprint(year, month)]
	if !ok {
		return 0, nil
	}
	return entry.StoryID, nil
}

// RemoveByTaskID deletes the activity entry whose recorded task id matches.
// Entries stored without a task id never match.
func (l *Ledger) RemoveByTaskID(taskID int) (bool, error) {
	if taskID == 0 {
		return false, nil
	}
	data, err := l.load()
	if err != nil {
		return false, err
	}
	for fp, entry := range data.Processed {
		if entry.TaskID == taskID {
			delete(data.Processed, fp)
			return true, l.save()
		}
	}
	return false, nil
}

// Remove deletes an activity entry by fingerprint.
func (l *Ledger) Remove(fingerprint string) (bool, error) {
	data, err := l.load()
	if err != nil {
		return false, err
	}
	if _, ok := data.Processed[fingerprint]; !ok {
		return false, nil
	}
	delete(data.Processed, fingerprint)
	return true, l.save()
}

// Stats returns totals for the activity table.
func (l *Ledger) Stats() (Stats, error) {
	data, err := l.load()
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Total: len(data.Processed), BySource: map[domain.SourceKind]int{}}
	for _, entry := range data.Processed {
		s.BySource[entry.Source]++
	}
	return s, nil
}

// Clear empties the activity table and returns the prior size. The monthly
// parent table is untouched.
func (l *Ledger) Clear() (int, error) {
	data, err := l.load()
	if err != nil {
		return 0, err
	}
	count := len(data.Processed)
	data.Processed = map[string]Entry{}
	return count, l.save()
}
