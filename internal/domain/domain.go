package domain

import "time"

// SourceKind identifies where an activity was collected from.
type SourceKind string

const (
	SourceOutlook   SourceKind = "outlook"
	SourceRecurring SourceKind = "recurring"
	SourceGit       SourceKind = "git"
)

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceOutlook, SourceRecurring, SourceGit:
		return true
	}
	return false
}

// Activity is one unit of trackable work collected from a source. Activities
// are rebuilt on every run; only their fingerprints persist.
type Activity struct {
	Title         string     `json:"title"`
	Source        SourceKind `json:"source"`
	Date          time.Time  `json:"date"`
	Hours         float64    `json:"hours"`
	Description   string     `json:"description,omitempty"`
	AreaPath      string     `json:"area_path,omitempty"`
	IterationPath string     `json:"iteration_path,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	// StartedAt carries the precise event time used for scheduling fields.
	// Zero when the source only knows the calendar day.
	StartedAt time.Time `json:"activity_datetime,omitempty"`
}

// Commit is a source-control commit fetched from the backend.
type Commit struct {
	ID         string
	Message    string
	Author     string
	Date       time.Time
	Repository string
}

// ShortID returns the abbreviated commit hash.
func (c Commit) ShortID() string {
	if len(c.ID) < 7 {
		return c.ID
	}
	return c.ID[:7]
}

// CalendarEvent is one entry from a calendar export or the Graph API.
type CalendarEvent struct {
	Subject    string
	Start      time.Time
	End        time.Time
	Body       string
	Categories []string
}

// DurationHours returns the event length in hours.
func (e CalendarEvent) DurationHours() float64 {
	return e.End.Sub(e.Start).Hours()
}

// RecurringTemplate describes a scheduled activity repeated on weekdays.
// Weekdays use 0=Monday..6=Sunday, matching the config file.
type RecurringTemplate struct {
	Name     string
	Weekdays []int
	Hours    float64
	AreaPath string
	Tags     []string
}

// AppliesTo reports whether the template fires on the given date.
func (t RecurringTemplate) AppliesTo(d time.Time) bool {
	// time.Weekday has Sunday=0; templates count from Monday.
	wd := (int(d.Weekday()) + 6) % 7
	for _, day := range t.Weekdays {
		if day == wd {
			return true
		}
	}
	return false
}

// CreatedWorkItem is the backend's answer to a creation request.
type CreatedWorkItem struct {
	ID      int    `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Project string `json:"project"`
}
