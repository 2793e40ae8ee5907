// Package source collects activities from the configured inputs: calendar
// exports, recurring templates and repository commits. Each collector is
// scoped to a single day; range runs call Collect once per day.
package source

import (
	"context"
	"time"

	"boardfill/internal/config"
	"boardfill/internal/domain"
)

// Source is one activity input.
type Source interface {
	Kind() domain.SourceKind
	// Name is the human label shown in tables and summaries.
	Name() string
	Enabled() bool
	Collect(ctx context.Context, day time.Time) ([]domain.Activity, error)
	// TestConnection reports whether the source is reachable with the
	// current configuration.
	TestConnection(ctx context.Context) bool
}

// CommitBackend is the slice of the work tracking client the git source needs.
type CommitBackend interface {
	Commits(ctx context.Context, repository, project, author string, from, to time.Time) ([]domain.Commit, error)
	TestConnection(ctx context.Context) error
}

// CalendarBackend is the slice of the Graph client the outlook source needs.
type CalendarBackend interface {
	CalendarEvents(ctx context.Context, userEmail string, from, to time.Time) ([]domain.CalendarEvent, error)
	TestConnection(ctx context.Context) bool
}

// FromConfig builds the configured sources in their fixed collection order.
// Backends may be nil when the corresponding source is absent or disabled.
func FromConfig(cfg *config.Config, commits CommitBackend, calendar CalendarBackend) []Source {
	var sources []Source
	if o := cfg.Sources.Outlook; o != nil {
		sources = append(sources, NewOutlook(*o, calendar))
	}
	if r := cfg.Sources.Recurring; r != nil {
		sources = append(sources, NewRecurring(*r, cfg.NonWorkingDays))
	}
	if g := cfg.Sources.Git; g != nil {
		sources = append(sources, NewGit(*g, commits, cfg.DevOps.AuthorEmail))
	}
	return sources
}
