package source

import (
	"context"
	"fmt"
	"time"

	"boardfill/internal/config"
	"boardfill/internal/domain"
)

// recurringZone anchors template activities at 13:00 in the configured
// working timezone (UTC-4).
var recurringZone = time.FixedZone("UTC-4", -4*60*60)

// Recurring generates activities from weekday templates. Dates listed in
// non_working_days produce nothing regardless of the templates.
type Recurring struct {
	templates      []domain.RecurringTemplate
	nonWorkingDays map[string]bool
	enabled        bool
}

func NewRecurring(cfg config.RecurringConfig, nonWorkingDays []string) *Recurring {
	templates := make([]domain.RecurringTemplate, 0, len(cfg.Templates))
	for _, t := range cfg.Templates {
		templates = append(templates, domain.RecurringTemplate{
			Name:     t.Name,
			Weekdays: append([]int(nil), t.Weekdays...),
			Hours:    t.Hours,
			AreaPath: t.AreaPath,
			Tags:     append([]string(nil), t.Tags...),
		})
	}
	skip := make(map[string]bool, len(nonWorkingDays))
	for _, d := range nonWorkingDays {
		skip[d] = true
	}
	return &Recurring{templates: templates, nonWorkingDays: skip, enabled: cfg.Enabled}
}

func (s *Recurring) Kind() domain.SourceKind { return domain.SourceRecurring }
func (s *Recurring) Name() string            { return "Recorrentes" }
func (s *Recurring) Enabled() bool           { return s.enabled }

func (s *Recurring) Collect(_ context.Context, day time.Time) ([]domain.Activity, error) {
	if s.nonWorkingDays[day.Format("2006-01-02")] {
		return nil, nil
	}
	startedAt := time.Date(day.Year(), day.Month(), day.Day(), 13, 0, 0, 0, recurringZone)
	var activities []domain.Activity
	for _, t := range s.templates {
		if !t.AppliesTo(day) {
			continue
		}
		activities = append(activities, domain.Activity{
			Title:       t.Name,
			Source:      domain.SourceRecurring,
			Date:        dateOnly(day),
			Hours:       t.Hours,
			Description: fmt.Sprintf("Atividade recorrente: %s", t.Name),
			AreaPath:    t.AreaPath,
			Tags:        append([]string(nil), t.Tags...),
			StartedAt:   startedAt,
		})
	}
	return activities, nil
}

func (s *Recurring) TestConnection(context.Context) bool {
	return len(s.templates) > 0
}

// Templates returns a copy of the configured templates.
func (s *Recurring) Templates() []domain.RecurringTemplate {
	return append([]domain.RecurringTemplate(nil), s.templates...)
}
