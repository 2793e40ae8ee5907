package source

import (
	"context"
	"testing"
	"time"

	"boardfill/internal/config"
	"boardfill/internal/domain"
)

func recurringCfg() config.RecurringConfig {
	return config.RecurringConfig{
		Enabled: true,
		Templates: []config.RecurringTemplate{
			{Name: "Daily Standup", Weekdays: []int{0, 1, 2, 3, 4}, Hours: 0.25, AreaPath: `Platform\Team`, Tags: []string{"cerimonia"}},
			{Name: "Sprint Review", Weekdays: []int{4}, Hours: 1},
		},
	}
}

func TestRecurringCollect(t *testing.T) {
	s := NewRecurring(recurringCfg(), nil)

	// 2026-02-19 is a Thursday (weekday index 3).
	thursday := time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC)
	got, err := s.Collect(context.Background(), thursday)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Title != "Daily Standup" {
		t.Fatalf("unexpected activities: %+v", got)
	}
	a := got[0]
	if a.Source != domain.SourceRecurring || a.Hours != 0.25 {
		t.Fatalf("unexpected activity: %+v", a)
	}
	if a.Description != "Atividade recorrente: Daily Standup" {
		t.Fatalf("unexpected description: %q", a.Description)
	}
	if a.StartedAt.Hour() != 13 {
		t.Fatalf("activities should anchor at 13:00, got %v", a.StartedAt)
	}
	if _, offset := a.StartedAt.Zone(); offset != -4*60*60 {
		t.Fatalf("expected UTC-4 offset, got %d", offset)
	}

	friday := thursday.AddDate(0, 0, 1)
	got, err = s.Collect(context.Background(), friday)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("friday should fire both templates, got %+v", got)
	}

	saturday := thursday.AddDate(0, 0, 2)
	got, err = s.Collect(context.Background(), saturday)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("weekend should produce nothing, got %+v", got)
	}
}

func TestRecurringSkipsNonWorkingDays(t *testing.T) {
	s := NewRecurring(recurringCfg(), []string{"2026-02-19"})
	got, err := s.Collect(context.Background(), time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("non-working day should produce nothing, got %+v", got)
	}
}

func TestRecurringTestConnection(t *testing.T) {
	if !NewRecurring(recurringCfg(), nil).TestConnection(context.Background()) {
		t.Fatal("templates configured, connection should pass")
	}
	if NewRecurring(config.RecurringConfig{Enabled: true}, nil).TestConnection(context.Background()) {
		t.Fatal("no templates, connection should fail")
	}
}
