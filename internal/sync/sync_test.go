package sync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"boardfill/internal/config"
	"boardfill/internal/domain"
	"boardfill/internal/ledger"
)

// fakeCreator assigns sequential ids starting at 1000 and can be told to
// fail specific titles.
type fakeCreator struct {
	specs  []domain.WorkItemSpec
	nextID int
	failOn map[string]error
}

func (f *fakeCreator) Create(_ context.Context, spec domain.WorkItemSpec) (domain.CreatedWorkItem, error) {
	if err := f.failOn[spec.Title]; err != nil {
		return domain.CreatedWorkItem{}, err
	}
	f.specs = append(f.specs, spec)
	if f.nextID == 0 {
		f.nextID = 1000
	}
	id := f.nextID
	f.nextID++
	return domain.CreatedWorkItem{ID: id, URL: "https://dev/item", Title: spec.Title}, nil
}

func newRunner(t *testing.T) (*Runner, *fakeCreator) {
	t.Helper()
	creator := &fakeCreator{}
	led := ledger.New(filepath.Join(t.TempDir(), "ledger.json"))
	led.Now = func() time.Time { return time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC) }
	return &Runner{
		Ledger:  led,
		Creator: creator,
		DevOps: config.DevOpsConfig{
			DefaultProject:   "Platform",
			DefaultArea:      `Platform\Infra`,
			DefaultIteration: "@CurrentIteration",
			DefaultState:     "Closed",
		},
	}, creator
}

func day(d int) time.Time { return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC) }

func activities(titles ...string) []domain.Activity {
	out := make([]domain.Activity, 0, len(titles))
	for i, title := range titles {
		out = append(out, domain.Activity{
			Title:  title,
			Source: domain.SourceRecurring,
			Date:   day(i + 1),
			Hours:  1,
		})
	}
	return out
}

func TestRunIsIdempotent(t *testing.T) {
	r, creator := newRunner(t)
	input := activities("Daily Standup", "Code Review", "Deploy")

	first, err := r.Run(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if first.Created != 3 || first.Skipped != 0 || len(first.Failures) != 0 {
		t.Fatalf("first run: %+v", first)
	}

	second, err := r.Run(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if second.Created != 0 || second.Skipped != 3 {
		t.Fatalf("second run: %+v", second)
	}
	if len(creator.specs) != 3 {
		t.Fatalf("second run must not touch the backend, got %d creations", len(creator.specs))
	}
}

func TestRunFillsDefaultsIntoSpec(t *testing.T) {
	r, creator := newRunner(t)
	input := []domain.Activity{{
		Title:    "Custom area",
		Source:   domain.SourceOutlook,
		Date:     day(3),
		Hours:    2,
		AreaPath: `Platform\Meetings`,
	}}
	if _, err := r.Run(context.Background(), input); err != nil {
		t.Fatal(err)
	}
	spec := creator.specs[0]
	if spec.AreaPath != `Platform\Meetings` {
		t.Fatalf("explicit area overridden: %+v", spec)
	}
	if spec.IterationPath != "@CurrentIteration" || spec.Project != "Platform" || spec.State != "Closed" {
		t.Fatalf("defaults not applied: %+v", spec)
	}
	if spec.Type != domain.TypeTask || spec.CompletedWork != 2 || spec.ParentID != 0 {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	r, creator := newRunner(t)
	r.DryRun = true

	summary, err := r.Run(context.Background(), activities("A", "B"))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Created != 2 {
		t.Fatalf("dry run counts rehearsed creations: %+v", summary)
	}
	if len(creator.specs) != 0 {
		t.Fatal("dry run must not call the backend")
	}
	if _, err := os.Stat(r.Ledger.Path); !os.IsNotExist(err) {
		t.Fatalf("dry run must not write the ledger: %v", err)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	r, creator := newRunner(t)
	creator.failOn = map[string]error{"Code Review": errors.New("HTTP 400")}
	input := activities("Daily Standup", "Code Review", "Deploy")

	summary, err := r.Run(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Created != 2 || summary.Skipped != 0 || len(summary.Failures) != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	if summary.Failures[0].Title != "Code Review" {
		t.Fatalf("unexpected failure: %+v", summary.Failures[0])
	}

	// The failed activity is retried on the next run; the others are not.
	creator.failOn = nil
	retry, err := r.Run(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if retry.Created != 1 || retry.Skipped != 2 {
		t.Fatalf("retry run: %+v", retry)
	}
}

func TestGroupByMonth(t *testing.T) {
	input := []domain.Activity{
		{Title: "mar-1", Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{Title: "jan-1", Date: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{Title: "mar-2", Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
		{Title: "dez-25", Date: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	groups := GroupByMonth(input)
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if groups[0].Year != 2025 || groups[0].Month != time.December {
		t.Fatalf("earlier year must sort first: %+v", groups[0])
	}
	if groups[1].Month != time.January || groups[2].Month != time.March {
		t.Fatalf("months out of order: %+v", groups)
	}
	// Input order is preserved within a month.
	march := groups[2].Activities
	if march[0].Title != "mar-1" || march[1].Title != "mar-2" {
		t.Fatalf("order not stable: %+v", march)
	}
}

func TestMonthTitle(t *testing.T) {
	if got := MonthTitle(2026, time.February, ""); got != "Atividades Fevereiro 2026" {
		t.Fatalf("title = %q", got)
	}
	if got := MonthTitle(2026, time.March, "João"); got != "Atividades Março 2026 - João" {
		t.Fatalf("title with suffix = %q", got)
	}
}

func TestRunGroupedCreatesParentFirst(t *testing.T) {
	r, creator := newRunner(t)
	input := []domain.Activity{
		{Title: "fev-a", Source: domain.SourceGit, Date: day(10), Hours: 0.5},
		{Title: "fev-b", Source: domain.SourceGit, Date: day(11), Hours: 0.5},
	}
	summary, err := r.RunGrouped(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Created != 2 || len(summary.Failures) != 0 {
		t.Fatalf("summary: %+v", summary)
	}
	if len(creator.specs) != 3 {
		t.Fatalf("expected parent + 2 tasks, got %d", len(creator.specs))
	}
	parent := creator.specs[0]
	if parent.Type != domain.TypeUserStory || parent.Title != "Atividades Fevereiro 2026" {
		t.Fatalf("first creation must be the parent story: %+v", parent)
	}
	if parent.CompletedWork != 0 {
		t.Fatalf("parent must not book hours: %+v", parent)
	}
	for _, spec := range creator.specs[1:] {
		if spec.ParentID != 1000 {
			t.Fatalf("task not linked under parent: %+v", spec)
		}
	}

	// A later run reuses the recorded parent instead of creating another.
	more, err := r.RunGrouped(context.Background(), []domain.Activity{
		{Title: "fev-c", Source: domain.SourceGit, Date: day(12), Hours: 0.5},
	})
	if err != nil {
		t.Fatal(err)
	}
	if more.Created != 1 {
		t.Fatalf("summary: %+v", more)
	}
	last := creator.specs[len(creator.specs)-1]
	if last.Type != domain.TypeTask || last.ParentID != 1000 {
		t.Fatalf("parent not reused: %+v", last)
	}
}

func TestRunGroupedSpansMonths(t *testing.T) {
	r, creator := newRunner(t)
	input := []domain.Activity{
		{Title: "mar", Source: domain.SourceGit, Date: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Hours: 1},
		{Title: "fev", Source: domain.SourceGit, Date: day(10), Hours: 1},
	}
	if _, err := r.RunGrouped(context.Background(), input); err != nil {
		t.Fatal(err)
	}
	// February's parent and task come before March's.
	titles := make([]string, 0, len(creator.specs))
	for _, s := range creator.specs {
		titles = append(titles, s.Title)
	}
	want := []string{"Atividades Fevereiro 2026", "fev", "Atividades Março 2026", "mar"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("creation order %v, want %v", titles, want)
		}
	}
}

func TestRunGroupedDegradesWhenParentFails(t *testing.T) {
	r, creator := newRunner(t)
	creator.failOn = map[string]error{"Atividades Fevereiro 2026": errors.New("HTTP 500")}
	input := []domain.Activity{
		{Title: "fev-a", Source: domain.SourceGit, Date: day(10), Hours: 0.5},
	}
	summary, err := r.RunGrouped(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Created != 1 || len(summary.Failures) != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	// The task is still created, just without a parent link.
	if len(creator.specs) != 1 || creator.specs[0].ParentID != 0 {
		t.Fatalf("expected unparented task: %+v", creator.specs)
	}

	// The parent is retried on the next run.
	creator.failOn = nil
	if _, err := r.RunGrouped(context.Background(), []domain.Activity{
		{Title: "fev-b", Source: domain.SourceGit, Date: day(11), Hours: 0.5},
	}); err != nil {
		t.Fatal(err)
	}
	parent := creator.specs[1]
	if parent.Type != domain.TypeUserStory {
		t.Fatalf("parent not retried: %+v", parent)
	}
}

type suffixEnhancer struct{}

func (suffixEnhancer) Enhance(_ context.Context, a domain.Activity, _ string) string {
	return a.Description + " [enhanced]"
}

func TestRunAppliesEnhancer(t *testing.T) {
	r, creator := newRunner(t)
	r.Enhancer = suffixEnhancer{}
	input := []domain.Activity{{
		Title: "A", Source: domain.SourceOutlook, Date: day(5), Hours: 1, Description: "raw",
	}}
	if _, err := r.Run(context.Background(), input); err != nil {
		t.Fatal(err)
	}
	if creator.specs[0].Description != "raw [enhanced]" {
		t.Fatalf("enhancer not applied: %q", creator.specs[0].Description)
	}
}
