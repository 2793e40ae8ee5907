// Package sync drives the creation pipeline: it walks collected activities,
// consults the ledger, and creates the missing work items. Grouped mode
// additionally maintains one parent story per calendar month and links each
// task under it.
package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"boardfill/internal/config"
	"boardfill/internal/domain"
	"boardfill/internal/ledger"
)

// Creator is the slice of the work tracking client the runner needs.
type Creator interface {
	Create(ctx context.Context, spec domain.WorkItemSpec) (domain.CreatedWorkItem, error)
}

// Enhancer rewrites an activity description. Implementations are best-effort
// and never fail.
type Enhancer interface {
	Enhance(ctx context.Context, a domain.Activity, systemPrompt string) string
}

// monthNamesPT names parent stories in the language the tracked board uses.
var monthNamesPT = [...]string{
	time.January:   "Janeiro",
	time.February:  "Fevereiro",
	time.March:     "Março",
	time.April:     "Abril",
	time.May:       "Maio",
	time.June:      "Junho",
	time.July:      "Julho",
	time.August:    "Agosto",
	time.September: "Setembro",
	time.October:   "Outubro",
	time.November:  "Novembro",
	time.December:  "Dezembro",
}

// MonthTitle is the display title of a month's parent story.
func MonthTitle(year int, month time.Month, suffix string) string {
	title := fmt.Sprintf("Atividades %s %d", monthNamesPT[month], year)
	if suffix != "" {
		title += " - " + suffix
	}
	return title
}

// MonthGroup is the activities of one calendar month.
type MonthGroup struct {
	Year       int
	Month      time.Month
	Activities []domain.Activity
}

// GroupByMonth partitions activities by calendar month, months ascending.
// Within a month the input order is preserved.
func GroupByMonth(activities []domain.Activity) []MonthGroup {
	type key struct {
		year  int
		month time.Month
	}
	buckets := map[key][]domain.Activity{}
	var keys []key
	for _, a := range activities {
		k := key{a.Date.Year(), a.Date.Month()}
		if _, seen := buckets[k]; !seen {
			keys = append(keys, k)
		}
		buckets[k] = append(buckets[k], a)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].month < keys[j].month
	})
	groups := make([]MonthGroup, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, MonthGroup{Year: k.year, Month: k.month, Activities: buckets[k]})
	}
	return groups
}

// Failure records one activity or parent that could not be created. The run
// continues past failures; they only surface in the summary.
type Failure struct {
	Title string
	Err   error
}

// Summary is the outcome of one run. Every activity lands in exactly one of
// Created, Skipped or Failures.
type Summary struct {
	Created  int
	Skipped  int
	Failures []Failure
}

// Runner executes the pipeline against one ledger and one backend.
type Runner struct {
	Ledger   *ledger.Ledger
	Creator  Creator
	Enhancer Enhancer
	DevOps   config.DevOpsConfig

	// DryRun rehearses the run: activities count as created but nothing is
	// written to the backend or the ledger.
	DryRun bool

	// Logf receives per-item progress lines. Nil silences them.
	Logf func(format string, args ...any)
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// taskSpec maps an activity onto a work item spec, filling unset paths from
// the configured defaults.
func (r *Runner) taskSpec(ctx context.Context, a domain.Activity, parentID int) domain.WorkItemSpec {
	description := a.Description
	if r.Enhancer != nil {
		description = r.Enhancer.Enhance(ctx, a, r.DevOps.LLMSystemPrompt)
	}
	area := a.AreaPath
	if area == "" {
		area = r.DevOps.DefaultArea
	}
	iteration := a.IterationPath
	if iteration == "" {
		iteration = r.DevOps.DefaultIteration
	}
	return domain.WorkItemSpec{
		Type:          domain.TypeTask,
		Title:         a.Title,
		Project:       r.DevOps.DefaultProject,
		AreaPath:      area,
		IterationPath: iteration,
		Description:   description,
		Tags:          a.Tags,
		AssignedTo:    r.DevOps.AssignedTo,
		State:         r.DevOps.DefaultState,
		CompletedWork: a.Hours,
		StartedAt:     a.StartedAt,
		ParentID:      parentID,
	}
}

// processOne handles a single activity under an optional parent and folds the
// outcome into the summary. Ledger read or write errors abort the run.
func (r *Runner) processOne(ctx context.Context, a domain.Activity, parentID int, summary *Summary) error {
	done, err := r.Ledger.IsProcessed(a)
	if err != nil {
		return err
	}
	if done {
		r.logf("⊘ %s (já processada)", a.Title)
		summary.Skipped++
		return nil
	}
	if r.DryRun {
		r.logf("○ %s (%gh) [dry-run]", a.Title, a.Hours)
		summary.Created++
		return nil
	}
	item, err := r.Creator.Create(ctx, r.taskSpec(ctx, a, parentID))
	if err != nil {
		r.logf("✗ %s: %v", a.Title, err)
		summary.Failures = append(summary.Failures, Failure{Title: a.Title, Err: err})
		return nil
	}
	if _, err := r.Ledger.MarkProcessed(a, item.ID, item.URL); err != nil {
		return fmt.Errorf("record task #%d: %w", item.ID, err)
	}
	r.logf("✓ %s (%gh) - Task #%d", a.Title, a.Hours, item.ID)
	summary.Created++
	return nil
}

// Run creates one unparented task per unprocessed activity, in input order.
func (r *Runner) Run(ctx context.Context, activities []domain.Activity) (Summary, error) {
	var summary Summary
	for _, a := range activities {
		if err := r.processOne(ctx, a, 0, &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// ensureParent returns the id of the month's parent story, creating it on
// first encounter. A creation failure is recorded in the summary and returns
// id 0: the month's tasks are still created, just unparented, and the next
// run retries the parent.
func (r *Runner) ensureParent(ctx context.Context, g MonthGroup, summary *Summary) (int, error) {
	title := MonthTitle(g.Year, g.Month, r.DevOps.StoryNameSuffix)
	exists, err := r.Ledger.IsMonthProcessed(g.Year, g.Month)
	if err != nil {
		return 0, err
	}
	if exists {
		id, err := r.Ledger.ParentID(g.Year, g.Month)
		if err != nil {
			return 0, err
		}
		r.logf("⊘ [US] %s - US #%d (já existe)", title, id)
		return id, nil
	}
	if r.DryRun {
		r.logf("○ [US] %s [dry-run]", title)
		return 0, nil
	}
	item, err := r.Creator.Create(ctx, domain.WorkItemSpec{
		Type:          domain.TypeUserStory,
		Title:         title,
		Project:       r.DevOps.DefaultProject,
		AreaPath:      r.DevOps.DefaultArea,
		IterationPath: r.DevOps.DefaultIteration,
		AssignedTo:    r.DevOps.AssignedTo,
		State:         r.DevOps.DefaultState,
	})
	if err != nil {
		r.logf("✗ [US] %s: %v", title, err)
		summary.Failures = append(summary.Failures, Failure{Title: title, Err: err})
		return 0, nil
	}
	if err := r.Ledger.MarkMonthProcessed(g.Year, g.Month, item.ID, item.URL); err != nil {
		return 0, fmt.Errorf("record parent story #%d: %w", item.ID, err)
	}
	r.logf("✓ [US] %s - US #%d", title, item.ID)
	return item.ID, nil
}

// RunGrouped creates activities month by month under monthly parent stories.
// Months are processed in ascending order; the parent is ensured before any
// of the month's tasks.
func (r *Runner) RunGrouped(ctx context.Context, activities []domain.Activity) (Summary, error) {
	var summary Summary
	for _, group := range GroupByMonth(activities) {
		r.logf("📅 %s %d", monthNamesPT[group.Month], group.Year)
		parentID, err := r.ensureParent(ctx, group, &summary)
		if err != nil {
			return summary, err
		}
		for _, a := range group.Activities {
			if err := r.processOne(ctx, a, parentID, &summary); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}
