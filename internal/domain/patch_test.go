package domain

import (
	"testing"
	"time"
)

func opsByPath(ops []PatchOp) map[string]any {
	m := make(map[string]any, len(ops))
	for _, op := range ops {
		m[op.Path] = op.Value
	}
	return m
}

func TestTaskPatchOps(t *testing.T) {
	spec := WorkItemSpec{
		Type:          TypeTask,
		Title:         "Reunião de planejamento",
		AreaPath:      `Platform\Infra`,
		IterationPath: "@CurrentIteration",
		Description:   "pauta",
		Tags:          []string{"reuniao", "sprint"},
		AssignedTo:    "dev@contoso.com",
		State:         "Closed",
		CompletedWork: 1.5,
		StartedAt:     time.Date(2026, 2, 19, 14, 0, 0, 0, time.UTC),
	}

	ops := opsByPath(spec.PatchOps(false))
	if ops[FieldTitle] != "Reunião de planejamento" {
		t.Fatalf("title op: %v", ops[FieldTitle])
	}
	if ops[FieldCompletedWork] != 1.5 {
		t.Fatalf("completed work op: %v", ops[FieldCompletedWork])
	}
	if ops[FieldDescription] != "<div>pauta</div>" {
		t.Fatalf("description must be wrapped: %v", ops[FieldDescription])
	}
	if ops[FieldTags] != "reuniao;sprint" {
		t.Fatalf("tags op: %v", ops[FieldTags])
	}
	if _, ok := ops[FieldState]; ok {
		t.Fatal("state must be excluded when includeState is false")
	}
	want := "2026-02-19T14:00:00Z"
	for _, path := range []string{FieldStartDate, FieldFinishDate, FieldActivityDate} {
		if ops[path] != want {
			t.Fatalf("%s = %v, want %s", path, ops[path], want)
		}
	}

	withState := opsByPath(spec.PatchOps(true))
	if withState[FieldState] != "Closed" {
		t.Fatalf("state op: %v", withState[FieldState])
	}
}

func TestStoryPatchOpsSkipTaskFields(t *testing.T) {
	spec := WorkItemSpec{
		Type:          TypeUserStory,
		Title:         "Atividades Fevereiro 2026",
		AreaPath:      "a",
		IterationPath: "i",
		CompletedWork: 3,
		StartedAt:     time.Now(),
	}
	ops := opsByPath(spec.PatchOps(false))
	for _, path := range []string{FieldCompletedWork, FieldStartDate, FieldFinishDate, FieldActivityDate} {
		if _, ok := ops[path]; ok {
			t.Fatalf("user story must not emit %s", path)
		}
	}
}

func TestOptionalFieldsOmitted(t *testing.T) {
	spec := WorkItemSpec{Type: TypeTask, Title: "t", AreaPath: "a", IterationPath: "i"}
	ops := spec.PatchOps(true)
	if len(ops) != 4 {
		t.Fatalf("expected title, area, iteration, completed work; got %+v", ops)
	}
}

func TestCommitShortID(t *testing.T) {
	if got := (Commit{ID: "abc123def456"}).ShortID(); got != "abc123d" {
		t.Fatalf("short id = %q", got)
	}
	if got := (Commit{ID: "ab12"}).ShortID(); got != "ab12" {
		t.Fatalf("short hashes pass through, got %q", got)
	}
}

func TestRecurringTemplateAppliesTo(t *testing.T) {
	tpl := RecurringTemplate{Name: "standup", Weekdays: []int{0, 4}}
	// 2026-02-16 is a Monday.
	monday := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
	if !tpl.AppliesTo(monday) {
		t.Fatal("monday should match weekday 0")
	}
	if tpl.AppliesTo(monday.AddDate(0, 0, 1)) {
		t.Fatal("tuesday should not match")
	}
	if !tpl.AppliesTo(monday.AddDate(0, 0, 4)) {
		t.Fatal("friday should match weekday 4")
	}
	if tpl.AppliesTo(monday.AddDate(0, 0, 6)) {
		t.Fatal("sunday should not match")
	}
}
