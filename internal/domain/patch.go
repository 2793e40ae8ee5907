package domain

import (
	"strings"
	"time"
)

// Work item field paths used by the backend's JSON Patch write API.
const (
	FieldTitle         = "/fields/System.Title"
	FieldAreaPath      = "/fields/System.AreaPath"
	FieldIterationPath = "/fields/System.IterationPath"
	FieldDescription   = "/fields/System.Description"
	FieldTags          = "/fields/System.Tags"
	FieldAssignedTo    = "/fields/System.AssignedTo"
	FieldState         = "/fields/System.State"
	FieldCompletedWork = "/fields/Microsoft.VSTS.Scheduling.CompletedWork"
	FieldStartDate     = "/fields/Microsoft.VSTS.Scheduling.StartDate"
	FieldFinishDate    = "/fields/Microsoft.VSTS.Scheduling.FinishDate"
	FieldActivityDate  = "/fields/Custom.6efe7342-7546-4011-b66d-6eb1dfab8e46"

	RelationParent = "System.LinkTypes.Hierarchy-Reverse"
)

// PatchOp is one operation in a JSON Patch document.
type PatchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func addOp(path string, value any) PatchOp {
	return PatchOp{Op: "add", Path: path, Value: value}
}

// WorkItemSpec is the immutable request passed to the backend adapter. Task
// and user-story creation share the same field construction; Type selects the
// backend work item type and which optional fields apply.
type WorkItemSpec struct {
	Type          WorkItemType
	Title         string
	Project       string
	AreaPath      string
	IterationPath string
	Description   string
	Tags          []string
	AssignedTo    string
	State         string

	// Task-only fields.
	CompletedWork float64
	StartedAt     time.Time
	ParentID      int
}

// WorkItemType selects the backend work item type for a creation request.
type WorkItemType string

const (
	TypeTask      WorkItemType = "Task"
	TypeUserStory WorkItemType = "User Story"
)

// PatchOps builds the JSON Patch document for the creation call. The state
// field is only emitted when includeState is set; the backend rejects state
// transitions in the same call that creates the item.
func (s WorkItemSpec) PatchOps(includeState bool) []PatchOp {
	ops := []PatchOp{
		addOp(FieldTitle, s.Title),
		addOp(FieldAreaPath, s.AreaPath),
		addOp(FieldIterationPath, s.IterationPath),
	}
	if s.Type == TypeTask {
		ops = append(ops, addOp(FieldCompletedWork, s.CompletedWork))
	}
	if s.Description != "" {
		ops = append(ops, addOp(FieldDescription, "<div>"+s.Description+"</div>"))
	}
	if len(s.Tags) > 0 {
		ops = append(ops, addOp(FieldTags, strings.Join(s.Tags, ";")))
	}
	if s.AssignedTo != "" {
		ops = append(ops, addOp(FieldAssignedTo, s.AssignedTo))
	}
	if s.State != "" && includeState {
		ops = append(ops, addOp(FieldState, s.State))
	}
	if s.Type == TypeTask && !s.StartedAt.IsZero() {
		ts := s.StartedAt.Format(time.RFC3339)
		ops = append(ops,
			addOp(FieldStartDate, ts),
			addOp(FieldFinishDate, ts),
			addOp(FieldActivityDate, ts),
		)
	}
	return ops
}
