package domain

import "time"

// StatusCategory is the coarse bucket a workflow status belongs to,
// independent of the specific status configured on the sprint's workflow.
type StatusCategory string

const (
    CategoryTodo       StatusCategory = "TODO"
    CategoryInProgress StatusCategory = "IN_PROGRESS"
    CategoryReview     StatusCategory = "REVIEW"
    CategoryDone       StatusCategory = "DONE"
)

type SprintState string

const (
    SprintPlanning SprintState = "Planning"
    SprintActive   SprintState = "Active"
    SprintClosed   SprintState = "Closed"
)

// TaskOrigin distinguishes locally created tasks awaiting server confirmation
// from tasks hydrated or reconciled from the tracker.
type TaskOrigin string

const (
    OriginPendingLocal TaskOrigin = "pending_local"
    OriginConfirmed    TaskOrigin = "confirmed"
)

// StatusMeta describes one workflow status. Within one sprint's workflow the
// ID is unique and the sprint's StatusOrder contains exactly the set of
// StatusMeta keys, sorted by Order.
type StatusMeta struct {
    ID       string         `json:"id"`
    Code     string         `json:"code"`
    Name     string         `json:"name"`
    Category StatusCategory `json:"category"`
    Order    int            `json:"order"`
    Color    string         `json:"color,omitempty"`
    WIPLimit int            `json:"wipLimit,omitempty"`
    IsFinal  bool           `json:"isFinal"`
    IsStart  bool           `json:"isStart"`
}

// Sprint is one iteration with its workflow and derived status columns.
// Columns is a rebuildable cache owned by board.SyncColumns, never the
// source of truth; sprints are never created or deleted locally.
type Sprint struct {
    ID              string                `json:"id"`
    Name            string                `json:"name"`
    Start           *time.Time            `json:"start,omitempty"`
    End             *time.Time            `json:"end,omitempty"`
    State           SprintState           `json:"state,omitempty"`
    CapacityHours   float64               `json:"capacityHours,omitempty"`
    CommittedPoints float64               `json:"committedPoints,omitempty"`
    WorkflowID      string                `json:"workflowId,omitempty"`
    StatusOrder     []string              `json:"statusOrder"`
    StatusMeta      map[string]StatusMeta `json:"statusMeta"`
    Columns         map[string][]Task     `json:"columns"`
}

// Member is a display projection of a user; borrowed, never authoritative.
type Member struct {
    ID        string `json:"id"`
    Name      string `json:"name"`
    AvatarURL string `json:"avatarUrl,omitempty"`
}

// Task is one board item. A task with a non-empty SprintID appears in exactly
// one column of exactly one sprint after a SyncColumns pass. An empty SprintID
// means backlog/unscheduled. StatusCode/StatusCategory/StatusName are
// denormalized copies of the resolved StatusMeta, kept in sync by every
// mutation.
type Task struct {
    ID               string         `json:"id"`
    Code             string         `json:"code,omitempty"`
    Title            string         `json:"title"`
    Type             string         `json:"type"`
    Priority         string         `json:"priority"`
    Severity         string         `json:"severity,omitempty"`
    StoryPoints      float64        `json:"storyPoints"`
    EstimateHours    float64        `json:"estimateHours"`
    RemainingHours   float64        `json:"remainingHours"`
    OrderInSprint    int            `json:"orderInSprint"`
    DueDate          *time.Time     `json:"dueDate,omitempty"`
    SprintID         string         `json:"sprintId,omitempty"`
    WorkflowStatusID string         `json:"workflowStatusId"`
    StatusCode       string         `json:"statusCode"`
    StatusCategory   StatusCategory `json:"statusCategory"`
    StatusName       string         `json:"statusName"`
    Assignees        []Member       `json:"assignees,omitempty"`
    DependsOn        []string       `json:"dependsOn,omitempty"`
    ParentTaskID     string         `json:"parentTaskId,omitempty"`
    CarryOverCount   int            `json:"carryOverCount,omitempty"`
    Origin           TaskOrigin     `json:"origin"`
    OpenedAt         time.Time      `json:"openedAt"`
    CreatedAt        time.Time      `json:"createdAt"`
    UpdatedAt        time.Time      `json:"updatedAt"`
    SourceTicketID   string         `json:"sourceTicketId,omitempty"`
    SourceTicketCode string         `json:"sourceTicketCode,omitempty"`
}
