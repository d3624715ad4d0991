/* Copyright (c) 2025 Fusion Net <https://fusion-net.org>
 * SPDX-License-Identifier: BSD-3-Clause */
package board

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "sync"
    "time"

    "github.com/fusion-net-org/fusion-board/internal/domain"
    "github.com/google/uuid"
    "github.com/rs/zerolog"
)

// TrackerAPI is the slice of the remote tracker the controller mutates
// through. Every call returns the server-confirmed task DTO used for
// reconciliation.
type TrackerAPI interface {
    UpdateStatus(ctx context.Context, taskID, statusID string) (map[string]any, error)
    Reorder(ctx context.Context, projectID, sprintID, taskID, toStatusID string, toIndex int) (map[string]any, error)
    Move(ctx context.Context, taskID, toSprintID string) (map[string]any, error)
    MarkDone(ctx context.Context, taskID string) (map[string]any, error)
    Split(ctx context.Context, taskID string) (map[string]any, error)
}

// MutationError reports a failed network reconciliation. The optimistic
// local state is left in place either way; the caller decides whether to
// surface the failure.
type MutationError struct {
    Op     string
    TaskID string
    Err    error
}

func (e *MutationError) Error() string { return fmt.Sprintf("board: %s failed for task %s: %v", e.Op, e.TaskID, e.Err) }
func (e *MutationError) Unwrap() error { return e.Err }

var ErrUnknownTask = errors.New("board: unknown task")

// Snapshot is the read model handed to view surfaces.
type Snapshot struct {
    Sprints            []domain.Sprint `json:"sprints"`
    Tasks              []domain.Task   `json:"tasks"`
    Loading            bool            `json:"loading"`
    DroppedFromColumns int             `json:"droppedFromColumns"`
}

// Controller owns the canonical tasks and sprints collections. Every
// mutation applies an optimistic local rewrite, rebuilds columns, then fires
// the network call and reconciles the confirmed DTO through the shared
// upsert path. The lock is never held across a network round trip.
type Controller struct {
    mu        sync.Mutex
    log       zerolog.Logger
    api       TrackerAPI
    projectID string

    tasks   []domain.Task
    sprints []domain.Sprint
    dropped int
    loading bool
}

func NewController(projectID string, api TrackerAPI, log zerolog.Logger) *Controller {
    return &Controller{projectID: projectID, api: api, log: log}
}

// Load replaces both collections wholesale, de-duplicating tasks by id
// (first occurrence wins), and rebuilds all columns.
func (c *Controller) Load(sprints []domain.Sprint, tasks []domain.Task) {
    c.mu.Lock()
    defer c.mu.Unlock()
    seen := make(map[string]struct{}, len(tasks))
    dedup := make([]domain.Task, 0, len(tasks))
    for _, t := range tasks {
        if _, ok := seen[t.ID]; ok { continue }
        seen[t.ID] = struct{}{}
        dedup = append(dedup, t)
    }
    c.sprints = sprints
    c.tasks = dedup
    c.resync()
}

func (c *Controller) SetLoading(v bool) { c.mu.Lock(); c.loading = v; c.mu.Unlock() }

// Snapshot returns a copy of the derived board state.
func (c *Controller) Snapshot() Snapshot {
    c.mu.Lock()
    defer c.mu.Unlock()
    return Snapshot{
        Sprints:            append([]domain.Sprint(nil), c.sprints...),
        Tasks:              append([]domain.Task(nil), c.tasks...),
        Loading:            c.loading,
        DroppedFromColumns: c.dropped,
    }
}

// resync rebuilds columns; callers hold c.mu.
func (c *Controller) resync() {
    c.sprints, c.dropped = SyncColumns(c.sprints, c.tasks)
    if c.dropped > 0 {
        c.log.Debug().Int("dropped", c.dropped).Msg("board: tasks matched no sprint column")
    }
}

// ChangeStatus optimistically rewrites the task's status triple from the
// owning sprint's metadata for nextStatusID, then calls the status endpoint
// and reconciles the confirmed DTO. On network failure the optimistic state
// stands and a *MutationError is returned alongside it.
func (c *Controller) ChangeStatus(ctx context.Context, taskID, nextStatusID string) (domain.Task, error) {
    optimistic, err := c.rewriteTask(taskID, func(t *domain.Task, sprint *domain.Sprint) {
        applyStatus(t, nextStatusID, sprint)
        t.UpdatedAt = time.Now().UTC()
    })
    if err != nil { return domain.Task{}, err }
    dto, err := c.api.UpdateStatus(ctx, taskID, nextStatusID)
    if err != nil { return optimistic, &MutationError{Op: "changeStatus", TaskID: taskID, Err: err} }
    return c.AttachTaskFromAPI(dto), nil
}

// Reorder performs the ChangeStatus rewrite plus a target index for
// drag-and-drop. The index is primarily a server-side concern; the local
// value is a hint reflected properly once the reorder call returns.
func (c *Controller) Reorder(ctx context.Context, sprintID, taskID, toStatusID string, toIndex int) (domain.Task, error) {
    optimistic, err := c.rewriteTask(taskID, func(t *domain.Task, sprint *domain.Sprint) {
        applyStatus(t, toStatusID, sprint)
        t.OrderInSprint = toIndex
        t.UpdatedAt = time.Now().UTC()
    })
    if err != nil { return domain.Task{}, err }
    dto, err := c.api.Reorder(ctx, c.projectID, sprintID, taskID, toStatusID, toIndex)
    if err != nil { return optimistic, &MutationError{Op: "reorder", TaskID: taskID, Err: err} }
    return c.AttachTaskFromAPI(dto), nil
}

// MoveToNextSprint rewrites the task's sprint assignment. An empty
// toSprintID resolves to the sprint positioned immediately after the task's
// current sprint in iteration order.
func (c *Controller) MoveToNextSprint(ctx context.Context, taskID, toSprintID string) (domain.Task, error) {
    c.mu.Lock()
    idx := c.taskIndex(taskID)
    if idx < 0 { c.mu.Unlock(); return domain.Task{}, ErrUnknownTask }
    if toSprintID == "" { toSprintID = c.sprintAfter(c.tasks[idx].SprintID) }
    if toSprintID == "" { c.mu.Unlock(); return domain.Task{}, errors.New("board: no destination sprint") }
    c.tasks[idx].SprintID = toSprintID
    c.tasks[idx].UpdatedAt = time.Now().UTC()
    optimistic := c.tasks[idx]
    c.resync()
    c.mu.Unlock()

    dto, err := c.api.Move(ctx, taskID, toSprintID)
    if err != nil { return optimistic, &MutationError{Op: "moveToNextSprint", TaskID: taskID, Err: err} }
    return c.AttachTaskFromAPI(dto), nil
}

// Done rewrites the task to its sprint's terminal status (IsFinal, else the
// last of the status order) and forces the DONE category, then reconciles
// with the mark-done endpoint.
func (c *Controller) Done(ctx context.Context, taskID string) (domain.Task, error) {
    optimistic, err := c.rewriteTask(taskID, func(t *domain.Task, sprint *domain.Sprint) {
        final := placeholderStatusID
        if sprint != nil { final = FinalStatusID(sprint) }
        applyStatus(t, final, sprint)
        t.StatusCategory = domain.CategoryDone
        t.UpdatedAt = time.Now().UTC()
    })
    if err != nil { return domain.Task{}, err }
    dto, err := c.api.MarkDone(ctx, taskID)
    if err != nil { return optimistic, &MutationError{Op: "done", TaskID: taskID, Err: err} }
    return c.AttachTaskFromAPI(dto), nil
}

// Split has no optimistic rewrite: the shape of the two resulting tasks is
// not knowable client-side. Both returned parts are upserted through the
// shared reconciliation path.
func (c *Controller) Split(ctx context.Context, taskID string) (domain.Task, domain.Task, error) {
    c.mu.Lock()
    if c.taskIndex(taskID) < 0 { c.mu.Unlock(); return domain.Task{}, domain.Task{}, ErrUnknownTask }
    c.mu.Unlock()
    res, err := c.api.Split(ctx, taskID)
    if err != nil { return domain.Task{}, domain.Task{}, &MutationError{Op: "split", TaskID: taskID, Err: err} }
    partA, _ := res["partA"].(map[string]any)
    partB, _ := res["partB"].(map[string]any)
    var a, b domain.Task
    if partA != nil { a = c.AttachTaskFromAPI(partA) }
    if partB != nil { b = c.AttachTaskFromAPI(partB) }
    return a, b, nil
}

// CreateTask synthesizes a full task from a draft with a locally generated
// id and status defaults derived from the target sprint, and appends it to
// the flat list. Purely local: the server create is driven elsewhere and
// reconciled on the next refresh.
func (c *Controller) CreateTask(draft domain.Task) domain.Task {
    c.mu.Lock()
    defer c.mu.Unlock()
    now := time.Now().UTC()
    t := draft
    t.ID = "local-" + uuid.NewString()
    t.Origin = domain.OriginPendingLocal
    t.Priority = NormalizePriority(t.Priority)
    if t.Type == "" { t.Type = "Feature" }
    if t.RemainingHours == 0 { t.RemainingHours = t.EstimateHours }
    if t.OpenedAt.IsZero() { t.OpenedAt = now }
    if t.CreatedAt.IsZero() { t.CreatedAt = now }
    t.UpdatedAt = now
    sprint := c.sprintByID(t.SprintID)
    statusID := placeholderStatusID
    if sprint != nil {
        statusID = t.WorkflowStatusID
        if _, ok := sprint.StatusMeta[statusID]; !ok { statusID = StartStatusID(sprint) }
    }
    applyStatus(&t, statusID, sprint)
    c.tasks = append(c.tasks, t)
    c.resync()
    return t
}

// AttachTaskFromAPI normalizes a server task DTO against its sprint's
// metadata and merges it into the flat list. All reconciliation paths funnel
// through here.
func (c *Controller) AttachTaskFromAPI(dto map[string]any) domain.Task {
    c.mu.Lock()
    defer c.mu.Unlock()
    vm := MapTask(dto, c.sprintByID(toStr(dto["sprintId"])))
    return c.attachLocked(vm)
}

// AttachTask is the shared upsert primitive: replace by id when present,
// prepend when new, then rebuild columns.
func (c *Controller) AttachTask(vm domain.Task) domain.Task {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.attachLocked(vm)
}

func (c *Controller) attachLocked(vm domain.Task) domain.Task {
    vm.Origin = domain.OriginConfirmed
    if idx := c.taskIndex(vm.ID); idx >= 0 {
        c.tasks[idx] = vm
    } else {
        c.tasks = append([]domain.Task{vm}, c.tasks...)
    }
    c.resync()
    return vm
}

// ---- internal lookups (callers hold c.mu) ----

func (c *Controller) taskIndex(id string) int {
    for i := range c.tasks {
        if c.tasks[i].ID == id { return i }
    }
    return -1
}

func (c *Controller) sprintByID(id string) *domain.Sprint {
    if strings.TrimSpace(id) == "" { return nil }
    for i := range c.sprints {
        if c.sprints[i].ID == id { return &c.sprints[i] }
    }
    return nil
}

func (c *Controller) sprintAfter(id string) string {
    for i := range c.sprints {
        if c.sprints[i].ID == id && i+1 < len(c.sprints) { return c.sprints[i+1].ID }
    }
    return ""
}

// rewriteTask applies fn to the task under the lock, resyncs, and returns
// the optimistic copy.
func (c *Controller) rewriteTask(taskID string, fn func(*domain.Task, *domain.Sprint)) (domain.Task, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    idx := c.taskIndex(taskID)
    if idx < 0 { return domain.Task{}, ErrUnknownTask }
    sprint := c.sprintByID(c.tasks[idx].SprintID)
    fn(&c.tasks[idx], sprint)
    optimistic := c.tasks[idx]
    c.resync()
    return optimistic, nil
}
