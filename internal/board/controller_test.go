package board

import (
    "context"
    "errors"
    "strings"
    "testing"

    "github.com/fusion-net-org/fusion-board/internal/domain"
    "github.com/rs/zerolog"
)

// fakeTracker echoes every mutation back as a server-confirmed DTO, or fails
// wholesale when err is set.
type fakeTracker struct {
    err      error
    splitRes map[string]any
    calls    []string
}

func (f *fakeTracker) echo(op, taskID string, extra map[string]any) (map[string]any, error) {
    f.calls = append(f.calls, op)
    if f.err != nil { return nil, f.err }
    dto := map[string]any{"id": taskID, "title": "from server"}
    for k, v := range extra { dto[k] = v }
    return dto, nil
}

func (f *fakeTracker) UpdateStatus(_ context.Context, taskID, statusID string) (map[string]any, error) {
    return f.echo("updateStatus", taskID, map[string]any{"sprintId": "s1", "workflowStatusId": statusID})
}

func (f *fakeTracker) Reorder(_ context.Context, _, sprintID, taskID, toStatusID string, toIndex int) (map[string]any, error) {
    return f.echo("reorder", taskID, map[string]any{"sprintId": sprintID, "workflowStatusId": toStatusID, "orderInSprint": float64(toIndex)})
}

func (f *fakeTracker) Move(_ context.Context, taskID, toSprintID string) (map[string]any, error) {
    return f.echo("move", taskID, map[string]any{"sprintId": toSprintID})
}

func (f *fakeTracker) MarkDone(_ context.Context, taskID string) (map[string]any, error) {
    return f.echo("markDone", taskID, map[string]any{"sprintId": "s1", "workflowStatusId": "st-b"})
}

func (f *fakeTracker) Split(_ context.Context, taskID string) (map[string]any, error) {
    f.calls = append(f.calls, "split")
    if f.err != nil { return nil, f.err }
    return f.splitRes, nil
}

func newTestController(api TrackerAPI) *Controller {
    c := NewController("p1", api, zerolog.Nop())
    s1 := twoStatusSprint()
    s2 := twoStatusSprint()
    s2.ID = "s2"
    c.Load([]domain.Sprint{s1, s2}, []domain.Task{
        {ID: "t1", SprintID: "s1", WorkflowStatusID: "st-a"},
        {ID: "t2", SprintID: "s1", WorkflowStatusID: "st-b"},
    })
    return c
}

func findColumnTask(snap Snapshot, sprintID, statusID, taskID string) bool {
    for _, sp := range snap.Sprints {
        if sp.ID != sprintID { continue }
        for _, tk := range sp.Columns[statusID] {
            if tk.ID == taskID { return true }
        }
    }
    return false
}

func TestControllerLoad_DedupsByID(t *testing.T) {
    c := NewController("p1", &fakeTracker{}, zerolog.Nop())
    c.Load([]domain.Sprint{twoStatusSprint()}, []domain.Task{
        {ID: "t1", SprintID: "s1", Title: "first"},
        {ID: "t1", SprintID: "s1", Title: "dup"},
        {ID: "t2", SprintID: "s1"},
    })
    snap := c.Snapshot()
    if len(snap.Tasks) != 2 { t.Fatalf("want 2 tasks after dedup, got %d", len(snap.Tasks)) }
    if snap.Tasks[0].Title != "first" { t.Fatalf("first occurrence should win, got %q", snap.Tasks[0].Title) }
}

func TestChangeStatus_ReconcilesServerTask(t *testing.T) {
    api := &fakeTracker{}
    c := newTestController(api)
    got, err := c.ChangeStatus(context.Background(), "t1", "st-b")
    if err != nil { t.Fatalf("unexpected error: %v", err) }
    if got.Origin != domain.OriginConfirmed { t.Fatalf("reconciled task should be confirmed, got %s", got.Origin) }
    if got.WorkflowStatusID != "st-b" || got.StatusCategory != domain.CategoryDone {
        t.Fatalf("server status not applied: %+v", got)
    }
    snap := c.Snapshot()
    if len(snap.Tasks) != 2 { t.Fatalf("upsert should replace in place, got %d tasks", len(snap.Tasks)) }
    if !findColumnTask(snap, "s1", "st-b", "t1") { t.Fatalf("t1 should sit in s1/st-b after reconcile") }
}

func TestChangeStatus_NetworkFailureKeepsOptimistic(t *testing.T) {
    api := &fakeTracker{err: errors.New("boom")}
    c := newTestController(api)
    got, err := c.ChangeStatus(context.Background(), "t1", "st-b")
    var me *MutationError
    if !errors.As(err, &me) { t.Fatalf("want *MutationError, got %v", err) }
    if me.Op != "changeStatus" || me.TaskID != "t1" { t.Fatalf("error fields: %+v", me) }
    if got.WorkflowStatusID != "st-b" { t.Fatalf("optimistic rewrite should survive: %+v", got) }
    snap := c.Snapshot()
    if !findColumnTask(snap, "s1", "st-b", "t1") { t.Fatalf("optimistic column placement lost") }
    if findColumnTask(snap, "s1", "st-a", "t1") { t.Fatalf("t1 rendered in two columns") }
}

func TestChangeStatus_UnknownTask(t *testing.T) {
    c := newTestController(&fakeTracker{})
    if _, err := c.ChangeStatus(context.Background(), "nope", "st-b"); !errors.Is(err, ErrUnknownTask) {
        t.Fatalf("want ErrUnknownTask, got %v", err)
    }
}

func TestDone_ForcesDoneCategory(t *testing.T) {
    // Terminal status whose own category is not DONE.
    s1 := twoStatusSprint()
    b := s1.StatusMeta["st-b"]
    b.Category = domain.CategoryReview
    s1.StatusMeta["st-b"] = b
    api := &fakeTracker{err: errors.New("offline")}
    c := NewController("p1", api, zerolog.Nop())
    c.Load([]domain.Sprint{s1}, []domain.Task{{ID: "t1", SprintID: "s1", WorkflowStatusID: "st-a"}})

    got, err := c.Done(context.Background(), "t1")
    var me *MutationError
    if !errors.As(err, &me) { t.Fatalf("want *MutationError, got %v", err) }
    if got.WorkflowStatusID != "st-b" { t.Fatalf("done should target the final status: %+v", got) }
    if got.StatusCategory != domain.CategoryDone { t.Fatalf("done must force DONE category, got %s", got.StatusCategory) }
}

func TestReorder_AppliesStatusAndIndex(t *testing.T) {
    api := &fakeTracker{err: errors.New("offline")}
    c := newTestController(api)
    got, err := c.Reorder(context.Background(), "s1", "t1", "st-b", 7)
    var me *MutationError
    if !errors.As(err, &me) { t.Fatalf("want *MutationError, got %v", err) }
    if got.WorkflowStatusID != "st-b" || got.OrderInSprint != 7 { t.Fatalf("optimistic reorder: %+v", got) }
}

func TestMoveToNextSprint_DefaultDestination(t *testing.T) {
    api := &fakeTracker{}
    c := newTestController(api)
    got, err := c.MoveToNextSprint(context.Background(), "t1", "")
    if err != nil { t.Fatalf("unexpected error: %v", err) }
    if got.SprintID != "s2" { t.Fatalf("empty destination should resolve to the next sprint, got %q", got.SprintID) }
    if !findColumnTask(c.Snapshot(), "s2", "st-a", "t1") { t.Fatalf("t1 should render in s2 after move") }
}

func TestMoveToNextSprint_NoDestination(t *testing.T) {
    c := newTestController(&fakeTracker{})
    // t from the last sprint with nothing after it.
    c.AttachTask(domain.Task{ID: "t9", SprintID: "s2"})
    if _, err := c.MoveToNextSprint(context.Background(), "t9", ""); err == nil {
        t.Fatalf("want error when no destination sprint exists")
    }
}

func TestCreateTask_PendingLocalThenConfirmed(t *testing.T) {
    c := newTestController(&fakeTracker{})
    created := c.CreateTask(domain.Task{Title: "New thing", SprintID: "s1"})
    if !strings.HasPrefix(created.ID, "local-") { t.Fatalf("want local- id prefix, got %q", created.ID) }
    if created.Origin != domain.OriginPendingLocal { t.Fatalf("want pending_local origin, got %s", created.Origin) }
    if created.WorkflowStatusID != "st-a" { t.Fatalf("draft should land on the start status, got %s", created.WorkflowStatusID) }
    if len(c.Snapshot().Tasks) != 3 { t.Fatalf("created task should join the flat list") }

    confirmed := created
    confirmed.Title = "New thing (server)"
    got := c.AttachTask(confirmed)
    if got.Origin != domain.OriginConfirmed { t.Fatalf("upsert should confirm origin, got %s", got.Origin) }
    if n := len(c.Snapshot().Tasks); n != 3 { t.Fatalf("upsert by id should replace, got %d tasks", n) }
}

func TestAttachTask_PrependsNew(t *testing.T) {
    c := newTestController(&fakeTracker{})
    c.AttachTask(domain.Task{ID: "t-new", SprintID: "s1"})
    snap := c.Snapshot()
    if len(snap.Tasks) != 3 { t.Fatalf("new task should be added, got %d", len(snap.Tasks)) }
    if snap.Tasks[0].ID != "t-new" { t.Fatalf("new task should be prepended, head is %s", snap.Tasks[0].ID) }
}

func TestSplit_UpsertsBothParts(t *testing.T) {
    api := &fakeTracker{splitRes: map[string]any{
        "partA": map[string]any{"id": "t1", "sprintId": "s1", "title": "part A"},
        "partB": map[string]any{"id": "t1b", "sprintId": "s1", "title": "part B"},
    }}
    c := newTestController(api)
    a, b, err := c.Split(context.Background(), "t1")
    if err != nil { t.Fatalf("unexpected error: %v", err) }
    if a.ID != "t1" || b.ID != "t1b" { t.Fatalf("split parts: %s / %s", a.ID, b.ID) }
    snap := c.Snapshot()
    if len(snap.Tasks) != 3 { t.Fatalf("split should replace t1 and add t1b, got %d tasks", len(snap.Tasks)) }
}

func TestSplit_UnknownTask(t *testing.T) {
    c := newTestController(&fakeTracker{})
    if _, _, err := c.Split(context.Background(), "nope"); !errors.Is(err, ErrUnknownTask) {
        t.Fatalf("want ErrUnknownTask, got %v", err)
    }
}
