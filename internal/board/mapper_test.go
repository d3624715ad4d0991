package board

import (
    "testing"
    "time"

    "github.com/fusion-net-org/fusion-board/internal/domain"
)

func TestMapSprint_EmptyDTOYieldsDefaultWorkflow(t *testing.T) {
    sp := MapSprint(map[string]any{"id": "s1", "name": "Sprint 1"})
    wantCodes := []string{"todo", "inprogress", "inreview", "done"}
    if len(sp.StatusOrder) != 4 { t.Fatalf("expected 4 statuses, got %d", len(sp.StatusOrder)) }
    for i, id := range sp.StatusOrder {
        if sp.StatusMeta[id].Code != wantCodes[i] {
            t.Fatalf("status %d: want code %q got %q", i, wantCodes[i], sp.StatusMeta[id].Code)
        }
    }
    first := sp.StatusMeta[sp.StatusOrder[0]]
    last := sp.StatusMeta[sp.StatusOrder[3]]
    if !first.IsStart { t.Fatalf("todo should be IsStart") }
    if !last.IsFinal { t.Fatalf("done should be IsFinal") }
    if len(sp.Columns) != 4 { t.Fatalf("expected one empty column per status, got %d", len(sp.Columns)) }
    for id, col := range sp.Columns {
        if len(col) != 0 { t.Fatalf("column %s should start empty", id) }
    }
}

func TestMapSprint_WorkflowStatusesSortedByOrder(t *testing.T) {
    dto := map[string]any{
        "id": "s1",
        "workflow": map[string]any{
            "statuses": []any{
                map[string]any{"id": "b", "code": "done", "order": float64(2), "isFinal": true},
                map[string]any{"id": "a", "code": "to do", "order": float64(0), "isStart": true},
                map[string]any{"id": "c", "name": "In Progress", "order": float64(1)},
            },
        },
    }
    sp := MapSprint(dto)
    want := []string{"a", "c", "b"}
    for i, id := range want {
        if sp.StatusOrder[i] != id { t.Fatalf("order[%d]: want %s got %s", i, id, sp.StatusOrder[i]) }
    }
    if sp.StatusMeta["a"].Code != "todo" { t.Fatalf("expected code slug normalization, got %q", sp.StatusMeta["a"].Code) }
    if sp.StatusMeta["c"].Category != domain.CategoryInProgress {
        t.Fatalf("expected category inferred from name, got %s", sp.StatusMeta["c"].Category)
    }
}

func TestMapSprint_PreResolvedStatusSetWins(t *testing.T) {
    dto := map[string]any{
        "id":          "s1",
        "statusOrder": []any{float64(10), "20"},
        "statusMeta": map[string]any{
            "10": map[string]any{"code": "todo", "isStart": true},
            "20": map[string]any{"code": "done", "category": "DONE", "isFinal": true},
        },
        "workflow": map[string]any{"statuses": []any{map[string]any{"id": "x"}}},
    }
    sp := MapSprint(dto)
    if len(sp.StatusOrder) != 2 || sp.StatusOrder[0] != "10" || sp.StatusOrder[1] != "20" {
        t.Fatalf("pre-resolved ids should win and coerce to strings: %#v", sp.StatusOrder)
    }
    if sp.StatusMeta["20"].Category != domain.CategoryDone { t.Fatalf("explicit category should be kept") }
}

func TestInferCategory_FallbackTable(t *testing.T) {
    cases := []struct {
        in   string
        want domain.StatusCategory
    }{
        {"Code Review", domain.CategoryReview},
        {"inreview", domain.CategoryReview},
        {"In Progress", domain.CategoryInProgress},
        {"doing", domain.CategoryInProgress},
        {"work", domain.CategoryInProgress},
        {"Done", domain.CategoryDone},
        {"closed", domain.CategoryDone},
        {"To Do", domain.CategoryTodo},
        {"backlog", domain.CategoryTodo},
        {"", domain.CategoryTodo},
    }
    for _, c := range cases {
        if got := InferCategory(c.in); got != c.want {
            t.Fatalf("InferCategory(%q): want %s got %s", c.in, c.want, got)
        }
    }
}

func twoStatusSprint() domain.Sprint {
    return domain.Sprint{
        ID:          "s1",
        StatusOrder: []string{"st-a", "st-b"},
        StatusMeta: map[string]domain.StatusMeta{
            "st-a": {ID: "st-a", Code: "todo", Name: "To do", Category: domain.CategoryTodo, IsStart: true},
            "st-b": {ID: "st-b", Code: "done", Name: "Done", Category: domain.CategoryDone, IsFinal: true},
        },
    }
}

func TestMapTask_StatusResolutionOrder(t *testing.T) {
    sp := twoStatusSprint()

    // (a) explicit id present in the sprint's metadata
    tk := MapTask(map[string]any{"id": "t1", "workflowStatusId": "st-b"}, &sp)
    if tk.WorkflowStatusID != "st-b" || tk.StatusCategory != domain.CategoryDone {
        t.Fatalf("explicit id should resolve directly: %+v", tk)
    }

    // (b) legacy status string matched against codes
    tk = MapTask(map[string]any{"id": "t2", "status": "Done"}, &sp)
    if tk.WorkflowStatusID != "st-b" { t.Fatalf("legacy status should match code: %+v", tk) }

    // (c) unknown id falls back to the start status
    tk = MapTask(map[string]any{"id": "t3", "workflowStatusId": "st-nope"}, &sp)
    if tk.WorkflowStatusID != "st-a" { t.Fatalf("unknown id should fall back to IsStart: %+v", tk) }

    // (c') no IsStart flag: first of statusOrder
    sp2 := twoStatusSprint()
    a := sp2.StatusMeta["st-a"]
    a.IsStart = false
    sp2.StatusMeta["st-a"] = a
    tk = MapTask(map[string]any{"id": "t4", "workflowStatusId": "st-nope"}, &sp2)
    if tk.WorkflowStatusID != "st-a" { t.Fatalf("should fall back to first of statusOrder: %+v", tk) }

    // nil sprint: placeholder id
    tk = MapTask(map[string]any{"id": "t5"}, nil)
    if tk.WorkflowStatusID != "st-todo" { t.Fatalf("nil sprint should yield st-todo, got %s", tk.WorkflowStatusID) }
}

func TestMapTask_PriorityAndNumericDefaults(t *testing.T) {
    sp := twoStatusSprint()
    tk := MapTask(map[string]any{"id": "t1", "priority": "URGENT", "estimateHours": float64(8)}, &sp)
    if tk.Priority != "Urgent" { t.Fatalf("priority: want Urgent got %s", tk.Priority) }
    if tk.EstimateHours != 8 { t.Fatalf("estimate: want 8 got %v", tk.EstimateHours) }
    if tk.RemainingHours != 8 { t.Fatalf("remaining should inherit estimate, got %v", tk.RemainingHours) }
    if tk.StoryPoints != 0 { t.Fatalf("points should default 0, got %v", tk.StoryPoints) }

    tk = MapTask(map[string]any{"id": "t2", "priority": "whatever"}, &sp)
    if tk.Priority != "Low" { t.Fatalf("unknown priority should fold to Low, got %s", tk.Priority) }

    tk = MapTask(map[string]any{"id": "t3", "estimateHours": float64(4), "remainingHours": float64(1)}, &sp)
    if tk.RemainingHours != 1 { t.Fatalf("explicit remaining should be kept, got %v", tk.RemainingHours) }
}

func TestMapTask_UnparseableDatesDefaultToNow(t *testing.T) {
    sp := twoStatusSprint()
    before := time.Now().UTC().Add(-time.Second)
    tk := MapTask(map[string]any{"id": "t1", "createdAt": "not-a-date", "updatedAt": nil}, &sp)
    after := time.Now().UTC().Add(time.Second)
    for name, ts := range map[string]time.Time{"createdAt": tk.CreatedAt, "updatedAt": tk.UpdatedAt, "openedAt": tk.OpenedAt} {
        if ts.Before(before) || ts.After(after) {
            t.Fatalf("%s should default to now, got %v", name, ts)
        }
    }
}

func TestMapTask_AssigneesSingleAndList(t *testing.T) {
    sp := twoStatusSprint()
    tk := MapTask(map[string]any{
        "id":        "t1",
        "assignees": []any{map[string]any{"id": "u1", "name": "Dana"}, map[string]any{"id": "u2", "name": "Kim"}},
    }, &sp)
    if len(tk.Assignees) != 2 { t.Fatalf("want 2 assignees, got %d", len(tk.Assignees)) }

    tk = MapTask(map[string]any{"id": "t2", "assignee": map[string]any{"id": "u3", "name": "Ravi"}}, &sp)
    if len(tk.Assignees) != 1 || tk.Assignees[0].ID != "u3" { t.Fatalf("single assignee not mapped: %#v", tk.Assignees) }
}
