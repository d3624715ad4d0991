/* Copyright (c) 2025 Fusion Net <https://fusion-net.org>
 * SPDX-License-Identifier: BSD-3-Clause */
package board

import (
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/fusion-net-org/fusion-board/internal/domain"
)

// Placeholder status id used when a task is mapped without an owning sprint.
const placeholderStatusID = "st-todo"

// InferCategory guesses a coarse status category from a free-text code or
// name. Applied only when the server supplies no explicit category. The
// fallback table, in match order:
//
//   contains "review"                      -> REVIEW
//   contains "progress", or "doing"/"work" -> IN_PROGRESS
//   contains "done", or "closed"           -> DONE
//   anything else                          -> TODO
func InferCategory(s string) domain.StatusCategory {
    v := strings.ToLower(strings.TrimSpace(s))
    switch {
    case strings.Contains(v, "review"):
        return domain.CategoryReview
    case strings.Contains(v, "progress") || v == "doing" || v == "work":
        return domain.CategoryInProgress
    case strings.Contains(v, "done") || v == "closed":
        return domain.CategoryDone
    default:
        return domain.CategoryTodo
    }
}

// DefaultWorkflow is the hardcoded four-column workflow used when a sprint
// DTO carries neither a resolved status set nor a workflow definition.
func DefaultWorkflow() ([]string, map[string]domain.StatusMeta) {
    order := []string{"st-todo", "st-inprogress", "st-inreview", "st-done"}
    meta := map[string]domain.StatusMeta{
        "st-todo":       {ID: "st-todo", Code: "todo", Name: "To do", Category: domain.CategoryTodo, Order: 0, IsStart: true},
        "st-inprogress": {ID: "st-inprogress", Code: "inprogress", Name: "In progress", Category: domain.CategoryInProgress, Order: 1},
        "st-inreview":   {ID: "st-inreview", Code: "inreview", Name: "In review", Category: domain.CategoryReview, Order: 2},
        "st-done":       {ID: "st-done", Code: "done", Name: "Done", Category: domain.CategoryDone, Order: 3, IsFinal: true},
    }
    return order, meta
}

// MapSprint shapes a raw sprint/workflow DTO into a domain.Sprint. Missing or
// malformed fields are defaulted, never rejected; Columns starts empty (one
// list per status) and is populated by SyncColumns.
func MapSprint(dto map[string]any) domain.Sprint {
    sp := domain.Sprint{
        ID:              toStr(dto["id"]),
        Name:            toStr(dto["name"]),
        Start:           parseTimeAny(firstOf(dto, "start", "startDate")),
        End:             parseTimeAny(firstOf(dto, "end", "endDate")),
        State:           mapSprintState(toStr(dto["state"])),
        CapacityHours:   toFloat(dto["capacityHours"]),
        CommittedPoints: toFloat(dto["committedPoints"]),
        WorkflowID:      toStr(dto["workflowId"]),
    }

    order, meta := statusSetFromDTO(dto)
    if len(order) == 0 { order, meta = DefaultWorkflow() }
    sp.StatusOrder = order
    sp.StatusMeta = meta
    sp.Columns = make(map[string][]domain.Task, len(order))
    for _, id := range order { sp.Columns[id] = []domain.Task{} }
    return sp
}

// statusSetFromDTO tries the pre-resolved statusOrder/statusMeta pair first,
// then a workflow.statuses list sorted by its order field (array index when
// absent). Returns empty when neither source is usable.
func statusSetFromDTO(dto map[string]any) ([]string, map[string]domain.StatusMeta) {
    if rawOrder, ok := dto["statusOrder"].([]any); ok && len(rawOrder) > 0 {
        rawMeta, _ := dto["statusMeta"].(map[string]any)
        order := make([]string, 0, len(rawOrder))
        meta := make(map[string]domain.StatusMeta, len(rawOrder))
        for i, v := range rawOrder {
            id := toStr(v)
            if id == "" { continue }
            m, _ := rawMeta[id].(map[string]any)
            meta[id] = mapStatusMeta(id, m, i)
            order = append(order, id)
        }
        if len(order) > 0 { return order, meta }
    }
    if wf, ok := dto["workflow"].(map[string]any); ok {
        if raw, ok := wf["statuses"].([]any); ok && len(raw) > 0 {
            statuses := make([]domain.StatusMeta, 0, len(raw))
            for i, v := range raw {
                m, _ := v.(map[string]any)
                if m == nil { continue }
                id := toStr(m["id"])
                if id == "" { id = fmt.Sprintf("st-%d", i) }
                statuses = append(statuses, mapStatusMeta(id, m, i))
            }
            sort.SliceStable(statuses, func(i, j int) bool { return statuses[i].Order < statuses[j].Order })
            order := make([]string, 0, len(statuses))
            meta := make(map[string]domain.StatusMeta, len(statuses))
            for _, st := range statuses { order = append(order, st.ID); meta[st.ID] = st }
            if len(order) > 0 { return order, meta }
        }
    }
    return nil, nil
}

func mapStatusMeta(id string, m map[string]any, idx int) domain.StatusMeta {
    st := domain.StatusMeta{ID: id, Order: idx}
    if m != nil {
        st.Code = normalizeCode(toStr(m["code"]))
        st.Name = toStr(m["name"])
        if v, ok := m["order"]; ok { st.Order = toInt(v) }
        st.Color = toStr(m["color"])
        st.WIPLimit = toInt(m["wipLimit"])
        st.IsFinal = toBool(m["isFinal"])
        st.IsStart = toBool(m["isStart"])
        if c := toStr(m["category"]); c != "" { st.Category = domain.StatusCategory(strings.ToUpper(c)) }
    }
    if st.Code == "" { st.Code = normalizeCode(st.Name) }
    if st.Code == "" { st.Code = normalizeCode(id) }
    if st.Name == "" { st.Name = st.Code }
    if st.Category == "" {
        src := st.Code
        if src == "" { src = st.Name }
        st.Category = InferCategory(src)
    }
    return st
}

func mapSprintState(s string) domain.SprintState {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "planning": return domain.SprintPlanning
    case "active": return domain.SprintActive
    case "closed": return domain.SprintClosed
    default: return ""
    }
}

// MapTask shapes a raw task DTO into a domain.Task, resolving its workflow
// status against the owning sprint's metadata. A nil sprint yields the
// placeholder "st-todo" status.
func MapTask(dto map[string]any, sprint *domain.Sprint) domain.Task {
    now := time.Now().UTC()
    t := domain.Task{
        ID:               toStr(dto["id"]),
        Code:             toStr(dto["code"]),
        Title:            toStr(dto["title"]),
        Type:             normalizeType(toStr(dto["type"])),
        Priority:         NormalizePriority(toStr(dto["priority"])),
        Severity:         toStr(dto["severity"]),
        StoryPoints:      toFloat(dto["storyPoints"]),
        EstimateHours:    toFloat(dto["estimateHours"]),
        OrderInSprint:    toInt(dto["orderInSprint"]),
        DueDate:          parseTimeAny(dto["dueDate"]),
        SprintID:         toStr(dto["sprintId"]),
        ParentTaskID:     toStr(dto["parentTaskId"]),
        CarryOverCount:   toInt(dto["carryOverCount"]),
        Origin:           domain.OriginConfirmed,
        SourceTicketID:   toStr(dto["sourceTicketId"]),
        SourceTicketCode: toStr(dto["sourceTicketCode"]),
    }
    if v := dto["remainingHours"]; v != nil { t.RemainingHours = toFloat(v) } else { t.RemainingHours = t.EstimateHours }

    t.Assignees = mapMembers(dto)
    if deps, ok := dto["dependsOn"].([]any); ok {
        for _, d := range deps { if id := toStr(d); id != "" { t.DependsOn = append(t.DependsOn, id) } }
    }

    // Dates that fail to parse become "now" rather than a zero time.
    t.OpenedAt = timeOr(parseTimeAny(dto["openedAt"]), now)
    t.CreatedAt = timeOr(parseTimeAny(dto["createdAt"]), now)
    t.UpdatedAt = timeOr(parseTimeAny(dto["updatedAt"]), now)

    statusID := resolveStatusID(toStr(firstOf(dto, "workflowStatusId", "statusId")), toStr(dto["status"]), sprint)
    applyStatus(&t, statusID, sprint)
    return t
}

// resolveStatusID picks the task's workflow status id by trying, in order:
// an explicit id present in the sprint's metadata, a legacy status string
// matched against each status code, the sprint's start status, and finally
// the first entry of the sprint's status order.
func resolveStatusID(explicit, legacy string, sprint *domain.Sprint) string {
    if sprint == nil { return placeholderStatusID }
    if explicit != "" {
        if _, ok := sprint.StatusMeta[explicit]; ok { return explicit }
    }
    if code := normalizeCode(legacy); code != "" {
        for _, id := range sprint.StatusOrder {
            if sprint.StatusMeta[id].Code == code { return id }
        }
    }
    return StartStatusID(sprint)
}

// StartStatusID returns the sprint's entry status: the one flagged IsStart,
// else the first of StatusOrder.
func StartStatusID(sprint *domain.Sprint) string {
    for _, id := range sprint.StatusOrder {
        if sprint.StatusMeta[id].IsStart { return id }
    }
    if len(sprint.StatusOrder) > 0 { return sprint.StatusOrder[0] }
    return placeholderStatusID
}

// FinalStatusID returns the sprint's terminal status: the first flagged
// IsFinal, else the last of StatusOrder.
func FinalStatusID(sprint *domain.Sprint) string {
    for _, id := range sprint.StatusOrder {
        if sprint.StatusMeta[id].IsFinal { return id }
    }
    if n := len(sprint.StatusOrder); n > 0 { return sprint.StatusOrder[n-1] }
    return placeholderStatusID
}

// applyStatus rewrites the task's denormalized status triple from the
// sprint's metadata for statusID. With no metadata available the triple is
// derived from the default workflow's todo column.
func applyStatus(t *domain.Task, statusID string, sprint *domain.Sprint) {
    t.WorkflowStatusID = statusID
    if sprint != nil {
        if meta, ok := sprint.StatusMeta[statusID]; ok {
            t.StatusCode = meta.Code
            t.StatusCategory = meta.Category
            t.StatusName = meta.Name
            return
        }
    }
    _, def := DefaultWorkflow()
    if meta, ok := def[statusID]; ok {
        t.StatusCode = meta.Code
        t.StatusCategory = meta.Category
        t.StatusName = meta.Name
        return
    }
    t.StatusCode = normalizeCode(statusID)
    t.StatusCategory = InferCategory(statusID)
    t.StatusName = statusID
}

// NormalizePriority folds a free-form priority into Urgent/High/Medium/Low.
func NormalizePriority(s string) string {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "urgent": return "Urgent"
    case "high": return "High"
    case "medium": return "Medium"
    default: return "Low"
    }
}

func normalizeType(s string) string {
    v := strings.ToLower(strings.TrimSpace(s))
    switch {
    case strings.Contains(v, "bug"): return "Bug"
    case strings.Contains(v, "chore") || strings.Contains(v, "task"): return "Chore"
    default: return "Feature"
    }
}

func mapMembers(dto map[string]any) []domain.Member {
    var out []domain.Member
    add := func(v any) {
        m, _ := v.(map[string]any)
        if m == nil { return }
        mem := domain.Member{ID: toStr(m["id"]), Name: toStr(m["name"]), AvatarURL: toStr(m["avatarUrl"])}
        if mem.ID == "" && mem.Name == "" { return }
        out = append(out, mem)
    }
    if arr, ok := dto["assignees"].([]any); ok {
        for _, v := range arr { add(v) }
    } else if v, ok := dto["assignee"]; ok {
        add(v)
    }
    return out
}

// normalizeCode lowercases and strips separators: "In Progress" -> "inprogress".
func normalizeCode(s string) string {
    v := strings.ToLower(strings.TrimSpace(s))
    for _, sep := range []string{" ", "-", "_"} { v = strings.ReplaceAll(v, sep, "") }
    return v
}

// ---- DTO value helpers ----

func firstOf(dto map[string]any, keys ...string) any {
    for _, k := range keys {
        if v, ok := dto[k]; ok && v != nil { return v }
    }
    return nil
}

func toStr(v any) string {
    if v == nil { return "" }
    switch t := v.(type) {
    case string: return t
    case float64:
        if t == float64(int64(t)) { return fmt.Sprintf("%d", int64(t)) }
        return fmt.Sprintf("%v", t)
    default: return fmt.Sprintf("%v", v)
    }
}

func toFloat(v any) float64 {
    switch t := v.(type) {
    case float64: return t
    case int: return float64(t)
    case int64: return float64(t)
    case string:
        var f float64
        if _, err := fmt.Sscanf(strings.TrimSpace(t), "%g", &f); err == nil { return f }
    }
    return 0
}

func toInt(v any) int { return int(toFloat(v)) }

func toBool(v any) bool {
    switch t := v.(type) {
    case bool: return t
    case string: return strings.EqualFold(strings.TrimSpace(t), "true")
    case float64: return t != 0
    }
    return false
}

func parseTimeAny(v any) *time.Time {
    s, _ := v.(string)
    if s == "" { return nil }
    layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000-0700", "2006-01-02"}
    for _, l := range layouts {
        if t, err := time.Parse(l, s); err == nil { tt := t.UTC(); return &tt }
    }
    return nil
}

func timeOr(t *time.Time, def time.Time) time.Time {
    if t == nil { return def }
    return *t
}
