/* Copyright (c) 2025 Fusion Net <https://fusion-net.org>
 * SPDX-License-Identifier: BSD-3-Clause */
package board

import (
    "sort"
    "time"

    "github.com/fusion-net-org/fusion-board/internal/domain"
)

// SyncColumns rebuilds every sprint's status columns from the flat task list.
// Pure and idempotent: inputs are not mutated, and a second pass over its own
// output yields identical column membership and order.
//
// Assignment rules per task: an explicit SprintID wins; otherwise the first
// sprint whose [Start, End] range contains the task's due date (falling back
// to opened date, then created date) owns it. A task matching no sprint stays
// in the flat list but appears in no column; the second return value counts
// those so callers can surface them.
func SyncColumns(sprints []domain.Sprint, tasks []domain.Task) ([]domain.Sprint, int) {
    out := make([]domain.Sprint, len(sprints))
    index := make(map[string]int, len(sprints))
    for i, sp := range sprints {
        cp := sp
        cp.Columns = make(map[string][]domain.Task, len(sp.StatusOrder))
        for _, id := range sp.StatusOrder { cp.Columns[id] = []domain.Task{} }
        out[i] = cp
        index[sp.ID] = i
    }

    dropped := 0
    for _, t := range tasks {
        si := resolveSprintIndex(out, index, t)
        if si < 0 { dropped++; continue }
        sp := &out[si]
        // Re-normalize against the owning sprint before bucketing, same
        // resolution order as MapTask.
        statusID := resolveStatusID(t.WorkflowStatusID, t.StatusCode, sp)
        applyStatus(&t, statusID, sp)
        sp.Columns[statusID] = append(sp.Columns[statusID], t)
    }

    for i := range out {
        for id := range out[i].Columns {
            col := out[i].Columns[id]
            sort.SliceStable(col, func(a, b int) bool { return col[a].OrderInSprint < col[b].OrderInSprint })
        }
    }
    return out, dropped
}

func resolveSprintIndex(sprints []domain.Sprint, index map[string]int, t domain.Task) int {
    if t.SprintID != "" {
        if i, ok := index[t.SprintID]; ok { return i }
        return -1
    }
    ref := taskRefDate(t)
    if ref.IsZero() { return -1 }
    for i, sp := range sprints {
        if sp.Start == nil || sp.End == nil { continue }
        if !ref.Before(*sp.Start) && !ref.After(*sp.End) { return i }
    }
    return -1
}

func taskRefDate(t domain.Task) time.Time {
    if t.DueDate != nil { return *t.DueDate }
    if !t.OpenedAt.IsZero() { return t.OpenedAt }
    return t.CreatedAt
}
