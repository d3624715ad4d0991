/* Copyright (c) 2025 Fusion Net <https://fusion-net.org>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "errors"
    "net/http"

    "github.com/fusion-net-org/fusion-board/internal/board"
    "github.com/fusion-net-org/fusion-board/internal/config"
    "github.com/fusion-net-org/fusion-board/internal/domain"
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"
)

type service interface {
    Board(ctx context.Context) board.Snapshot
    ChangeStatus(ctx context.Context, taskID, statusID string) (domain.Task, error)
    Reorder(ctx context.Context, sprintID, taskID, toStatusID string, toIndex int) (domain.Task, error)
    MoveToNextSprint(ctx context.Context, taskID, toSprintID string) (domain.Task, error)
    Done(ctx context.Context, taskID string) (domain.Task, error)
    Split(ctx context.Context, taskID string) (domain.Task, domain.Task, error)
    CreateTask(ctx context.Context, draft domain.Task) domain.Task
    RefreshBoard(ctx context.Context) error
    GetLastRefresh(ctx context.Context) (any, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc any) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc.(service)}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) Board(c *gin.Context) {
    c.JSON(http.StatusOK, h.svc.Board(c.Request.Context()))
}

// mutationReply serializes the optimistic/reconciled task. A reconciliation
// failure is reported next to the task rather than as an HTTP error: the
// optimistic state is the user-visible truth until the next refetch.
func (h *Handlers) mutationReply(c *gin.Context, t domain.Task, err error) {
    var merr *board.MutationError
    switch {
    case err == nil:
        c.JSON(http.StatusOK, gin.H{"task": t, "reconciled": true})
    case errors.As(err, &merr):
        h.log.Warn().Err(merr).Str("task", merr.TaskID).Msg("mutation not reconciled")
        c.JSON(http.StatusOK, gin.H{"task": t, "reconciled": false, "error": merr.Error()})
    case errors.Is(err, board.ErrUnknownTask):
        c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
    default:
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    }
}

func (h *Handlers) ChangeStatus(c *gin.Context) {
    var req struct {
        StatusID string `json:"statusId" binding:"required"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    t, err := h.svc.ChangeStatus(c.Request.Context(), c.Param("id"), req.StatusID)
    h.mutationReply(c, t, err)
}

func (h *Handlers) Reorder(c *gin.Context) {
    var req struct {
        TaskID     string `json:"taskId" binding:"required"`
        ToStatusID string `json:"toStatusId" binding:"required"`
        ToIndex    int    `json:"toIndex"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    t, err := h.svc.Reorder(c.Request.Context(), c.Param("id"), req.TaskID, req.ToStatusID, req.ToIndex)
    h.mutationReply(c, t, err)
}

func (h *Handlers) Move(c *gin.Context) {
    var req struct {
        ToSprintID string `json:"toSprintId"`
    }
    _ = c.ShouldBindJSON(&req)
    t, err := h.svc.MoveToNextSprint(c.Request.Context(), c.Param("id"), req.ToSprintID)
    h.mutationReply(c, t, err)
}

func (h *Handlers) Done(c *gin.Context) {
    t, err := h.svc.Done(c.Request.Context(), c.Param("id"))
    h.mutationReply(c, t, err)
}

func (h *Handlers) Split(c *gin.Context) {
    a, b, err := h.svc.Split(c.Request.Context(), c.Param("id"))
    var merr *board.MutationError
    switch {
    case err == nil:
        c.JSON(http.StatusOK, gin.H{"partA": a, "partB": b})
    case errors.As(err, &merr):
        h.log.Warn().Err(merr).Str("task", merr.TaskID).Msg("split not reconciled")
        c.JSON(http.StatusBadGateway, gin.H{"error": merr.Error()})
    case errors.Is(err, board.ErrUnknownTask):
        c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
    default:
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
    }
}

func (h *Handlers) CreateTask(c *gin.Context) {
    var draft domain.Task
    if err := c.ShouldBindJSON(&draft); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if draft.Title == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
        return
    }
    t := h.svc.CreateTask(c.Request.Context(), draft)
    c.JSON(http.StatusCreated, gin.H{"task": t})
}

func (h *Handlers) Refresh(c *gin.Context) {
    // Run in background detached from the HTTP request to avoid context cancellation
    go func() { _ = h.svc.RefreshBoard(context.Background()) }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) LastRefresh(c *gin.Context) {
    lr, err := h.svc.GetLastRefresh(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}
