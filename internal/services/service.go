/* Copyright (c) 2025 Fusion Net <https://fusion-net.org>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "time"

    "github.com/fusion-net-org/fusion-board/internal/board"
    "github.com/fusion-net-org/fusion-board/internal/config"
    "github.com/fusion-net-org/fusion-board/internal/domain"
    "github.com/fusion-net-org/fusion-board/internal/repo"
    "github.com/rs/zerolog"
)

// TrackerClient is the full tracker surface the service depends on: the
// paged list endpoints for refresh plus the mutation endpoints forwarded to
// the board controller.
type TrackerClient interface {
    board.TrackerAPI
    Sprints(ctx context.Context, projectID string) ([]map[string]any, error)
    Tasks(ctx context.Context, projectID string) ([]map[string]any, error)
}

// Service orchestrates the board cache: full refetches from the tracker,
// snapshot persistence, and the mutation pass-throughs the HTTP layer calls.
type Service struct {
    cfg  config.Config
    log  zerolog.Logger
    repo *repo.Repository
    api  TrackerClient
    ctrl *board.Controller
}

func New(cfg config.Config, log zerolog.Logger, r *repo.Repository, api TrackerClient) *Service {
    return &Service{cfg: cfg, log: log, repo: r, api: api, ctrl: board.NewController(cfg.ProjectID, api, log)}
}

// WarmStart seeds the in-memory board from the last persisted snapshot so
// views have data before the first refetch completes.
func (s *Service) WarmStart(ctx context.Context) {
    sprints, err := s.repo.LoadSprints(ctx)
    if err != nil { s.log.Error().Err(err).Msg("warm start: load sprints failed"); return }
    tasks, err := s.repo.LoadTasks(ctx)
    if err != nil { s.log.Error().Err(err).Msg("warm start: load tasks failed"); return }
    if len(sprints) == 0 && len(tasks) == 0 { return }
    s.ctrl.Load(sprints, tasks)
    s.log.Info().Int("sprints", len(sprints)).Int("tasks", len(tasks)).Msg("warm start: snapshot loaded")
}

// RefreshBoard refetches the project's sprints and tasks, replaces the
// in-memory cache, and persists the snapshot. This is the authoritative
// correction pass for any optimistic state a failed mutation left behind.
func (s *Service) RefreshBoard(ctx context.Context) error {
    runID, err := s.repo.StartRefreshRun(ctx)
    if err != nil { s.log.Error().Err(err).Msg("start refresh run failed") }
    s.log.Info().Str("project", s.cfg.ProjectID).Msg("refresh: start")
    s.ctrl.SetLoading(true)
    defer s.ctrl.SetLoading(false)

    var nSprints, nTasks, dropped int
    var refreshErr error
    defer func() {
        if runID != 0 {
            errStr := ""
            if refreshErr != nil { errStr = refreshErr.Error() }
            _ = s.repo.FinishRefreshRun(ctx, runID, nSprints, nTasks, dropped, refreshErr == nil, errStr)
        }
    }()

    sprintDTOs, err := s.api.Sprints(ctx, s.cfg.ProjectID)
    if err != nil { refreshErr = err; return err }
    taskDTOs, err := s.api.Tasks(ctx, s.cfg.ProjectID)
    if err != nil { refreshErr = err; return err }

    sprints := make([]domain.Sprint, 0, len(sprintDTOs))
    byID := make(map[string]*domain.Sprint, len(sprintDTOs))
    for _, dto := range sprintDTOs {
        sp := board.MapSprint(dto)
        sprints = append(sprints, sp)
    }
    for i := range sprints { byID[sprints[i].ID] = &sprints[i] }

    tasks := make([]domain.Task, 0, len(taskDTOs))
    for _, dto := range taskDTOs {
        var owner *domain.Sprint
        if sid, ok := dto["sprintId"]; ok { owner = byID[fmt.Sprintf("%v", sid)] }
        tasks = append(tasks, board.MapTask(dto, owner))
    }

    s.ctrl.Load(sprints, tasks)
    snap := s.ctrl.Snapshot()
    nSprints, nTasks, dropped = len(snap.Sprints), len(snap.Tasks), snap.DroppedFromColumns
    if dropped > 0 { s.log.Warn().Int("dropped", dropped).Msg("refresh: tasks matched no sprint column") }

    if err := s.repo.UpsertSprints(ctx, snap.Sprints); err != nil { s.log.Error().Err(err).Msg("persist sprints failed") }
    if err := s.repo.UpsertTasks(ctx, snap.Tasks); err != nil { s.log.Error().Err(err).Msg("persist tasks failed") }

    s.log.Info().Int("sprints", nSprints).Int("tasks", nTasks).Int("dropped", dropped).Msg("refresh: done")
    return nil
}

// Board returns the derived read model for view surfaces.
func (s *Service) Board(ctx context.Context) board.Snapshot { return s.ctrl.Snapshot() }

func (s *Service) GetLastRefresh(ctx context.Context) (any, error) { return s.repo.GetLastRefresh(ctx) }

// persist writes the reconciled task back to the snapshot store.
// Best-effort: a persistence failure never fails the mutation.
func (s *Service) persist(ctx context.Context, t domain.Task) {
    if t.ID == "" { return }
    if err := s.repo.UpsertTasks(ctx, []domain.Task{t}); err != nil {
        s.log.Error().Err(err).Str("task", t.ID).Msg("persist task failed")
    }
}

func (s *Service) ChangeStatus(ctx context.Context, taskID, statusID string) (domain.Task, error) {
    t, err := s.ctrl.ChangeStatus(ctx, taskID, statusID)
    s.persist(ctx, t)
    return t, err
}

func (s *Service) Reorder(ctx context.Context, sprintID, taskID, toStatusID string, toIndex int) (domain.Task, error) {
    t, err := s.ctrl.Reorder(ctx, sprintID, taskID, toStatusID, toIndex)
    s.persist(ctx, t)
    return t, err
}

func (s *Service) MoveToNextSprint(ctx context.Context, taskID, toSprintID string) (domain.Task, error) {
    t, err := s.ctrl.MoveToNextSprint(ctx, taskID, toSprintID)
    s.persist(ctx, t)
    return t, err
}

func (s *Service) Done(ctx context.Context, taskID string) (domain.Task, error) {
    t, err := s.ctrl.Done(ctx, taskID)
    s.persist(ctx, t)
    return t, err
}

func (s *Service) Split(ctx context.Context, taskID string) (domain.Task, domain.Task, error) {
    a, b, err := s.ctrl.Split(ctx, taskID)
    s.persist(ctx, a)
    s.persist(ctx, b)
    return a, b, err
}

func (s *Service) CreateTask(ctx context.Context, draft domain.Task) domain.Task {
    t := s.ctrl.CreateTask(draft)
    s.persist(ctx, t)
    return t
}

// RefreshTimeout bounds a scheduled refresh so a hung tracker cannot pin the
// cron slot forever.
const RefreshTimeout = 5 * time.Minute
