package jobs

import (
    "context"
    "time"

    "github.com/fusion-net-org/fusion-board/internal/config"
    "github.com/fusion-net-org/fusion-board/internal/repo"
    "github.com/fusion-net-org/fusion-board/internal/services"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface { RefreshBoard(ctx context.Context) error }

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    repo *repo.Repository
    c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
    _, _ = c.AddFunc(cfg.RefreshCron, cr.refresh)
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

func (cr *Cron) refresh() {
    ctx, cancel := context.WithTimeout(context.Background(), services.RefreshTimeout); defer cancel()
    const lockKey int64 = 731117
    ok, err := cr.repo.TryAdvisoryLock(ctx, lockKey)
    if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
    if !ok { cr.log.Info().Msg("cron: refresh already running elsewhere"); return }
    defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), lockKey) }()
    cr.log.Info().Msg("cron: board refresh")
    if err := cr.svc.RefreshBoard(ctx); err != nil { cr.log.Error().Err(err).Msg("cron: refresh failed") }
}
