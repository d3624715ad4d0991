/* Copyright (c) 2025 Fusion Net <https://fusion-net.org>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/fusion-net-org/fusion-board/internal/adapters/tracker"
    "github.com/fusion-net-org/fusion-board/internal/config"
    httpx "github.com/fusion-net-org/fusion-board/internal/http"
    "github.com/fusion-net-org/fusion-board/internal/jobs"
    "github.com/fusion-net-org/fusion-board/internal/logger"
    "github.com/fusion-net-org/fusion-board/internal/repo"
    "github.com/fusion-net-org/fusion-board/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // DB
    db := repo.MustOpen(ctx, cfg.DBDSN, log)
    defer db.Close()

    // Adapters
    tc := tracker.NewClient(cfg, log)

    // Services
    repository := repo.NewRepository(db, log)
    svc := services.New(cfg, log, repository, tc)

    // Seed the board from the last snapshot, then refetch in the background
    // so views are never empty while the first refresh is in flight.
    svc.WarmStart(ctx)
    go func() {
        ctx2, cancel2 := context.WithTimeout(ctx, services.RefreshTimeout); defer cancel2()
        if err := svc.RefreshBoard(ctx2); err != nil {
            log.Error().Err(err).Msg("initial board refresh failed; serving snapshot until next cron pass")
        }
    }()

    // HTTP server (Gin)
    router := httpx.NewRouter(cfg, log, svc)

    // Cron
    cron := jobs.NewCron(cfg, log, svc, repository)
    cron.Start()
    defer cron.Stop()

    // graceful shutdown
    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
