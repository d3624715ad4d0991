/* Copyright (c) 2025 Fusion Net <https://fusion-net.org>
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "github.com/fusion-net-org/fusion-board/internal/config"
    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc any) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context) {
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    h := NewHandlers(cfg, log, svc)

    r.GET("/healthz", h.Healthz)
    r.GET("/board", h.Board)

    r.POST("/tasks", h.CreateTask)
    r.POST("/tasks/:id/status", h.ChangeStatus)
    r.POST("/tasks/:id/move", h.Move)
    r.POST("/tasks/:id/done", h.Done)
    r.POST("/tasks/:id/split", h.Split)
    r.PUT("/sprints/:id/reorder", h.Reorder)

    r.POST("/admin/refresh", h.Refresh)
    r.GET("/admin/last-refresh", h.LastRefresh)

    return r
}
