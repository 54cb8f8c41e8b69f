package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docintel-batch/internal/runs"
	"docintel-batch/internal/shared/metrics"
	"docintel-batch/internal/shared/server/middleware"
	"docintel-batch/internal/shared/server/respond"
)

func registerRoutes(r *gin.Engine, progress ProgressSource, runRepo runs.Repo) {
	r.GET("/healthz", func(c *gin.Context) {
		respond.OK(c, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())
	r.GET("/progress", progressHandler(progress))

	if runRepo != nil {
		r.GET("/runs", listRunsHandler(runRepo))
		r.GET("/runs/:id", getRunHandler(runRepo))
	}
}

func progressHandler(progress ProgressSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if progress == nil {
			respond.NotFound(c, "no batch has started")
			return
		}
		snap, ok := progress.Progress()
		if !ok {
			respond.NotFound(c, "no batch has started")
			return
		}
		c.Set(middleware.RunIDKey, snap.RunID)
		respond.OK(c, snap)
	}
}

func listRunsHandler(repo runs.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if raw := c.Query("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v <= 0 {
				respond.Error(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", nil)
				return
			}
			limit = v
		}
		list, err := repo.ListRecent(c.Request.Context(), limit)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to list runs", nil)
			return
		}
		if list == nil {
			list = []runs.Run{}
		}
		respond.OK(c, gin.H{"runs": list})
	}
}

func getRunHandler(repo runs.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		c.Set(middleware.RunIDKey, id)
		run, err := repo.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, runs.ErrNotFound) {
				respond.NotFound(c, "run not found")
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "failed to load run", nil)
			return
		}
		respond.OK(c, run)
	}
}
