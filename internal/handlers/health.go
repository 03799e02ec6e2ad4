package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Storage     string `json:"storage"`
	Environment string `json:"environment"`
	Time        string `json:"time"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Database:    "ok",
		Cache:       "ok",
		Storage:     "ok",
		Environment: h.cfg.Environment,
		Time:        h.now().UTC().Format(time.RFC3339),
	}

	if h.deps.Mongo == nil {
		resp.Database = "disabled"
	} else if err := h.deps.Mongo.Health(ctx); err != nil {
		resp.Database = "error"
		h.log.Error().Err(err).Msg("mongo ping failed")
	}

	if h.deps.Cache == nil {
		resp.Cache = "disabled"
	} else if err := h.deps.Cache.Ping(ctx).Err(); err != nil {
		resp.Cache = "error"
		h.log.Error().Err(err).Msg("redis ping failed")
	}

	if h.deps.Store == nil {
		resp.Storage = "disabled"
	} else if err := h.deps.Store.Health(ctx); err != nil {
		resp.Storage = "error"
		h.log.Error().Err(err).Msg("object storage check failed")
	}

	status := http.StatusOK
	if resp.Database == "error" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
