package controller

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse is the public liveness view of the admin service.
type HealthResponse struct {
	Status   string `json:"status"`
	Temporal bool   `json:"temporal"`
	Redis    string `json:"redis"`
}

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out := HealthResponse{
		Status:   "ok",
		Temporal: c.App.TemporalHealth(ctx).ConnectionOK,
		Redis:    "disabled",
	}
	if c.App.RedisClient != nil {
		out.Redis = "ok"
		if err := c.App.RedisClient.Health(ctx); err != nil {
			out.Redis = err.Error()
		}
	}

	status := http.StatusOK
	if !out.Temporal {
		out.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.writeJSON(w, status, out)
}
