package controller

import (
	"net/http"

	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/db/postgres/chain"
	"github.com/orca-so/sedimentology/pkg/temporal"
	"go.uber.org/zap"
)

// StatusResponse is the pipeline overview.
type StatusResponse struct {
	admin.Stats
	LatestSlot *chain.Slot     `json:"latestSlot,omitempty"`
	Temporal   temporal.Health `json:"temporal"`
	WSClients  int             `json:"wsClients"`
}

// HandleStatus reports watermarks, backfill campaigns, queue depths, the
// checkpoint, the newest committed slot and Temporal queue health.
func (c *Controller) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := c.App.AdminDB.Stats(ctx)
	if err != nil {
		c.App.Logger.Error("Failed to read stats", zap.Error(err))
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats.Backfills == nil {
		stats.Backfills = make([]admin.BackfillState, 0)
	}

	out := StatusResponse{Stats: stats, Temporal: c.App.TemporalHealth(ctx)}
	latest, err := c.App.ChainDB.LatestSlots(ctx, 1)
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(latest) > 0 {
		out.LatestSlot = &latest[0]
	}
	if c.App.Hub != nil {
		out.WSClients = c.App.Hub.Clients()
	}
	c.writeJSON(w, http.StatusOK, out)
}

// HandleCheckpointSweep advances the checkpoint now instead of waiting for the cron tick.
func (c *Controller) HandleCheckpointSweep(w http.ResponseWriter, r *http.Request) {
	slot, moved, err := c.App.AdminDB.AdvanceCheckpoint(r.Context())
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.App.Logger.Info("Checkpoint sweep requested",
		zap.String("user", c.currentUser(r)),
		zap.Uint64("slot", slot),
		zap.Bool("moved", moved))
	c.writeJSON(w, http.StatusOK, map[string]any{"slot": slot, "moved": moved})
}
