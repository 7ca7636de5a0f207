package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/orca-so/sedimentology/app/admin/controller/types"
	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"go.uber.org/zap"
)

// HandleBackfillList returns every backfill campaign.
func (c *Controller) HandleBackfillList(w http.ResponseWriter, r *http.Request) {
	states, err := c.App.AdminDB.ListBackfillStates(r.Context())
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if states == nil {
		states = make([]admin.BackfillState, 0)
	}
	c.writeJSON(w, http.StatusOK, states)
}

// HandleBackfillCreate creates a campaign. An existing campaign with the same
// ceiling is only reset with ?reset=true, since that rewinds its watermark.
func (c *Controller) HandleBackfillCreate(w http.ResponseWriter, r *http.Request) {
	var in types.CreateBackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		c.writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if in.MaxBlockHeight == 0 {
		c.writeError(w, http.StatusBadRequest, "maxBlockHeight is required")
		return
	}
	if in.BlockHeight > in.MaxBlockHeight {
		c.writeError(w, http.StatusBadRequest, "blockHeight is above maxBlockHeight")
		return
	}
	ctx := r.Context()

	_, err := c.App.AdminDB.ReadBackfillState(ctx, in.MaxBlockHeight)
	switch {
	case err == nil:
		if r.URL.Query().Get("reset") != "true" {
			c.writeError(w, http.StatusConflict, "backfill campaign already exists")
			return
		}
	case errors.Is(err, admin.ErrBackfillNotFound):
	default:
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	state := admin.BackfillState{
		MaxBlockHeight: in.MaxBlockHeight,
		Slot:           in.Slot,
		BlockHeight:    in.BlockHeight,
		Enabled:        in.Enabled == nil || *in.Enabled,
	}
	if err := c.App.AdminDB.UpsertBackfillState(ctx, state); err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.App.Logger.Info("Backfill campaign created",
		zap.String("user", c.currentUser(r)),
		zap.Uint64("maxBlockHeight", state.MaxBlockHeight),
		zap.Uint64("slot", state.Slot),
		zap.Uint64("blockHeight", state.BlockHeight))

	created, err := c.App.AdminDB.ReadBackfillState(ctx, in.MaxBlockHeight)
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.writeJSON(w, http.StatusCreated, created)
}

// HandleBackfillPatch enables or disables a campaign.
func (c *Controller) HandleBackfillPatch(w http.ResponseWriter, r *http.Request) {
	maxBlockHeight, err := strconv.ParseUint(mux.Vars(r)["maxBlockHeight"], 10, 64)
	if err != nil {
		c.writeError(w, http.StatusBadRequest, "invalid maxBlockHeight")
		return
	}
	var in types.PatchBackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Enabled == nil {
		c.writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	ctx := r.Context()

	if err := c.App.AdminDB.SetBackfillEnabled(ctx, maxBlockHeight, *in.Enabled); err != nil {
		if errors.Is(err, admin.ErrBackfillNotFound) {
			c.writeError(w, http.StatusNotFound, "backfill campaign not found")
			return
		}
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.App.Logger.Info("Backfill campaign updated",
		zap.String("user", c.currentUser(r)),
		zap.Uint64("maxBlockHeight", maxBlockHeight),
		zap.Bool("enabled", *in.Enabled))

	state, err := c.App.AdminDB.ReadBackfillState(ctx, maxBlockHeight)
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	c.writeJSON(w, http.StatusOK, state)
}
