package controller

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/db/postgres/chain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SlotResponse describes one slot: committed with its transactions, or still pending.
type SlotResponse struct {
	Status string            `json:"status"` // "committed" or "queued"
	Slot   *chain.Slot       `json:"slot,omitempty"`
	Txs    []chain.TxSummary `json:"txs,omitempty"`
	Queued *admin.QueuedSlot `json:"queued,omitempty"`
}

// parseLimit reads ?limit=, defaulting to defaultListLimit and capped at maxListLimit.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxListLimit), true
}

// HandleLatestSlots lists the newest committed slots.
func (c *Controller) HandleLatestSlots(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		c.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	slots, err := c.App.ChainDB.LatestSlots(r.Context(), limit)
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if slots == nil {
		slots = make([]chain.Slot, 0)
	}
	c.writeJSON(w, http.StatusOK, slots)
}

// HandleSlot returns a committed slot with its transactions, or its pending row.
func (c *Controller) HandleSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.ParseUint(mux.Vars(r)["slot"], 10, 64)
	if err != nil {
		c.writeError(w, http.StatusBadRequest, "invalid slot")
		return
	}
	ctx := r.Context()

	committed, err := c.App.ChainDB.GetSlot(ctx, slot)
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if committed != nil {
		txs, err := c.App.ChainDB.TxsBySlot(ctx, slot)
		if err != nil {
			c.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		c.writeJSON(w, http.StatusOK, SlotResponse{Status: "committed", Slot: committed, Txs: txs})
		return
	}

	queued, err := c.App.AdminDB.GetQueuedSlot(ctx, slot)
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if queued == nil {
		c.writeError(w, http.StatusNotFound, "slot not found")
		return
	}
	c.writeJSON(w, http.StatusOK, SlotResponse{Status: "queued", Queued: queued})
}

// HandleQueue lists pending slots in processing order. ?backfill=true lists
// backfill slots instead of live ones.
func (c *Controller) HandleQueue(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		c.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	backfill := r.URL.Query().Get("backfill") == "true"
	slots, err := c.App.AdminDB.ListQueuedSlots(r.Context(), backfill, limit)
	if err != nil {
		c.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if slots == nil {
		slots = make([]admin.QueuedSlot, 0)
	}
	c.writeJSON(w, http.StatusOK, slots)
}
