package types

// CreateBackfillRequest creates a backfill campaign. The campaign starts at
// Slot/BlockHeight and walks forward until MaxBlockHeight.
type CreateBackfillRequest struct {
	MaxBlockHeight uint64 `json:"maxBlockHeight"`
	Slot           uint64 `json:"slot"`
	BlockHeight    uint64 `json:"blockHeight"`
	Enabled        *bool  `json:"enabled,omitempty"`
}

// PatchBackfillRequest pauses or resumes a campaign.
type PatchBackfillRequest struct {
	Enabled *bool `json:"enabled"`
}
