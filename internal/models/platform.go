package models

// PlatformStats is the single platform ledger row: the fee sink (Tide Pool) and the
// global completed-job counter used by activity mining.
type PlatformStats struct {
	FeePool       int64 `json:"feePool"`
	CompletedJobs int   `json:"completedJobs"`
}
