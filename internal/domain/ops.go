package domain

// OpsSnapshot summarizes ledger activity counters for operational
// tooling. Values are cumulative since process start.
type OpsSnapshot struct {
	JournalAppends       int64   `json:"journal_appends"`
	CategoryAppends      int64   `json:"category_appends"`
	DesignatedTransfers  int64   `json:"designated_transfers"`
	IdempotentReplays    int64   `json:"idempotent_replays"`
	ConflictRetries      int64   `json:"conflict_retries"`
	VerifyFailures       int64   `json:"verify_failures"`
	AuditPublishFailures int64   `json:"audit_publish_failures"`
	ReplayRate           float64 `json:"replay_rate"`
	Period               string  `json:"period"`
}
