package domain

// SyncState describes a store's remote sync health.
type SyncState struct {
	ConsecutiveFailures int    `json:"consecutive_failures"`
	CircuitOpen         bool   `json:"circuit_open"`
	Threshold           int    `json:"threshold"`
	Pending             int    `json:"pending"`
	LastError           string `json:"last_error,omitempty"`
}
