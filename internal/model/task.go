package model

// Provisioning task states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ProvisioningTask is the single in-flight provisioning run.
type ProvisioningTask struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
