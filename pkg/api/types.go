package api

// v0 contains public types describing fleet operations and their outcomes.

type FleetSpec struct {
	Name   string   `json:"name" yaml:"name"`
	Count  int      `json:"count" yaml:"count"`
	Dir    string   `json:"dir" yaml:"dir"`
	Repo   string   `json:"repo" yaml:"repo"`
	Labels []string `json:"labels" yaml:"labels"`
}

type OutcomeStatus string

const (
	StatusSucceeded OutcomeStatus = "succeeded"
	// StatusDegraded means the instance runs but its hardening profile was
	// rolled back after breaking the service.
	StatusDegraded OutcomeStatus = "degraded"
	StatusFailed   OutcomeStatus = "failed"
)

// InstanceOutcome is the per-instance result of one provisioning run.
type InstanceOutcome struct {
	Index     int           `json:"index"`
	Name      string        `json:"name"`
	Directory string        `json:"directory"`
	Service   string        `json:"service"`
	State     string        `json:"state"`
	Hardening string        `json:"hardening"`
	Status    OutcomeStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
}

type TeardownFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// TeardownResult aggregates one teardown run. Every discovered instance is
// attempted; Failed counts the ones that could not be fully removed.
type TeardownResult struct {
	Attempted int               `json:"attempted"`
	Failed    int               `json:"failed"`
	Failures  []TeardownFailure `json:"failures,omitempty"`
}
