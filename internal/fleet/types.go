package fleet

import (
	"fmt"
	"regexp"
)

// Spec describes one fleet: how many runner instances to provision, how they
// are named on disk, and which repository they register against.
type Spec struct {
	Size     int
	BaseName string
	BaseDir  string
	Labels   []string
	Repo     string
	Token    string
}

// Identity is the deterministic identity of one instance within a fleet.
type Identity struct {
	Index   int
	Name    string
	Dir     string
	Service string
}

// ProvisionState tracks how far provisioning got for one instance.
type ProvisionState string

const (
	StateUnprovisioned    ProvisionState = "unprovisioned"
	StateExtracted        ProvisionState = "extracted"
	StateRegistered       ProvisionState = "registered"
	StateServiceInstalled ProvisionState = "service-installed"
)

// Record is the in-memory outcome of provisioning one instance. It is not
// persisted; the durable truth is the registration service plus systemd.
type Record struct {
	Identity Identity
	State    ProvisionState
	Err      error
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validate rejects a spec before any side effect happens.
func (s Spec) Validate() error {
	if s.Size < 1 {
		return ValidationError{Field: "count", Value: fmt.Sprintf("%d", s.Size), Message: "must be at least 1"}
	}
	if s.BaseName == "" || !nameRe.MatchString(s.BaseName) {
		return ValidationError{Field: "name", Value: s.BaseName, Message: "required; letters, digits, '.', '_', '-' only"}
	}
	if s.BaseDir == "" {
		return ValidationError{Field: "dir", Value: "", Message: "base directory is required"}
	}
	if s.Repo == "" {
		return ValidationError{Field: "repo", Value: "", Message: "repository identifier is required"}
	}
	if s.Token == "" {
		return ValidationError{Field: "token", Value: "", Message: "registration token is required"}
	}
	for _, l := range s.Labels {
		if !nameRe.MatchString(l) {
			return ValidationError{Field: "labels", Value: l, Message: "letters, digits, '.', '_', '-' only"}
		}
	}
	return nil
}
