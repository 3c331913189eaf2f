package configmanager

import (
	"context"
	"errors"

	"github.com/steelcutops/idracuser/idrac/sharemanager"
	"github.com/steelcutops/idracuser/idrac/usermanager"
)

// StatusSuccess is the ApplyResult status of a change set the controller
// accepted.
const StatusSuccess = "Success"

// StatusFailed is the ApplyResult status of a rejected change set.
const StatusFailed = "Failed"

var (
	// ErrNoShare is returned by operations that need a liaison share before
	// one was set.
	ErrNoShare = errors.New("liaison share is not configured")
	// ErrJobFailed is returned when a controller job ends in a failed state.
	ErrJobFailed = errors.New("iDRAC job failed")
	// ErrNoProfile is returned when an export left no usable profile on the
	// share, usually because share_mnt is not where share_name is mounted.
	ErrNoProfile = errors.New("exported profile not found on share")
)

// ApplyResult is the controller's answer to an applied change set.
type ApplyResult struct {
	JobID   string `json:"JobID,omitempty" yaml:"JobID,omitempty"`
	Status  string `json:"Status" yaml:"Status"`
	Message string `json:"Message,omitempty" yaml:"Message,omitempty"`
}

// Succeeded reports whether the controller accepted the change set. A result
// without a status counts as accepted.
func (r ApplyResult) Succeeded() bool {
	return r.Status == "" || r.Status == StatusSuccess
}

// ConfigManager is the controller-side configuration object a reconciliation
// works against.
type ConfigManager interface {
	// LiaisonShare returns the staging share, or nil when none is set.
	LiaisonShare() *sharemanager.Share

	// SetLiaisonShare validates and records the staging share.
	SetLiaisonShare(ctx context.Context, share *sharemanager.Share) error

	// Snapshot returns the controller's current configuration.
	Snapshot(ctx context.Context) (*SystemConfiguration, error)

	// Apply commits changes to the controller in one import.
	Apply(ctx context.Context, changes usermanager.ChangeSet) (ApplyResult, error)

	// Reject discards changes without contacting the controller.
	Reject(ctx context.Context, changes usermanager.ChangeSet) error
}
