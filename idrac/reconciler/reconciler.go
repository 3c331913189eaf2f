// Package reconciler drives one iDRAC local user towards a desired state.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/steelcutops/idracuser/idrac/configmanager"
	"github.com/steelcutops/idracuser/idrac/sharemanager"
	"github.com/steelcutops/idracuser/idrac/usermanager"
	"github.com/steelcutops/idracuser/logger"
)

const (
	MsgDependencyMissing = "required library missing: racadm configuration backend is not available"
	MsgInvalidName       = "Invalid user name provided"
	MsgShareSetup        = "Failed to setup local mount point for network share"
)

// State is the desired state of the user account.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
	StateEnable  State = "enable"
	StateDisable State = "disable"
)

// StateChoices are the accepted state values.
var StateChoices = []string{string(StatePresent), string(StateAbsent), string(StateEnable), string(StateDisable)}

// ParseState validates s. An empty value means present.
func ParseState(s string) (State, error) {
	if s == "" {
		return StatePresent, nil
	}
	for _, choice := range StateChoices {
		if s == choice {
			return State(s), nil
		}
	}
	return "", fmt.Errorf("invalid state %q, must be one of %s", s, strings.Join(StateChoices, ", "))
}

// DesiredUser is the desired user record.
type DesiredUser struct {
	Name     string
	Password string
	// Privilege is nil when none was requested.
	Privilege *usermanager.Privilege
	State     State
	CheckMode bool
	Share     *sharemanager.Share
}

type Reconciler struct {
	// Config is nil when no configuration backend could be set up.
	Config configmanager.ConfigManager
	Logger logger.Logger
}

func New(config configmanager.ConfigManager, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Discard()
	}
	return &Reconciler{Config: config, Logger: log}
}

// Reconcile brings the controller's account to the desired state. It never
// returns an error; failures are reported through Result.
func (r *Reconciler) Reconcile(ctx context.Context, desired DesiredUser) Result {
	log := r.Logger
	if log == nil {
		log = logger.Discard()
	}

	if r.Config == nil {
		return failure(DependencyMissing, MsgDependencyMissing)
	}

	name := strings.TrimSpace(desired.Name)
	if name == "" {
		return failure(InvalidInput, MsgInvalidName)
	}
	log = log.With("user", name, "state", string(desired.State))

	if r.Config.LiaisonShare() == nil {
		if err := r.Config.SetLiaisonShare(ctx, desired.Share); err != nil {
			log.Error("Failed to set up liaison share", "error", err)
			return failure(PreconditionFailed, MsgShareSetup)
		}
	}

	snapshot, err := r.Config.Snapshot(ctx)
	if err != nil {
		return errorResult(err)
	}
	if snapshot == nil {
		return errorResult(errors.New("controller returned no configuration"))
	}
	user, exists, err := snapshot.FindFirst(name)
	if err != nil {
		return errorResult(err)
	}
	users, err := snapshot.Users()
	if err != nil {
		return errorResult(err)
	}
	staged := usermanager.NewStagedUserManager(users)

	switch desired.State {
	case StatePresent:
		if exists {
			target := user
			target.Enabled = true
			if desired.Privilege != nil {
				target.Privilege = *desired.Privilege
			}
			target.Password = desired.Password
			err = staged.ModifyUser(target)
		} else {
			privilege := usermanager.NoAccess
			if desired.Privilege != nil {
				privilege = *desired.Privilege
			}
			err = staged.AddUser(usermanager.User{
				Username:  name,
				Password:  desired.Password,
				Privilege: privilege,
				Enabled:   true,
			})
		}

	case StateEnable, StateDisable:
		if !exists {
			return notFound(name)
		}
		target := user
		target.Enabled = desired.State == StateEnable
		target.Password = ""
		err = staged.ModifyUser(target)

	case StateAbsent:
		if !exists {
			return notFound(name)
		}
		err = staged.DeleteUser(user.Username)

	default:
		log.Warn("Unknown state, nothing to do")
	}
	if err != nil {
		return errorResult(err)
	}

	changes := staged.Changes()
	result := Result{Changed: staged.IsChanged(), Outcome: Success}

	if desired.CheckMode {
		if err := r.Config.Reject(ctx, changes); err != nil {
			return errorResult(err)
		}
		result.Msg = checkModeMessage(changes)
		log.Info("Check mode, changes rejected", "changed", result.Changed)
		return result
	}

	applied, err := r.Config.Apply(ctx, changes)
	if err != nil {
		return errorResult(err)
	}
	result.Apply = &applied
	result.Msg = applied

	if !applied.Succeeded() {
		log.Error("Controller rejected the changes", "status", applied.Status, "message", applied.Message)
		result.Failed = true
		result.Changed = false
		result.Outcome = ApplyRejected
		return result
	}

	log.Info("User reconciled", "changed", result.Changed)
	return result
}

func notFound(name string) Result {
	return failure(NotFound, fmt.Sprintf("User: %s %v", name, usermanager.ErrUserNotFound))
}

func checkModeMessage(changes usermanager.ChangeSet) string {
	if changes.Empty() {
		return "No changes found to commit"
	}
	return "Changes found to commit: " + changes.String()
}
