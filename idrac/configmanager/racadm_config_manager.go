package configmanager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	cm "github.com/steelcutops/idracuser/idrac/commandmanager"
	"github.com/steelcutops/idracuser/idrac/sharemanager"
	"github.com/steelcutops/idracuser/idrac/usermanager"
	"github.com/steelcutops/idracuser/logger"
)

// RacadmConfigManager exchanges Server Configuration Profiles with the
// controller through the liaison share: the controller exports into the
// share, the profile is read from the local mount, and change sets are
// written back to the mount for the controller to import.
type RacadmConfigManager struct {
	commandManager cm.CommandManager
	fs             afero.Fs
	log            logger.Logger
	// PollInterval is how often job status is queried.
	PollInterval time.Duration

	mu       sync.Mutex
	share    *sharemanager.Share
	files    sharemanager.ShareManager
	snapshot *SystemConfiguration
}

// NewRacadmConfigManager returns a manager running racadm through
// commandManager and reading the share mount through fs.
func NewRacadmConfigManager(commandManager cm.CommandManager, fs afero.Fs, log logger.Logger) *RacadmConfigManager {
	if log == nil {
		log = logger.Discard()
	}
	return &RacadmConfigManager{
		commandManager: commandManager,
		fs:             fs,
		log:            log,
		PollInterval:   defaultPollInterval,
	}
}

func (r *RacadmConfigManager) LiaisonShare() *sharemanager.Share {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.share
}

func (r *RacadmConfigManager) SetLiaisonShare(ctx context.Context, share *sharemanager.Share) error {
	if share == nil {
		return ErrNoShare
	}
	if err := share.Validate(); err != nil {
		return err
	}

	files := sharemanager.NewShareManager(r.fs, share)
	if err := files.CheckMount(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.share = share
	r.files = files
	r.snapshot = nil

	r.log.Debug("Liaison share configured", "share", share.String())
	return nil
}

func (r *RacadmConfigManager) staging() (*sharemanager.Share, sharemanager.ShareManager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.share == nil {
		return nil, nil, ErrNoShare
	}
	return r.share, r.files, nil
}

// Snapshot exports the iDRAC component into the share and parses it. The
// result is cached until the next Apply or Reject.
func (r *RacadmConfigManager) Snapshot(ctx context.Context) (*SystemConfiguration, error) {
	r.mu.Lock()
	cached := r.snapshot
	r.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	share, files, err := r.staging()
	if err != nil {
		return nil, err
	}

	name := sharemanager.StagingFileName("export", "xml")
	defer r.cleanup(files, name)

	args := append([]string{"-t", "xml", "-f", name}, share.RacadmArgs()...)
	args = append(args, "-c", IDRACComponent)

	r.log.Debug("Exporting system configuration", "file", name)
	result, err := r.commandManager.Run(ctx, cm.CommandConfig{
		Command: "get",
		Args:    args,
		Secrets: share.Secrets(),
	})
	if err != nil {
		return nil, fmt.Errorf("exporting system configuration: %w", err)
	}

	if jobID, ok := ParseJobID(result.STDOUT); ok {
		if _, err := r.waiter().Wait(ctx, jobID); err != nil {
			return nil, fmt.Errorf("exporting system configuration: %w", err)
		}
	}

	if err := checkExport(files, name); err != nil {
		return nil, err
	}

	data, err := files.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading exported profile %s from %s: %w", name, share.MountPath, err)
	}

	sc, err := ParseSystemConfiguration(data)
	if err != nil {
		return nil, err
	}
	r.log.Debug("System configuration exported", "serviceTag", sc.ServiceTag, "model", sc.Model)

	r.mu.Lock()
	r.snapshot = sc
	r.mu.Unlock()
	return sc, nil
}

// Apply imports changes. A job that ends unsuccessfully is reported through
// the returned ApplyResult, not as an error.
func (r *RacadmConfigManager) Apply(ctx context.Context, changes usermanager.ChangeSet) (ApplyResult, error) {
	defer r.invalidate()

	if changes.Empty() {
		return ApplyResult{Status: StatusSuccess, Message: "No changes to apply"}, nil
	}

	share, files, err := r.staging()
	if err != nil {
		return ApplyResult{}, err
	}

	profile, err := RenderChangeSet(changes)
	if err != nil {
		return ApplyResult{}, err
	}

	name := sharemanager.StagingFileName("import", "xml")
	if err := files.WriteFile(name, profile); err != nil {
		return ApplyResult{}, fmt.Errorf("staging import profile in %s: %w", share.MountPath, err)
	}
	defer r.cleanup(files, name)

	r.log.Info("Importing user changes", "changes", changes.String())
	result, err := r.commandManager.Run(ctx, cm.CommandConfig{
		Command: "set",
		Args:    append([]string{"-t", "xml", "-f", name}, share.RacadmArgs()...),
		Secrets: append(share.Secrets(), changes.Secrets()...),
	})
	if err != nil {
		return ApplyResult{}, fmt.Errorf("importing system configuration: %w", err)
	}

	jobID, ok := ParseJobID(result.STDOUT)
	if !ok {
		return ApplyResult{Status: StatusSuccess, Message: firstNonEmptyLine(result.STDOUT)}, nil
	}

	job, err := r.waiter().Wait(ctx, jobID)
	switch {
	case errors.Is(err, ErrJobFailed):
		r.log.Warn("Import job failed", "job", jobID, "status", job.Status, "message", job.Message)
		return ApplyResult{JobID: jobID, Status: StatusFailed, Message: job.Message}, nil
	case err != nil:
		return ApplyResult{}, fmt.Errorf("importing system configuration: %w", err)
	}

	return ApplyResult{JobID: jobID, Status: StatusSuccess, Message: job.Message}, nil
}

// Reject drops changes. Nothing was sent to the controller, so only the
// cached snapshot is discarded.
func (r *RacadmConfigManager) Reject(ctx context.Context, changes usermanager.ChangeSet) error {
	r.invalidate()
	if !changes.Empty() {
		r.log.Info("Rejected user changes", "changes", changes.String())
	}
	return nil
}

func (r *RacadmConfigManager) invalidate() {
	r.mu.Lock()
	r.snapshot = nil
	r.mu.Unlock()
}

func (r *RacadmConfigManager) waiter() *JobWaiter {
	return &JobWaiter{CommandManager: r.commandManager, Interval: r.PollInterval}
}

func (r *RacadmConfigManager) cleanup(files sharemanager.ShareManager, name string) {
	if err := files.DeleteFile(name); err != nil {
		r.log.Warn("Failed to remove staged profile", "file", name, "error", err)
	}
}

// checkExport makes sure the controller left a non-empty profile on the share.
func checkExport(files sharemanager.ShareManager, name string) error {
	exists, err := files.FileExists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s is missing from %s", ErrNoProfile, name, files.Share().MountPath)
	}

	attrs, err := files.GetFileAttributes(name)
	if err != nil {
		return err
	}
	if attrs.Size == 0 {
		return fmt.Errorf("%w: %s is empty", ErrNoProfile, attrs.Path)
	}
	return nil
}

func firstNonEmptyLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
