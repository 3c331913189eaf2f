package configmanager

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	cm "github.com/steelcutops/idracuser/idrac/commandmanager"
)

const defaultPollInterval = 5 * time.Second

var jobIDPattern = regexp.MustCompile(`\bJID_[0-9]+\b`)

// Job is an entry of the iDRAC job queue as printed by
// "racadm jobqueue view -i <JID>".
type Job struct {
	ID              string
	Name            string
	Status          string
	Message         string
	PercentComplete int
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool {
	switch strings.ToLower(j.Status) {
	case "completed", "completed with errors", "completedwitherrors", "failed", "cancelled", "canceled":
		return true
	}
	return false
}

// Succeeded reports whether the job completed without errors.
func (j Job) Succeeded() bool {
	return strings.EqualFold(j.Status, "Completed")
}

// ParseJobID extracts the job id racadm prints when it starts an
// asynchronous operation.
func ParseJobID(output string) (string, bool) {
	id := jobIDPattern.FindString(output)
	return id, id != ""
}

// ParseJob parses "racadm jobqueue view -i" output:
//
//	[Job ID=JID_123456789012]
//	Job Name=Configure: Import Server Configuration Profile
//	Status=Completed
//	Message=[SYS053: Successfully imported and applied Server Configuration Profile.]
//	Percent Complete=[100]
func ParseJob(output string) (Job, error) {
	var job Job
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			line = line[1 : len(line)-1]
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(value), "["), "]")

		switch strings.TrimSpace(key) {
		case "Job ID":
			job.ID = value
		case "Job Name":
			job.Name = value
		case "Status":
			job.Status = value
		case "Message":
			job.Message = value
		case "Percent Complete":
			job.PercentComplete, _ = strconv.Atoi(value)
		}
	}
	if job.Status == "" {
		return job, errors.New("job status not found in racadm output")
	}
	return job, nil
}

// JobWaiter polls the job queue until a job is finished.
type JobWaiter struct {
	CommandManager cm.CommandManager
	Interval       time.Duration
}

// Wait returns the final state of jobID. It gives up when ctx is done. A job
// that ends in a non-successful state is returned together with an error
// wrapping ErrJobFailed.
func (w *JobWaiter) Wait(ctx context.Context, jobID string) (Job, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := w.CommandManager.Run(ctx, cm.CommandConfig{
			Command: "jobqueue",
			Args:    []string{"view", "-i", jobID},
		})
		if err != nil {
			return Job{}, fmt.Errorf("querying job %s: %w", jobID, err)
		}

		job, err := ParseJob(result.STDOUT)
		if err != nil {
			return Job{}, fmt.Errorf("job %s: %w", jobID, err)
		}
		if job.ID == "" {
			job.ID = jobID
		}
		if job.Done() {
			if !job.Succeeded() {
				return job, fmt.Errorf("%w: %s %s: %s", ErrJobFailed, jobID, job.Status, job.Message)
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, fmt.Errorf("waiting for job %s (%s, %d%%): %w", jobID, job.Status, job.PercentComplete, ctx.Err())
		case <-ticker.C:
		}
	}
}
