package configmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobID(t *testing.T) {
	id, ok := ParseJobID("RAC977: Import configuration XML file operation job created.\nJob ID = JID_880123456789\n")
	assert.True(t, ok)
	assert.Equal(t, "JID_880123456789", id)

	_, ok = ParseJobID("RAC1017: Successfully exported.")
	assert.False(t, ok)
}

func TestParseJob(t *testing.T) {
	job, err := ParseJob(jobOutput("Completed", "SYS053: Successfully imported and applied Server Configuration Profile."))
	require.NoError(t, err)

	assert.Equal(t, "JID_900000000001", job.ID)
	assert.Equal(t, "Configure: Import Server Configuration Profile", job.Name)
	assert.Equal(t, "SYS053: Successfully imported and applied Server Configuration Profile.", job.Message)
	assert.Equal(t, 100, job.PercentComplete)
	assert.True(t, job.Done())
	assert.True(t, job.Succeeded())

	_, err = ParseJob("ERROR: SWC0282 : Invalid job id")
	assert.Error(t, err)
}

func TestJobDone(t *testing.T) {
	for status, done := range map[string]bool{
		"Running":               false,
		"Scheduled":             false,
		"Completed":             true,
		"Completed with Errors": true,
		"Failed":                true,
	} {
		assert.Equal(t, done, Job{Status: status}.Done(), status)
	}
	assert.False(t, Job{Status: "Completed with Errors"}.Succeeded())
}

func TestJobWaiterWait(t *testing.T) {
	fake := &fakeRacadm{jobs: []string{
		"Status=Running\nPercent Complete=[20]",
		jobOutput("Completed", "SYS053: done"),
	}}
	waiter := &JobWaiter{CommandManager: fake, Interval: time.Millisecond}

	job, err := waiter.Wait(context.Background(), "JID_900000000001")
	require.NoError(t, err)
	assert.Equal(t, "SYS053: done", job.Message)
	assert.Equal(t, []string{
		"jobqueue view -i JID_900000000001",
		"jobqueue view -i JID_900000000001",
	}, fake.commands())
}

func TestJobWaiterFailedJob(t *testing.T) {
	fake := &fakeRacadm{jobs: []string{jobOutput("Failed", "SYS055: Unable to apply")}}
	waiter := &JobWaiter{CommandManager: fake, Interval: time.Millisecond}

	job, err := waiter.Wait(context.Background(), "JID_900000000001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobFailed))
	assert.Equal(t, "SYS055: Unable to apply", job.Message)
}

func TestJobWaiterContextDone(t *testing.T) {
	fake := &fakeRacadm{jobs: []string{"Job ID=JID_1\nStatus=Running"}}
	waiter := &JobWaiter{CommandManager: fake, Interval: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := waiter.Wait(ctx, "JID_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestJobWaiterQueryError(t *testing.T) {
	fake := &fakeRacadm{runErr: errors.New("connection reset")}
	waiter := &JobWaiter{CommandManager: fake}

	_, err := waiter.Wait(context.Background(), "JID_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
