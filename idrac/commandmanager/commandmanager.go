package commandmanager

import (
	"context"
	"time"
)

// Mode selects how racadm reaches the controller.
type Mode string

const (
	// ModeSSH runs racadm inside an SSH session on the iDRAC itself.
	ModeSSH Mode = "ssh"
	// ModeLocal runs the locally installed remote racadm binary with -r.
	ModeLocal Mode = "local"
)

// ParseMode converts a flag value into a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeSSH, "":
		return ModeSSH, true
	case ModeLocal:
		return ModeLocal, true
	}
	return "", false
}

// DefaultPort returns the port racadm uses for the mode when none is given.
func (m Mode) DefaultPort() int {
	if m == ModeLocal {
		return 443
	}
	return 22
}

// CommandConfig describes one racadm invocation, e.g. Command "get" with
// Args {"iDRAC.Users.2.UserName"}.
type CommandConfig struct {
	Command string
	Args    []string
	// Secrets are redacted from anything logged or returned as an error.
	Secrets []string
}

// CommandResult encapsulates the results from a command execution.
type CommandResult struct {
	Command   string
	STDOUT    string
	STDERR    string
	ExitCode  int
	Duration  time.Duration
	Timestamp time.Time
}

// Credentials are the iDRAC admin credentials racadm authenticates with.
type Credentials struct {
	User          string
	Password      string
	KeyPassphrase string
}

// CommandManager provides methods to execute racadm, both through the local
// remote-racadm binary and over SSH.
type CommandManager interface {
	RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error)
	RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error)
	Run(ctx context.Context, config CommandConfig) (CommandResult, error)
	Close() error
}
