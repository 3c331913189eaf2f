package host

import (
	"github.com/spf13/afero"
	cm "github.com/steelcutops/idracuser/idrac/commandmanager"
	"github.com/steelcutops/idracuser/idrac/configmanager"
	"github.com/steelcutops/idracuser/logger"
)

type HostOption func(*Host)

// WithUser returns a HostOption that sets the iDRAC user for a Host.
func WithUser(user string) HostOption {
	return func(host *Host) {
		host.User = user
	}
}

// WithPassword returns a HostOption that sets the iDRAC password for a Host.
func WithPassword(password string) HostOption {
	return func(host *Host) {
		host.Password = password
	}
}

// WithKeyPassphrase returns a HostOption that sets the key passphrase for a Host.
func WithKeyPassphrase(keyPassphrase string) HostOption {
	return func(host *Host) {
		host.KeyPassphrase = keyPassphrase
	}
}

// WithPort returns a HostOption that overrides the default port of the mode.
func WithPort(port int) HostOption {
	return func(host *Host) {
		host.Port = port
	}
}

func WithMode(mode cm.Mode) HostOption {
	return func(host *Host) {
		host.Mode = mode
	}
}

func WithSSHClient(client cm.SSHDialer) HostOption {
	return func(host *Host) {
		host.SSHClient = client
	}
}

func WithKeyManager(km cm.SSHKeyManager) HostOption {
	return func(host *Host) {
		host.KeyManager = km
	}
}

// WithFs sets the filesystem the share mount is accessed through.
func WithFs(fs afero.Fs) HostOption {
	return func(host *Host) {
		host.Fs = fs
	}
}

func WithLogger(l logger.Logger) HostOption {
	return func(host *Host) {
		host.Logger = l
	}
}

func WithCommandManager(manager cm.CommandManager) HostOption {
	return func(host *Host) {
		host.CommandManager = manager
	}
}

func WithConfigManager(manager configmanager.ConfigManager) HostOption {
	return func(host *Host) {
		host.ConfigManager = manager
	}
}
