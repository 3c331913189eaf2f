package host

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	cm "github.com/steelcutops/idracuser/idrac/commandmanager"
	"github.com/steelcutops/idracuser/idrac/configmanager"
	"github.com/steelcutops/idracuser/logger"
)

// Host is one iDRAC together with the managers used to talk to it.
type Host struct {
	Hostname string
	Port     int
	Mode     cm.Mode
	cm.Credentials

	SSHClient  cm.SSHDialer
	KeyManager cm.SSHKeyManager
	Fs         afero.Fs
	Logger     logger.Logger

	CommandManager cm.CommandManager
	ConfigManager  configmanager.ConfigManager

	// Version is the firmware version reported by Connect.
	Version string
}

// availability is implemented by command managers that can tell up front
// whether their transport is usable.
type availability interface {
	Available() error
}

func NewHost(hostname string, options ...HostOption) (*Host, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return nil, errors.New("hostname is empty")
	}

	h := &Host{Hostname: hostname, Mode: cm.ModeSSH}
	for _, option := range options {
		option(h)
	}

	if h.Port == 0 {
		h.Port = h.Mode.DefaultPort()
	}
	if h.Logger == nil {
		h.Logger = logger.Discard()
	}
	h.Logger = h.Logger.With("host", h.Hostname)
	if h.Fs == nil {
		h.Fs = afero.NewOsFs()
	}

	if h.CommandManager == nil {
		keyManager := h.KeyManager
		if keyManager == nil && h.Mode == cm.ModeSSH {
			keyManager = cm.DefaultKeyManager(h.KeyPassphrase)
		}
		h.CommandManager = &cm.RacadmCommandManager{
			Hostname:    h.Hostname,
			Port:        h.Port,
			Mode:        h.Mode,
			SSHClient:   h.SSHClient,
			KeyManager:  keyManager,
			Logger:      h.Logger,
			Credentials: h.Credentials,
		}
	}

	if h.ConfigManager == nil {
		h.ConfigManager = configmanager.NewRacadmConfigManager(h.CommandManager, h.Fs, h.Logger)
	}

	return h, nil
}

// Available reports whether racadm can be used for this host at all.
func (h *Host) Available() error {
	if a, ok := h.CommandManager.(availability); ok {
		return a.Available()
	}
	return nil
}

// Connect checks that the controller answers and records its firmware
// version.
func (h *Host) Connect(ctx context.Context) error {
	if err := h.Available(); err != nil {
		return err
	}

	result, err := h.CommandManager.Run(ctx, cm.CommandConfig{Command: "getversion"})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", h.Hostname, err)
	}

	h.Version = ParseVersion(result.STDOUT)
	h.Logger.Debug("Connected", "version", h.Version, "mode", string(h.Mode))
	return nil
}

func (h *Host) Close() error {
	if h.CommandManager == nil {
		return nil
	}
	return h.CommandManager.Close()
}

// ParseVersion extracts the iDRAC firmware version from getversion output.
func ParseVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), "iDRAC Version") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
