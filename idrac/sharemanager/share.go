package sharemanager

import (
	"errors"
	"fmt"
	"strings"
)

// ShareType is the protocol of a network share.
type ShareType string

const (
	CIFS ShareType = "CIFS"
	NFS  ShareType = "NFS"
)

// ShareCredentials authenticate the iDRAC against a CIFS share. The user is
// usually given as user@domain.
type ShareCredentials struct {
	User     string
	Password string
}

// Share describes the network share the iDRAC uses as a liaison area to
// exchange configuration profiles, together with the local path where the
// same share is mounted on this machine.
type Share struct {
	// Name is the share as the iDRAC sees it: \\server\share or
	// //server/share for CIFS, server:/export for NFS.
	Name      string
	MountPath string
	IsFolder  bool
	ShareCredentials
}

// NewShare returns a folder share with the given credentials.
func NewShare(name, mountPath string, creds ShareCredentials) *Share {
	return &Share{
		Name:             name,
		MountPath:        mountPath,
		IsFolder:         true,
		ShareCredentials: creds,
	}
}

// Type detects the share protocol from its name.
func (s *Share) Type() ShareType {
	if strings.HasPrefix(s.Name, `\\`) || strings.HasPrefix(s.Name, "//") {
		return CIFS
	}
	return NFS
}

// Validate checks that the descriptor is usable for racadm staging.
func (s *Share) Validate() error {
	var errs []string
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, "share name is empty")
	} else if s.Type() == NFS && !strings.Contains(s.Name, ":/") {
		errs = append(errs, fmt.Sprintf("share %q is neither a CIFS path nor an NFS server:/export", s.Name))
	}
	if strings.TrimSpace(s.MountPath) == "" {
		errs = append(errs, "share mount path is empty")
	}
	if !s.IsFolder {
		errs = append(errs, "share must be a folder")
	}
	if len(errs) > 0 {
		return errors.New("invalid network share: " + strings.Join(errs, ", "))
	}
	return nil
}

// RacadmArgs returns the -l/-u/-p arguments racadm takes for a share.
// Credentials are only passed for CIFS.
func (s *Share) RacadmArgs() []string {
	args := []string{"-l", s.Name}
	if s.Type() == CIFS {
		args = append(args, "-u", s.User, "-p", s.Password)
	}
	return args
}

// Secrets lists values that must not be logged.
func (s *Share) Secrets() []string {
	if s.Password == "" {
		return nil
	}
	return []string{s.Password}
}

func (s *Share) String() string {
	return fmt.Sprintf("%s share %s mounted at %s", s.Type(), s.Name, s.MountPath)
}
