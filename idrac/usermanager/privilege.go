package usermanager

import (
	"fmt"
	"strconv"
	"strings"
)

// Privilege is the iDRAC user privilege bitmask.
type Privilege int

const (
	NoAccess      Privilege = 0
	ReadOnly      Privilege = 1
	Operator      Privilege = 499
	Administrator Privilege = 511
)

var privilegeNames = map[Privilege]string{
	NoAccess:      "NoAccess",
	ReadOnly:      "ReadOnly",
	Operator:      "Operator",
	Administrator: "Administrator",
}

// PrivilegeChoices are the role names accepted on input.
var PrivilegeChoices = []string{"Administrator", "Operator", "ReadOnly", "NoAccess"}

// ParsePrivilege accepts a role name (case-insensitive).
func ParsePrivilege(s string) (Privilege, error) {
	for p, name := range privilegeNames {
		if strings.EqualFold(name, s) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("invalid privilege %q, must be one of %s", s, strings.Join(PrivilegeChoices, ", "))
}

// ParsePrivilegeValue parses the value the controller reports, either decimal
// ("511") or hex ("0x1ff").
func ParsePrivilegeValue(s string) (Privilege, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoAccess, nil
	}
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid privilege value %q: %w", s, err)
	}
	return Privilege(v), nil
}

// Value is the encoding used in configuration profiles.
func (p Privilege) Value() string {
	return strconv.Itoa(int(p))
}

func (p Privilege) String() string {
	if name, ok := privilegeNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Custom(0x%x)", int(p))
}
