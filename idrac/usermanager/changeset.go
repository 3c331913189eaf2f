package usermanager

import (
	"fmt"
	"strings"
)

// UserPatch lists the attributes of one user slot that have to change. Nil
// fields are left alone.
type UserPatch struct {
	Index     int
	Username  *string
	Password  *string
	Privilege *Privilege
	Enabled   *bool
	// Remove clears the slot. The other fields are ignored.
	Remove bool
}

func (p *UserPatch) empty() bool {
	return !p.Remove && p.Username == nil && p.Password == nil && p.Privilege == nil && p.Enabled == nil
}

func (p UserPatch) String() string {
	if p.Remove {
		return fmt.Sprintf("Users.%d: remove", p.Index)
	}
	var parts []string
	if p.Username != nil {
		parts = append(parts, "UserName="+*p.Username)
	}
	if p.Password != nil {
		parts = append(parts, "Password=******")
	}
	if p.Privilege != nil {
		parts = append(parts, "Privilege="+p.Privilege.String())
	}
	if p.Enabled != nil {
		parts = append(parts, fmt.Sprintf("Enable=%t", *p.Enabled))
	}
	return fmt.Sprintf("Users.%d: %s", p.Index, strings.Join(parts, ", "))
}

// ChangeSet is the complete set of user changes submitted to the controller
// in one import.
type ChangeSet struct {
	Patches []UserPatch
}

// Empty reports whether applying the change set would change nothing.
func (c ChangeSet) Empty() bool {
	for i := range c.Patches {
		if !c.Patches[i].empty() {
			return false
		}
	}
	return true
}

// Secrets returns the passwords carried by the change set.
func (c ChangeSet) Secrets() []string {
	var secrets []string
	for _, p := range c.Patches {
		if p.Password != nil && *p.Password != "" {
			secrets = append(secrets, *p.Password)
		}
	}
	return secrets
}

func (c ChangeSet) String() string {
	parts := make([]string, 0, len(c.Patches))
	for _, p := range c.Patches {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, "; ")
}
