package usermanager

import (
	"fmt"
	"strings"
)

// StagedUserManager works on a snapshot of the controller's user table and
// records every mutation as a UserPatch instead of sending it. The collected
// ChangeSet is applied, or rejected, in one step by the configuration
// manager.
type StagedUserManager struct {
	original []User
	current  []User
	patches  map[int]*UserPatch
	order    []int
}

var _ UserManager = (*StagedUserManager)(nil)

// NewStagedUserManager returns a manager over a copy of users.
func NewStagedUserManager(users []User) *StagedUserManager {
	s := &StagedUserManager{original: append([]User(nil), users...)}
	s.Reject()
	return s
}

func (s *StagedUserManager) find(username string) int {
	for i, u := range s.current {
		if u.Matches(username) {
			return i
		}
	}
	return -1
}

func (s *StagedUserManager) findIndex(index int) int {
	for i, u := range s.current {
		if u.Index == index {
			return i
		}
	}
	return -1
}

func (s *StagedUserManager) patch(index int) *UserPatch {
	if p, ok := s.patches[index]; ok {
		return p
	}
	p := &UserPatch{Index: index}
	s.patches[index] = p
	s.order = append(s.order, index)
	return p
}

// GetUser returns the first account matching username.
func (s *StagedUserManager) GetUser(username string) (User, error) {
	i := s.find(username)
	if i < 0 {
		return User{}, fmt.Errorf("User: %s %w", username, ErrUserNotFound)
	}
	return s.current[i], nil
}

// AddUser stages a new account in user.Index, or in the first free slot when
// no index is given. The name is stored lower-cased.
func (s *StagedUserManager) AddUser(user User) error {
	name := strings.ToLower(strings.TrimSpace(user.Username))
	if name == "" {
		return ErrInvalidName
	}
	if s.find(name) >= 0 {
		return fmt.Errorf("User: %s %w", name, ErrUserExists)
	}

	slot := -1
	if user.Index != 0 {
		if i := s.findIndex(user.Index); i >= 0 && s.current[i].Empty() {
			slot = i
		}
	} else {
		for i, u := range s.current {
			if u.Empty() && u.Index >= FirstUserSlot && u.Index <= LastUserSlot {
				slot = i
				break
			}
		}
	}
	if slot < 0 {
		return ErrNoFreeSlot
	}

	index := s.current[slot].Index
	p := s.patch(index)
	*p = UserPatch{Index: index}

	p.Username = &name
	if user.Password != "" {
		password := user.Password
		p.Password = &password
	}
	privilege := user.Privilege
	p.Privilege = &privilege
	enabled := user.Enabled
	p.Enabled = &enabled

	user.Index = index
	user.Username = name
	s.current[slot] = user
	return nil
}

// ModifyUser stages the attributes of user that differ from the current
// account. An empty password means "leave the password alone"; a non-empty
// one is always written since passwords cannot be read back.
func (s *StagedUserManager) ModifyUser(user User) error {
	var i int
	if user.Index != 0 {
		i = s.findIndex(user.Index)
	} else {
		i = s.find(user.Username)
	}
	if i < 0 || s.current[i].Empty() {
		return fmt.Errorf("User: %s %w", user.Username, ErrUserNotFound)
	}

	cur := &s.current[i]
	if cur.Enabled != user.Enabled {
		enabled := user.Enabled
		s.patch(cur.Index).Enabled = &enabled
		cur.Enabled = enabled
	}
	if cur.Privilege != user.Privilege {
		privilege := user.Privilege
		s.patch(cur.Index).Privilege = &privilege
		cur.Privilege = privilege
	}
	if user.Password != "" {
		password := user.Password
		s.patch(cur.Index).Password = &password
	}
	return nil
}

// DeleteUser stages clearing the slot held by username.
func (s *StagedUserManager) DeleteUser(username string) error {
	i := s.find(username)
	if i < 0 {
		return fmt.Errorf("User: %s %w", username, ErrUserNotFound)
	}

	index := s.current[i].Index
	p := s.patch(index)
	*p = UserPatch{Index: index, Remove: true}
	s.current[i] = User{Index: index}
	return nil
}

// IsChanged reports whether any change is pending.
func (s *StagedUserManager) IsChanged() bool {
	return !s.Changes().Empty()
}

// Changes returns the pending patches in the order they were first staged.
func (s *StagedUserManager) Changes() ChangeSet {
	var cs ChangeSet
	for _, index := range s.order {
		if p := s.patches[index]; !p.empty() {
			cs.Patches = append(cs.Patches, *p)
		}
	}
	return cs
}

// Reject drops every staged change.
func (s *StagedUserManager) Reject() {
	s.current = append([]User(nil), s.original...)
	s.patches = make(map[int]*UserPatch)
	s.order = nil
}
