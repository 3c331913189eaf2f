package usermanager

import (
	"errors"
	"strings"
)

const (
	// FirstUserSlot is the lowest iDRAC user index that can hold an account.
	// Index 1 is reserved by the controller.
	FirstUserSlot = 2
	// LastUserSlot is the highest iDRAC local user index.
	LastUserSlot = 16
)

var (
	// ErrUserNotFound and ErrUserExists read as a suffix: "User: bob does
	// not exist".
	ErrUserNotFound = errors.New("does not exist")
	ErrUserExists   = errors.New("already exists")
	ErrNoFreeSlot   = errors.New("no free iDRAC user slot")
	ErrInvalidName  = errors.New("invalid user name")
)

// User represents a local iDRAC user account, one per user slot.
type User struct {
	Index     int       // iDRAC user slot, 2..16
	Username  string    // empty for a free slot
	Password  string    // write only, never read back from the controller
	Privilege Privilege // role bitmask
	Enabled   bool
}

// Empty reports whether the slot holds no account.
func (u User) Empty() bool {
	return u.Username == ""
}

// Matches reports whether the account answers to name. Names are compared
// case-insensitively since new accounts are stored lower-cased.
func (u User) Matches(name string) bool {
	return !u.Empty() && strings.EqualFold(u.Username, name)
}

// UserManager encompasses operations related to user management.
type UserManager interface {
	// Fetches the details of a user based on username
	GetUser(username string) (User, error)

	// Adds a new user
	AddUser(user User) error

	// Modifies an existing user
	ModifyUser(user User) error

	// Deletes a user based on username
	DeleteUser(username string) error
}
