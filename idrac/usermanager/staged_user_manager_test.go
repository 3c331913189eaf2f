package usermanager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slots(users ...User) []User {
	table := make([]User, 0, LastUserSlot-FirstUserSlot+1)
	for i := FirstUserSlot; i <= LastUserSlot; i++ {
		table = append(table, User{Index: i})
	}
	for _, u := range users {
		table[u.Index-FirstUserSlot] = u
	}
	return table
}

func TestGetUser(t *testing.T) {
	manager := NewStagedUserManager(slots(
		User{Index: 2, Username: "root", Privilege: Administrator, Enabled: true},
		User{Index: 4, Username: "alice", Privilege: ReadOnly},
	))

	u, err := manager.GetUser("ALICE")
	require.NoError(t, err)
	assert.Equal(t, 4, u.Index)

	_, err = manager.GetUser("bob")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUserNotFound))
	assert.Equal(t, "User: bob does not exist", err.Error())
}

func TestAddUser(t *testing.T) {
	manager := NewStagedUserManager(slots(User{Index: 2, Username: "root", Enabled: true}))

	err := manager.AddUser(User{Username: "Alice", Password: "secret1", Privilege: Operator, Enabled: true})
	require.NoError(t, err)

	u, err := manager.GetUser("alice")
	require.NoError(t, err)
	assert.Equal(t, 3, u.Index)
	assert.Equal(t, "alice", u.Username)

	changes := manager.Changes()
	require.Len(t, changes.Patches, 1)
	p := changes.Patches[0]
	assert.Equal(t, 3, p.Index)
	assert.Equal(t, "alice", *p.Username)
	assert.Equal(t, "secret1", *p.Password)
	assert.Equal(t, Operator, *p.Privilege)
	assert.True(t, *p.Enabled)
	assert.Equal(t, []string{"secret1"}, changes.Secrets())
	assert.NotContains(t, changes.String(), "secret1")

	assert.True(t, errors.Is(manager.AddUser(User{Username: "alice"}), ErrUserExists))
	assert.True(t, errors.Is(manager.AddUser(User{Username: "  "}), ErrInvalidName))
}

func TestAddUserNoFreeSlot(t *testing.T) {
	var users []User
	for i := FirstUserSlot; i <= LastUserSlot; i++ {
		users = append(users, User{Index: i, Username: "user" + string(rune('a'+i))})
	}
	manager := NewStagedUserManager(users)

	err := manager.AddUser(User{Username: "late"})
	assert.True(t, errors.Is(err, ErrNoFreeSlot))
	assert.False(t, manager.IsChanged())
}

func TestModifyUserOnlyDiffs(t *testing.T) {
	manager := NewStagedUserManager(slots(User{Index: 5, Username: "alice", Privilege: ReadOnly}))

	require.NoError(t, manager.ModifyUser(User{Username: "alice", Privilege: ReadOnly, Enabled: true}))

	changes := manager.Changes()
	require.Len(t, changes.Patches, 1)
	p := changes.Patches[0]
	assert.Equal(t, 5, p.Index)
	require.NotNil(t, p.Enabled)
	assert.True(t, *p.Enabled)
	assert.Nil(t, p.Privilege)
	assert.Nil(t, p.Password)
	assert.Nil(t, p.Username)
}

func TestModifyUserNoChange(t *testing.T) {
	manager := NewStagedUserManager(slots(User{Index: 5, Username: "alice", Privilege: ReadOnly, Enabled: true}))

	require.NoError(t, manager.ModifyUser(User{Username: "alice", Privilege: ReadOnly, Enabled: true}))
	assert.False(t, manager.IsChanged())
	assert.True(t, manager.Changes().Empty())
}

func TestModifyUserMissing(t *testing.T) {
	manager := NewStagedUserManager(slots())
	err := manager.ModifyUser(User{Username: "ghost", Enabled: true})
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestDeleteUser(t *testing.T) {
	manager := NewStagedUserManager(slots(User{Index: 3, Username: "carol", Privilege: Operator, Enabled: true}))

	require.NoError(t, manager.ModifyUser(User{Username: "carol", Privilege: Administrator, Enabled: true}))
	require.NoError(t, manager.DeleteUser("carol"))

	changes := manager.Changes()
	require.Len(t, changes.Patches, 1)
	assert.Equal(t, UserPatch{Index: 3, Remove: true}, changes.Patches[0])

	_, err := manager.GetUser("carol")
	assert.True(t, errors.Is(err, ErrUserNotFound))

	assert.True(t, errors.Is(manager.DeleteUser("carol"), ErrUserNotFound))
}

func TestReject(t *testing.T) {
	manager := NewStagedUserManager(slots(User{Index: 3, Username: "carol", Enabled: true}))
	require.NoError(t, manager.DeleteUser("carol"))
	require.True(t, manager.IsChanged())

	manager.Reject()
	assert.False(t, manager.IsChanged())
	_, err := manager.GetUser("carol")
	assert.NoError(t, err)
}

func TestParsePrivilege(t *testing.T) {
	p, err := ParsePrivilege("operator")
	require.NoError(t, err)
	assert.Equal(t, Operator, p)

	_, err = ParsePrivilege("root")
	assert.Error(t, err)

	p, err = ParsePrivilegeValue("0x1ff")
	require.NoError(t, err)
	assert.Equal(t, Administrator, p)

	p, err = ParsePrivilegeValue("499")
	require.NoError(t, err)
	assert.Equal(t, "Operator", p.String())

	p, err = ParsePrivilegeValue("")
	require.NoError(t, err)
	assert.Equal(t, NoAccess, p)

	assert.Equal(t, "Custom(0x3)", Privilege(3).String())
	assert.Equal(t, "511", Administrator.Value())
}
