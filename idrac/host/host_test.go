package host

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	cm "github.com/steelcutops/idracuser/idrac/commandmanager"
	"github.com/steelcutops/idracuser/idrac/configmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCommandManager struct {
	mock.Mock
}

func (m *MockCommandManager) RunLocal(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	args := m.Called(ctx, config)
	return args.Get(0).(cm.CommandResult), args.Error(1)
}

func (m *MockCommandManager) RunRemote(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	args := m.Called(ctx, config)
	return args.Get(0).(cm.CommandResult), args.Error(1)
}

func (m *MockCommandManager) Run(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	args := m.Called(ctx, config)
	return args.Get(0).(cm.CommandResult), args.Error(1)
}

func (m *MockCommandManager) Close() error {
	return m.Called().Error(0)
}

const getversionOutput = `Bios Version                     = 2.12.2

iDRAC Version                    = 6.10.30.00

Lifecycle Controller Version     = 6.10.30.00
`

func TestNewHostDefaults(t *testing.T) {
	h, err := NewHost(" idrac-r740.lab ", WithUser("root"), WithPassword("calvin"), WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)

	assert.Equal(t, "idrac-r740.lab", h.Hostname)
	assert.Equal(t, cm.ModeSSH, h.Mode)
	assert.Equal(t, 22, h.Port)

	racadm, ok := h.CommandManager.(*cm.RacadmCommandManager)
	require.True(t, ok)
	assert.Equal(t, "idrac-r740.lab", racadm.Hostname)
	assert.Equal(t, "root", racadm.User)
	assert.Equal(t, "calvin", racadm.Password)

	_, ok = h.ConfigManager.(*configmanager.RacadmConfigManager)
	assert.True(t, ok)

	// No SSH client was configured.
	assert.Error(t, h.Available())
}

func TestNewHostLocalMode(t *testing.T) {
	h, err := NewHost("10.0.0.5", WithMode(cm.ModeLocal))
	require.NoError(t, err)
	assert.Equal(t, 443, h.Port)

	h, err = NewHost("10.0.0.5", WithMode(cm.ModeLocal), WithPort(8443))
	require.NoError(t, err)
	assert.Equal(t, 8443, h.Port)
}

func TestNewHostEmptyName(t *testing.T) {
	_, err := NewHost("  ")
	assert.Error(t, err)
}

func TestConnect(t *testing.T) {
	mockCM := new(MockCommandManager)
	mockCM.On("Run", mock.Anything, cm.CommandConfig{Command: "getversion"}).
		Return(cm.CommandResult{STDOUT: getversionOutput}, nil)
	mockCM.On("Close").Return(nil)

	h, err := NewHost("idrac", WithCommandManager(mockCM))
	require.NoError(t, err)

	require.NoError(t, h.Connect(context.Background()))
	assert.Equal(t, "6.10.30.00", h.Version)
	require.NoError(t, h.Close())

	mockCM.AssertExpectations(t)
}

func TestConnectError(t *testing.T) {
	mockCM := new(MockCommandManager)
	mockCM.On("Run", mock.Anything, mock.Anything).
		Return(cm.CommandResult{}, errors.New("ssh: handshake failed"))

	h, err := NewHost("idrac", WithCommandManager(mockCM))
	require.NoError(t, err)

	err = h.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to idrac")
}

func TestParseVersion(t *testing.T) {
	assert.Equal(t, "6.10.30.00", ParseVersion(getversionOutput))
	assert.Equal(t, "", ParseVersion("ERROR: Unable to connect"))
}
