package commandmanager

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net"
	"testing"

	"github.com/steelcutops/idracuser/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// startSSHServer serves every exec request with the given output and exit
// status.
func startSSHServer(t *testing.T, stdout, stderr string, status uint32) (string, int) {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(key)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(ssh.ConnMetadata, []byte) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveExec(conn, config, stdout, stderr, status)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func serveExec(conn net.Conn, config *ssh.ServerConfig, stdout, stderr string, status uint32) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			return
		}
		go func() {
			for req := range requests {
				if req.Type != "exec" {
					req.Reply(false, nil)
					continue
				}
				req.Reply(true, nil)
				io.WriteString(channel, stdout)
				io.WriteString(channel.Stderr(), stderr)
				channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				channel.Close()
			}
		}()
	}
}

func TestRunRemote(t *testing.T) {
	hostname, port := startSSHServer(t, "iDRAC Version = 7.00.00.00\n", "", 0)
	manager := &RacadmCommandManager{
		Hostname:    hostname,
		Port:        port,
		SSHClient:   RealSSHDialer{},
		Credentials: Credentials{User: "root", Password: "calvin"},
	}
	defer manager.Close()

	result, err := manager.Run(context.Background(), CommandConfig{Command: "getversion"})
	require.NoError(t, err)
	assert.Equal(t, "iDRAC Version = 7.00.00.00\n", result.STDOUT)
	assert.Equal(t, "racadm getversion", result.Command)
}

func TestRunRemoteExitStatusHidesSecrets(t *testing.T) {
	hostname, port := startSSHServer(t, "", "mount -o password=sharepw failed\n", 3)
	var logs bytes.Buffer
	manager := &RacadmCommandManager{
		Hostname:    hostname,
		Port:        port,
		SSHClient:   RealSSHDialer{},
		Logger:      logger.NewWithOutput(&logs, false),
		Credentials: Credentials{User: "root", Password: "calvin"},
	}
	defer manager.Close()

	result, err := manager.RunRemote(context.Background(), CommandConfig{
		Command: "get",
		Args:    []string{"-p", "sharepw"},
		Secrets: []string{"sharepw"},
	})
	require.ErrorIs(t, err, ErrRacadm)
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, err.Error(), "password=******")
	assert.NotContains(t, err.Error(), "sharepw")
	assert.NotContains(t, logs.String(), "sharepw")
	assert.Contains(t, logs.String(), "exited with non-zero status")
}
