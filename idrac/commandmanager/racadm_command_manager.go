package commandmanager

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/steelcutops/idracuser/logger"
	"golang.org/x/crypto/ssh"
)

const defaultBinary = "racadm"

// ErrRacadm is wrapped by every error caused by racadm reporting a failure.
var ErrRacadm = errors.New("racadm reported an error")

type SSHDialer interface {
	Dial(network, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error)
}

// RealSSHDialer dials with golang.org/x/crypto/ssh.
type RealSSHDialer struct{}

func (RealSSHDialer) Dial(network, addr string, config *ssh.ClientConfig, timeout time.Duration) (*ssh.Client, error) {
	config.Timeout = timeout
	return ssh.Dial(network, addr, config)
}

type RacadmCommandManager struct {
	Hostname  string
	Port      int
	Mode      Mode
	SSHClient SSHDialer
	// Binary is the remote racadm executable used in ModeLocal.
	Binary     string
	KeyManager SSHKeyManager
	Logger     logger.Logger
	Credentials

	mu     sync.Mutex
	client *ssh.Client
}

func (r *RacadmCommandManager) log() logger.Logger {
	if r.Logger == nil {
		return logger.Discard()
	}
	return r.Logger
}

func (r *RacadmCommandManager) binary() string {
	if r.Binary == "" {
		return defaultBinary
	}
	return r.Binary
}

func (r *RacadmCommandManager) port() int {
	if r.Port == 0 {
		return r.Mode.DefaultPort()
	}
	return r.Port
}

func (r *RacadmCommandManager) address() string {
	return r.Hostname + ":" + strconv.Itoa(r.port())
}

// Available reports whether the transport for the configured mode can be
// used at all. Local mode needs the racadm binary on PATH.
func (r *RacadmCommandManager) Available() error {
	if r.isLocal() {
		if _, err := exec.LookPath(r.binary()); err != nil {
			return fmt.Errorf("remote racadm binary %q not found: %w", r.binary(), err)
		}
		return nil
	}
	if r.SSHClient == nil {
		return errors.New("SSHClient is not initialized")
	}
	return nil
}

func (r *RacadmCommandManager) RunLocal(ctx context.Context, config CommandConfig) (CommandResult, error) {
	start := time.Now()

	args := []string{"-r", r.address(), "-u", r.User, "-p", r.Password, config.Command}
	args = append(args, config.Args...)
	secrets := append([]string{r.Password}, config.Secrets...)
	cmdStr := redact(r.binary()+" "+strings.Join(args, " "), secrets)

	r.log().Debug("Executing local racadm", "hostname", r.Hostname, "command", cmdStr)

	cmd := exec.CommandContext(ctx, r.binary(), args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := CommandResult{
		Command:   cmdStr,
		STDOUT:    stdout.String(),
		STDERR:    stderr.String(),
		ExitCode:  getExitCode(err),
		Duration:  time.Since(start),
		Timestamp: start,
	}
	if err != nil {
		if result.ExitCode > 0 {
			return result, fmt.Errorf("%w: %s exited with status %d: %s", ErrRacadm, cmdStr, result.ExitCode, redact(firstLine(result.STDOUT+result.STDERR), secrets))
		}
		return result, fmt.Errorf("running %s: %s", cmdStr, redact(err.Error(), secrets))
	}

	return result, checkOutput(result, secrets)
}

func (r *RacadmCommandManager) getSSHConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if r.Password != "" {
		r.log().Debug("Using password authentication", "hostname", r.Hostname)
		auth = append(auth, ssh.Password(r.Password))
	}

	if r.KeyManager != nil {
		keys, err := r.KeyManager.ReadPrivateKeys(r.KeyPassphrase)
		switch {
		case err != nil && len(auth) == 0:
			return nil, err
		case err != nil:
			r.log().Debug("Skipping public key authentication", "hostname", r.Hostname, "error", err)
		default:
			r.log().Debug("Using public key authentication", "hostname", r.Hostname, "keys", len(keys))
			auth = append(auth, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
				return keys, nil
			}))
		}
	}

	if len(auth) == 0 {
		return nil, errors.New("no SSH authentication method available")
	}

	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}, nil
}

// sshClient returns the cached client, dialing on first use.
func (r *RacadmCommandManager) sshClient(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	if r.SSHClient == nil {
		return nil, errors.New("SSHClient is not initialized")
	}

	sshConfig, err := r.getSSHConfig()
	if err != nil {
		return nil, err
	}

	var dialTimeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		dialTimeout = time.Until(deadline)
	} else {
		dialTimeout = 30 * time.Second
	}

	client, err := r.SSHClient.Dial("tcp", r.address(), sshConfig, dialTimeout)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

func (r *RacadmCommandManager) RunRemote(ctx context.Context, config CommandConfig) (CommandResult, error) {
	client, err := r.sshClient(ctx)
	if err != nil {
		return CommandResult{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		return CommandResult{}, err
	}
	defer session.Close()

	cmdStr := buildCommandLine(defaultBinary, config)
	logged := redact(cmdStr, config.Secrets)
	r.log().Debug("Executing remote racadm", "hostname", r.Hostname, "command", logged)

	start := time.Now()

	outputCh := make(chan CommandResult, 1)
	go func() {
		var result CommandResult
		var stdout, stderr strings.Builder
		session.Stdout = &stdout
		session.Stderr = &stderr

		if err := session.Run(cmdStr); err != nil {
			result.ExitCode = getExitCode(err)
		}

		result.STDOUT = stdout.String()
		result.STDERR = stderr.String()
		outputCh <- result
	}()

	select {
	case result := <-outputCh:
		result.Duration = time.Since(start)
		result.Timestamp = start
		result.Command = logged
		if result.ExitCode != 0 {
			r.log().Error("racadm exited with non-zero status", "command", logged, "exitCode", result.ExitCode, "stderr", redact(result.STDERR, config.Secrets))
			return result, fmt.Errorf("%w: %s exited with status %d: %s", ErrRacadm, logged, result.ExitCode, redact(firstLine(result.STDOUT+result.STDERR), config.Secrets))
		}
		return result, checkOutput(result, config.Secrets)

	case <-ctx.Done():
		r.log().Error("racadm over SSH timed out", "command", logged)
		return CommandResult{}, ctx.Err()
	}
}

func (r *RacadmCommandManager) Run(ctx context.Context, config CommandConfig) (CommandResult, error) {
	if r.isLocal() {
		return r.RunLocal(ctx, config)
	}
	return r.RunRemote(ctx, config)
}

// Close releases the cached SSH client, if any.
func (r *RacadmCommandManager) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *RacadmCommandManager) isLocal() bool {
	return r.Mode == ModeLocal
}

// checkOutput turns racadm "ERROR:" output into an error. Some firmware
// releases print the error and still exit with status 0.
func checkOutput(result CommandResult, secrets []string) error {
	for _, line := range strings.Split(result.STDOUT+"\n"+result.STDERR, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "ERROR:") {
			return fmt.Errorf("%w: %s", ErrRacadm, redact(strings.TrimSpace(strings.TrimPrefix(line, "ERROR:")), secrets))
		}
	}
	return nil
}

func buildCommandLine(binary string, config CommandConfig) string {
	parts := []string{binary, config.Command}
	for _, a := range config.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// quote wraps args the racadm shell would otherwise split.
func quote(s string) string {
	if s == "" {
		return `""`
	}
	if !strings.ContainsAny(s, " \t\"'\\$;&|") {
		return s
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`).Replace(s) + `"`
}

func redact(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, quote(secret), "******")
		s = strings.ReplaceAll(s, secret, "******")
	}
	return s
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func getExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode()
	}
	var sshExit *ssh.ExitError
	if errors.As(err, &sshExit) {
		return sshExit.ExitStatus()
	}
	return -1
}
