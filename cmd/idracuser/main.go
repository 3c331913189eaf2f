package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"dario.cat/mergo"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"golang.org/x/term"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	cm "github.com/steelcutops/idracuser/idrac/commandmanager"
	"github.com/steelcutops/idracuser/idrac/configmanager"
	"github.com/steelcutops/idracuser/idrac/host"
	"github.com/steelcutops/idracuser/idrac/hostgroup"
	"github.com/steelcutops/idracuser/idrac/reconciler"
	"github.com/steelcutops/idracuser/idrac/sharemanager"
	"github.com/steelcutops/idracuser/idrac/usermanager"
	"github.com/steelcutops/idracuser/logger"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitInvalid = 2

	defaultsSection = "defaults"
)

// Params are the module arguments. The same keys are used in the params
// file and in the [defaults] section of the inventory.
type Params struct {
	IDRACIP   string `yaml:"idrac_ip" ini:"idrac_ip"`
	IDRACUser string `yaml:"idrac_user" ini:"idrac_user"`
	IDRACPwd  string `yaml:"idrac_pwd" ini:"idrac_pwd"`
	IDRACPort int    `yaml:"idrac_port" ini:"idrac_port"`
	Mode      string `yaml:"mode" ini:"mode"`

	ShareName string `yaml:"share_name" ini:"share_name"`
	ShareUser string `yaml:"share_user" ini:"share_user"`
	SharePwd  string `yaml:"share_pwd" ini:"share_pwd"`
	ShareMnt  string `yaml:"share_mnt" ini:"share_mnt"`

	UserName string `yaml:"user_name" ini:"user_name"`
	UserPwd  string `yaml:"user_pwd" ini:"user_pwd"`
	UserPriv string `yaml:"user_priv" ini:"user_priv"`
	State    string `yaml:"state" ini:"state"`

	CheckMode bool `yaml:"check_mode" ini:"check_mode"`
}

type flags struct {
	Params
	Hostnames []string

	ParamsFile  string
	IniFilePath string

	PromptIDRACPwd bool
	PromptSharePwd bool
	PromptUserPwd  bool
	KeyPassPrompt  bool

	Concurrency int
	Timeout     time.Duration
	Debug       bool
	LogFileName string

	// set holds the names of the flags given on the command line.
	set map[string]bool
}

// paramFlags copies the value of a module argument flag into Params. Only
// flags given on the command line are copied, so an explicit zero value
// such as --check=false still wins over the params file.
var paramFlags = map[string]func(dst *Params, src Params){
	"idrac-user": func(d *Params, s Params) { d.IDRACUser = s.IDRACUser },
	"idrac-pwd":  func(d *Params, s Params) { d.IDRACPwd = s.IDRACPwd },
	"idrac-port": func(d *Params, s Params) { d.IDRACPort = s.IDRACPort },
	"mode":       func(d *Params, s Params) { d.Mode = s.Mode },
	"share-name": func(d *Params, s Params) { d.ShareName = s.ShareName },
	"share-user": func(d *Params, s Params) { d.ShareUser = s.ShareUser },
	"share-pwd":  func(d *Params, s Params) { d.SharePwd = s.SharePwd },
	"share-mnt":  func(d *Params, s Params) { d.ShareMnt = s.ShareMnt },
	"user-name":  func(d *Params, s Params) { d.UserName = s.UserName },
	"user-pwd":   func(d *Params, s Params) { d.UserPwd = s.UserPwd },
	"user-priv":  func(d *Params, s Params) { d.UserPriv = s.UserPriv },
	"state":      func(d *Params, s Params) { d.State = s.State },
	"check":      func(d *Params, s Params) { d.CheckMode = s.CheckMode },
}

// report is one line of output.
type report struct {
	Host string `json:"host"`
	reconciler.Result
}

// readSecret reads a secret from the terminal without echo.
var readSecret = func(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return string(b), err
}

func parseFlags(args []string, output io.Writer) (*flags, error) {
	f := &flags{}
	fs := pflag.NewFlagSet("idracuser", pflag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringArrayVar(&f.Hostnames, "idrac-ip", nil, "iDRAC address, may be repeated")
	fs.StringVar(&f.IDRACUser, "idrac-user", "", "iDRAC admin user")
	fs.StringVar(&f.IDRACPwd, "idrac-pwd", "", "iDRAC admin password")
	fs.IntVar(&f.IDRACPort, "idrac-port", 0, "iDRAC port (default 22 for ssh, 443 for local)")
	fs.StringVar(&f.Mode, "mode", "", "How racadm reaches the iDRAC: ssh or local")

	fs.StringVar(&f.ShareName, "share-name", "", `CIFS (\\server\share) or NFS (server:/path) network share`)
	fs.StringVar(&f.ShareUser, "share-user", "", "Network share user in the format user@domain")
	fs.StringVar(&f.SharePwd, "share-pwd", "", "Network share password")
	fs.StringVar(&f.ShareMnt, "share-mnt", "", "Local mount path of the network share")

	fs.StringVar(&f.UserName, "user-name", "", "User name to configure")
	fs.StringVar(&f.UserPwd, "user-pwd", "", "User password")
	fs.StringVar(&f.UserPriv, "user-priv", "", "User privilege: "+strings.Join(usermanager.PrivilegeChoices, ", "))
	fs.StringVar(&f.State, "state", "", "Desired state: "+strings.Join(reconciler.StateChoices, ", ")+" (default present)")
	fs.BoolVar(&f.CheckMode, "check", false, "Compute changes without applying them")

	fs.StringVar(&f.ParamsFile, "params", "", "YAML file with module arguments")
	fs.StringVar(&f.IniFilePath, "ini", "", "INI inventory with a [defaults] section and groups of iDRAC addresses")

	fs.BoolVar(&f.PromptIDRACPwd, "prompt-idrac-pwd", false, "Prompt for the iDRAC password")
	fs.BoolVar(&f.PromptSharePwd, "prompt-share-pwd", false, "Prompt for the network share password")
	fs.BoolVar(&f.PromptUserPwd, "prompt-user-pwd", false, "Prompt for the user password")
	fs.BoolVar(&f.KeyPassPrompt, "keypass", false, "Prompt for the passphrase of SSH keys in ~/.ssh")

	fs.IntVar(&f.Concurrency, "concurrency", 1, "Maximum number of iDRACs configured at once")
	fs.DurationVar(&f.Timeout, "timeout", 10*time.Minute, "Time allowed per iDRAC")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug log level")
	fs.StringVar(&f.LogFileName, "log", "", "Log file name (default stderr)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	f.set = make(map[string]bool)
	fs.Visit(func(fl *pflag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

func readParamsFile(filePath string) (Params, error) {
	var p Params
	file, err := os.Open(filePath)
	if err != nil {
		return p, err
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	return p, nil
}

// readHostsFromFile loads the inventory. The [defaults] section holds
// Params; every other section is a group of iDRAC addresses.
func readHostsFromFile(filePath string) (Params, map[string][]string, error) {
	var defaults Params
	cfg, err := ini.Load(filePath)
	if err != nil {
		return defaults, nil, err
	}

	hosts := make(map[string][]string)

	for _, section := range cfg.Sections() {
		name := section.Name()
		if name == defaultsSection {
			if err := section.MapTo(&defaults); err != nil {
				return defaults, nil, fmt.Errorf("reading [%s] from %s: %w", defaultsSection, filePath, err)
			}
			continue
		}
		for _, key := range section.Keys() {
			hosts[name] = append(hosts[name], key.String())
		}
	}

	return defaults, hosts, nil
}

// loadParams merges the sources of module arguments. Values given as flags
// win over the params file, which wins over the inventory defaults.
func loadParams(f *flags) (Params, []string, error) {
	var p Params

	if f.ParamsFile != "" {
		fileParams, err := readParamsFile(f.ParamsFile)
		if err != nil {
			return p, nil, err
		}
		p = fileParams
	}

	var groups map[string][]string
	if f.IniFilePath != "" {
		defaults, hostsMap, err := readHostsFromFile(f.IniFilePath)
		if err != nil {
			return p, nil, err
		}
		if err := mergo.Merge(&p, defaults); err != nil {
			return p, nil, err
		}
		groups = hostsMap
	}

	for name := range f.set {
		if apply, ok := paramFlags[name]; ok {
			apply(&p, f.Params)
		}
	}

	var hostnames []string
	if len(f.Hostnames) > 0 {
		hostnames = append(hostnames, f.Hostnames...)
	} else if p.IDRACIP != "" {
		hostnames = append(hostnames, p.IDRACIP)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		hostnames = append(hostnames, groups[name]...)
	}

	return p, uniqueHostnames(hostnames), nil
}

func uniqueHostnames(hostnames []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range hostnames {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return out
}

func readPasswords(f *flags, p *Params) error {
	prompts := []struct {
		enabled bool
		prompt  string
		target  *string
	}{
		{f.PromptIDRACPwd, "Enter the iDRAC password: ", &p.IDRACPwd},
		{f.PromptSharePwd, "Enter the network share password: ", &p.SharePwd},
		{f.PromptUserPwd, "Enter the user password: ", &p.UserPwd},
	}
	for _, pr := range prompts {
		if !pr.enabled {
			continue
		}
		secret, err := readSecret(pr.prompt)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		*pr.target = secret
	}
	return nil
}

func validate(p Params, hostnames []string) error {
	var result *multierror.Error

	if len(hostnames) == 0 {
		result = multierror.Append(result, errors.New("idrac_ip is required"))
	}

	required := []struct {
		name  string
		value string
	}{
		{"idrac_user", p.IDRACUser},
		{"idrac_pwd", p.IDRACPwd},
		{"share_name", p.ShareName},
		{"share_user", p.ShareUser},
		{"share_pwd", p.SharePwd},
		{"share_mnt", p.ShareMnt},
		{"user_name", p.UserName},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			result = multierror.Append(result, fmt.Errorf("%s is required", r.name))
		}
	}

	if p.UserPriv != "" {
		if _, err := usermanager.ParsePrivilege(p.UserPriv); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if _, err := reconciler.ParseState(p.State); err != nil {
		result = multierror.Append(result, err)
	}
	if _, ok := cm.ParseMode(p.Mode); !ok {
		result = multierror.Append(result, fmt.Errorf("invalid mode %q, must be ssh or local", p.Mode))
	}
	if p.IDRACPort < 0 || p.IDRACPort > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid idrac_port %d", p.IDRACPort))
	}

	return result.ErrorOrNil()
}

// buildDesiredUser turns validated Params into the desired user record. The share
// descriptor is built fresh for each call.
func buildDesiredUser(p Params) reconciler.DesiredUser {
	desired := reconciler.DesiredUser{
		Name:      p.UserName,
		Password:  p.UserPwd,
		CheckMode: p.CheckMode,
		Share: sharemanager.NewShare(p.ShareName, p.ShareMnt, sharemanager.ShareCredentials{
			User:     p.ShareUser,
			Password: p.SharePwd,
		}),
	}
	desired.State, _ = reconciler.ParseState(p.State)
	if p.UserPriv != "" {
		if priv, err := usermanager.ParsePrivilege(p.UserPriv); err == nil {
			desired.Privilege = &priv
		}
	}
	return desired
}

func buildHostOptions(p Params, keyPass string, log logger.Logger) []host.HostOption {
	mode, _ := cm.ParseMode(p.Mode)
	options := []host.HostOption{
		host.WithUser(p.IDRACUser),
		host.WithPassword(p.IDRACPwd),
		host.WithMode(mode),
		host.WithLogger(log),
		host.WithSSHClient(cm.RealSSHDialer{}),
	}
	if p.IDRACPort != 0 {
		options = append(options, host.WithPort(p.IDRACPort))
	}
	if keyPass != "" {
		options = append(options, host.WithKeyPassphrase(keyPass))
	}
	return options
}

// addHosts adds every address to hostGroup and returns the errors of the
// ones that could not be set up, keyed by address.
func addHosts(hostnames []string, hostGroup *hostgroup.HostGroup, log logger.Logger, options ...host.HostOption) map[string]error {
	failed := make(map[string]error)
	for _, hostname := range hostnames {
		log.Debug("Adding host", "host", hostname)
		server, err := host.NewHost(hostname, options...)
		if err != nil {
			log.Error("Failed to create new host", "host", hostname, "error", err)
			failed[hostname] = err
			continue
		}

		hostGroup.AddHost(server)
	}
	return failed
}

func processHosts(hg *hostgroup.HostGroup, action func(h *host.Host) error, maxConcurrency int, log logger.Logger) error {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	hosts := hg.List()
	sem := make(chan struct{}, maxConcurrency)
	errCh := make(chan error, len(hosts))
	var wg sync.WaitGroup

	for _, hst := range hosts {
		wg.Add(1)
		go func(h *host.Host) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := action(h); err != nil {
				errCh <- fmt.Errorf("error while processing host %s: %w", h.Hostname, err)
			}
		}(hst)
	}

	wg.Wait()
	close(errCh)

	var result *multierror.Error
	for err := range errCh {
		result = multierror.Append(result, err)
	}

	if result != nil {
		for _, err := range result.Errors {
			log.Error("Host processing error", "error", err)
		}
		return result
	}

	return nil
}

// reconcileHost runs one reconciliation against h, owning its session.
func reconcileHost(ctx context.Context, h *host.Host, p Params, timeout time.Duration) reconciler.Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var config configmanager.ConfigManager
	if err := h.Available(); err != nil {
		h.Logger.Error("racadm is not available", "error", err)
	} else {
		defer func() {
			if err := h.Close(); err != nil {
				h.Logger.Warn("Failed to close session", "error", err)
			}
		}()
		if err := h.Connect(ctx); err != nil {
			return reconciler.Result{Failed: true, Outcome: reconciler.Error, Msg: "Error: " + err.Error()}
		}
		config = h.ConfigManager
	}

	return reconciler.New(config, h.Logger).Reconcile(ctx, buildDesiredUser(p))
}

type reportWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (w *reportWriter) write(hostname string, result reconciler.Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(report{Host: hostname, Result: result})
}

func configureLogger(f *flags, stderr io.Writer) (logger.Logger, func(), error) {
	if f.LogFileName == "" {
		return logger.NewWithOutput(stderr, f.Debug), func() {}, nil
	}
	file, err := os.OpenFile(f.LogFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, err
	}
	return logger.NewWithOutput(file, f.Debug), func() { file.Close() }, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalid
	}

	log, closeLog, err := configureLogger(f, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalid
	}
	defer closeLog()
	log.Debug("Debug mode enabled")

	p, hostnames, err := loadParams(f)
	if err != nil {
		log.Error("Failed to load parameters", "error", err)
		fmt.Fprintln(stderr, err)
		return exitInvalid
	}
	if err := readPasswords(f, &p); err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalid
	}
	if err := validate(p, hostnames); err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalid
	}

	var keyPass string
	if f.KeyPassPrompt {
		if keyPass, err = readSecret("Enter the key passphrase: "); err != nil {
			fmt.Fprintln(stderr, err)
			return exitInvalid
		}
	}

	out := &reportWriter{enc: json.NewEncoder(stdout)}
	hostGroup := hostgroup.NewHostGroup()
	failed := addHosts(hostnames, hostGroup, log, buildHostOptions(p, keyPass, log)...)
	for hostname, err := range failed {
		out.write(hostname, reconciler.Result{Failed: true, Outcome: reconciler.Error, Msg: "Error: " + err.Error()})
	}

	log.Info("Reconciling user", "user", p.UserName, "hosts", hostGroup.Len(), "concurrency", f.Concurrency)
	err = processHosts(hostGroup, func(h *host.Host) error {
		result := reconcileHost(ctx, h, p, f.Timeout)
		out.write(h.Hostname, result)
		if result.Failed {
			return fmt.Errorf("%s: %v", result.Outcome, result.Msg)
		}
		return nil
	}, f.Concurrency, log)

	if err != nil || len(failed) > 0 {
		return exitFailed
	}
	return exitOK
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
