package configmanager

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	cm "github.com/steelcutops/idracuser/idrac/commandmanager"
)

const testMount = "/mnt/idrac"

const sampleProfile = `<SystemConfiguration Model="PowerEdge R740" ServiceTag="ABC1234" TimeStamp="Thu Oct 15 09:12:44 2026">
<Component FQDD="iDRAC.Embedded.1">
<Attribute Name="IPMILan.1#Enable">Enabled</Attribute>
<Attribute Name="Users.2#UserName">root</Attribute>
<!-- <Attribute Name="Users.2#Password">******</Attribute> -->
<Attribute Name="Users.2#Privilege">511</Attribute>
<Attribute Name="Users.2#Enable">Enabled</Attribute>
<Attribute Name="Users.3#UserName">Alice</Attribute>
<!-- <Attribute Name="Users.3#Password">******</Attribute> -->
<Attribute Name="Users.3#Privilege">0x1</Attribute>
<Attribute Name="Users.3#Enable">Disabled</Attribute>
<Attribute Name="Users.4#UserName"></Attribute>
<Attribute Name="Users.4#Privilege">0</Attribute>
<Attribute Name="Users.4#Enable">Disabled</Attribute>
<Attribute Name="Users.17#UserName">outofrange</Attribute>
</Component>
<Component FQDD="BIOS.Setup.1-1">
<Attribute Name="Users.5#UserName">ignored</Attribute>
</Component>
</SystemConfiguration>
`

// fakeRacadm plays the controller side of a profile exchange. Exports are
// written into the mount on fs, imports are read back from it and job
// queries are answered from jobs in order.
type fakeRacadm struct {
	fs        afero.Fs
	export    string
	noExport  bool
	getOutput string
	setOutput string
	jobs      []string
	runErr    error

	calls    []cm.CommandConfig
	imported []byte
}

func (f *fakeRacadm) RunLocal(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	return f.Run(ctx, config)
}

func (f *fakeRacadm) RunRemote(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	return f.Run(ctx, config)
}

func (f *fakeRacadm) Run(ctx context.Context, config cm.CommandConfig) (cm.CommandResult, error) {
	f.calls = append(f.calls, config)
	if f.runErr != nil {
		return cm.CommandResult{}, f.runErr
	}

	switch config.Command {
	case "get":
		name := argAfter(config.Args, "-f")
		if f.noExport {
			return cm.CommandResult{STDOUT: f.getOutput}, nil
		}
		if err := afero.WriteFile(f.fs, filepath.Join(testMount, name), []byte(f.export), 0644); err != nil {
			return cm.CommandResult{}, err
		}
		return cm.CommandResult{STDOUT: f.getOutput}, nil
	case "set":
		data, err := afero.ReadFile(f.fs, filepath.Join(testMount, argAfter(config.Args, "-f")))
		if err != nil {
			return cm.CommandResult{}, err
		}
		f.imported = data
		return cm.CommandResult{STDOUT: f.setOutput}, nil
	case "jobqueue":
		if len(f.jobs) == 0 {
			return cm.CommandResult{}, errors.New("unexpected job query")
		}
		out := f.jobs[0]
		if len(f.jobs) > 1 {
			f.jobs = f.jobs[1:]
		}
		return cm.CommandResult{STDOUT: out}, nil
	}
	return cm.CommandResult{}, errors.New("unexpected command " + config.Command)
}

func (f *fakeRacadm) Close() error {
	return nil
}

func (f *fakeRacadm) commands() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, strings.TrimSpace(c.Command+" "+strings.Join(c.Args, " ")))
	}
	return out
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func jobOutput(status, message string) string {
	return "---------------------------- JOB -------------------------\n" +
		"[Job ID=JID_900000000001]\n" +
		"Job Name=Configure: Import Server Configuration Profile\n" +
		"Status=" + status + "\n" +
		"Message=[" + message + "]\n" +
		"Percent Complete=[100]\n" +
		"----------------------------------------------------------\n"
}
