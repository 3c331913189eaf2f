package reconciler

import (
	"fmt"

	"github.com/steelcutops/idracuser/idrac/configmanager"
)

// Outcome tags how a reconciliation ended.
type Outcome int

const (
	Success Outcome = iota
	DependencyMissing
	InvalidInput
	PreconditionFailed
	NotFound
	ApplyRejected
	Error
)

var outcomeNames = [...]string{
	Success:            "Success",
	DependencyMissing:  "DependencyMissing",
	InvalidInput:       "InvalidInput",
	PreconditionFailed: "PreconditionFailed",
	NotFound:           "NotFound",
	ApplyRejected:      "ApplyRejected",
	Error:              "Error",
}

func (o Outcome) String() string {
	if o >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the report of one reconciliation. Failed is set for every
// outcome other than Success, and Changed is never set together with it.
type Result struct {
	Changed bool        `json:"changed"`
	Failed  bool        `json:"failed"`
	Msg     interface{} `json:"msg"`
	Outcome Outcome     `json:"outcome"`

	// Apply is the controller's answer when changes were applied.
	Apply *configmanager.ApplyResult `json:"-"`
}

func failure(outcome Outcome, msg string) Result {
	return Result{Failed: true, Outcome: outcome, Msg: msg}
}

func errorResult(err error) Result {
	return failure(Error, "Error: "+err.Error())
}
