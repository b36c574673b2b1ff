// Package reset provides the unconditional system reset that ends
// every fatal path.
package reset

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang/glog"
)

// Resetter restarts every execution context from a cold boot.
// Reset never returns.
type Resetter interface {
	Reset(reason string)
}

// ResetFunc is the func form of Resetter.
type ResetFunc func(reason string)

// Reset implements Resetter.
func (f ResetFunc) Reset(reason string) {
	f(reason)
}

// ExitCode is the process exit code used by Exit so that a supervisor
// can tell a reset from a crash.
const ExitCode = 3

// Exit resets by terminating the process, leaving the restart to the
// service supervisor.
type Exit struct{}

// Reset implements Resetter.
func (Exit) Reset(reason string) {
	glog.Errorf("RESET: %s", reason)
	glog.Flush()
	os.Exit(ExitCode)
}

// New creates a Resetter by mode: "exit" or "reboot".
func New(mode string) (Resetter, error) {
	switch strings.ToLower(mode) {
	case "", "exit":
		return Exit{}, nil
	case "reboot":
		return Reboot{}, nil
	}
	return nil, fmt.Errorf("unknown reset mode %q", mode)
}
