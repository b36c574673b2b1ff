//go:build linux

package reset

import (
	"os"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

// Reboot resets by rebooting the host. It falls back to Exit when the
// reboot syscall is refused, e.g. without CAP_SYS_BOOT.
type Reboot struct{}

// Reset implements Resetter.
func (Reboot) Reset(reason string) {
	glog.Errorf("RESET (reboot): %s", reason)
	glog.Flush()
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		glog.Errorf("reboot failed: %v", err)
		glog.Flush()
	}
	os.Exit(ExitCode)
}
