//go:build !linux

package reset

// Reboot falls back to Exit on hosts without the reboot syscall.
type Reboot struct{}

// Reset implements Resetter.
func (Reboot) Reset(reason string) {
	Exit{}.Reset(reason)
}
