//go:build !linux

package deviceio

// isPlatformDeviceLost has no platform errno table outside Linux; only the
// ErrDeviceVanished sentinel (used by tests and non-Linux wrappers) is
// recognized.
func isPlatformDeviceLost(err error) bool {
	return false
}
