//go:build linux

package deviceio

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// isPlatformDeviceLost checks for the errno values that mean the underlying
// device vanished (ESPIPE/EPERM/ENXIO/ENODEV) underneath a wrapped I/O
// error.
func isPlatformDeviceLost(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch unix.Errno(errno) {
	case unix.ESPIPE, unix.EPERM, unix.ENXIO, unix.ENODEV:
		return true
	default:
		return false
	}
}
