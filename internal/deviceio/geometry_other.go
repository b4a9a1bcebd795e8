//go:build !linux

package deviceio

import "os"

// queryBlockDeviceGeometry has no portable block-device ioctl outside
// Linux; callers fall back to caller-supplied defaults.
func queryBlockDeviceGeometry(f *os.File) (bytesPerSector uint32, sizeBytes uint64, ok bool) {
	return 0, 0, false
}
