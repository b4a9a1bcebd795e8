//go:build linux

package deviceio

import (
	"os"

	"golang.org/x/sys/unix"
)

// queryBlockDeviceGeometry asks the kernel for a block device's sector
// size and total size via BLKSSZGET/BLKGETSIZE64. It returns ok=false for
// anything that isn't a block device (a plain image file, for instance),
// letting the caller fall back to caller-supplied defaults.
func queryBlockDeviceGeometry(f *os.File) (bytesPerSector uint32, sizeBytes uint64, ok bool) {
	fd := int(f.Fd())

	sectorSize, err := unix.IoctlGetInt(fd, unix.BLKSSZGET)
	if err != nil {
		return 0, 0, false
	}
	size, err := unix.IoctlGetUint64(fd, unix.BLKGETSIZE64)
	if err != nil {
		return 0, 0, false
	}
	return uint32(sectorSize), size, true
}
