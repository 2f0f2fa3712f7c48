// Package blockio implements fat24.BlockSource over a regular disk-image
// file or a real Linux block device.
package blockio

import (
	"os"
	"unsafe"

	"github.com/dsoprea/go-logging"
	"golang.org/x/sys/unix"
)

const defaultSectorSize = 512

// Source is a BlockSource backed by an *os.File: either a flat disk-image
// file, or a block-device special file, on Linux.
type Source struct {
	file       *os.File
	totalBytes uint64
	sectorSize uint32
}

// Open opens path and probes its geometry. sizeOverride, if non-zero,
// replaces whatever size detection would otherwise find (useful for a
// disk image that's shorter than the drive it was imaged from, or for
// testing against a partial capture).
func Open(path string, sizeOverride uint64) (source *Source, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			if asErr, ok := errRaw.(error); ok {
				err = log.Wrap(asErr)
			} else {
				err = log.Errorf("panic opening block source %q: %v", path, errRaw)
			}
		}
	}()

	file, openErr := os.Open(path)
	log.PanicIf(openErr)

	totalBytes, sectorSize, geomErr := probeGeometry(file)
	log.PanicIf(geomErr)

	if sizeOverride != 0 {
		totalBytes = sizeOverride
	}

	return &Source{
		file:       file,
		totalBytes: totalBytes,
		sectorSize: sectorSize,
	}, nil
}

// probeGeometry tries the block-device ioctls first (BLKSSZGET,
// BLKGETSIZE64); if those fail (because path is a regular file, not a
// device node), it falls back to os.Stat and a 512-byte sector
// assumption, which matches every disk image this decoder has been
// tested against.
func probeGeometry(file *os.File) (uint64, uint32, error) {
	fd := file.Fd()

	sectorSize, sszErr := unix.IoctlGetInt(int(fd), unix.BLKSSZGET)
	if sszErr == nil {
		size64, sizeErr := ioctlGetUint64(fd, unix.BLKGETSIZE64)
		if sizeErr == nil {
			return size64, uint32(sectorSize), nil
		}
	}

	info, statErr := file.Stat()
	if statErr != nil {
		return 0, 0, statErr
	}

	return uint64(info.Size()), defaultSectorSize, nil
}

// ioctlGetUint64 performs BLKGETSIZE64, which x/sys/unix doesn't wrap as
// a typed helper the way it does BLKSSZGET.
func ioctlGetUint64(fd uintptr, req uint) (uint64, error) {
	var value uint64

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(unsafe.Pointer(&value)))
	if errno != 0 {
		return 0, errno
	}

	return value, nil
}

// TotalBytes implements fat24.BlockSource.
func (s *Source) TotalBytes() uint64 {
	return s.totalBytes
}

// SectorSize implements fat24.BlockSource.
func (s *Source) SectorSize() uint32 {
	return s.sectorSize
}

// ReadAt implements fat24.BlockSource.
func (s *Source) ReadAt(buf []byte, offset int64) error {
	n, err := s.file.ReadAt(buf, offset)
	if err != nil {
		return err
	}

	if n != len(buf) {
		return log.Errorf("short read at offset %d: got %d of %d bytes", offset, n, len(buf))
	}

	return nil
}

// Close releases the underlying file descriptor.
func (s *Source) Close() error {
	return s.file.Close()
}
