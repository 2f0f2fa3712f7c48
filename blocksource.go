package fat24

// BlockSource is the collaborator capability this decoder consumes: a
// positioned byte reader over a raw block device or disk image, along
// with the two geometry facts the decoder can't derive on its own.
//
// Implementations live outside this package (see internal/blockio for
// the production one that opens a device/image file); tests supply an
// in-memory one built over bytesextra.NewReadWriteSeeker (see
// testutil_test.go).
type BlockSource interface {
	// TotalBytes returns the total addressable size of the backing
	// device or image, in bytes.
	TotalBytes() uint64

	// SectorSize returns the device's native sector size in bytes (512
	// for a Topfield disk). newDisk in geometry.go uses it as the
	// decoder's block size, falling back to 512 when it reports 0.
	SectorSize() uint32

	// ReadAt reads exactly len(buf) bytes starting at the given
	// absolute byte offset. A short read is an IO error.
	ReadAt(buf []byte, offset int64) error
}
