package fat24

import (
	"encoding/binary"

	"github.com/dsoprea/go-logging"
)

// defaultEncoding is the byte order DirEntry/SuperBlock fields are
// unpacked with once readSwapped has put a region into machine-order.
// The disk stores little-endian multi-byte fields inside 32-bit-word
// big-endian-ordered storage; after the word swap below, the bytes line
// up as plain big-endian values.
var defaultEncoding = binary.BigEndian

// readSwapped loads bytes bytes from bs at the cluster-relative location
// (cluster, offsetInCluster) into buf, then reverses every 32-bit word of
// buf in place.
//
// cluster == -1 addresses the two-sector superblock region at the start
// of the disk. offsetInCluster must be within [0, bytesPerCluster] and
// bytes must be a multiple of 4; violating either is a programmer error
// (spec.md §7 class 4) and panics via log.Panicf rather than returning
// an error.
func readSwapped(bs BlockSource, buf []byte, cluster int32, offsetInCluster, bytesPerCluster, byteCount uint32) (err error) {
	if cluster < -1 {
		log.Panicf("invalid cluster number %d", cluster)
	}

	if offsetInCluster > bytesPerCluster {
		log.Panicf("invalid offset within cluster %d (bytes-per-cluster is %d)", offsetInCluster, bytesPerCluster)
	}

	if byteCount%4 != 0 {
		log.Panicf("attempt to read %d bytes which isn't a whole number of 32-bit words", byteCount)
	}

	if uint32(len(buf)) != byteCount {
		log.Panicf("buffer length %d does not match requested byte count %d", len(buf), byteCount)
	}

	absolute := int64(cluster+1)*int64(bytesPerCluster) + int64(offsetInCluster)

	readErr := bs.ReadAt(buf, absolute)
	if readErr != nil {
		return ioErrorf(readErr, "short read at offset %d for %d bytes", absolute, byteCount)
	}

	swapWords(buf)

	return nil
}

// swapWords reverses the byte order of every 32-bit word in buf, in
// place. It is its own inverse: applying it twice restores the original
// buffer. len(buf) must be a multiple of 4.
func swapWords(buf []byte) {
	for i := 0; i+4 <= len(buf); i += 4 {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = buf[i+3], buf[i+2], buf[i+1], buf[i]
	}
}
