package fat24

import (
	"bytes"
	"reflect"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	// chunkBlocks is 188 blocks: four times 47 blocks, the smallest
	// number of 512-byte blocks that holds a whole number of 188-byte
	// MPEG-TS packets (47*512 = 128*188 = 24064 bytes).
	chunkBlocks = 188

	// minChunksPerCluster is the floor on cluster size: 11 chunks.
	minChunksPerCluster = 11

	// maxFatEntries bounds both the FAT's entry count and the largest
	// valid cluster index (maxFatEntries - 1).
	maxFatEntries = 131072

	defaultBlockSize = 512

	superBlockMagic   = 0x07082607
	superBlockVersion = 0x0101

	requiredIdentifier = "TOPFIELD TF5000PVR HDD"

	fatRegionStartBlock = 256
	fatRegionBlocks     = 768

	superBlockSize = 52
)

// Disk describes the raw geometry of a block device or image, derived
// without reference to any on-disk filesystem structure. It is
// immutable once returned by DiskOpen.
type Disk struct {
	Path            string
	BlockSize       uint32
	TotalBlocks     uint64
	BlocksPerCluster uint32

	source BlockSource
}

// deriveBlocksPerCluster implements spec.md §4.C: the FAT has at most
// 131072 entries, so the number of 188-block chunks addressable by one
// entry is ceil(totalBlocks / (131072*188)), floor-clamped to 11, times
// 188 blocks per chunk.
func deriveBlocksPerCluster(totalBlocks uint64) uint32 {
	denominator := uint64(maxFatEntries) * uint64(chunkBlocks)

	chunksPerFat := (totalBlocks + denominator - 1) / denominator
	if chunksPerFat < minChunksPerCluster {
		chunksPerFat = minChunksPerCluster
	}

	return uint32(chunksPerFat) * chunkBlocks
}

// newDisk wraps a BlockSource with the derived geometry. block_size is
// what the BlockSource reports (internal/blockio reports 512 for a
// regular image and whatever the ioctl found for a device; its size
// override changes only the total size), or 512 if it reports 0.
func newDisk(path string, source BlockSource) *Disk {
	blockSize := source.SectorSize()
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}

	totalBlocks := source.TotalBytes() / uint64(blockSize)

	return &Disk{
		Path:             path,
		BlockSize:        blockSize,
		TotalBlocks:      totalBlocks,
		BlocksPerCluster: deriveBlocksPerCluster(totalBlocks),
		source:           source,
	}
}

// SuperBlock is the 52-byte record spec.md §6 describes, present
// identically at both sector 0 and sector 1 of the disk.
type SuperBlock struct {
	Magic              uint32
	Identifier         [28]byte
	Version            uint16
	SectorsPerCluster  uint16
	RootDirCluster     uint16
	Unused1            uint16
	UsedClusters       uint32
	UnusedBytesInRoot  uint32
	FatCRC32           uint32
}

func parseSuperBlock(raw []byte) (sb SuperBlock, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			if asErr, ok := errRaw.(error); ok {
				err = log.Wrap(asErr)
			} else {
				err = log.Errorf("panic parsing super-block: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	unpackErr := restruct.Unpack(raw, defaultEncoding, &sb)
	log.PanicIf(unpackErr)

	return sb, nil
}

// identifierString returns the NUL-terminated ASCII identifier as a Go
// string.
func (sb SuperBlock) identifierString() string {
	if i := bytes.IndexByte(sb.Identifier[:], 0); i >= 0 {
		return string(sb.Identifier[:i])
	}

	return string(sb.Identifier[:])
}

// Filesystem is the parsed, validated FAT24 filesystem on a Disk. It
// borrows the Disk for its lifetime; the caller must keep the Disk alive
// (and not close its BlockSource) while any Filesystem or FileHandle
// derived from it is in use.
type Filesystem struct {
	Disk *Disk

	BlocksPerCluster   uint32
	BytesPerCluster    uint32
	RootDirCluster     uint32
	UsedClusters       uint32
	UnusedBytesInRoot  uint32
	FatCRC32           uint32

	Warnings Warnings

	fat Fat
}

// fsOpen validates the two superblocks and builds a Filesystem. See
// spec.md §4.C.
func fsOpen(disk *Disk) (fs *Filesystem, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			if asErr, ok := errRaw.(error); ok {
				err = log.Wrap(asErr)
			} else {
				err = log.Errorf("panic opening filesystem: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	raw := make([]byte, 2*defaultBlockSize)

	readErr := readSwapped(disk.source, raw, -1, 0, disk.BlockSize, uint32(len(raw)))
	if readErr != nil {
		return nil, readErr
	}

	sb1, err := parseSuperBlock(raw[:superBlockSize])
	log.PanicIf(err)

	sb2, err := parseSuperBlock(raw[defaultBlockSize : defaultBlockSize+superBlockSize])
	log.PanicIf(err)

	if sb1.Magic != superBlockMagic {
		return nil, formatErrorf("super block 1 magic 0x%08x != expected 0x%08x", sb1.Magic, superBlockMagic)
	}

	if sb2.Magic != superBlockMagic {
		return nil, formatErrorf("super block 2 magic 0x%08x != expected 0x%08x", sb2.Magic, superBlockMagic)
	}

	if bytes.Equal(raw[:defaultBlockSize], raw[defaultBlockSize:]) != true {
		return nil, formatErrorf("super blocks do not match")
	}

	if sb1.identifierString() != requiredIdentifier {
		return nil, formatErrorf("super block identifier not recognised: %q", sb1.identifierString())
	}

	if sb1.Version != superBlockVersion {
		return nil, formatErrorf("unrecognised filesystem version number 0x%04x", sb1.Version)
	}

	fs = &Filesystem{
		Disk:              disk,
		BlocksPerCluster:  uint32(sb1.SectorsPerCluster),
		RootDirCluster:    uint32(sb1.RootDirCluster),
		UsedClusters:      sb1.UsedClusters,
		UnusedBytesInRoot: sb1.UnusedBytesInRoot,
		FatCRC32:          sb1.FatCRC32,
	}

	fs.BytesPerCluster = fs.BlocksPerCluster * disk.BlockSize

	if fs.BlocksPerCluster != disk.BlocksPerCluster {
		fs.Warnings.Add("superblock %d blocks per cluster does not match calculated %d blocks per cluster", fs.BlocksPerCluster, disk.BlocksPerCluster)
	}

	return fs, nil
}

// read loads bytes bytes at (cluster, offsetInCluster) into buf, applying
// the byte-swap transform. This is the one seam every higher-level read
// in this package funnels through.
func (fs *Filesystem) read(buf []byte, cluster int32, offsetInCluster, byteCount uint32) error {
	return readSwapped(fs.Disk.source, buf, cluster, offsetInCluster, fs.BytesPerCluster, byteCount)
}
