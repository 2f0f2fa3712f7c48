package fat24

import (
	"io"
	"testing"

	"github.com/go-restruct/restruct"
	"github.com/noxer/bytewriter"
	"github.com/xaionaro-go/bytesextra"
)

// memSource is a BlockSource over an in-memory buffer, built with the
// same collaborators the pack's disk-image test fixtures use
// (bytesextra.NewReadWriteSeeker wrapping a plain []byte) instead of a
// real TF5000 capture, which this module doesn't ship.
type memSource struct {
	rws        io.ReadWriteSeeker
	total      uint64
	sectorSize uint32
}

func (m *memSource) TotalBytes() uint64 { return m.total }
func (m *memSource) SectorSize() uint32 { return m.sectorSize }

func (m *memSource) ReadAt(buf []byte, offset int64) error {
	if _, err := m.rws.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	_, err := io.ReadFull(m.rws, buf)

	return err
}

// swappedCopy returns a copy of buf with every 32-bit word reversed,
// leaving buf itself untouched.
func swappedCopy(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	swapWords(out)

	return out
}

// fixture bundles the raw disk image and the geometry constants it was
// built against, so tests can cross-check derived values.
type fixture struct {
	image            []byte
	blockSize        uint32
	blocksPerCluster uint32
	bytesPerCluster  uint32

	rootCluster     uint32
	programFilesDir uint32
	fileStart       uint32
	fileClusters    uint32
	fileUnusedLast  uint32
	fileContent     []byte
}

const (
	fixtureRootCluster     = 0
	fixtureProgramFilesDir = 1
	fixtureFileStart       = 2
	fixtureFileClusters    = 3
	fixtureFileUnusedLast  = 100
)

// buildFixture assembles a small, valid FAT24 disk image in memory:
// two matching superblocks, a FAT with a handful of live entries, a root
// directory holding a SubDir ("ProgramFiles"), a FileT ("MyRec01.rec")
// and one Unused slot, and the SubDir's own single-cluster body (Dot +
// DotDot only).
func buildFixture(t *testing.T) *fixture {
	t.Helper()

	blockSize := uint32(defaultBlockSize)
	blocksPerCluster := deriveBlocksPerCluster(1) // clamps to the 11-chunk floor for any small disk
	bytesPerCluster := blocksPerCluster * blockSize

	totalClusters := uint32(5) // root, ProgramFiles, and 3 clusters of file data
	totalBytes := uint64(bytesPerCluster) * uint64(totalClusters+1)

	image := make([]byte, totalBytes)

	fx := &fixture{
		image:            image,
		blockSize:        blockSize,
		blocksPerCluster: blocksPerCluster,
		bytesPerCluster:  bytesPerCluster,
		rootCluster:      fixtureRootCluster,
		programFilesDir:  fixtureProgramFilesDir,
		fileStart:        fixtureFileStart,
		fileClusters:     fixtureFileClusters,
		fileUnusedLast:   fixtureFileUnusedLast,
	}

	clusterOffset := func(cluster int32) int64 {
		return int64(cluster+1) * int64(bytesPerCluster)
	}

	// --- super blocks (cluster -1 region, blocks 0 and 1) ---

	rootDirEntries := 3 // SubDir, FileT, Unused
	rootUsedBytes := uint32(rootDirEntries * dirEntrySize)

	sb := SuperBlock{
		Magic:             superBlockMagic,
		Version:           superBlockVersion,
		SectorsPerCluster: uint16(blocksPerCluster),
		RootDirCluster:    fixtureRootCluster,
		UsedClusters:      5, // root, ProgramFiles, and the 3 clusters of file data
		UnusedBytesInRoot: bytesPerCluster - rootUsedBytes,
	}
	copy(sb.Identifier[:], requiredIdentifier)

	sbRaw, err := restruct.Pack(defaultEncoding, &sb)
	if err != nil {
		t.Fatalf("packing super block: %s", err)
	}

	padded := make([]byte, defaultBlockSize)
	copy(padded, sbRaw)

	swapped := swappedCopy(padded)
	writeAt(t, image, 0, swapped)
	writeAt(t, image, int64(defaultBlockSize), swapped)

	// --- FAT region (blocks 256..1023) ---

	fatEntries := make([]uint32, fatRegionBlocks*int(blockSize)/fatEntryBytes)
	fatEntries[fixtureRootCluster] = fatChainEnd
	fatEntries[fixtureProgramFilesDir] = fatChainEnd
	// This entry has bit23 clear (so value() masks it) but carries junk in the
	// 0x7e0000 range alongside its real low-17-bit pointer, exercising
	// the unmark mask: an implementation that only cleared bit23 would
	// let this junk inflate the pointer past the valid cluster range.
	fatEntries[fixtureFileStart] = (fixtureFileStart + 1) | fatMarkMask
	fatEntries[fixtureFileStart+1] = fixtureFileStart + 2
	fatEntries[fixtureFileStart+2] = fatChainEnd

	fatRaw := make([]byte, len(fatEntries)*fatEntryBytes)
	for i, v := range fatEntries {
		fatRaw[i*fatEntryBytes+0] = byte(v >> 16)
		fatRaw[i*fatEntryBytes+1] = byte(v >> 8)
		fatRaw[i*fatEntryBytes+2] = byte(v)
	}

	fatSwapped := swappedCopy(fatRaw)
	fatOffset := int64(fatRegionStartBlock) * int64(blockSize)
	writeAt(t, image, fatOffset, fatSwapped)

	// --- root directory (cluster 0): SubDir, FileT, Unused ---

	programFilesEntry := DirEntry{Type: uint8(EntryTypeSubDir), StartCluster: fixtureProgramFilesDir}
	copy(programFilesEntry.Filename[:], "ProgramFiles")

	fileEntry := DirEntry{
		Type:                     uint8(EntryTypeFileT),
		StartCluster:             fixtureFileStart,
		Clusters:                 fixtureFileClusters,
		UnusedBytesInLastCluster: fixtureFileUnusedLast,
	}
	copy(fileEntry.Filename[:], "MyRec01.rec")

	unusedEntry := DirEntry{Type: uint8(EntryTypeUnused)}

	rootBuf := packEntries(t, programFilesEntry, fileEntry, unusedEntry)
	writeSwappedAt(t, image, clusterOffset(fixtureRootCluster), rootBuf)

	// --- ProgramFiles directory body (cluster 1): Dot, DotDot ---

	dirUsedBytes := uint32(2 * dirEntrySize)

	dotEntry := DirEntry{
		Type:                     uint8(EntryTypeDot),
		StartCluster:             fixtureProgramFilesDir,
		Clusters:                 1,
		UnusedBytesInLastCluster: bytesPerCluster - dirUsedBytes,
	}
	copy(dotEntry.Filename[:], ".")

	dotDotEntry := DirEntry{Type: uint8(EntryTypeDotDot), StartCluster: fixtureRootCluster}
	copy(dotDotEntry.Filename[:], "..")

	programFilesBuf := packEntries(t, dotEntry, dotDotEntry)
	writeSwappedAt(t, image, clusterOffset(fixtureProgramFilesDir), programFilesBuf)

	// --- file content (clusters 2, 3, 4) ---

	fileSize := uint64(fixtureFileClusters)*uint64(bytesPerCluster) - uint64(fixtureFileUnusedLast)
	content := make([]byte, fileSize)
	for i := range content {
		content[i] = byte(i % 251)
	}
	fx.fileContent = content

	remaining := content
	for i := uint32(0); i < fixtureFileClusters; i++ {
		n := bytesPerCluster
		if uint64(n) > uint64(len(remaining)) {
			n = uint32(len(remaining))
		}

		chunk := make([]byte, bytesPerCluster)
		copy(chunk, remaining[:n])

		writeSwappedAt(t, image, clusterOffset(int32(fixtureFileStart+i)), chunk)

		remaining = remaining[n:]
	}

	return fx
}

// packEntries restruct.Packs a sequence of DirEntry values back to back.
func packEntries(t *testing.T, entries ...DirEntry) []byte {
	t.Helper()

	out := make([]byte, 0, len(entries)*dirEntrySize)

	for _, e := range entries {
		raw, err := restruct.Pack(defaultEncoding, &e)
		if err != nil {
			t.Fatalf("packing directory entry: %s", err)
		}

		if len(raw) != dirEntrySize {
			t.Fatalf("packed directory entry is %d bytes, not %d", len(raw), dirEntrySize)
		}

		out = append(out, raw...)
	}

	return out
}

// writeSwappedAt writes a pre-swapped copy of data at the given absolute
// image offset, so that a readSwapped() call at that location hands the
// caller back exactly data.
func writeSwappedAt(t *testing.T, image []byte, offset int64, data []byte) {
	t.Helper()

	swapped := swappedCopy(data)
	writeAt(t, image, offset, swapped)
}

// writeAt writes data into image at offset using a bytewriter bounded to
// exactly that region, so an oversized write fails loudly instead of
// silently clobbering a neighboring structure.
func writeAt(t *testing.T, image []byte, offset int64, data []byte) {
	t.Helper()

	w := bytewriter.New(image[offset : offset+int64(len(data))])

	n, err := w.Write(data)
	if err != nil {
		t.Fatalf("writing fixture data at offset %d: %s", offset, err)
	}

	if n != len(data) {
		t.Fatalf("short write at offset %d: wrote %d of %d bytes", offset, n, len(data))
	}
}

// openFixture builds a fixture and opens it as a Filesystem the way
// DiskOpen would.
func openFixture(t *testing.T) (*fixture, *Filesystem) {
	t.Helper()

	fx := buildFixture(t)

	source := &memSource{
		rws:        bytesextra.NewReadWriteSeeker(fx.image),
		total:      uint64(len(fx.image)),
		sectorSize: fx.blockSize,
	}

	fs, err := DiskOpen("fixture.img", source)
	if err != nil {
		t.Fatalf("DiskOpen: %s", err)
	}

	return fx, fs
}
