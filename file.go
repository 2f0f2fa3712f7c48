package fat24

import (
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// FileHandle is an open, readable byte-stream over a file or directory's
// cluster chain. It is not safe for concurrent use.
type FileHandle struct {
	fs    *Filesystem
	entry DirEntry
	chain []Cluster
	size  uint64
	cursor uint64

	// fixedUp is false for a freshly opened directory entry, whose
	// Clusters/UnusedBytesInLastCluster fields spec.md §4.E documents as
	// unreliable until the subdirectory's own Dot entry is consulted.
	fixedUp bool
}

// openFile builds a FileHandle for entry, whose cluster chain lives in
// fs. See spec.md §4.E for the per-type construction rules; opening an
// Unused slot is a programmer error and panics.
func openFile(fs *Filesystem, entry DirEntry) (fh *FileHandle, err error) {
	// An Unused slot is rejected ahead of the recover below, so that the
	// panic reaches the caller.
	if entry.entryType() == EntryTypeUnused {
		log.Panicf("attempt to open an unused directory-entry slot")
	}

	defer func() {
		if errRaw := recover(); errRaw != nil {
			if asErr, ok := errRaw.(error); ok {
				err = log.Wrap(asErr)
			} else {
				err = log.Errorf("panic opening file: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	switch entry.entryType() {
	case EntryTypeFileA, EntryTypeFileT, EntryTypeRoot:
		fh = &FileHandle{fs: fs, entry: entry, fixedUp: true}

	case EntryTypeSubDir, EntryTypeRecycle, EntryTypeDot, EntryTypeDotDot:
		fh = &FileHandle{fs: fs, entry: entry, fixedUp: false}

	default:
		return nil, formatErrorf("unrecognised directory entry type 0x%02x", entry.Type)
	}

	fh.size = entry.size(fs.BytesPerCluster)

	chain, chainErr := fs.materialize(entry.StartCluster, fh.size, entry.Clusters)
	log.PanicIf(chainErr)

	fh.chain = chain

	return fh, nil
}

// runFixup reads this directory's own Dot entry (the first 128 bytes of
// its own chain) to discover its true size, per spec.md §4.E's directory
// size-fixup protocol: a subdirectory's stated size in its parent's
// entry is not trustworthy, but the Dot entry it contains about itself
// is. This runs lazily, once, on first Read or ListDir.
func (fh *FileHandle) runFixup() error {
	if fh.fixedUp {
		return nil
	}

	if len(fh.chain) == 0 {
		fh.fixedUp = true
		return nil
	}

	raw := make([]byte, dirEntrySize)

	readErr := fh.fs.read(raw, int32(fh.chain[0].ClusterNumber), 0, dirEntrySize)
	if readErr != nil {
		return readErr
	}

	dot, parseErr := parseDirEntry(raw)
	if parseErr != nil {
		return parseErr
	}

	if dot.entryType() != EntryTypeDot {
		return formatErrorf("expected a Dot entry at the head of cluster %d, found type 0x%02x", fh.chain[0].ClusterNumber, dot.Type)
	}

	fh.size = dot.size(fh.fs.BytesPerCluster)

	chain, chainErr := fh.fs.materialize(fh.entry.StartCluster, fh.size, dot.Clusters)
	if chainErr != nil {
		return chainErr
	}

	fh.chain = chain
	fh.fixedUp = true

	return nil
}

// Size returns the file's byte length, running the directory fixup first
// if needed.
func (fh *FileHandle) Size() (uint64, error) {
	if err := fh.runFixup(); err != nil {
		return 0, err
	}

	return fh.size, nil
}

// Read implements io.Reader over the file's materialized cluster chain,
// reading in chunks no larger than one 188-block chunk at a time (the
// unit the Topfield firmware itself reads and writes in).
func (fh *FileHandle) Read(buf []byte) (int, error) {
	if err := fh.runFixup(); err != nil {
		return 0, err
	}

	if fh.cursor >= fh.size {
		return 0, io.EOF
	}

	want := uint64(len(buf))
	if remaining := fh.size - fh.cursor; want > remaining {
		want = remaining
	}

	bytesPerCluster := uint64(fh.fs.BytesPerCluster)
	chunkBytes := uint64(chunkBlocks) * uint64(fh.fs.Disk.BlockSize)

	nread := 0

	for uint64(nread) < want {
		clusterIndex := int(fh.cursor / bytesPerCluster)
		if clusterIndex >= len(fh.chain) {
			break
		}

		offsetInCluster := uint32(fh.cursor % bytesPerCluster)
		cl := fh.chain[clusterIndex]

		if offsetInCluster >= cl.BytesUsed {
			break
		}

		avail := uint64(cl.BytesUsed - offsetInCluster)
		step := want - uint64(nread)
		if step > avail {
			step = avail
		}
		if step > chunkBytes {
			step = chunkBytes
		}

		// fs.read requires a whole number of 32-bit words; pad the
		// transfer up to the next word boundary and copy only the
		// requested prefix out of it.
		padded := step
		if rem := padded % 4; rem != 0 {
			padded += 4 - rem
		}

		tmp := make([]byte, padded)

		readErr := fh.fs.read(tmp, int32(cl.ClusterNumber), offsetInCluster, uint32(padded))
		if readErr != nil {
			return nread, readErr
		}

		copy(buf[nread:], tmp[:step])

		nread += int(step)
		fh.cursor += step
	}

	return nread, nil
}

// Seek repositions the cursor, à la io.Seeker with io.SeekStart/
// io.SeekCurrent/io.SeekEnd semantics.
func (fh *FileHandle) Seek(offset int64, whence int) (int64, error) {
	if err := fh.runFixup(); err != nil {
		return 0, err
	}

	var base int64

	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(fh.cursor)
	case io.SeekEnd:
		base = int64(fh.size)
	default:
		log.Panicf("invalid whence %d", whence)
	}

	next := base + offset
	if next < 0 {
		return 0, formatErrorf("seek to negative offset %d", next)
	}

	fh.cursor = uint64(next)

	return next, nil
}
