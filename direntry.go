package fat24

import (
	"bytes"
	"reflect"
	"time"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// EntryType is the one-byte discriminant at the start of every directory
// entry. The values below are the ones the Topfield firmware actually
// writes; Root has no on-disk representation (see newRootEntry).
type EntryType uint8

const (
	EntryTypeFileA   EntryType = 0xd0
	EntryTypeFileT   EntryType = 0xd1
	EntryTypeDotDot  EntryType = 0xf0
	EntryTypeDot     EntryType = 0xf1
	EntryTypeSubDir  EntryType = 0xf2
	EntryTypeRecycle EntryType = 0xf3
	EntryTypeUnused  EntryType = 0xff

	// EntryTypeRoot never appears on disk; ResolvePath and Filesystem.Root
	// synthesize a DirEntry carrying it to stand in for the root directory, whose
	// attributes live in the superblock rather than in a parent's
	// directory entry. See spec.md §9.
	EntryTypeRoot EntryType = 0xef
)

// String names the entry type for diagnostics and error messages.
func (et EntryType) String() string {
	switch et {
	case EntryTypeFileA:
		return "FileA"
	case EntryTypeFileT:
		return "FileT"
	case EntryTypeDotDot:
		return "DotDot"
	case EntryTypeDot:
		return "Dot"
	case EntryTypeSubDir:
		return "SubDir"
	case EntryTypeRecycle:
		return "Recycle"
	case EntryTypeUnused:
		return "Unused"
	case EntryTypeRoot:
		return "Root"
	default:
		return "Unknown"
	}
}

// isFile reports whether this type denotes a readable byte-stream file
// (as opposed to a directory-shaped entry).
func (et EntryType) isFile() bool {
	return et == EntryTypeFileA || et == EntryTypeFileT
}

// isDirectory reports whether this type denotes something ResolvePath
// and ListDir can descend into.
func (et EntryType) isDirectory() bool {
	return et == EntryTypeSubDir || et == EntryTypeRoot
}

// Timestamp is the 7-byte modification-time record spec.md §6 documents:
// an MS-DOS-style split of year/month/day/hour/minute/second plus a
// hundredths-of-a-second field the firmware rarely populates.
type Timestamp struct {
	YearsSince1980 uint8
	Month          uint8
	Day            uint8
	Hour           uint8
	Minute         uint8
	Second         uint8
	Hundredths     uint8
}

// Time converts the on-disk timestamp to a time.Time in UTC. The
// firmware doesn't record a timezone; callers in a particular locale
// should reinterpret as needed.
func (ts Timestamp) Time() time.Time {
	return time.Date(
		1980+int(ts.YearsSince1980),
		time.Month(ts.Month),
		int(ts.Day),
		int(ts.Hour),
		int(ts.Minute),
		int(ts.Second),
		int(ts.Hundredths)*10*int(time.Millisecond),
		time.UTC,
	)
}

// DirEntry is the 128-byte on-disk directory-entry record spec.md §6
// lays out. Entries are packed with no padding; order matches disk
// layout exactly.
type DirEntry struct {
	Type                     uint8
	Mtime                    Timestamp
	StartCluster             uint32
	Clusters                 uint32
	UnusedBytesInLastCluster uint32
	Filename                 [64]byte
	ServiceName              [31]byte
	Attributes               uint8
	Flags                     uint8
	S3CRC                    uint32
	Reserved                 [7]byte
}

// entryType returns the typed discriminant.
func (de DirEntry) entryType() EntryType {
	return EntryType(de.Type)
}

// name returns the NUL-terminated filename as a Go string.
func (de DirEntry) name() string {
	if i := bytes.IndexByte(de.Filename[:], 0); i >= 0 {
		return string(de.Filename[:i])
	}

	return string(de.Filename[:])
}

// size returns the file size implied by this entry: a whole number of
// clusters, minus whatever's unused in the last one. Only meaningful for
// file and directory entries, not Unused.
func (de DirEntry) size(bytesPerCluster uint32) uint64 {
	if de.Clusters == 0 {
		return 0
	}

	total := uint64(de.Clusters) * uint64(bytesPerCluster)

	return total - uint64(de.UnusedBytesInLastCluster)
}

const dirEntrySize = 128

// parseDirEntry unpacks one 128-byte slice into a DirEntry.
func parseDirEntry(raw []byte) (de DirEntry, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			if asErr, ok := errRaw.(error); ok {
				err = log.Wrap(asErr)
			} else {
				err = log.Errorf("panic parsing directory entry: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	if len(raw) != dirEntrySize {
		log.Panicf("directory entry buffer is %d bytes, not %d", len(raw), dirEntrySize)
	}

	unpackErr := restruct.Unpack(raw, defaultEncoding, &de)
	log.PanicIf(unpackErr)

	return de, nil
}

// newRootEntry synthesizes the DirEntry that stands in for the root
// directory: its cluster chain starts at the superblock's
// RootDirCluster, its Clusters is 1, its UnusedBytesInLastCluster comes
// from the superblock's UnusedBytesInRoot field, and it carries no
// backing 128-byte record on disk. A fresh value is built on each lookup
// rather than cached as mutable shared state.
func newRootEntry(fs *Filesystem) DirEntry {
	return DirEntry{
		Type:                     uint8(EntryTypeRoot),
		StartCluster:             fs.RootDirCluster,
		Clusters:                 1,
		UnusedBytesInLastCluster: fs.UnusedBytesInRoot,
	}
}
