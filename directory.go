package fat24

import (
	"strings"
	"time"
)

// Entry is the public, read-only view of one directory-entry slot that
// ListDir and ResolvePath hand back to callers. It omits the raw
// DirEntry's unreliable fields (Clusters/UnusedBytesInLastCluster for a
// subdirectory aren't trustworthy until fixed up; Size below does that
// for you).
type Entry struct {
	Name    string
	Type    EntryType
	ModTime time.Time
	Marked  bool

	fs    *Filesystem
	entry DirEntry
}

// Size returns the entry's byte size, running the directory fixup first
// if this entry is itself a directory.
func (e Entry) Size() (uint64, error) {
	fh, err := openFile(e.fs, e.entry)
	if err != nil {
		return 0, err
	}

	return fh.Size()
}

// Open returns a readable handle for this entry.
func (e Entry) Open() (*FileHandle, error) {
	return openFile(e.fs, e.entry)
}

// forEachDirEntry walks a directory's slots in on-disk order, skipping
// Unused gaps, and calling fn once per live entry. An unrecognised entry
// type is a format error (spec.md §4.E): this decoder only understands
// the fixed vocabulary EntryType enumerates.
func forEachDirEntry(dirHandle *FileHandle, fn func(de DirEntry) error) error {
	if err := dirHandle.runFixup(); err != nil {
		return err
	}

	for _, cl := range dirHandle.chain {
		entriesInCluster := cl.BytesUsed / dirEntrySize
		if entriesInCluster == 0 {
			continue
		}

		buf := make([]byte, entriesInCluster*dirEntrySize)

		readErr := dirHandle.fs.read(buf, int32(cl.ClusterNumber), 0, uint32(len(buf)))
		if readErr != nil {
			return readErr
		}

		for i := uint32(0); i < entriesInCluster; i++ {
			raw := buf[i*dirEntrySize : (i+1)*dirEntrySize]

			de, parseErr := parseDirEntry(raw)
			if parseErr != nil {
				return parseErr
			}

			if de.entryType() == EntryTypeUnused {
				continue
			}

			switch de.entryType() {
			case EntryTypeFileA, EntryTypeFileT, EntryTypeSubDir, EntryTypeRecycle, EntryTypeDot, EntryTypeDotDot:
			default:
				return formatErrorf("unrecognised directory entry type 0x%02x in cluster %d slot %d", de.Type, cl.ClusterNumber, i)
			}

			if err := fn(de); err != nil {
				return err
			}
		}
	}

	return nil
}

// ListDir lists the live, named entries of a directory (Dot and DotDot
// are suppressed, matching spec.md §4.E's listing semantics).
func ListDir(dirHandle *FileHandle) ([]Entry, error) {
	var entries []Entry

	walkErr := forEachDirEntry(dirHandle, func(de DirEntry) error {
		if de.entryType() == EntryTypeDot || de.entryType() == EntryTypeDotDot {
			return nil
		}

		entries = append(entries, Entry{
			Name:    de.name(),
			Type:    de.entryType(),
			ModTime: de.Mtime.Time(),
			Marked:  dirHandle.fs.fat.IsMarked(de.StartCluster),
			fs:      dirHandle.fs,
			entry:   de,
		})

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return entries, nil
}

// ResolvePath walks a slash-separated path from the root directory,
// returning the Entry for the final component. An empty path (or "/")
// resolves to the root directory itself.
func ResolvePath(fs *Filesystem, path string) (Entry, error) {
	root := newRootEntry(fs)

	current := Entry{
		Name:  "",
		Type:  EntryTypeRoot,
		fs:    fs,
		entry: root,
	}

	components := splitPath(path)

	for _, component := range components {
		dirHandle, err := openFile(fs, current.entry)
		if err != nil {
			return Entry{}, err
		}

		found, err := findNamedEntry(dirHandle, component)
		if err != nil {
			return Entry{}, err
		}

		if found == nil {
			return Entry{}, notFoundErrorf("no such file or directory: %q (looking for %q)", path, component)
		}

		current = *found
	}

	return current, nil
}

// findNamedEntry scans one directory's live entries for a name match.
func findNamedEntry(dirHandle *FileHandle, name string) (*Entry, error) {
	var match *Entry

	walkErr := forEachDirEntry(dirHandle, func(de DirEntry) error {
		if match != nil {
			return nil
		}

		if de.entryType() == EntryTypeDot || de.entryType() == EntryTypeDotDot {
			return nil
		}

		if de.name() == name {
			m := Entry{
				Name:    de.name(),
				Type:    de.entryType(),
				ModTime: de.Mtime.Time(),
				Marked:  dirHandle.fs.fat.IsMarked(de.StartCluster),
				fs:      dirHandle.fs,
				entry:   de,
			}
			match = &m
		}

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return match, nil
}

// splitPath breaks a slash-separated path into non-empty components.
func splitPath(path string) []string {
	var out []string

	for _, part := range strings.Split(path, "/") {
		if part != "" {
			out = append(out, part)
		}
	}

	return out
}
