package fat24

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

// Disk and Filesystem expose the decoder's whole surface; DiskOpen is
// the one entry point production callers (cmd/tfhd) and tests both go
// through.

// DiskOpen derives geometry from source and validates the filesystem
// superblocks, returning a ready-to-use Filesystem. path is retained on
// Disk purely for diagnostics (cmd/tfhd prints it).
func DiskOpen(path string, source BlockSource) (fs *Filesystem, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			if asErr, ok := errRaw.(error); ok {
				err = log.Wrap(asErr)
			} else {
				err = log.Errorf("panic in DiskOpen: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	disk := newDisk(path, source)

	fs, openErr := fsOpen(disk)
	log.PanicIf(openErr)

	fat, fatErr := loadFat(fs)
	log.PanicIf(fatErr)

	fs.fat = fat

	return fs, nil
}

// Root returns the Entry for the filesystem's root directory.
func (fs *Filesystem) Root() Entry {
	return Entry{
		Name:  "",
		Type:  EntryTypeRoot,
		fs:    fs,
		entry: newRootEntry(fs),
	}
}

// Open resolves path (slash-separated, relative to the root) and
// returns a readable handle on it.
func (fs *Filesystem) Open(path string) (*FileHandle, error) {
	entry, err := ResolvePath(fs, path)
	if err != nil {
		return nil, err
	}

	return entry.Open()
}

// List resolves path and lists its contents. path must name a
// directory-shaped entry (Root, SubDir, or Recycle); anything else is a
// format error.
func (fs *Filesystem) List(path string) ([]Entry, error) {
	entry, err := ResolvePath(fs, path)
	if err != nil {
		return nil, err
	}

	if !entry.Type.isDirectory() && entry.Type != EntryTypeRecycle {
		return nil, formatErrorf("%q is not a directory (type %s)", path, entry.Type)
	}

	dirHandle, err := entry.Open()
	if err != nil {
		return nil, err
	}

	return ListDir(dirHandle)
}
