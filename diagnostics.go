package fat24

import (
	"github.com/boljen/go-bitmap"
	"github.com/gocarina/gocsv"
)

// ClusterUsage summarizes how many of a filesystem's clusters are
// reachable from the root, versus how many the superblock claims are in
// use. A mismatch here is a stronger integrity signal than any single
// directory entry's stated cluster count, since it's derived by walking
// every chain in the tree.
type ClusterUsage struct {
	TotalClusters  int
	ReachableUsed  int
	SuperblockUsed int
}

// ClusterBitmap walks every file and directory reachable from the root,
// marking each cluster its chain touches, and returns the resulting
// bitmap alongside a summary. Index i of the bitmap is set if cluster i
// is reachable from some live directory entry.
func ClusterBitmap(fs *Filesystem) (*bitmap.Bitmap, ClusterUsage, error) {
	bm := bitmap.New(fs.fat.count())

	if err := markReachable(fs.Root(), bm); err != nil {
		return nil, ClusterUsage{}, err
	}

	reachable := 0
	for i := 0; i < fs.fat.count(); i++ {
		if bm.Get(i) {
			reachable++
		}
	}

	usage := ClusterUsage{
		TotalClusters:  fs.fat.count(),
		ReachableUsed:  reachable,
		SuperblockUsed: int(fs.UsedClusters),
	}

	return &bm, usage, nil
}

// markReachable marks entry's own cluster chain, then recurses into it
// if it is a directory.
func markReachable(entry Entry, bm bitmap.Bitmap) error {
	fh, err := entry.Open()
	if err != nil {
		return err
	}

	if err := fh.runFixup(); err != nil {
		return err
	}

	for _, cl := range fh.chain {
		bm.Set(int(cl.ClusterNumber), true)
	}

	if !entry.Type.isDirectory() && entry.Type != EntryTypeRecycle {
		return nil
	}

	children, err := ListDir(fh)
	if err != nil {
		return err
	}

	for _, child := range children {
		if err := markReachable(child, bm); err != nil {
			return err
		}
	}

	return nil
}

// listingRow is one row of a CSV directory listing, exported via gocsv
// the way a long-format `ls --csv` would.
type listingRow struct {
	Name    string `csv:"name"`
	Type    string `csv:"type"`
	Size    uint64 `csv:"size"`
	ModTime string `csv:"mtime"`
	Marked  bool   `csv:"marked"`
}

// ExportListingCSV renders entries as CSV text, resolving each entry's
// true size (which may run the directory-fixup read for subdirectories).
func ExportListingCSV(entries []Entry) (string, error) {
	rows := make([]listingRow, 0, len(entries))

	for _, e := range entries {
		size, err := e.Size()
		if err != nil {
			return "", err
		}

		rows = append(rows, listingRow{
			Name:    e.Name,
			Type:    e.Type.String(),
			Size:    size,
			ModTime: e.ModTime.Format("2006-01-02 15:04:05"),
			Marked:  e.Marked,
		})
	}

	return gocsv.MarshalString(&rows)
}
