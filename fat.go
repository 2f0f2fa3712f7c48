package fat24

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

const (
	fatEntryBytes = 3

	// fatMarkedBit and fatMarkMask together carry the firmware's
	// bookkeeping mark (see IsMarked), which this decoder reports for
	// diagnostics only. fatMarkedBit also selects how value() recovers the
	// chain pointer; free/end-of-chain decisions use the raw entry.
	fatMarkedBit = 0x800000

	// fatMarkMask is ORed into the value of an entry with fatMarkedBit set
	// to recover the cluster-chain pointer; fatUnmarkedValueMask is ANDed
	// into the value of an entry with fatMarkedBit clear for the same
	// purpose. See value().
	fatMarkMask          = 0x7e0000
	fatUnmarkedValueMask = 0x01ffff

	// fatFree and fatChainEnd are the two reserved raw 24-bit entry
	// values; they're recognised before any marking transform is
	// applied, since the transform only makes sense for entries that
	// hold an actual cluster-chain pointer.
	fatFree     = 0xffffff
	fatChainEnd = 0xfffffe

	// maxChainClusters guards WalkChain against a corrupt FAT that cycles
	// back on itself: no legitimate file can span more clusters than the
	// FAT has entries.
	maxChainClusters = maxFatEntries
)

// Fat is the decoded allocation table: one 3-byte big-endian entry per
// cluster, read once and held as plain Go values for the lifetime of the
// Filesystem.
type Fat struct {
	entries []uint32
}

// loadFat reads the FAT region (spec.md §4.C: 768 blocks starting at
// block 256) and decodes every entry.
func loadFat(fs *Filesystem) (fat Fat, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			if asErr, ok := errRaw.(error); ok {
				err = log.Wrap(asErr)
			} else {
				err = log.Errorf("panic loading FAT: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	byteLen := fatRegionBlocks * fs.Disk.BlockSize
	raw := make([]byte, byteLen)

	offset := int64(fatRegionStartBlock) * int64(fs.Disk.BlockSize)

	readErr := fs.Disk.source.ReadAt(raw, offset)
	if readErr != nil {
		return Fat{}, ioErrorf(readErr, "short read of FAT region at block %d", fatRegionStartBlock)
	}

	swapWords(raw)

	entryCount := len(raw) / fatEntryBytes
	entries := make([]uint32, entryCount)

	for i := 0; i < entryCount; i++ {
		b := raw[i*fatEntryBytes : i*fatEntryBytes+fatEntryBytes]
		entries[i] = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	}

	return Fat{entries: entries}, nil
}

// count returns the number of entries this FAT holds.
func (fat Fat) count() int {
	return len(fat.entries)
}

// rawEntry returns the undecoded 24-bit value at the given cluster index,
// panicking (a Fatal, spec.md §7 class 4, caller bounds violation) if the
// index is out of range.
func (fat Fat) rawEntry(cluster uint32) uint32 {
	if int(cluster) >= len(fat.entries) {
		log.Panicf("cluster %d is out of range for a %d-entry FAT", cluster, len(fat.entries))
	}

	return fat.entries[cluster]
}

// value returns the cluster-chain pointer an entry carries, after
// undoing the marking transform: with fatMarkedBit set the pointer is
// recovered by ORing in fatMarkMask, with it clear by masking to the low
// 17 bits. Callers must only call this once isFree/isChainEnd have ruled
// out the two reserved raw values — the transform doesn't apply to
// those.
func (fat Fat) value(cluster uint32) uint32 {
	raw := fat.rawEntry(cluster)

	if raw&fatMarkedBit != 0 {
		return raw | fatMarkMask
	}

	return raw & fatUnmarkedValueMask
}

// IsMarked reports the firmware's bookkeeping mark on this entry. With
// fatMarkedBit set, the entry is marked unless all of its fatMarkMask bits
// are set; with fatMarkedBit clear, it is marked if any of them is set.
// The reserved values fatFree and fatChainEnd therefore read as unmarked.
// Informational only; see fatMarkedBit.
func (fat Fat) IsMarked(cluster uint32) bool {
	raw := fat.rawEntry(cluster)

	if raw&fatMarkedBit != 0 {
		return raw&fatMarkMask != fatMarkMask
	}

	return raw&fatMarkMask != 0
}

// isFree reports whether a cluster is unallocated. Checked against the
// raw, un-transformed entry: fatFree is a reserved value, not a marked
// or unmarked pointer.
func (fat Fat) isFree(cluster uint32) bool {
	return fat.rawEntry(cluster) == fatFree
}

// isChainEnd reports whether a cluster is the last in its chain, again
// checked against the raw entry for the same reason as isFree.
func (fat Fat) isChainEnd(cluster uint32) bool {
	return fat.rawEntry(cluster) == fatChainEnd
}

// Cluster describes one link of a materialized cluster chain: the
// cluster number, and how many bytes of it belong to the file (all of
// fs.BytesPerCluster except possibly on the final link, where the
// caller's file size truncates it).
type Cluster struct {
	ClusterNumber uint32
	BytesUsed     uint32
}

// walkChain walks the cluster chain starting at startCluster, calling fn
// once per cluster visited (in chain order). It stops at chain end, and
// fails if the chain revisits fatFree/out-of-range territory or exceeds
// maxChainClusters links (a cycle).
func (fat Fat) walkChain(startCluster uint32, fn func(cluster uint32)) error {
	cluster := startCluster
	visited := 0

	for {
		if visited >= maxChainClusters {
			return formatErrorf("more than %d clusters in chain starting at %d", maxChainClusters, startCluster)
		}

		if int(cluster) >= fat.count() {
			return formatErrorf("chain starting at %d references out-of-range cluster %d", startCluster, cluster)
		}

		if fat.isFree(cluster) {
			return formatErrorf("chain starting at %d references free cluster %d", startCluster, cluster)
		}

		fn(cluster)
		visited++

		if fat.isChainEnd(cluster) {
			return nil
		}

		cluster = fat.value(cluster)
	}
}

// materialize walks the chain starting at startCluster twice: once to
// count the clusters, once to populate a Cluster slice whose final
// element's BytesUsed is truncated to what remains of fileSize. If the
// walked chain length disagrees with expectedClusters (the count a
// directory entry claims), a Warning is raised rather than an error —
// spec.md §4.D documents the stored count as advisory.
func (fs *Filesystem) materialize(startCluster uint32, fileSize uint64, expectedClusters uint32) ([]Cluster, error) {
	count := 0

	countErr := fs.fat.walkChain(startCluster, func(cluster uint32) {
		count++
	})
	if countErr != nil {
		return nil, countErr
	}

	if uint32(count) != expectedClusters {
		fs.Warnings.Add("directory entry claims %d clusters but chain from %d has %d", expectedClusters, startCluster, count)
	}

	chain := make([]Cluster, 0, count)
	remaining := fileSize

	walkErr := fs.fat.walkChain(startCluster, func(cluster uint32) {
		used := uint64(fs.BytesPerCluster)
		if remaining < used {
			used = remaining
		}
		remaining -= used

		chain = append(chain, Cluster{ClusterNumber: cluster, BytesUsed: uint32(used)})
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return chain, nil
}
