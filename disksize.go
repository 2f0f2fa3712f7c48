package fat24

import (
	"fmt"
	"strconv"
	"strings"
)

// diskSizeFactor is the suffix multiplier this decoder's size grammar
// uses: base-1000, not base-1024, matching the Topfield firmware's own
// disk-size arithmetic rather than binary-prefix convention.
const diskSizeFactor = 1000

var diskSizeSuffixes = []struct {
	suffix     string
	multiplier uint64
}{
	{"T", diskSizeFactor * diskSizeFactor * diskSizeFactor * diskSizeFactor},
	{"G", diskSizeFactor * diskSizeFactor * diskSizeFactor},
	{"M", diskSizeFactor * diskSizeFactor},
	{"k", diskSizeFactor},
}

// ParseDiskSize parses a string like "160G" or "2048" (bytes, no
// suffix) into a byte count. Suffix matching is case-insensitive on the
// letter but the canonical output of FormatDiskSize always uses the
// table's casing.
func ParseDiskSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, formatErrorf("empty disk size")
	}

	for _, entry := range diskSizeSuffixes {
		if strings.EqualFold(s[len(s)-1:], entry.suffix) {
			numeric := s[:len(s)-1]

			value, err := strconv.ParseFloat(numeric, 64)
			if err != nil {
				return 0, formatErrorf("invalid disk size %q: %s", s, err)
			}

			return uint64(value * float64(entry.multiplier)), nil
		}
	}

	value, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, formatErrorf("invalid disk size %q: %s", s, err)
	}

	return value, nil
}

// FormatDiskSize renders a byte count using the largest suffix that
// keeps the mantissa at or above 1, to one decimal place.
func FormatDiskSize(bytes uint64) string {
	for _, entry := range diskSizeSuffixes {
		if bytes >= entry.multiplier {
			return fmt.Sprintf("%.1f%s", float64(bytes)/float64(entry.multiplier), entry.suffix)
		}
	}

	return fmt.Sprintf("%d", bytes)
}
