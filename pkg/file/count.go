package file

import (
	"os"
	"sort"
	"strings"
)

// CountByExt returns the number of regular files in dir with the given
// extension (case-insensitive, leading dot required).
func CountByExt(dir, ext string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(ext, extOf(entry.Name())) {
			count++
		}
	}
	return count, nil
}

// ListByExt returns the lexicographically sorted file names in dir with the
// given extension. Frame sequences are zero-padded, so lexicographic order
// is frame order.
func ListByExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(ext, extOf(entry.Name())) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func extOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return name[idx:]
}
