package splitter

import "fmt"

// Label returns the bijective base-26 label of a 0-based index:
// 0 -> A, 25 -> Z, 26 -> AA, 27 -> AB, 701 -> ZZ, 702 -> AAA.
func Label(index int) string {
	if index < 0 {
		return ""
	}
	var buf [16]byte
	i := len(buf)
	for n := index; n >= 0; n = n/26 - 1 {
		i--
		buf[i] = byte('A' + n%26)
	}
	return string(buf[i:])
}

// ChunkName builds "<base> - Part <Label><ext>".
func ChunkName(base, ext string, index int) string {
	return fmt.Sprintf("%s - Part %s%s", base, Label(index), ext)
}

// PlanCount is the number of chunks a source of size bytes splits into.
func PlanCount(size, maxChunkSize int64) int {
	if maxChunkSize <= 0 || size <= maxChunkSize {
		return 1
	}
	return int((size + maxChunkSize - 1) / maxChunkSize)
}
