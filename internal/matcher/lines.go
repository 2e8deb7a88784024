package matcher

import "sort"

// LineIndex maps byte offsets into a file's content to 1-based line numbers,
// built once per file and reused across every pattern matched against it
// (spec §4.3: "the caller converts byte offsets to 1-based line numbers via
// a precomputed newline index for the file").
type LineIndex struct {
	newlineOffsets []int
}

// NewLineIndex scans content once and records the byte offset of every '\n'.
func NewLineIndex(content []byte) *LineIndex {
	idx := &LineIndex{}
	for i, b := range content {
		if b == '\n' {
			idx.newlineOffsets = append(idx.newlineOffsets, i)
		}
	}
	return idx
}

// Line returns the 1-based line number containing byteOffset.
func (idx *LineIndex) Line(byteOffset int) int {
	// newlineOffsets[i] is the offset of the i-th '\n'; the number of
	// newlines strictly before byteOffset is the 0-based line count.
	n := sort.Search(len(idx.newlineOffsets), func(i int) bool {
		return idx.newlineOffsets[i] >= byteOffset
	})
	return n + 1
}
