package gzstream

import (
	"sort"

	"github.com/rasky/gzstream/internal/flate"
)

// A Synchpoint is a place in a gzip stream where decompression can resume
// without starting over: the compressed offset to read from, the matching
// decompressed offset, and a private copy of the decompressor state there.
type Synchpoint struct {
	Compressed   int64
	Decompressed int64

	state *flate.Decompressor
	crc   uint32
	size  uint32
}

// index is the list of synchpoints of a stream, sorted by both offsets.
// The first entry is always the start of the deflate data.
type index []Synchpoint

// before returns the last synchpoint at or before decompressed offset off.
func (idx index) before(off int64) *Synchpoint {
	j := sort.Search(len(idx), func(j int) bool {
		return idx[j].Decompressed > off
	})
	if j == 0 {
		return &idx[0]
	}
	return &idx[j-1]
}
