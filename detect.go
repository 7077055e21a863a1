package gzstream

import (
	"io"

	"github.com/juju/errors"
)

// IsGzip reports whether r starts with the gzip magic bytes, then rewinds r
// to its beginning. Only the magic is checked: a plain file that happens to
// start with 1f 8b is reported as gzip, and will fail later with ErrHeader.
//
// A stream shorter than two bytes is not gzip.
func IsGzip(r io.ReadSeeker) (bool, error) {
	var magic [2]byte
	n, err := io.ReadFull(r, magic[:])
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
	default:
		return false, errors.Trace(err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return false, errors.Trace(err)
	}
	return n == 2 && magic[0] == gzipID1 && magic[1] == gzipID2, nil
}
