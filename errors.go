package gzstream

import (
	"io"

	"github.com/juju/errors"

	"github.com/rasky/gzstream/internal/flate"
)

var (
	// ErrNotOpen is returned by operations on a reader that has not been
	// opened, or has already been closed.
	ErrNotOpen = errors.New("gzstream: file not open")

	// ErrHeader is returned when the gzip header is malformed: bad magic,
	// unknown compression method, reserved flags or a truncated header.
	ErrHeader = errors.New("gzstream: invalid gzip header")

	// ErrChecksum is returned when the CRC-32 or the length recorded in the
	// gzip trailer does not match the decompressed data.
	ErrChecksum = errors.New("gzstream: invalid checksum")
)

// IsDecodeError reports whether err was caused by corrupt or truncated
// compressed data, as opposed to a malformed header or a failure to open or
// read the file.
func IsDecodeError(err error) bool {
	switch errors.Cause(err).(type) {
	case flate.CorruptInputError, flate.InternalError:
		return true
	}
	cause := errors.Cause(err)
	return cause == ErrChecksum || cause == io.ErrUnexpectedEOF
}
