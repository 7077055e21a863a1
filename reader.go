package gzstream

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/rasky/gzstream/internal/flate"
)

// An InflateReader decompresses a gzip file read through a FileReader and
// allows seeking to any offset of the decompressed stream.
//
// Sequential reads simply decompress. The first seek that cannot be served
// from the current output buffer triggers a single full pass over the file,
// which records a Synchpoint every span bytes of output (see WithSpan).
// From then on, any seek resumes decompression from the closest Synchpoint
// before the target, so it never decompresses more than about span bytes.
//
// Errors in the compressed data are sticky: once the stream failed, every
// read returns the same error and no more data.
type InflateReader struct {
	file   *FileReader
	name   string
	dec    *flate.Decompressor
	header Header
	start  int64 // compressed offset of the deflate data

	crc  uint32
	size uint32 // decompressed length mod 2^32, as stored in the trailer

	// The live decoder has produced exactly outHead+outLen bytes, of which
	// out[:outLen] are the last ones; outPos is the read cursor.
	out     []byte
	outHead int64
	outLen  int
	outPos  int
	ended   bool

	pending pendingSeek
	index   index
	length  int64 // total decompressed length, -1 until known

	// Bytes decompressed to resolve the last index-assisted seek.
	seekCost int64

	err  error
	opts options
	log  zerolog.Logger
}

// NewInflateReader reads the gzip header from file and returns a reader for
// the decompressed data that follows. A malformed header does not prevent
// the creation of the reader, but leaves it failed: see Err.
func NewInflateReader(file *FileReader, opts ...Option) *InflateReader {
	o := buildOptions(opts)
	z := &InflateReader{
		file:   file,
		name:   file.Name(),
		out:    make([]byte, o.outputSize),
		length: -1,
		opts:   o,
		log:    o.log.With().Str("file", file.Name()).Logger(),
	}
	hdr, err := readHeader(file)
	if err != nil {
		z.fail(err)
		return z
	}
	z.header = hdr
	z.start = file.Tell()
	z.dec = flate.NewReader(file)
	return z
}

// Header returns the gzip header metadata.
func (z *InflateReader) Header() Header {
	return z.header
}

// Err returns the error that stopped the stream, if any.
func (z *InflateReader) Err() error {
	return z.err
}

// IsOpen reports whether the underlying file is open.
func (z *InflateReader) IsOpen() bool {
	return z.file != nil && z.file.IsOpen()
}

// Length returns the total decompressed length, once known: after the
// stream was read to its end or the seek index was built.
func (z *InflateReader) Length() (int64, bool) {
	return z.length, z.length >= 0
}

// Index returns the synchpoints collected so far; it is empty until the
// first seek that needed them.
func (z *InflateReader) Index() []Synchpoint {
	return append([]Synchpoint(nil), z.index...)
}

// Detach releases everything the reader holds and returns its FileReader,
// still open, to the caller.
func (z *InflateReader) Detach() *FileReader {
	f := z.file
	z.file, z.dec, z.index = nil, nil, nil
	z.outLen, z.outPos = 0, 0
	z.pending = pendingSeek{}
	return f
}

// Close detaches and closes the underlying file.
func (z *InflateReader) Close() error {
	if z.file == nil {
		return nil
	}
	return z.Detach().Close()
}

// Tell returns the decompressed offset of the next byte to be read.
func (z *InflateReader) Tell() int64 {
	if z.pending.set {
		return z.pending.off
	}
	return z.outHead + int64(z.outPos)
}

// Seek implements io.Seeker over the decompressed stream. Seeking relative
// to the end needs the decompressed length, which may require building the
// index right away; other seeks are resolved by the next read.
func (z *InflateReader) Seek(offset int64, whence int) (int64, error) {
	if z.file == nil {
		return -1, ErrNotOpen
	}
	if z.err != nil {
		return -1, z.err
	}

	if offset == 0 {
		switch whence {
		case io.SeekCurrent:
			return z.Tell(), nil
		case io.SeekStart:
			if z.index == nil {
				// Cheap rewind: no need to index for this one.
				z.pending = pendingSeek{}
				if z.outHead == 0 {
					z.outPos = 0
				} else if err := z.rewind(); err != nil {
					return -1, err
				}
				return 0, nil
			}
		}
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = z.Tell() + offset
	case io.SeekEnd:
		if z.length < 0 {
			if err := z.buildIndex(); err != nil {
				return -1, err
			}
		}
		pos = z.length + offset
	default:
		return -1, errors.NotValidf("whence %d", whence)
	}
	if pos < 0 {
		return -1, errors.NotValidf("negative position %d", pos)
	}

	if z.buffered(pos) {
		z.pending = pendingSeek{}
		z.outPos = int(pos - z.outHead)
	} else {
		z.pending = pendingSeek{set: true, off: pos}
	}
	return pos, nil
}

// ReadByte implements io.ByteReader.
func (z *InflateReader) ReadByte() (byte, error) {
	if z.pending.set || z.outPos >= z.outLen {
		if err := z.fill(); err != nil {
			return 0, err
		}
	}
	c := z.out[z.outPos]
	z.outPos++
	return c, nil
}

// Read implements io.Reader.
func (z *InflateReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if z.pending.set || z.outPos >= z.outLen {
			if err := z.fill(); err != nil {
				if n > 0 {
					return n, nil
				}
				return 0, err
			}
		}
		c := copy(p[n:], z.out[z.outPos:z.outLen])
		z.outPos += c
		n += c
	}
	return n, nil
}

func (z *InflateReader) buffered(pos int64) bool {
	return z.outHead <= pos && pos < z.outHead+int64(z.outLen)
}

func (z *InflateReader) setOutput(head int64, n, pos int) {
	z.outHead, z.outLen, z.outPos = head, n, pos
}

func (z *InflateReader) fail(err error) error {
	if z.err == nil {
		z.err = errors.Annotatef(err, "gzip stream %s", z.name)
		z.log.Warn().Err(err).Msg("gzip stream failed")
	}
	return z.err
}

// fill makes the output buffer hold at least one unread byte.
func (z *InflateReader) fill() error {
	if z.err != nil {
		return z.err
	}
	if z.file == nil {
		return ErrNotOpen
	}
	if z.pending.set {
		return z.resolve()
	}
	if z.ended {
		return io.EOF
	}

	head := z.outHead + int64(z.outLen)
	n, err := z.decode(head, z.out)
	z.setOutput(head, n, 0)
	if err != nil && err != io.EOF {
		z.fail(err)
	}
	if n == 0 {
		if z.err != nil {
			return z.err
		}
		return io.EOF
	}
	return nil
}

// decode inflates into p until it is full or the stream ends, keeping the
// running checksum. head is the decompressed offset of p[0]. At the end of
// the stream the gzip trailer is checked and io.EOF returned.
func (z *InflateReader) decode(head int64, p []byte) (int, error) {
	var n int
	var err error
	for n < len(p) && err == nil {
		var m int
		m, err = z.dec.Read(p[n:])
		n += m
	}
	z.crc = crc32.Update(z.crc, crc32.IEEETable, p[:n])
	z.size += uint32(n)
	if err != io.EOF {
		return n, errors.Trace(err)
	}

	z.ended = true
	z.length = head + int64(n)
	var trailer [8]byte
	if _, err := io.ReadFull(z.file, trailer[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return n, errors.Trace(err)
	}
	if binary.LittleEndian.Uint32(trailer[:4]) != z.crc || binary.LittleEndian.Uint32(trailer[4:]) != z.size {
		return n, ErrChecksum
	}
	return n, io.EOF
}

// rewind restarts decompression from the beginning of the stream.
func (z *InflateReader) rewind() error {
	if _, err := z.file.Seek(z.start, io.SeekStart); err != nil {
		return z.fail(err)
	}
	z.dec.Reset(z.file, nil)
	z.crc, z.size = 0, 0
	z.ended = false
	z.setOutput(0, 0, 0)
	return nil
}

// park leaves the reader at pos, past the end of the stream.
func (z *InflateReader) park(pos int64) {
	z.setOutput(pos, 0, 0)
	z.ended = true
}

// resolve positions the output buffer on the pending seek target.
func (z *InflateReader) resolve() error {
	target := z.pending.off
	z.pending = pendingSeek{}

	if z.length >= 0 && target >= z.length {
		z.park(target)
		return io.EOF
	}
	if z.index == nil {
		if err := z.buildIndex(); err != nil {
			return err
		}
		if target >= z.length {
			z.park(target)
			return io.EOF
		}
		if z.buffered(target) {
			z.outPos = int(target - z.outHead)
			return nil
		}
	}

	pt := z.index.before(target)
	if _, err := z.file.Seek(pt.Compressed, io.SeekStart); err != nil {
		return z.fail(err)
	}
	z.dec = pt.state.Clone()
	z.dec.Resume(z.file)
	z.crc, z.size = pt.crc, pt.size
	z.ended = false
	z.seekCost = 0

	head := pt.Decompressed
	for {
		n, err := z.decode(head, z.out)
		z.seekCost += int64(n)
		if err != nil && err != io.EOF {
			z.setOutput(head, 0, 0)
			return z.fail(err)
		}
		if target < head+int64(n) {
			z.setOutput(head, n, int(target-head))
			return nil
		}
		head += int64(n)
		if err == io.EOF {
			// The index promised more data than the stream holds.
			z.setOutput(head, 0, 0)
			return z.fail(io.ErrUnexpectedEOF)
		}
	}
}

// buildIndex makes one full pass over the compressed data, recording a
// synchpoint every span bytes of output. It also validates the whole stream
// and learns its length.
func (z *InflateReader) buildIndex() error {
	began := time.Now()
	z.log.Debug().Int64("span", z.opts.span).Msg("building seek index")

	if _, err := z.file.Seek(z.start, io.SeekStart); err != nil {
		return z.fail(err)
	}
	z.dec.Reset(z.file, nil)
	z.crc, z.size = 0, 0
	z.ended = false

	idx := index{z.synchpoint(z.start, 0)}
	var total, last int64
	for {
		n, err := z.decode(total, z.out)
		z.setOutput(total, n, n)
		total += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return z.fail(errors.Annotate(err, "building index"))
		}
		// Output may come from the window alone, without consuming input:
		// wait until the compressed offset moves past the previous entry.
		in := z.file.Tell()
		if total-last > z.opts.span && in > idx[len(idx)-1].Compressed {
			idx = append(idx, z.synchpoint(in, total))
			last = total
		}
	}
	z.index = idx

	z.log.Debug().
		Int("synchpoints", len(idx)).
		Int64("length", total).
		Dur("took", time.Since(began)).
		Msg("seek index built")
	return nil
}

func (z *InflateReader) synchpoint(in, out int64) Synchpoint {
	return Synchpoint{
		Compressed:   in,
		Decompressed: out,
		state:        z.dec.Clone(),
		crc:          z.crc,
		size:         z.size,
	}
}
