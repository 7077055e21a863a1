package gzstream

import (
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Number of buffer slots: lookback, current and readahead.
const numSlots = 3

// slot is one read buffer of a FileReader. data is the backing store; only
// data[:n] holds file content, starting at file offset head.
type slot struct {
	data      []byte
	n         int
	head      int64
	requested int // length asked to the OS for the fill that produced data[:n]
	used      int // read cursor within data[:n]
}

func (s *slot) contains(pos int64) bool {
	return s.n > 0 && s.head <= pos && pos < s.head+int64(s.n)
}

func (s *slot) end() int64 {
	return s.head + int64(s.n)
}

// short reports whether the fill returned less than requested, which means
// the file ends within this slot.
func (s *slot) short() bool {
	return s.n < s.requested
}

// pendingSeek is a seek request not yet resolved into physical I/O.
type pendingSeek struct {
	set bool
	off int64
}

// A FileReader is a buffered, seekable reader over an OS file, tuned for
// long sequential scans interleaved with occasional seeks.
//
// It keeps three buffers, each tagged with the file offset it was read
// from. Seeks landing in a buffer are free; other seeks are only recorded and
// resolved by the next read. While the file is read sequentially the buffers
// grow and the region following the current buffer is read ahead, so that the
// next refill is usually satisfied without blocking on I/O. A FileReader is
// not safe for concurrent use.
type FileReader struct {
	f    *os.File
	name string
	phys int64 // physical position of f, -1 if unknown

	slots   [numSlots]slot
	cur     int
	pending pendingSeek

	desired   int // length of the next physical read
	abandoned int // bytes consumed from the buffer a missed seek walked away from

	size      int64
	sizeKnown bool

	err  error
	opts options
	log  zerolog.Logger
}

// NewFileReader returns a FileReader that is not yet attached to a file.
func NewFileReader(opts ...Option) *FileReader {
	o := buildOptions(opts)
	return &FileReader{opts: o, log: o.log, phys: -1}
}

// OpenFile opens the named file for buffered reading.
func OpenFile(name string, opts ...Option) (*FileReader, error) {
	r := NewFileReader(opts...)
	if err := r.Open(name); err != nil {
		return nil, err
	}
	return r, nil
}

// Open attaches r to the named file. Buffers allocated by a previous Open
// are reused.
func (r *FileReader) Open(name string) error {
	if r.f != nil {
		return errors.Errorf("gzstream: %s is already open", r.name)
	}
	f, err := os.Open(name)
	if err != nil {
		return errors.Trace(err)
	}
	r.f, r.name, r.phys = f, name, 0
	r.pending = pendingSeek{}
	r.abandoned = 0
	r.size, r.sizeKnown = 0, false
	r.err = nil

	for i := range r.slots {
		r.slots[i] = slot{data: r.slots[i].data}
	}
	r.cur = 0

	// Allocate moderately, but start with small reads.
	r.resize(4 * r.opts.chunkSize)
	r.desired = r.opts.chunkSize

	r.log.Debug().Str("file", name).Msg("opened")
	return nil
}

// Name returns the name of the file r was opened on.
func (r *FileReader) Name() string {
	return r.name
}

// IsOpen reports whether r is attached to an open file.
func (r *FileReader) IsOpen() bool {
	return r.f != nil
}

// Close closes the underlying file. Buffers are kept for a later Open.
func (r *FileReader) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	r.phys = -1
	r.pending = pendingSeek{}
	for i := range r.slots {
		r.slots[i].n = 0
	}
	return errors.Trace(err)
}

// Err returns the I/O error that stopped r, if any. A short read at the end
// of the file is not an error.
func (r *FileReader) Err() error {
	return r.err
}

// Size returns the length of the file. It is computed on first use with a
// seek to the end of the file and cached.
func (r *FileReader) Size() (int64, error) {
	if r.f == nil {
		return -1, ErrNotOpen
	}
	if !r.sizeKnown {
		end, err := r.f.Seek(0, io.SeekEnd)
		if err != nil {
			r.phys = -1
			return -1, errors.Trace(err)
		}
		r.phys = end
		r.size, r.sizeKnown = end, true
	}
	return r.size, nil
}

// Tell returns the offset of the next byte to be read. After a seek that was
// not resolved yet, it is the seek target.
func (r *FileReader) Tell() int64 {
	if r.f == nil {
		return -1
	}
	if r.pending.set {
		return r.pending.off
	}
	s := &r.slots[r.cur]
	return s.head + int64(s.used)
}

// Seek implements io.Seeker. Seeking inside a buffer is resolved
// immediately; any other seek only records the target, and the physical
// read happens on the next Read. Seeking past the end of the file is
// allowed and makes reads return io.EOF.
func (r *FileReader) Seek(offset int64, whence int) (int64, error) {
	if r.f == nil {
		return -1, ErrNotOpen
	}

	if offset == 0 {
		switch whence {
		case io.SeekCurrent:
			return r.Tell(), nil
		case io.SeekStart:
			r.pending = pendingSeek{}
			if i := r.find(0); i >= 0 {
				r.use(i, 0)
				return 0, nil
			}
			if _, err := r.f.Seek(0, io.SeekStart); err != nil {
				r.phys = -1
				return -1, errors.Trace(err)
			}
			r.phys = 0
			r.invalidate(0)
			return 0, nil
		}
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = r.Tell() + offset
	case io.SeekEnd:
		size, err := r.Size()
		if err != nil {
			return -1, err
		}
		pos = size + offset
	default:
		return -1, errors.NotValidf("whence %d", whence)
	}
	if pos < 0 {
		return -1, errors.NotValidf("negative position %d", pos)
	}

	if i := r.find(pos); i >= 0 {
		r.pending = pendingSeek{}
		r.use(i, pos)
		return pos, nil
	}

	if s := &r.slots[r.cur]; s.n > 0 {
		r.abandoned = s.used
	}
	r.pending = pendingSeek{set: true, off: pos}
	r.invalidate(pos)
	return pos, nil
}

// ReadByte implements io.ByteReader.
func (r *FileReader) ReadByte() (byte, error) {
	s := &r.slots[r.cur]
	if r.pending.set || s.used >= s.n {
		if err := r.fill(); err != nil {
			return 0, err
		}
		s = &r.slots[r.cur]
	}
	c := s.data[s.used]
	s.used++
	return c, nil
}

// Read implements io.Reader.
func (r *FileReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		s := &r.slots[r.cur]
		if r.pending.set || s.used >= s.n {
			if err := r.fill(); err != nil {
				if n > 0 {
					return n, nil
				}
				return 0, err
			}
			s = &r.slots[r.cur]
		}
		c := copy(p[n:], s.data[s.used:s.n])
		s.used += c
		n += c
	}
	return n, nil
}

// find returns the slot holding file offset pos, or -1.
func (r *FileReader) find(pos int64) int {
	for i := numSlots - 1; i >= 0; i-- {
		if r.slots[i].contains(pos) {
			return i
		}
	}
	return -1
}

// use makes slot i hot, with the cursor at file offset pos.
func (r *FileReader) use(i int, pos int64) {
	r.cur = i
	s := &r.slots[i]
	s.used = int(pos - s.head)
}

func (r *FileReader) nextSlot() int {
	return (r.cur + 1) % numSlots
}

// invalidate rotates to an empty slot positioned at pos, forcing a refill on
// the next read. The other slots stay around as cache.
func (r *FileReader) invalidate(pos int64) {
	r.cur = r.nextSlot()
	r.slots[r.cur] = slot{data: r.slots[r.cur].data, head: pos}
}

// resize sets the desired read length, clamped to the configured bounds, and
// grows every slot that is too small to hold it.
func (r *FileReader) resize(size int) {
	if size < r.opts.chunkSize {
		size = r.opts.chunkSize
	}
	if size > r.opts.maxChunkSize {
		size = r.opts.maxChunkSize
	}
	if size != r.desired {
		r.log.Trace().Int("from", r.desired).Int("to", size).Msg("read size changed")
	}
	r.desired = size
	for i := range r.slots {
		s := &r.slots[i]
		if size > len(s.data) {
			data := make([]byte, size)
			copy(data, s.data[:s.n])
			s.data = data
		}
	}
}

// load reads up to length bytes at file offset head into slot i. When
// nothing could be read the slot is left untouched.
func (r *FileReader) load(i int, head int64, length int) (int, error) {
	if r.phys != head {
		if _, err := r.f.Seek(head, io.SeekStart); err != nil {
			r.phys = -1
			return 0, errors.Trace(err)
		}
		r.phys = head
	}
	s := &r.slots[i]
	n, err := io.ReadFull(r.f, s.data[:length])
	r.phys += int64(n)
	switch err {
	case nil, io.EOF, io.ErrUnexpectedEOF:
	default:
		r.phys = -1
		return 0, errors.Trace(err)
	}
	if n > 0 {
		s.n, s.head, s.requested, s.used = n, head, length, 0
	}
	return n, nil
}

func (r *FileReader) fail(err error) error {
	r.err = errors.Annotatef(err, "reading %s", r.name)
	r.log.Warn().Err(err).Str("file", r.name).Msg("read failed")
	return r.err
}

// fill makes the hot slot hold at least one unread byte.
func (r *FileReader) fill() error {
	switch {
	case r.f == nil:
		return ErrNotOpen
	case r.err != nil:
		return r.err
	case r.pending.set:
		return r.fillPending()
	}
	return r.fillNext()
}

func (r *FileReader) fillPending() error {
	target := r.pending.off
	r.pending = pendingSeek{}

	// A readahead may have landed there since the seek.
	if i := r.find(target); i >= 0 {
		r.use(i, target)
		return nil
	}

	// The seek left most of a large buffer unread: reads are too big for
	// this access pattern.
	if r.abandoned > 0 && r.desired > 2*r.abandoned {
		r.resize(r.opts.chunkSize * (1 + r.abandoned/r.opts.chunkSize))
	}
	r.abandoned = 0

	// The hot slot was emptied by the seek.
	n, err := r.load(r.cur, target, r.desired)
	if err != nil {
		return r.fail(err)
	}
	if n == 0 {
		return io.EOF
	}
	r.use(r.cur, target)
	return nil
}

func (r *FileReader) fillNext() error {
	hot := &r.slots[r.cur]
	next := hot.head + int64(hot.used)

	adopted := false
	if i := r.find(next); i >= 0 {
		r.use(i, next)
		adopted = true
		s := &r.slots[i]
		if s.short() || r.find(s.end()) >= 0 {
			// Fully cached up to the end of file or the next buffer.
			return nil
		}
	}

	hot = &r.slots[r.cur]
	streaming := hot.n > 0 && r.find(hot.head-1) >= 0
	if streaming {
		r.resize(r.desired * 4)
	}

	if !adopted {
		i := r.nextSlot()
		n, err := r.load(i, next, r.desired)
		if err != nil {
			return r.fail(err)
		}
		if n == 0 {
			return io.EOF
		}
		r.use(i, next)
		hot = &r.slots[r.cur]
	}

	if streaming && !hot.short() {
		r.prefetch(r.nextSlot(), hot.end())
	}
	return nil
}

// prefetch reads the region starting at head into slot i, ahead of need.
// Errors are not reported here: the read that eventually needs the region
// will retry it and report the failure.
func (r *FileReader) prefetch(i int, head int64) {
	if _, err := r.load(i, head, r.desired); err != nil {
		r.log.Debug().Err(err).Int64("offset", head).Msg("readahead failed")
	}
}
