package gzstream

import (
	"io"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Mode tells how a Stream decodes its file.
type Mode int

const (
	ModeRaw Mode = iota
	ModeGzip
)

func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeGzip:
		return "gzip"
	}
	return "unknown"
}

// source is what a Stream reads from: the FileReader itself for raw files,
// an InflateReader for gzip files.
type source interface {
	io.Reader
	io.ByteReader
	io.Seeker
	Tell() int64
}

// A Stream reads a file that may or may not be gzip-compressed, through the
// same API. The format is detected when the file is opened, by looking at
// its first two bytes, and does not change until Close.
//
// Like the standard library streams it mimics, a Stream remembers how the
// last read ended: EOF reports that the end was reached, Fail that the stream
// is broken and will not return more data.
//
// Truncated or corrupt gzip data is a failure, not an end of stream: EOF
// stays false, Fail turns true, and every later read returns the same
// decoding error (see IsDecodeError) until Close.
type Stream struct {
	file *FileReader
	gz   *InflateReader
	src  source
	mode Mode

	eof bool
	err error

	opts []Option
	log  zerolog.Logger
}

// NewStream returns a Stream that is not yet attached to a file. The options
// apply to every file opened on it.
func NewStream(opts ...Option) *Stream {
	return &Stream{
		file: NewFileReader(opts...),
		opts: opts,
		log:  buildOptions(opts).log,
	}
}

// Open opens the named file for reading, detecting whether it is gzip.
func Open(name string, opts ...Option) (*Stream, error) {
	s := NewStream(opts...)
	if err := s.Open(name); err != nil {
		return nil, err
	}
	return s, nil
}

// Open attaches s to the named file. Buffers of a file previously opened and
// closed on s are reused.
//
// A gzip file with a malformed header is opened successfully, but the
// stream is failed right away: Fail reports true and Err returns ErrHeader.
func (s *Stream) Open(name string) error {
	if s.src != nil {
		return errors.Errorf("gzstream: stream already open on %s", s.file.Name())
	}
	if err := s.file.Open(name); err != nil {
		return err
	}
	s.eof, s.err = false, nil

	gz, err := IsGzip(s.file)
	if err != nil {
		s.file.Close()
		return errors.Annotatef(err, "detecting format of %s", name)
	}
	if gz {
		s.mode = ModeGzip
		s.gz = NewInflateReader(s.file, s.opts...)
		s.src = s.gz
		s.err = s.gz.Err()
	} else {
		s.mode = ModeRaw
		s.src = s.file
	}
	s.log.Debug().Str("file", name).Stringer("mode", s.mode).Msg("stream opened")
	return nil
}

// IsOpen reports whether s is attached to an open file.
func (s *Stream) IsOpen() bool {
	return s.src != nil
}

// Mode returns the format detected when the file was opened.
func (s *Stream) Mode() Mode {
	return s.mode
}

// EOF reports whether the last read hit the end of the stream.
func (s *Stream) EOF() bool {
	return s.eof
}

// Fail reports whether the stream is broken: a read failed for any reason
// other than the end of the stream.
func (s *Stream) Fail() bool {
	return s.err != nil
}

// Err returns the error that broke the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Index returns the seek index of a gzip stream; it is nil for raw files
// and before the first seek that required it.
func (s *Stream) Index() []Synchpoint {
	if s.gz == nil {
		return nil
	}
	return s.gz.Index()
}

func (s *Stream) track(err error) error {
	switch {
	case err == nil:
	case errors.Cause(err) == io.EOF:
		s.eof = true
	default:
		s.err = err
	}
	return err
}

// ReadByte implements io.ByteReader.
func (s *Stream) ReadByte() (byte, error) {
	if s.src == nil {
		return 0, ErrNotOpen
	}
	c, err := s.src.ReadByte()
	return c, s.track(err)
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	if s.src == nil {
		return 0, ErrNotOpen
	}
	n, err := s.src.Read(p)
	return n, s.track(err)
}

// ReadLine reads bytes into buf up to the next newline, which is consumed
// but not stored, and returns the filled part of buf. A line longer than buf
// is returned in pieces, one per call. The last line of the file needs no
// newline.
//
// The boolean is false only when nothing could be read, because the stream
// ended or failed; an empty line is returned as an empty slice and true.
// An empty buf cannot hold any part of a line: the stream fails with
// io.ErrShortBuffer.
func (s *Stream) ReadLine(buf []byte) ([]byte, bool) {
	if len(buf) == 0 {
		if s.src == nil || s.err != nil {
			return buf, false
		}
		s.track(errors.Annotate(io.ErrShortBuffer, "gzstream: ReadLine with an empty buffer"))
		return buf, false
	}
	n := 0
	for n < len(buf) {
		c, err := s.ReadByte()
		if err != nil {
			return buf[:n], n > 0
		}
		if c == '\n' {
			return buf[:n], true
		}
		buf[n] = c
		n++
	}
	return buf[:n], n > 0
}

// Seek implements io.Seeker over the decoded content. It clears the EOF
// condition, but not a failure.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if s.src == nil {
		return -1, ErrNotOpen
	}
	s.eof = false
	return s.src.Seek(offset, whence)
}

// Tell returns the offset of the next byte to be read, or -1 if s is not
// open.
func (s *Stream) Tell() int64 {
	if s.src == nil {
		return -1
	}
	return s.src.Tell()
}

// Close closes the file. s can be opened again on another file.
func (s *Stream) Close() error {
	if s.src == nil {
		return nil
	}
	if s.gz != nil {
		s.file = s.gz.Detach()
		s.gz = nil
	}
	s.src = nil
	s.eof = false
	return s.file.Close()
}
