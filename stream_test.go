package gzstream

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/juju/errors"
)

func tenLines() []byte {
	var buf bytes.Buffer
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&buf, "<scan num=\"%d\" msLevel=\"2\">\n", i)
	}
	return buf.Bytes()
}

// Scenario: ten lines read verbatim from plain and compressed files.
func TestStreamLines(t *testing.T) {
	data := tenLines()
	for _, tc := range []struct {
		name string
		file []byte
		mode Mode
	}{
		{"scans.txt", data, ModeRaw},
		{"scans.txt.gz", gzipBytes(t, data), ModeGzip},
	} {
		s, err := Open(writeFile(t, tc.name, tc.file))
		if err != nil {
			t.Fatal(err)
		}
		if s.Mode() != tc.mode {
			t.Errorf("%s: mode %v", tc.name, s.Mode())
		}

		var offsets []int64
		buf := make([]byte, 256)
		for i := 0; i < 10; i++ {
			offsets = append(offsets, s.Tell())
			line, ok := s.ReadLine(buf)
			want := fmt.Sprintf("<scan num=\"%d\" msLevel=\"2\">", i)
			if !ok || string(line) != want {
				t.Fatalf("%s: line %d: %q, %v", tc.name, i, line, ok)
			}
		}
		if _, ok := s.ReadLine(buf); ok {
			t.Errorf("%s: eleventh line read", tc.name)
		}
		if !s.EOF() || s.Fail() {
			t.Errorf("%s: after last line: eof=%v fail=%v", tc.name, s.EOF(), s.Fail())
		}

		// Seeking clears EOF.
		if _, err := s.Seek(offsets[5], io.SeekStart); err != nil {
			t.Fatal(err)
		}
		if s.EOF() {
			t.Errorf("%s: EOF still set after seek", tc.name)
		}
		if line, ok := s.ReadLine(buf); !ok || string(line) != "<scan num=\"5\" msLevel=\"2\">" {
			t.Errorf("%s: line after seek: %q", tc.name, line)
		}
		s.Close()
	}
}

func TestStreamLongLines(t *testing.T) {
	s, err := Open(writeFile(t, "long.txt", []byte("abcdefghij\n\nxyz")))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	buf := make([]byte, 4)
	for _, want := range []string{"abcd", "efgh", "ij", "", "xyz"} {
		line, ok := s.ReadLine(buf)
		if !ok || string(line) != want {
			t.Errorf("got %q, %v, want %q", line, ok, want)
		}
	}
	if _, ok := s.ReadLine(buf); ok || !s.EOF() {
		t.Error("read past the last line")
	}
}

// Scenario: a plain file that starts with the gzip magic is taken for gzip
// and fails on its header.
func TestStreamMagicAmbiguity(t *testing.T) {
	s, err := Open(writeFile(t, "fake.txt", []byte{0x1f, 0x8b, 'n', 'o', 't', ' ', 'g', 'z', 'i', 'p', '\n'}))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Mode() != ModeGzip {
		t.Errorf("mode: %v", s.Mode())
	}
	if !s.Fail() || errors.Cause(s.Err()) != ErrHeader {
		t.Errorf("expected header error, got %v", s.Err())
	}
	if _, ok := s.ReadLine(make([]byte, 64)); ok {
		t.Error("read a line from a broken stream")
	}
}

func TestStreamReopen(t *testing.T) {
	gz := writeFile(t, "a.gz", gzipBytes(t, []byte("compressed\n")))
	raw := writeFile(t, "b.txt", []byte("plain\n"))

	s := NewStream()
	if s.IsOpen() || s.Tell() != -1 {
		t.Error("new stream looks open")
	}
	if _, err := s.Read(make([]byte, 1)); err != ErrNotOpen {
		t.Error("read on closed stream:", err)
	}
	file := s.file

	buf := make([]byte, 64)
	for _, tc := range []struct {
		fn, want string
	}{
		{gz, "compressed"},
		{raw, "plain"},
		{gz, "compressed"},
	} {
		if err := s.Open(tc.fn); err != nil {
			t.Fatal(err)
		}
		if err := s.Open(tc.fn); err == nil {
			t.Error("opened an open stream")
		}
		if line, ok := s.ReadLine(buf); !ok || string(line) != tc.want {
			t.Errorf("%s: %q", tc.fn, line)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
		if s.file != file {
			t.Error("file reader not reused")
		}
	}
}

func TestStreamEmpty(t *testing.T) {
	s, err := Open(writeFile(t, "empty.txt", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Mode() != ModeRaw {
		t.Errorf("mode: %v", s.Mode())
	}
	if _, ok := s.ReadLine(make([]byte, 10)); ok || !s.EOF() || s.Fail() {
		t.Error("empty file: not a clean EOF")
	}
}

func TestIsGzip(t *testing.T) {
	for _, tc := range []struct {
		in   []byte
		want bool
	}{
		{[]byte{0x1f, 0x8b, 8, 0}, true},
		{[]byte{0x1f, 0x8b}, true},
		{[]byte{0x1f}, false},
		{[]byte("<?xml"), false},
		{nil, false},
	} {
		r := bytes.NewReader(tc.in)
		got, err := IsGzip(r)
		if err != nil || got != tc.want {
			t.Errorf("%x: %v, %v", tc.in, got, err)
		}
		if off, _ := r.Seek(0, io.SeekCurrent); off != 0 {
			t.Errorf("%x: not rewound", tc.in)
		}
	}
}

func TestStreamReadLineEmptyBuffer(t *testing.T) {
	s, err := Open(writeFile(t, "lines.txt", []byte("one\ntwo\n")))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, ok := s.ReadLine(nil); ok {
		t.Error("read a line into an empty buffer")
	}
	if s.EOF() || !s.Fail() || errors.Cause(s.Err()) != io.ErrShortBuffer {
		t.Errorf("empty buffer: eof=%v err=%v", s.EOF(), s.Err())
	}
}

// Scenario: a truncated gzip file breaks the stream instead of ending it.
func TestStreamTruncated(t *testing.T) {
	var data bytes.Buffer
	for i := 0; data.Len() < 200000; i++ {
		fmt.Fprintf(&data, "<scan num=\"%d\">\n", i)
	}
	comp := gzipBytes(t, data.Bytes())
	s, err := Open(writeFile(t, "cut.gz", comp[:len(comp)/2]))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	buf := make([]byte, 256)
	lines := 0
	for {
		if _, ok := s.ReadLine(buf); !ok {
			break
		}
		lines++
	}
	if lines == 0 {
		t.Error("no lines before the truncation")
	}
	if s.EOF() || !s.Fail() || !IsDecodeError(s.Err()) {
		t.Errorf("truncated: eof=%v err=%v", s.EOF(), s.Err())
	}
	if _, err := s.ReadByte(); !IsDecodeError(err) {
		t.Errorf("read after failure: %v", err)
	}
}
