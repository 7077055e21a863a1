package gzstream

import (
	"bytes"
	"compress/gzip"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"io/ioutil"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
)

// testText returns n bytes of pseudo-random text made of short lines, with
// some random bytes mixed in to defeat the compressor here and there.
func testText(n int) []byte {
	rnd := rand.New(rand.NewSource(int64(n)))
	words := []string{"scan ", "peak ", "m/z ", "1234.5678 ", "<precursorMz>", "</peaks>\n", "charge=2\n"}
	var buf bytes.Buffer
	for buf.Len() < n {
		if rnd.Intn(16) == 0 {
			var junk [48]byte
			rnd.Read(junk[:])
			buf.Write(junk[:])
			continue
		}
		buf.WriteString(words[rnd.Intn(len(words))])
	}
	return buf.Bytes()[:n]
}

func writeFile(t *testing.T, name string, data []byte) string {
	fn := filepath.Join(t.TempDir(), name)
	if err := ioutil.WriteFile(fn, data, 0644); err != nil {
		t.Fatal(err)
	}
	return fn
}

// gzipBytes compresses data as a single gzip member made of several deflate
// blocks.
func gzipBytes(t *testing.T, data []byte) []byte {
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	if err := gz.SetConcurrency(64*1024, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := gz.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// stdGzipBytes compresses data with the standard library, filling in the
// optional header fields.
func stdGzipBytes(t *testing.T, data []byte, hdr gzip.Header) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Header = hdr
	if _, err := gz.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// levelGzipBytes compresses data with the standard library at the given
// level: NoCompression yields stored blocks only.
func levelGzipBytes(t *testing.T, data []byte, level int) []byte {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gz.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func openInflate(t *testing.T, fn string, opts ...Option) *InflateReader {
	f, err := OpenFile(fn, opts...)
	if err != nil {
		t.Fatal(err)
	}
	z := NewInflateReader(f, opts...)
	if err := z.Err(); err != nil {
		t.Fatal(err)
	}
	return z
}

func sum64(t *testing.T, r io.Reader) string {
	hash := sha1.New()
	if _, err := io.CopyN(hash, r, 64); err != nil && err != io.EOF {
		t.Fatal(err)
	}
	return hex.EncodeToString(hash.Sum(nil))
}

type sample struct {
	Off int64
	Sum string
}

// sampleOffsets reads r to the end, skipping a random amount of bytes
// between samples, and records the hash of 64 bytes at each sampled offset.
func sampleOffsets(t *testing.T, r io.ReadSeeker, maxSkip int64) []sample {
	var pos []sample
	for {
		skip := rand.Int63n(maxSkip) + 1
		_, err := io.CopyN(ioutil.Discard, r, skip)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		off, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			t.Fatal(err)
		}
		pos = append(pos, sample{Off: off, Sum: sum64(t, r)})
	}
	return pos
}

// checkSamples seeks back to every sample in random order.
func checkSamples(t *testing.T, r io.ReadSeeker, pos []sample) {
	for _, idx := range rand.Perm(len(pos)) {
		p := pos[idx]
		if off, err := r.Seek(p.Off, io.SeekStart); err != nil || off != p.Off {
			t.Fatalf("seek to %d: %d, %v", p.Off, off, err)
		}
		if sum := sum64(t, r); sum != p.Sum {
			t.Error("invalid checksum", p, sum)
		}
	}
}

func seedRand(t *testing.T) {
	seed := time.Now().UnixNano()
	t.Log("using seed:", seed)
	rand.Seed(seed)
}
