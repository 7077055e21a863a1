package main

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"math/rand"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/klauspost/pgzip"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/mmap"

	"github.com/rasky/gzstream"
	"github.com/rasky/gzstream/internal/observability"
)

const sampleSize = 64

type sample struct {
	Off int64
	Sum string
}

// reference opens a decoder of fn that shares nothing with gzstream: pgzip
// for gzip files, a memory mapping for plain ones.
func reference(fn string, mode gzstream.Mode) (io.ReadCloser, error) {
	if mode == gzstream.ModeGzip {
		f, err := os.Open(fn)
		if err != nil {
			return nil, errors.Trace(err)
		}
		gz, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Annotate(err, "reference decoder")
		}
		gz.Multistream(false)
		return refReader{gz, []io.Closer{gz, f}}, nil
	}

	m, err := mmap.Open(fn)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return refReader{io.NewSectionReader(m, 0, int64(m.Len())), []io.Closer{m}}, nil
}

type refReader struct {
	io.Reader
	closers []io.Closer
}

func (r refReader) Close() error {
	var err error
	for _, c := range r.closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func hashN(r io.Reader, n int64) (string, int64, error) {
	hash := sha1.New()
	var copied int64
	var err error
	if n < 0 {
		copied, err = io.Copy(hash, r)
	} else {
		copied, err = io.CopyN(hash, r, n)
		if err == io.EOF {
			err = nil
		}
	}
	return hex.EncodeToString(hash.Sum(nil)), copied, err
}

// verify checks that the stream returns the same bytes as the reference
// decoder, both reading straight through and seeking back to random
// offsets in random order.
func verify(ctx context.Context, fn string) error {
	ctx, span := observability.StartSpan(ctx, "gzseek.verify")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	ref, err := reference(fn, stream.Mode())
	if err != nil {
		return err
	}
	defer func() { ref.Close() }()

	seed := time.Now().UnixNano()
	rnd := rand.New(rand.NewSource(seed))
	log.Debug().Str("file", fn).Int64("seed", seed).Msg("sampling reference")

	var pos []sample
	var off int64
	for ctx.Err() == nil {
		skip := rnd.Int63n(1<<20) + 1
		n, cerr := io.CopyN(ioutil.Discard, ref, skip)
		off += n
		if cerr == io.EOF {
			break
		}
		if cerr != nil {
			err = errors.Annotate(cerr, "reading reference")
			return err
		}
		sum, n, herr := hashN(ref, sampleSize)
		if herr != nil {
			err = errors.Annotate(herr, "reading reference")
			return err
		}
		pos = append(pos, sample{Off: off, Sum: sum})
		off += n
	}
	length := off
	span.SetAttributes(attribute.Int("samples", len(pos)), attribute.Int64("length", length))

	var want string
	if _, err = stream.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if mode := stream.Mode(); mode == gzstream.ModeGzip {
		// Straight decompression first: no seek index is involved yet.
		var got string
		var n int64
		got, n, err = hashN(stream, -1)
		if err != nil {
			return err
		}
		if n != length {
			err = errors.Errorf("decoded %d bytes, reference has %d", n, length)
			return err
		}
		ref.Close()
		if ref, err = reference(fn, mode); err != nil {
			return err
		}
		if want, _, err = hashN(ref, -1); err != nil {
			return err
		}
		if got != want {
			err = errors.New("content differs from reference decoder")
			return err
		}
	}

	bad := 0
	for _, i := range rnd.Perm(len(pos)) {
		if ctx.Err() != nil {
			err = ctx.Err()
			return err
		}
		p := pos[i]
		if _, err = stream.Seek(p.Off, io.SeekStart); err != nil {
			return err
		}
		var sum string
		if sum, _, err = hashN(stream, sampleSize); err != nil {
			return err
		}
		if sum != p.Sum {
			bad++
			log.Error().Str("file", fn).Int64("offset", p.Off).Msg("sample differs")
		}
	}
	if bad > 0 {
		err = errors.Errorf("%d of %d samples differ", bad, len(pos))
		return err
	}

	fmt.Printf("%s: OK (%d bytes, %d seeks, %d synchpoints)\n", fn, length, len(pos), len(stream.Index()))
	return nil
}
