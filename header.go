package gzstream

import (
	"hash/crc32"
	"io"
	"time"

	"github.com/juju/errors"
)

const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 8

	flagText     = 1 << 0
	flagHdrCrc   = 1 << 1
	flagExtra    = 1 << 2
	flagName     = 1 << 3
	flagComment  = 1 << 4
	flagReserved = 0xe0
)

// Header holds the optional metadata of a gzip member (RFC 1952).
type Header struct {
	Name    string
	Comment string
	Extra   []byte
	ModTime time.Time
	OS      byte
}

// headerReader pulls header bytes one at a time, keeping the CRC of
// everything read so far for FHCRC validation.
type headerReader struct {
	r   io.ByteReader
	crc uint32
	err error
}

func (h *headerReader) byte() byte {
	if h.err != nil {
		return 0
	}
	c, err := h.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			err = ErrHeader
		}
		h.err = err
		return 0
	}
	h.crc = crc32.Update(h.crc, crc32.IEEETable, []byte{c})
	return c
}

func (h *headerReader) uint16() int {
	lo := h.byte()
	hi := h.byte()
	return int(lo) | int(hi)<<8
}

func (h *headerReader) cstring() string {
	var s []byte
	for {
		c := h.byte()
		if c == 0 || h.err != nil {
			return string(s)
		}
		s = append(s, c)
	}
}

// readHeader consumes a gzip member header from r, leaving r positioned on
// the first byte of the deflate stream.
func readHeader(r io.ByteReader) (Header, error) {
	var hdr Header
	h := &headerReader{r: r}

	var fixed [10]byte
	for i := range fixed {
		fixed[i] = h.byte()
	}
	if h.err != nil {
		return hdr, errors.Trace(h.err)
	}
	if fixed[0] != gzipID1 || fixed[1] != gzipID2 || fixed[2] != gzipDeflate {
		return hdr, ErrHeader
	}
	flg := fixed[3]
	if flg&flagReserved != 0 {
		return hdr, ErrHeader
	}
	if t := int64(uint32(fixed[4]) | uint32(fixed[5])<<8 | uint32(fixed[6])<<16 | uint32(fixed[7])<<24); t > 0 {
		hdr.ModTime = time.Unix(t, 0)
	}
	// fixed[8] is XFL, only meaningful to compressors.
	hdr.OS = fixed[9]

	if flg&flagExtra != 0 {
		n := h.uint16()
		hdr.Extra = make([]byte, 0, n)
		for i := 0; i < n && h.err == nil; i++ {
			hdr.Extra = append(hdr.Extra, h.byte())
		}
	}
	if flg&flagName != 0 {
		hdr.Name = h.cstring()
	}
	if flg&flagComment != 0 {
		hdr.Comment = h.cstring()
	}
	if flg&flagHdrCrc != 0 {
		want := uint16(h.crc)
		if h.err == nil && uint16(h.uint16()) != want {
			return hdr, ErrHeader
		}
	}
	if h.err != nil {
		return hdr, errors.Trace(h.err)
	}
	return hdr, nil
}
