// Gzstream - a pure-Go package for seeking within plain and gzip files
//
// # Abstract
//
// This library lets line-oriented scanners read a file through a single API,
// whether the file is plain text or gzip-compressed, with efficient seeking
// in both cases. Nothing is ever decompressed into memory as a whole, and a
// seek within a gzip file does not restart decompression from the beginning
// of the file.
//
// # How to use
//
// Open a file with Open and read it with ReadLine, or through the standard
// io.Reader, io.ByteReader and io.Seeker interfaces:
//
//	s, err := gzstream.Open("spectra.mzXML.gz")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	buf := make([]byte, 4096)
//	for {
//	    line, ok := s.ReadLine(buf)
//	    if !ok {
//	        break
//	    }
//	    ...
//	}
//	if s.Fail() {
//	    return s.Err()
//	}
//
// Offsets are always expressed in the decoded content: Tell returns the
// offset of the next byte that will be read, and Seek moves there. Offsets
// obtained with Tell can be saved and used later to go back to the same
// point, which is what scanners building an index of a large file typically
// do.
//
// The building blocks are exported too: FileReader is the buffered reader
// over an OS file, and InflateReader is the seekable gzip decompressor that
// runs on top of it.
//
// # Command line tool
//
// This package contains a command line tool called "gzseek", that prints
// lines at any offset of a file, shows the seek index of a gzip file, and
// verifies that seeking returns the same data as a plain decompression:
//
//	$ go install github.com/rasky/gzstream/cmd/gzseek
//	$ gzseek -o 1000000 -n 10 spectra.mzXML.gz
//
// # How seeking works
//
// Reading a file sequentially is fast because FileReader adapts the size of
// its reads to the access pattern: reads grow as long as the file is read
// sequentially, and the region following the current buffer is read ahead.
// FileReader keeps three buffers, so a seek back to a recently read region
// usually does not hit the disk at all; and seeks are deferred to the next
// read, so that a sequence of seeks without reads in between costs nothing.
//
// It is normally impossible to seek at arbitrary offsets within a gzip
// stream, without decompressing all previous bytes. What makes it possible
// here is that the state of the decompressor can be copied at any point of
// the stream, and resumed later from the same compressed offset. The first
// time a seek cannot be satisfied from the bytes already decompressed,
// InflateReader decompresses the whole file once, and every 1 MiB of output
// (see WithSpan) it saves a copy of the decompressor state, called a
// synchpoint. From then on, a seek resumes decompression from the closest
// synchpoint before the target, and discards what precedes the target: no
// seek ever decompresses more than about 1 MiB.
//
// A synchpoint holds the whole 32 KiB deflate window, so the index costs
// memory proportional to the size of the file: a few percent of the
// decompressed size with the default span.
//
// Seeking and streaming are guaranteed to return the very same bytes. The
// gzip checksum is verified whenever the end of the stream is reached,
// either by reading or while building the index.
package gzstream
