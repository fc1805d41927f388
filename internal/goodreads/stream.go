package goodreads

// stream.go wraps the upload body so the CSV reader sees clean UTF-8
// without the file ever being held in memory:
//
//   - bomSkippingReader drops the UTF-8 BOM Windows exports often carry
//   - utf8SanitizingReader replaces invalid byte sequences with '?'
//
// WrapReader applies both in the right order.

import (
	"io"
	"unicode/utf8"
)

// WrapReader prepares an export stream for CSV decoding.
func WrapReader(r io.Reader) io.Reader {
	return newUTF8SanitizingReader(newBOMSkippingReader(r))
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type bomSkippingReader struct {
	reader  io.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{reader: r}
}

func (b *bomSkippingReader) Read(p []byte) (int, error) {
	if b.checked {
		return b.reader.Read(p)
	}
	b.checked = true

	head := make([]byte, len(utf8BOM))
	n, err := io.ReadFull(b.reader, head)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// Short file, nothing to skip.
		return copy(p, head[:n]), io.EOF
	}
	if err != nil {
		return 0, err
	}

	if head[0] == utf8BOM[0] && head[1] == utf8BOM[1] && head[2] == utf8BOM[2] {
		return b.reader.Read(p)
	}

	// Not a BOM, hand the bytes back before continuing with the stream.
	b.reader = io.MultiReader(newSliceReader(head), b.reader)
	return b.reader.Read(p)
}

func newSliceReader(data []byte) io.Reader {
	return &sliceReader{data: data}
}

type sliceReader struct {
	data []byte
	off  int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.off >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.off:])
	s.off += n
	return n, nil
}

// utf8SanitizingReader replaces invalid UTF-8 bytes with '?' as it streams.
// A multi-byte rune split across two reads is buffered until the next read
// so it is never falsely flagged as invalid.
type utf8SanitizingReader struct {
	reader  io.Reader
	pending []byte
}

func newUTF8SanitizingReader(r io.Reader) *utf8SanitizingReader {
	return &utf8SanitizingReader{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *utf8SanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := 0
	if len(s.pending) > 0 {
		offset = copy(p, s.pending)
		s.pending = s.pending[:0]
	}

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	if allASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

// allASCII is the fast path: most export bytes are plain ASCII.
func allASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of usable bytes.
// When not at EOF, an incomplete trailing rune is moved to pending instead
// of being replaced.
func (s *utf8SanitizingReader) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(data[read:]) {
				s.pending = append(s.pending, data[read:]...)
				return write
			}
			// Replace with a single byte so the rewrite never grows the data.
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}
