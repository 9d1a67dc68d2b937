package tabular

// streaming.go holds the reader chain applied to delimited uploads before
// they reach encoding/csv:
//
//   - bomReader drops a leading UTF-8 byte order mark (Excel "CSV UTF-8")
//   - utf8Sanitizer swaps invalid bytes for '?' so the csv reader never sees them
//   - sizeLimitReader aborts once the upload exceeds the configured byte cap

import (
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomReader strips the UTF-8 BOM from the first bytes of the stream.
type bomReader struct {
	r       io.Reader
	checked bool
	head    []byte
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: r}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		buf := make([]byte, len(utf8BOM))
		n, err := io.ReadFull(b.r, buf)
		switch {
		case err == io.EOF, err == io.ErrUnexpectedEOF:
			// short stream; whatever was read is the whole file
		case err != nil:
			return 0, err
		}
		if n == len(utf8BOM) && bytes.Equal(buf, utf8BOM) {
			n = 0
		}
		b.head = buf[:n]
	}

	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?' without growing the
// buffer. A multi-byte rune split across reads is held back until the next
// call.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	if offset < len(s.pending) {
		// p is smaller than the held-back tail; hand out what fits
		s.pending = s.pending[offset:]
		return offset, nil
	}
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}
	if isASCII(p[:n]) {
		return n, err
	}
	return s.sanitize(p[:n], err == io.EOF), err
}

func isASCII(data []byte) bool {
	for _, c := range data {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of bytes to emit.
func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		if !atEOF && partialRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
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

// partialRune reports whether tail is the valid prefix of a multi-byte rune
// that was cut off by the end of the buffer.
func partialRune(tail []byte) bool {
	if len(tail) == 0 || len(tail) >= utf8.UTFMax || tail[0] < 0xC0 {
		return false
	}
	want := 2
	switch {
	case tail[0] >= 0xF0:
		want = 4
	case tail[0] >= 0xE0:
		want = 3
	}
	if len(tail) >= want {
		return false
	}
	for _, c := range tail[1:] {
		if c&0xC0 != 0x80 {
			return false
		}
	}
	return true
}

// sizeLimitReader counts bytes and fails with ErrFileTooLarge once more than
// limit bytes have been read. A limit of zero disables the check.
type sizeLimitReader struct {
	r     io.Reader
	limit int64
	read  int64
}

func newSizeLimitReader(r io.Reader, limit int64) *sizeLimitReader {
	return &sizeLimitReader{r: r, limit: limit}
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.limit > 0 && l.read > l.limit {
		return n, ErrFileTooLarge
	}
	return n, err
}

// BytesRead returns the number of bytes consumed so far.
func (l *sizeLimitReader) BytesRead() int64 {
	return l.read
}

// wrapDelimited applies the BOM, UTF-8 and size transforms in that order.
func wrapDelimited(r io.Reader, maxBytes int64) io.Reader {
	return newUTF8Sanitizer(newBOMReader(newSizeLimitReader(r, maxBytes)))
}
