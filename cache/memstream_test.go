package cache

import (
	"errors"
	"io"
)

// memStream is a minimal io.ReadWriteSeeker backed by an in-memory buffer,
// used so cache tests don't need a real filesystem. It also implements
// io.ReaderAt and Sync so File's fast paths (ReadStream, Flush) are
// exercised the same way they would be against an *os.File.
type memStream struct {
	buf []byte
	pos int64
}

func (m *memStream) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("memstream: bad whence")
	}
	if newPos < 0 {
		return 0, errors.New("memstream: negative position")
	}
	m.pos = newPos
	return newPos, nil
}

func (m *memStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[m.pos:end], p)
	m.pos = end
	return n, nil
}

func (m *memStream) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memStream) Sync() error { return nil }

// truncated returns a copy of the stream truncated to n bytes, simulating a
// crash that lost the tail of a write.
func (m *memStream) truncated(n int64) *memStream {
	if n > int64(len(m.buf)) {
		n = int64(len(m.buf))
	}
	cp := make([]byte, n)
	copy(cp, m.buf[:n])
	return &memStream{buf: cp}
}
