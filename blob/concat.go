package blob

import "io"

// bytesReaderAt adapts a byte slice to io.ReaderAt without copying.
type bytesReaderAt struct {
	b []byte
}

func newBytesReaderAt(b []byte) *bytesReaderAt { return &bytesReaderAt{b: b} }

func (r *bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.b)) {
		return 0, io.EOF
	}
	n := copy(p, r.b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// concatSeeker presents a sequence of fixed-size byte ranges as one
// contiguous io.ReadSeeker, so blob.Get never needs to materialize a
// chunked blob's full contents in one allocation (SPEC_FULL.md §4.5's
// zero-copy read_stream contract extended to multi-block blobs).
type concatSeeker struct {
	parts  []io.ReaderAt
	sizes  []int64
	offset int64
	total  int64
}

func newConcatSeeker(parts []io.ReaderAt, sizes []int64) *concatSeeker {
	var total int64
	for _, s := range sizes {
		total += s
	}
	return &concatSeeker{parts: parts, sizes: sizes, total: total}
}

func (c *concatSeeker) Read(p []byte) (int, error) {
	if c.offset >= c.total {
		return 0, io.EOF
	}
	partStart := int64(0)
	for i, size := range c.sizes {
		partEnd := partStart + size
		if c.offset >= partStart && c.offset < partEnd {
			n, err := c.parts[i].ReadAt(p, c.offset-partStart)
			c.offset += int64(n)
			if err == io.EOF && c.offset < c.total {
				err = nil
			}
			return n, err
		}
		partStart = partEnd
	}
	return 0, io.EOF
}

func (c *concatSeeker) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = c.offset + offset
	case io.SeekEnd:
		newOffset = c.total + offset
	default:
		return 0, io.ErrUnexpectedEOF
	}
	if newOffset < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	c.offset = newOffset
	return c.offset, nil
}
