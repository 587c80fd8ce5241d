package binary

import (
	"io"

	"github.com/jblebrun/wazir/internal/leb128"
)

// countingReader wraps an io.Reader, tracking the absolute byte offset for error reporting
// and satisfying io.ByteReader so internal/leb128 can read one byte at a time.
type countingReader struct {
	r      io.Reader
	offset uint64
	buf    [1]byte
}

func newCountingReader(r io.Reader) *countingReader { return &countingReader{r: r} }

func (c *countingReader) ReadByte() (byte, error) {
	n, err := io.ReadFull(c.r, c.buf[:])
	if n == 1 {
		c.offset++
	}
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}
	return c.buf[0], nil
}

func (c *countingReader) readBytes(n uint32) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(c.r, buf)
	c.offset += uint64(read)
	if err != nil {
		return nil, newErr(KindIO, "unexpected EOF reading %d bytes", n).Wrap(err)
	}
	return buf, nil
}

func (c *countingReader) readByte() (byte, error) {
	b, err := c.ReadByte()
	if err != nil {
		return 0, newErr(KindIO, "unexpected EOF").Wrap(err)
	}
	return b, nil
}

func (c *countingReader) readU32() (uint32, error) {
	v, _, err := leb128.DecodeUint32(c)
	if err != nil {
		return 0, leb128Err(err)
	}
	return v, nil
}

func (c *countingReader) readU64() (uint64, error) {
	v, _, err := leb128.DecodeUint64(c)
	if err != nil {
		return 0, leb128Err(err)
	}
	return v, nil
}

func (c *countingReader) readI32() (int32, error) {
	v, _, err := leb128.DecodeInt32(c)
	if err != nil {
		return 0, leb128Err(err)
	}
	return v, nil
}

func (c *countingReader) readI64() (int64, error) {
	v, _, err := leb128.DecodeInt64(c)
	if err != nil {
		return 0, leb128Err(err)
	}
	return v, nil
}

func (c *countingReader) readI7() (int8, error) {
	v, err := leb128.DecodeInt7(c)
	if err != nil {
		return 0, leb128Err(err)
	}
	return v, nil
}

func leb128Err(err error) error {
	switch err {
	case leb128.ErrOverflow:
		return newErr(KindLEB128Overflow, "LEB128 overflow")
	case leb128.ErrUnterminated:
		return newErr(KindLEB128Unterminated, "LEB128 unterminated")
	case io.ErrUnexpectedEOF, io.EOF:
		return newErr(KindLEB128IO, "unexpected EOF decoding LEB128")
	default:
		return newErr(KindIO, "LEB128 read error").Wrap(err)
	}
}

// sectionReader wraps a section body so that reading past its declared length fails
// deterministically rather than bleeding into the next section.
func (c *countingReader) sectionReader(size uint32) (*countingReader, error) {
	body, err := c.readBytes(size)
	if err != nil {
		return nil, err
	}
	return newCountingReader(&byteSliceReader{b: body}), nil
}

type byteSliceReader struct {
	b   []byte
	pos int
}

func (r *byteSliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}

func (c *countingReader) remaining() int {
	bsr, ok := c.r.(*byteSliceReader)
	if !ok {
		return -1
	}
	return len(bsr.b) - bsr.pos
}
