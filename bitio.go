package hdrify

import (
	"encoding/binary"
	"math"

	"github.com/bhouston/hdrify-sub000/internal/codecerr"
)

// byteReader is a little-endian cursor over a contiguous buffer, used
// by the EXR header/block engine. All multi-byte integers in EXR are
// little-endian.
type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(buf []byte) *byteReader {
	return &byteReader{buf: buf}
}

func (r *byteReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *byteReader) need(n int) error {
	if r.remaining() < n {
		return codecerr.New(codecerr.Truncated, "buffer truncated: need %d bytes at offset %d, have %d", n, r.pos, r.remaining())
	}
	return nil
}

func (r *byteReader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *byteReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *byteReader) f32() (float32, error) {
	v, err := r.u32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// nullString reads bytes up to and including a terminating NUL,
// returning the string without the terminator.
func (r *byteReader) nullString() (string, error) {
	start := r.pos
	for {
		if r.pos >= len(r.buf) {
			return "", codecerr.New(codecerr.Truncated, "unterminated string at offset %d", start)
		}
		if r.buf[r.pos] == 0 {
			s := string(r.buf[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
}

// byteWriter accumulates a little-endian byte stream.
type byteWriter struct {
	buf []byte
}

func (w *byteWriter) u8(v byte) {
	w.buf = append(w.buf, v)
}

func (w *byteWriter) bytes(v []byte) {
	w.buf = append(w.buf, v...)
}

func (w *byteWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *byteWriter) i32(v int32) {
	w.u32(uint32(v))
}

func (w *byteWriter) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *byteWriter) nullString(s string) {
	w.buf = append(w.buf, []byte(s)...)
	w.buf = append(w.buf, 0)
}
