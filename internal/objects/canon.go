package objects

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/coreos/ostree-engine/internal/ostreeerr"
)

// canonWriter builds a canonical, deterministic byte encoding: every
// variable-length field is length-prefixed with a uint32 (big-endian) so
// decoding never depends on delimiters or escaping.
type canonWriter struct {
	buf bytes.Buffer
}

func (w *canonWriter) byte(b byte) {
	w.buf.WriteByte(b)
}

func (w *canonWriter) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *canonWriter) uint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *canonWriter) bytes(b []byte) {
	w.uint32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *canonWriter) string(s string) {
	w.bytes([]byte(s))
}

func (w *canonWriter) checksum(c Checksum) {
	w.buf.Write(c[:])
}

func (w *canonWriter) Bytes() []byte {
	return w.buf.Bytes()
}

// canonReader is the matching decoder. It never needs to survive malformed
// upstream input (objects are validated by checksum before decode), but every
// read is still bounds-checked so a corrupt object fails with ErrCorrupt
// instead of panicking.
type canonReader struct {
	buf []byte
	off int
}

func newCanonReader(b []byte) *canonReader {
	return &canonReader{buf: b}
}

func (r *canonReader) need(n int) error {
	if r.off+n > len(r.buf) {
		return fmt.Errorf("%w: truncated object", ostreeerr.ErrCorrupt)
	}
	return nil
}

func (r *canonReader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *canonReader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *canonReader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *canonReader) bytes() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

func (r *canonReader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *canonReader) checksum() (Checksum, error) {
	var c Checksum
	if err := r.need(len(c)); err != nil {
		return c, err
	}
	copy(c[:], r.buf[r.off:])
	r.off += len(c)
	return c, nil
}

func (r *canonReader) requireKind(expect byte) error {
	got, err := r.byte()
	if err != nil {
		return err
	}
	if got != expect {
		return fmt.Errorf("%w: expected object kind %d, got %d", ostreeerr.ErrCorrupt, expect, got)
	}
	return nil
}

func (r *canonReader) atEnd() bool {
	return r.off == len(r.buf)
}

func (r *canonReader) finish() error {
	if !r.atEnd() {
		return fmt.Errorf("%w: trailing bytes after object", ostreeerr.ErrCorrupt)
	}
	return nil
}
