// Package iqfile reads and writes raw I/Q capture files.
//
// A capture is a headerless stream of interleaved little-endian samples:
// int16 pairs for CS16, IEEE-754 float32 pairs for CF32. The whole stream
// may be zstd-compressed.
package iqfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/ardnew/softrf/pkg"
	"github.com/ardnew/softrf/sample"
)

// ErrTruncated reports a capture ending inside a sample.
var ErrTruncated = errors.New("capture truncated mid-sample")

// ElementSize returns the encoded size of one complex element of f in
// bytes, or 0 for an unknown format.
func ElementSize(f sample.Format) int {
	switch f {
	case sample.FormatCS16:
		return 4
	case sample.FormatCF32:
		return 8
	default:
		return 0
	}
}

// Writer encodes sample buffers to a capture.
type Writer struct {
	format sample.Format
	out    io.Writer
	zw     *zstd.Encoder
	file   *os.File // Closed by Close when the writer owns it
	buf    []byte
	count  int64
}

// NewWriter returns a writer encoding f samples to w, compressed with zstd
// when compress is set.
func NewWriter(w io.Writer, f sample.Format, compress bool) (*Writer, error) {
	if ElementSize(f) == 0 {
		return nil, fmt.Errorf("%w: %s", pkg.ErrUnsupportedFormat, f)
	}
	iw := &Writer{format: f, out: w}
	if compress {
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		iw.zw = zw
		iw.out = zw
	}
	return iw, nil
}

// Create creates the capture file at path.
func Create(path string, f sample.Format, compress bool) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(file, f, compress)
	if err != nil {
		file.Close()
		return nil, err
	}
	w.file = file
	return w, nil
}

// Write appends the first n elements of buf.
func (w *Writer) Write(buf sample.Buffer, n int) error {
	if buf == nil || buf.Format() != w.format {
		return fmt.Errorf("%w: capture is %s", pkg.ErrFormatMismatch, w.format)
	}
	n = min(max(n, 0), buf.Len())
	size := n * ElementSize(w.format)
	if cap(w.buf) < size {
		w.buf = make([]byte, size)
	}
	b := w.buf[:size]

	switch v := buf.(type) {
	case sample.CS16:
		for i, s := range v[:2*n] {
			binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
		}
	case sample.CF32:
		for i, s := range v[:2*n] {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(s))
		}
	}

	if _, err := w.out.Write(b); err != nil {
		return err
	}
	w.count += int64(n)
	return nil
}

// Count returns the number of elements written.
func (w *Writer) Count() int64 { return w.count }

// Close flushes compression and closes an owned file.
func (w *Writer) Close() error {
	var errs []error
	if w.zw != nil {
		errs = append(errs, w.zw.Close())
	}
	if w.file != nil {
		errs = append(errs, w.file.Close())
	}
	return errors.Join(errs...)
}

// Reader decodes sample buffers from a capture.
type Reader struct {
	format sample.Format
	in     io.Reader
	zr     *zstd.Decoder
	file   *os.File
	buf    []byte
	count  int64
}

// NewReader returns a reader decoding f samples from r, decompressing with
// zstd when compressed is set.
func NewReader(r io.Reader, f sample.Format, compressed bool) (*Reader, error) {
	if ElementSize(f) == 0 {
		return nil, fmt.Errorf("%w: %s", pkg.ErrUnsupportedFormat, f)
	}
	ir := &Reader{format: f, in: r}
	if compressed {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		ir.zr = zr
		ir.in = zr
	}
	return ir, nil
}

// Open opens the capture file at path.
func Open(path string, f sample.Format, compressed bool) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(file, f, compressed)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.file = file
	return r, nil
}

// Read fills buf with up to buf.Len() elements and returns the number read.
// At the end of the capture it returns 0 and io.EOF.
func (r *Reader) Read(buf sample.Buffer) (int, error) {
	if buf == nil || buf.Format() != r.format {
		return 0, fmt.Errorf("%w: capture is %s", pkg.ErrFormatMismatch, r.format)
	}
	esize := ElementSize(r.format)
	size := buf.Len() * esize
	if cap(r.buf) < size {
		r.buf = make([]byte, size)
	}
	b := r.buf[:size]

	got, err := io.ReadFull(r.in, b)
	switch {
	case errors.Is(err, io.EOF) && got == 0:
		return 0, io.EOF
	case err != nil && !errors.Is(err, io.ErrUnexpectedEOF):
		return 0, err
	}
	n := got / esize

	switch v := buf.(type) {
	case sample.CS16:
		for i := range v[:2*n] {
			v[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
		}
	case sample.CF32:
		for i := range v[:2*n] {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
	}
	r.count += int64(n)

	if got%esize != 0 {
		return n, ErrTruncated
	}
	return n, nil
}

// Count returns the number of elements read.
func (r *Reader) Count() int64 { return r.count }

// Close releases the decoder and closes an owned file.
func (r *Reader) Close() error {
	if r.zr != nil {
		r.zr.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
