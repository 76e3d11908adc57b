// Package stream provides seekable views over a borrowed source. Views keep
// their own position and seek the source before every read, so several views
// and the source itself can be used alternately.
package stream

import (
	"bytes"
	"errors"
	"io"
	"sort"

	"haruki-asset-deobfuscator/utils"
)

var ErrInvalidOffset = errors.New("stream: invalid offset")

// View is a seekable reader of known size.
type View interface {
	io.ReadSeeker
	Size() int64
}

type position struct {
	pos  int64
	size int64
}

func (p *position) seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = p.pos + offset
	case io.SeekEnd:
		abs = p.size + offset
	default:
		return 0, errors.New("stream: invalid whence")
	}
	if abs < 0 {
		return 0, ErrInvalidOffset
	}
	p.pos = abs
	return abs, nil
}

// readAt reads from src at base+off, clipped to limit bytes.
func readAt(src io.ReadSeeker, base, off int64, p []byte, limit int64) (int, error) {
	if off >= limit {
		return 0, io.EOF
	}
	if int64(len(p)) > limit-off {
		p = p[:limit-off]
	}
	if _, err := src.Seek(base+off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(src, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// Section exposes src[offset : offset+size].
type Section struct {
	position
	src  io.ReadSeeker
	base int64
}

func NewSection(src io.ReadSeeker, offset, size int64) (*Section, error) {
	if offset < 0 || size < 0 {
		return nil, ErrInvalidOffset
	}
	return &Section{position: position{size: size}, src: src, base: offset}, nil
}

// NewOffset exposes everything from offset to the end of src.
func NewOffset(src io.ReadSeeker, offset int64) (*Section, error) {
	length, err := utils.StreamLength(src)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset > length {
		return nil, ErrInvalidOffset
	}
	return NewSection(src, offset, length-offset)
}

func (s *Section) Read(p []byte) (int, error) {
	n, err := readAt(s.src, s.base, s.pos, p, s.size)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (s *Section) Seek(offset int64, whence int) (int64, error) {
	return s.seek(offset, whence)
}

func (s *Section) Size() int64 {
	return s.size
}

// XOR exposes src with every byte XORed with key.
type XOR struct {
	position
	src io.ReadSeeker
	key byte
}

func NewXOR(src io.ReadSeeker, key byte) (*XOR, error) {
	length, err := utils.StreamLength(src)
	if err != nil {
		return nil, err
	}
	return &XOR{position: position{size: length}, src: src, key: key}, nil
}

func (x *XOR) Read(p []byte) (int, error) {
	n, err := readAt(x.src, 0, x.pos, p, x.size)
	for i := 0; i < n; i++ {
		p[i] ^= x.key
	}
	x.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (x *XOR) Seek(offset int64, whence int) (int64, error) {
	return x.seek(offset, whence)
}

func (x *XOR) Size() int64 {
	return x.size
}

// Patch replaces len(Data) bytes of the underlying source at Offset.
type Patch struct {
	Offset int64
	Data   []byte
}

// Patched exposes src with non-overlapping patches laid over it.
type Patched struct {
	position
	src     io.ReadSeeker
	patches []Patch
}

func NewPatched(src io.ReadSeeker, patches ...Patch) (*Patched, error) {
	length, err := utils.StreamLength(src)
	if err != nil {
		return nil, err
	}
	sorted := append([]Patch(nil), patches...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })
	var end int64
	for _, p := range sorted {
		if p.Offset < end || p.Offset+int64(len(p.Data)) > length {
			return nil, ErrInvalidOffset
		}
		end = p.Offset + int64(len(p.Data))
	}
	return &Patched{position: position{size: length}, src: src, patches: sorted}, nil
}

func (pt *Patched) Read(p []byte) (int, error) {
	n, err := readAt(pt.src, 0, pt.pos, p, pt.size)
	start, stop := pt.pos, pt.pos+int64(n)
	for _, patch := range pt.patches {
		pStart, pStop := patch.Offset, patch.Offset+int64(len(patch.Data))
		if pStop <= start || pStart >= stop {
			continue
		}
		lo, hi := max(start, pStart), min(stop, pStop)
		copy(p[lo-start:hi-start], patch.Data[lo-pStart:hi-pStart])
	}
	pt.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (pt *Patched) Seek(offset int64, whence int) (int64, error) {
	return pt.seek(offset, whence)
}

func (pt *Patched) Size() int64 {
	return pt.size
}

// Bytes wraps an in-memory buffer as a View.
type Bytes struct {
	*bytes.Reader
}

func NewBytes(b []byte) *Bytes {
	return &Bytes{Reader: bytes.NewReader(b)}
}

// ReadAll rewinds rs and reads it to the end.
func ReadAll(rs io.ReadSeeker) ([]byte, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(rs)
}
