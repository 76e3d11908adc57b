package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

var ErrNegativeLength = errors.New("negative read length")

type BinaryStream struct {
	BaseStream io.ReadSeeker
	Endian     binary.ByteOrder
}

func NewBinaryStream(baseStream io.ReadSeeker, endian string) *BinaryStream {
	bs := &BinaryStream{
		BaseStream: baseStream,
	}
	if endian == "big" {
		bs.Endian = binary.BigEndian
	} else {
		bs.Endian = binary.LittleEndian
	}
	return bs
}

// StreamLength returns the total length of rs and restores its position.
func StreamLength(rs io.Seeker) (int64, error) {
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err = rs.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

func (bs *BinaryStream) Position() int64 {
	pos, _ := bs.BaseStream.Seek(0, io.SeekCurrent)
	return pos
}

func (bs *BinaryStream) SetPosition(pos int64) error {
	_, err := bs.BaseStream.Seek(pos, io.SeekStart)
	return err
}

func (bs *BinaryStream) Skip(n int64) error {
	_, err := bs.BaseStream.Seek(n, io.SeekCurrent)
	return err
}

func (bs *BinaryStream) Length() int64 {
	n, _ := StreamLength(bs.BaseStream)
	return n
}

func (bs *BinaryStream) Remaining() int64 {
	return bs.Length() - bs.Position()
}

func (bs *BinaryStream) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(bs.BaseStream, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (bs *BinaryStream) ReadBytes(length int) ([]byte, error) {
	if length < 0 {
		return nil, ErrNegativeLength
	}
	buf := make([]byte, length)
	_, err := io.ReadFull(bs.BaseStream, buf)
	return buf, err
}

// ReadUpTo reads at most length bytes and returns what was available.
func (bs *BinaryStream) ReadUpTo(length int) ([]byte, error) {
	if length < 0 {
		return nil, ErrNegativeLength
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(bs.BaseStream, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		err = nil
	}
	return buf[:n], err
}

func (bs *BinaryStream) ReadBytesAt(length int, offset int64) ([]byte, error) {
	back := bs.Position()
	if err := bs.SetPosition(offset); err != nil {
		return nil, err
	}
	data, err := bs.ReadBytes(length)
	_ = bs.SetPosition(back)
	return data, err
}

func (bs *BinaryStream) ReadInt16() (int16, error) {
	v, err := bs.ReadUInt16()
	return int16(v), err
}

func (bs *BinaryStream) ReadUInt16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(bs.BaseStream, buf[:]); err != nil {
		return 0, err
	}
	return bs.Endian.Uint16(buf[:]), nil
}

func (bs *BinaryStream) ReadInt32() (int32, error) {
	v, err := bs.ReadUInt32()
	return int32(v), err
}

func (bs *BinaryStream) ReadUInt32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(bs.BaseStream, buf[:]); err != nil {
		return 0, err
	}
	return bs.Endian.Uint32(buf[:]), nil
}

func (bs *BinaryStream) ReadInt64() (int64, error) {
	v, err := bs.ReadUInt64()
	return int64(v), err
}

func (bs *BinaryStream) ReadUInt64() (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(bs.BaseStream, buf[:]); err != nil {
		return 0, err
	}
	return bs.Endian.Uint64(buf[:]), nil
}

func (bs *BinaryStream) ReadStringToNull() (string, error) {
	return bs.ReadStringToNullMax(32767)
}

// ReadStringToNullMax reads until a zero byte, end of stream, or maxLength
// non-zero bytes, whichever comes first. The terminator is consumed when
// it is reached before the limit.
func (bs *BinaryStream) ReadStringToNullMax(maxLength int) (string, error) {
	var result []byte
	for len(result) < maxLength {
		b, err := bs.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(result), nil
			}
			return string(result), err
		}
		if b == 0 {
			break
		}
		result = append(result, b)
	}
	return string(result), nil
}

func (bs *BinaryStream) AlignStream(alignment int64) error {
	pos := bs.Position()
	if pos%alignment != 0 {
		return bs.Skip(alignment - (pos % alignment))
	}
	return nil
}

// BinaryWriter mirrors BinaryStream for building container images in memory.
type BinaryWriter struct {
	Buffer *bytes.Buffer
	Endian binary.AppendByteOrder
}

func NewBinaryWriter(endian string) *BinaryWriter {
	bw := &BinaryWriter{Buffer: new(bytes.Buffer)}
	if endian == "big" {
		bw.Endian = binary.BigEndian
	} else {
		bw.Endian = binary.LittleEndian
	}
	return bw
}

func (bw *BinaryWriter) Len() int {
	return bw.Buffer.Len()
}

func (bw *BinaryWriter) Bytes() []byte {
	return bw.Buffer.Bytes()
}

func (bw *BinaryWriter) WriteBytes(value []byte) {
	bw.Buffer.Write(value)
}

func (bw *BinaryWriter) WriteStringToNull(value string) {
	bw.Buffer.WriteString(value)
	bw.Buffer.WriteByte(0)
}

func (bw *BinaryWriter) WriteUInt16(value uint16) {
	bw.Buffer.Write(bw.Endian.AppendUint16(nil, value))
}

func (bw *BinaryWriter) WriteUInt32(value uint32) {
	bw.Buffer.Write(bw.Endian.AppendUint32(nil, value))
}

func (bw *BinaryWriter) WriteInt32(value int32) {
	bw.WriteUInt32(uint32(value))
}

func (bw *BinaryWriter) WriteUInt64(value uint64) {
	bw.Buffer.Write(bw.Endian.AppendUint64(nil, value))
}

func (bw *BinaryWriter) WriteInt64(value int64) {
	bw.WriteUInt64(uint64(value))
}

// AlignStream pads with zero bytes up to the next multiple of alignment.
func (bw *BinaryWriter) AlignStream(alignment int) {
	if rem := bw.Buffer.Len() % alignment; rem != 0 {
		bw.Buffer.Write(make([]byte, alignment-rem))
	}
}
