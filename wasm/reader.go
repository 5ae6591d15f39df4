package wasm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// ErrOverflow is returned when a LEB128 value exceeds its maximum bit width.
var ErrOverflow = errors.New("leb128: overflow")

// reader wraps a bytes.Reader with position tracking for error reporting.
type reader struct {
	r   *bytes.Reader
	pos int
}

func newReader(data []byte) *reader {
	return &reader{r: bytes.NewReader(data)}
}

func (r *reader) position() int {
	return r.pos
}

func (r *reader) wrapError(what string, err error) error {
	return fmt.Errorf("%s at offset %d: %w", what, r.pos, err)
}

func (r *reader) readByte() (byte, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, err
	}
	r.pos++
	return b, nil
}

func (r *reader) readBytes(n uint32) ([]byte, error) {
	if int64(n) > int64(r.r.Len()) {
		return nil, fmt.Errorf("need %d bytes, %d remain", n, r.r.Len())
	}
	buf := make([]byte, n)
	read, err := r.r.Read(buf)
	r.pos += read
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// readU32 reads an unsigned LEB128 encoded uint32.
func (r *reader) readU32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, ErrOverflow
		}
	}
}

// readS32 reads a signed LEB128 encoded int32.
func (r *reader) readS32() (int32, error) {
	v, err := r.readSigned(32)
	return int32(v), err
}

// readS33 reads a signed LEB128 value with 33-bit range (block types).
func (r *reader) readS33() (int64, error) {
	return r.readSigned(33)
}

// readS64 reads a signed LEB128 encoded int64.
func (r *reader) readS64() (int64, error) {
	return r.readSigned(64)
}

func (r *reader) readSigned(bits uint) (int64, error) {
	var result int64
	var shift uint
	var b byte
	for {
		var err error
		b, err = r.readByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= bits+7 {
			return 0, ErrOverflow
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

// readU32LE reads a fixed-width little-endian uint32.
func (r *reader) readU32LE() (uint32, error) {
	buf, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// readF32 reads a fixed-width little-endian float32.
func (r *reader) readF32() (float32, error) {
	buf, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf)), nil
}

// readF64 reads a fixed-width little-endian float64.
func (r *reader) readF64() (float64, error) {
	buf, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// readName reads a length-prefixed UTF-8 string.
func (r *reader) readName() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	buf, err := r.readBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", errors.New("name is not valid UTF-8")
	}
	return string(buf), nil
}

func (r *reader) len() int {
	return r.r.Len()
}
