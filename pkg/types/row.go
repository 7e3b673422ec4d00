package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Row is an ordered tuple of column Values, stored in a B-tree leaf cell
// in column order. Encoding is a flat sequence of type-tagged,
// length-prefixed fields — grounded on the teacher's own
// binary.Write/binary.Read tagging style for checkpoint records, widened
// from key-only values to a full row.
type Row []Value

// Encode serializes a Row as: [fieldCount varint][kind byte][payload]...
func (r Row) Encode() []byte {
	buf := make([]byte, 0, 64)
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], uint64(len(r)))
	buf = append(buf, scratch[:n]...)
	for _, v := range r {
		buf = appendValue(buf, v)
	}
	return buf
}

func appendValue(buf []byte, v Value) []byte {
	buf = append(buf, byte(v.Kind))
	var scratch [binary.MaxVarintLen64]byte
	switch v.Kind {
	case KindNull:
		// no payload
	case KindInteger:
		n := binary.PutVarint(scratch[:], v.Integer)
		buf = append(buf, scratch[:n]...)
	case KindReal:
		bits := make([]byte, 8)
		binary.LittleEndian.PutUint64(bits, floatBits(v.Real))
		buf = append(buf, bits...)
	case KindText:
		n := binary.PutUvarint(scratch[:], uint64(len(v.Text)))
		buf = append(buf, scratch[:n]...)
		buf = append(buf, v.Text...)
	case KindBlob:
		n := binary.PutUvarint(scratch[:], uint64(len(v.Blob)))
		buf = append(buf, scratch[:n]...)
		buf = append(buf, v.Blob...)
	}
	return buf
}

// DecodeRow parses the encoding produced by Row.Encode.
func DecodeRow(buf []byte) (Row, error) {
	count, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, fmt.Errorf("types: truncated row header")
	}
	buf = buf[n:]
	row := make(Row, 0, count)
	for i := uint64(0); i < count; i++ {
		v, rest, err := decodeValue(buf)
		if err != nil {
			return nil, err
		}
		row = append(row, v)
		buf = rest
	}
	return row, nil
}

func decodeValue(buf []byte) (Value, []byte, error) {
	if len(buf) < 1 {
		return Value{}, nil, fmt.Errorf("types: truncated value tag")
	}
	kind := Kind(buf[0])
	buf = buf[1:]
	switch kind {
	case KindNull:
		return Null(), buf, nil
	case KindInteger:
		i, n := binary.Varint(buf)
		if n <= 0 {
			return Value{}, nil, fmt.Errorf("types: truncated integer")
		}
		return Integer(i), buf[n:], nil
	case KindReal:
		if len(buf) < 8 {
			return Value{}, nil, fmt.Errorf("types: truncated real")
		}
		bits := binary.LittleEndian.Uint64(buf[:8])
		return Real(bitsToFloat(bits)), buf[8:], nil
	case KindText:
		l, n := binary.Uvarint(buf)
		if n <= 0 || uint64(len(buf[n:])) < l {
			return Value{}, nil, fmt.Errorf("types: truncated text")
		}
		buf = buf[n:]
		return Text(string(buf[:l])), buf[l:], nil
	case KindBlob:
		l, n := binary.Uvarint(buf)
		if n <= 0 || uint64(len(buf[n:])) < l {
			return Value{}, nil, fmt.Errorf("types: truncated blob")
		}
		buf = buf[n:]
		cp := make([]byte, l)
		copy(cp, buf[:l])
		return Blob(cp), buf[l:], nil
	default:
		return Value{}, nil, fmt.Errorf("types: unknown value kind %d", kind)
	}
}

func floatBits(f float64) uint64 {
	return math.Float64bits(f)
}

func bitsToFloat(b uint64) float64 {
	return math.Float64frombits(b)
}
