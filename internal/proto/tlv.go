// Package proto implements the TLV command/status wire codec of spec
// §6: a byte stream of (type, varint-length, value) triples terminated
// by a type=0 sentinel, carrying integers, IEEE floats, UTF-8 strings,
// socket addresses, and float vectors.
package proto

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"

	"github.com/sdrcore/fastconv/internal/coreerr"
)

// Kind discriminates a packet as a command or a status response (spec
// §6 "a one-byte kind discriminator (0 = status, 1 = command)").
type Kind byte

const (
	KindStatus  Kind = 0
	KindCommand Kind = 1
)

// EndOfList is the sentinel type value terminating a field sequence.
const EndOfList = 0

// Field is one decoded (type, value) pair. Value holds a Go type
// appropriate to how it was decoded: uint64, float64, string,
// *net.UDPAddr, or []float32.
type Field struct {
	Type  byte
	Value any
}

// Encoder appends TLV fields to an internal buffer, then finishes with
// a kind byte and end-of-list sentinel.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) writeLength(n int) {
	if n < 128 {
		e.buf = append(e.buf, byte(n))
		return
	}
	var tmp [8]byte
	size := 0
	for v := n; v > 0; v >>= 8 {
		size++
	}
	binary.BigEndian.PutUint64(tmp[8-size:], uint64(n))
	e.buf = append(e.buf, byte(0x80|size))
	e.buf = append(e.buf, tmp[8-size:]...)
}

func (e *Encoder) writeField(typ byte, value []byte) {
	e.buf = append(e.buf, typ)
	e.writeLength(len(value))
	e.buf = append(e.buf, value...)
}

// PutUint appends a big-endian unsigned integer in the smallest whole
// byte count that holds it (1-8 bytes, per spec §6 "1-8 bytes
// big-endian").
func (e *Encoder) PutUint(typ byte, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	size := 8
	for size > 1 && tmp[8-size] == 0 {
		size--
	}
	e.writeField(typ, tmp[8-size:])
}

// PutFloat32 appends an IEEE single-precision float.
func (e *Encoder) PutFloat32(typ byte, v float32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], math.Float32bits(v))
	e.writeField(typ, tmp[:])
}

// PutFloat64 appends an IEEE double-precision float.
func (e *Encoder) PutFloat64(typ byte, v float64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	e.writeField(typ, tmp[:])
}

// PutString appends a UTF-8 string, not null-terminated.
func (e *Encoder) PutString(typ byte, v string) {
	e.writeField(typ, []byte(v))
}

// PutSocket appends an address-family byte plus address plus port.
func (e *Encoder) PutSocket(typ byte, addr *net.UDPAddr) {
	var value []byte
	if ip4 := addr.IP.To4(); ip4 != nil {
		value = append(value, 4)
		value = append(value, ip4...)
	} else {
		value = append(value, 6)
		value = append(value, addr.IP.To16()...)
	}
	var port [2]byte
	binary.BigEndian.PutUint16(port[:], uint16(addr.Port))
	value = append(value, port[:]...)
	e.writeField(typ, value)
}

// PutFloatVector appends a vector of IEEE single-precision floats.
func (e *Encoder) PutFloatVector(typ byte, v []float32) {
	value := make([]byte, 4*len(v))
	for i, f := range v {
		binary.BigEndian.PutUint32(value[4*i:], math.Float32bits(f))
	}
	e.writeField(typ, value)
}

// Finish terminates the field sequence and prefixes the kind byte.
func (e *Encoder) Finish(kind Kind) []byte {
	out := make([]byte, 0, len(e.buf)+2)
	out = append(out, byte(kind))
	out = append(out, e.buf...)
	out = append(out, EndOfList, 0) // type=0, zero-length value
	return out
}

// FieldSchema tells the decoder how to interpret a given field type's
// value bytes, since the wire format alone doesn't carry a type tag
// beyond the raw byte count.
type FieldSchema byte

const (
	SchemaUint FieldSchema = iota
	SchemaFloat32
	SchemaFloat64
	SchemaString
	SchemaSocket
	SchemaFloatVector
)

// Decode parses a TLV byte stream into a kind and field sequence.
// Malformed individual fields are skipped (spec §7 "invalid-command:
// ... Silently ignored; other fields in the same packet are still
// applied"), but a schema must be supplied so ambiguous byte counts
// (e.g. an 8-byte value that could be a uint64 or a float64) decode
// correctly — the caller picks schema per type as it decodes the
// command it expects.
func Decode(data []byte, schemaFor func(typ byte) FieldSchema) (Kind, []Field, error) {
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("proto: empty packet: %w", coreerr.ErrInvalidCommand)
	}
	kind := Kind(data[0])
	pos := 1
	var fields []Field

	for pos < len(data) {
		typ := data[pos]
		pos++
		if typ == EndOfList {
			break
		}
		if pos >= len(data) {
			return kind, fields, fmt.Errorf("proto: truncated length: %w", coreerr.ErrInvalidCommand)
		}
		length, n, err := readLength(data[pos:])
		if err != nil {
			return kind, fields, err
		}
		pos += n
		if pos+length > len(data) {
			return kind, fields, fmt.Errorf("proto: value overruns packet: %w", coreerr.ErrInvalidCommand)
		}
		value := data[pos : pos+length]
		pos += length

		decoded, err := decodeValue(schemaFor(typ), value)
		if err != nil {
			continue // invalid-command: skip this field, keep parsing
		}
		fields = append(fields, Field{Type: typ, Value: decoded})
	}
	return kind, fields, nil
}

func readLength(b []byte) (length, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("proto: missing length byte: %w", coreerr.ErrInvalidCommand)
	}
	first := b[0]
	if first < 128 {
		return int(first), 1, nil
	}
	size := int(first &^ 0x80)
	if size == 0 || size > 8 || len(b) < 1+size {
		return 0, 0, fmt.Errorf("proto: malformed extended length: %w", coreerr.ErrInvalidCommand)
	}
	var tmp [8]byte
	copy(tmp[8-size:], b[1:1+size])
	return int(binary.BigEndian.Uint64(tmp[:])), 1 + size, nil
}

func decodeValue(schema FieldSchema, value []byte) (any, error) {
	switch schema {
	case SchemaUint:
		if len(value) == 0 || len(value) > 8 {
			return nil, fmt.Errorf("proto: bad uint length %d: %w", len(value), coreerr.ErrInvalidCommand)
		}
		var tmp [8]byte
		copy(tmp[8-len(value):], value)
		return binary.BigEndian.Uint64(tmp[:]), nil
	case SchemaFloat32:
		if len(value) != 4 {
			return nil, fmt.Errorf("proto: bad float32 length %d: %w", len(value), coreerr.ErrInvalidCommand)
		}
		return math.Float32frombits(binary.BigEndian.Uint32(value)), nil
	case SchemaFloat64:
		if len(value) != 8 {
			return nil, fmt.Errorf("proto: bad float64 length %d: %w", len(value), coreerr.ErrInvalidCommand)
		}
		return math.Float64frombits(binary.BigEndian.Uint64(value)), nil
	case SchemaString:
		return string(value), nil
	case SchemaSocket:
		return decodeSocket(value)
	case SchemaFloatVector:
		if len(value)%4 != 0 {
			return nil, fmt.Errorf("proto: bad float vector length %d: %w", len(value), coreerr.ErrInvalidCommand)
		}
		out := make([]float32, len(value)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.BigEndian.Uint32(value[4*i:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("proto: unknown schema %d: %w", schema, coreerr.ErrInvalidCommand)
	}
}

func decodeSocket(value []byte) (*net.UDPAddr, error) {
	if len(value) < 1 {
		return nil, fmt.Errorf("proto: empty socket value: %w", coreerr.ErrInvalidCommand)
	}
	family := value[0]
	rest := value[1:]
	var ipLen int
	switch family {
	case 4:
		ipLen = 4
	case 6:
		ipLen = 16
	default:
		return nil, fmt.Errorf("proto: unknown address family %d: %w", family, coreerr.ErrInvalidCommand)
	}
	if len(rest) != ipLen+2 {
		return nil, fmt.Errorf("proto: bad socket value length: %w", coreerr.ErrInvalidCommand)
	}
	ip := net.IP(rest[:ipLen])
	port := binary.BigEndian.Uint16(rest[ipLen:])
	return &net.UDPAddr{IP: ip, Port: int(port)}, nil
}
