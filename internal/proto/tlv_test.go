package proto

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripUintStringFloat(t *testing.T) {
	const (
		typStream = 1
		typFreq   = 2
		typName   = 3
	)
	e := NewEncoder()
	e.PutUint(typStream, 42)
	e.PutFloat64(typFreq, 14250000.5)
	e.PutString(typName, "20m-ssb")
	packet := e.Finish(KindCommand)

	schema := func(typ byte) FieldSchema {
		switch typ {
		case typStream:
			return SchemaUint
		case typFreq:
			return SchemaFloat64
		case typName:
			return SchemaString
		}
		return SchemaUint
	}

	kind, fields, err := Decode(packet, schema)
	require.NoError(t, err)
	require.Equal(t, KindCommand, kind)
	require.Len(t, fields, 3)
	require.Equal(t, uint64(42), fields[0].Value)
	require.InDelta(t, 14250000.5, fields[1].Value.(float64), 1e-6)
	require.Equal(t, "20m-ssb", fields[2].Value)
}

func TestSocketRoundTrip(t *testing.T) {
	e := NewEncoder()
	addr := &net.UDPAddr{IP: net.ParseIP("239.1.2.3").To4(), Port: 5004}
	e.PutSocket(10, addr)
	packet := e.Finish(KindStatus)

	_, fields, err := Decode(packet, func(byte) FieldSchema { return SchemaSocket })
	require.NoError(t, err)
	require.Len(t, fields, 1)
	got := fields[0].Value.(*net.UDPAddr)
	require.Equal(t, addr.IP.String(), got.IP.String())
	require.Equal(t, addr.Port, got.Port)
}

func TestLongLengthEncoding(t *testing.T) {
	e := NewEncoder()
	big := make([]float32, 100)
	e.PutFloatVector(20, big)
	packet := e.Finish(KindStatus)

	_, fields, err := Decode(packet, func(byte) FieldSchema { return SchemaFloatVector })
	require.NoError(t, err)
	require.Len(t, fields, 1)
	require.Len(t, fields[0].Value.([]float32), 100)
}

func TestMalformedFieldIsSkippedNotFatal(t *testing.T) {
	e := NewEncoder()
	e.PutUint(1, 7)
	e.PutFloat64(2, 1.5) // 8 bytes, decoded below as a 4-byte float32
	e.PutUint(3, 9)
	packet := e.Finish(KindCommand)

	schema := func(typ byte) FieldSchema {
		if typ == 2 {
			return SchemaFloat32 // wrong length on purpose -> decode error -> skipped
		}
		return SchemaUint
	}
	_, fields, err := Decode(packet, schema)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	require.Equal(t, uint64(7), fields[0].Value)
	require.Equal(t, uint64(9), fields[1].Value)
}
