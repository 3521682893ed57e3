package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sdrcore/fastconv/internal/coreerr"
)

func newBareChannel(id string) *Channel {
	return &Channel{streamID: id}
}

func TestTableCreateAndLookup(t *testing.T) {
	tbl := NewTable(10)
	ch := newBareChannel("wwv-10mhz")
	require.NoError(t, tbl.Create(ch))

	got, ok := tbl.Lookup("wwv-10mhz")
	require.True(t, ok)
	require.Same(t, ch, got)
	require.Equal(t, 1, tbl.Len())
}

func TestTableRejectsDuplicateStreamID(t *testing.T) {
	tbl := NewTable(10)
	require.NoError(t, tbl.Create(newBareChannel("dup")))
	err := tbl.Create(newBareChannel("dup"))
	require.ErrorIs(t, err, coreerr.ErrInvalidConfig)
}

func TestTableRejectsCreationPastMax(t *testing.T) {
	tbl := NewTable(2)
	require.NoError(t, tbl.Create(newBareChannel("a")))
	require.NoError(t, tbl.Create(newBareChannel("b")))
	err := tbl.Create(newBareChannel("c"))
	require.ErrorIs(t, err, coreerr.ErrResourceExhaustion)
}

func TestTableDestroyTerminatesAndRemoves(t *testing.T) {
	tbl := NewTable(10)
	ch := newBareChannel("x")
	require.NoError(t, tbl.Create(ch))

	tbl.Destroy("x")
	_, ok := tbl.Lookup("x")
	require.False(t, ok)
	require.True(t, ch.terminate)
}

func TestTableDefaultMaxWhenNonPositive(t *testing.T) {
	tbl := NewTable(0)
	require.Equal(t, DefaultMaxChannels, tbl.max)
}

func TestTableStreamIDsSnapshotsAllEntries(t *testing.T) {
	tbl := NewTable(10)
	require.NoError(t, tbl.Create(newBareChannel("a")))
	require.NoError(t, tbl.Create(newBareChannel("b")))
	ids := tbl.StreamIDs()
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}
