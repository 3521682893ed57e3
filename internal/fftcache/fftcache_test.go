package fftcache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheMissLoggedOnceThenSuppressed(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "plan-requests.log")

	c := New(logPath, nil)
	p1 := c.ComplexForward(5000, LevelEstimate)
	require.NotNil(t, p1)
	p2 := c.ComplexForward(5000, LevelEstimate)
	require.Same(t, p1, p2)

	lines := readLines(t, logPath)
	require.Equal(t, []string{"cof5000"}, lines)
}

func TestWisdomRoundTripSuppressesReLog(t *testing.T) {
	dir := t.TempDir()
	wisdomPath := filepath.Join(dir, "wisdom")
	logPath := filepath.Join(dir, "plan-requests.log")

	c1 := New(logPath, nil)
	c1.ComplexForward(5000, LevelEstimate)
	require.NoError(t, c1.ExportWisdom(wisdomPath))

	// Simulate a second startup: import wisdom before any requests.
	c2 := New(logPath+".2", nil)
	require.NoError(t, c2.ImportWisdom(wisdomPath))
	c2.ComplexForward(5000, LevelEstimate)

	lines := readLines(t, logPath+".2")
	require.Empty(t, lines)
}

func TestDescriptorFormat(t *testing.T) {
	require.Equal(t, "cof5000", Kind{Real: false, Backward: false}.Descriptor(5000))
	require.Equal(t, "rob100", Kind{Real: true, Backward: true}.Descriptor(100))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	if len(data) == 0 {
		return nil
	}
	var out []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			out = append(out, string(data[start:i]))
			start = i + 1
		}
	}
	return out
}
