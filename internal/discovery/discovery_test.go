package discovery

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultServiceNameIncludesHostname(t *testing.T) {
	hostname, err := os.Hostname()
	require.NoError(t, err)
	hostname, _, _ = strings.Cut(hostname, ".")

	name := defaultServiceName()
	require.Equal(t, "fastconv on "+hostname, name)
}

func TestServiceTypeIsUDPDiscoverable(t *testing.T) {
	require.True(t, strings.HasSuffix(ServiceType, "._udp"))
	require.True(t, strings.HasPrefix(ServiceType, "_"))
}
