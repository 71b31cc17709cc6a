package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNetAddress_SetAndString_TableDriven(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		exHost    string
		exPort    int
		exString  string
		expectErr bool
	}{
		{"host:port", "localhost:9000", "localhost", 9000, "localhost:9000", false},
		{"only host", "example", "example", 8080, "example:8080", false},
		{"empty string", "", "", 8080, ":8080", false},
		{"empty host with port", ":9090", "", 9090, ":9090", false},
		{"bad port", "host:notaport", "", 0, "", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var a NetAddress
			err := a.Set(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.exHost, a.Host)
			require.Equal(t, tt.exPort, a.Port)
			require.Equal(t, tt.exString, a.String())
		})
	}
}

func TestAddressFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	addr := AddressFlag(fs, "a", NetAddress{Host: "localhost", Port: 8080}, "address")
	require.Equal(t, "localhost:8080", addr.String())

	require.NoError(t, fs.Parse([]string{"-a", "0.0.0.0:9999"}))
	require.Equal(t, "0.0.0.0:9999", addr.String())
	require.True(t, explicitFlags(fs)["a"])
	require.False(t, explicitFlags(fs)["b"])
}
