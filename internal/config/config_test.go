package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEdgeConfig_Defaults(t *testing.T) {
	cfg, err := LoadEdgeConfig(nil)
	require.NoError(t, err)
	require.Equal(t, "tcp://localhost:1883", cfg.Broker)
	require.Equal(t, "Sparkplug", cfg.Group)
	require.Equal(t, "Edge1", cfg.Node)
	require.Equal(t, time.Second, cfg.PublishInterval)
	require.True(t, cfg.Restore)
	require.False(t, cfg.UseAlias)
}

func TestLoadEdgeConfig_Precedence(t *testing.T) {
	path := writeFile(t, "edge.yaml", `
broker: tcp://file:1883
group: FileGroup
node: FileNode
use_alias: true
publish_interval: 3s
metrics:
  - name: temperature
    alias: 1
    type: Double
    value: "21.5"
  - name: label
    type: String
`)

	tests := []struct {
		name  string
		args  []string
		env   map[string]string
		check func(t *testing.T, cfg *EdgeConfig)
	}{
		{
			name: "file fills unset flags",
			args: []string{"-c", path},
			check: func(t *testing.T, cfg *EdgeConfig) {
				require.Equal(t, "tcp://file:1883", cfg.Broker)
				require.Equal(t, "FileGroup", cfg.Group)
				require.True(t, cfg.UseAlias)
				require.Equal(t, 3*time.Second, cfg.PublishInterval)
				require.Len(t, cfg.Metrics, 2)
				require.Equal(t, uint64(1), *cfg.Metrics[0].Alias)
				require.Nil(t, cfg.Metrics[1].Alias)
			},
		},
		{
			name: "flags override file",
			args: []string{"-c", path, "-g", "FlagGroup", "-i", "500ms"},
			check: func(t *testing.T, cfg *EdgeConfig) {
				require.Equal(t, "FlagGroup", cfg.Group)
				require.Equal(t, "FileNode", cfg.Node)
				require.Equal(t, 500*time.Millisecond, cfg.PublishInterval)
			},
		},
		{
			name: "env overrides flags",
			args: []string{"-g", "FlagGroup", "-device", "D1"},
			env:  map[string]string{EnvGroup: "EnvGroup", EnvUseAlias: "true", EnvPublishInterval: "2", EnvConfig: path},
			check: func(t *testing.T, cfg *EdgeConfig) {
				require.Equal(t, "EnvGroup", cfg.Group)
				require.Equal(t, "D1", cfg.Device)
				require.True(t, cfg.UseAlias)
				require.Equal(t, 2*time.Second, cfg.PublishInterval)
				require.Len(t, cfg.Metrics, 2)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadEdgeConfig(tt.args)
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadEdgeConfig_Errors(t *testing.T) {
	bad := writeFile(t, "edge.json", `{"metrics":[{"name":"x"}]}`)
	broken := writeFile(t, "broken.json", `{`)

	tests := []struct {
		name string
		args []string
	}{
		{name: "metric without type", args: []string{"-c", bad}},
		{name: "unparsable file", args: []string{"-c", broken}},
		{name: "missing file", args: []string{"-c", filepath.Join(t.TempDir(), "none.json")}},
		{name: "bad interval", args: []string{"-i", "never"}},
		{name: "empty node", args: []string{"-n", ""}},
		{name: "unknown flag", args: []string{"-zzz"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEdgeConfig(tt.args)
			require.Error(t, err)
		})
	}
}

func TestLoadHostConfig(t *testing.T) {
	path := writeFile(t, "host.json", `{
		"host_id": "FileHost",
		"consumers": ["G1/E1", "G1/E1/D1"],
		"settle_delay": "2s",
		"address": "0.0.0.0:9000",
		"redis_addr": "localhost:6379"
	}`)

	cfg, err := LoadHostConfig([]string{"-c", path, "-d", "postgres://x"})
	require.NoError(t, err)
	require.Equal(t, "FileHost", cfg.HostID)
	require.Equal(t, []string{"G1/E1", "G1/E1/D1"}, cfg.Consumers)
	require.Equal(t, 2*time.Second, cfg.SettleDelay)
	require.Equal(t, time.Second, cfg.PublishInterval)
	require.Equal(t, "0.0.0.0:9000", cfg.Address.String())
	require.Equal(t, "postgres://x", cfg.DatabaseDSN)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)

	t.Setenv(EnvConsumers, "G2/N1")
	t.Setenv(EnvAddress, "127.0.0.1:7000")
	t.Setenv(EnvSettleDelay, "100ms")
	cfg, err = LoadHostConfig([]string{"-c", path, "-consumers", "G9/N9"})
	require.NoError(t, err)
	require.Equal(t, []string{"G2/N1"}, cfg.Consumers)
	require.Equal(t, "127.0.0.1:7000", cfg.Address.String())
	require.Equal(t, 100*time.Millisecond, cfg.SettleDelay)
}

func TestLoadHostConfig_Errors(t *testing.T) {
	_, err := LoadHostConfig([]string{"-host", ""})
	require.Error(t, err)
	_, err = LoadHostConfig([]string{"-settle", "-1s"})
	require.Error(t, err)
	_, err = LoadHostConfig([]string{"-a", "host:port"})
	require.Error(t, err)
}
