package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RoGogDBD/sparkplug-b/internal/codec"
	"github.com/RoGogDBD/sparkplug-b/internal/handler"
	"github.com/RoGogDBD/sparkplug-b/internal/host"
	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/RoGogDBD/sparkplug-b/internal/repository"
	"github.com/RoGogDBD/sparkplug-b/internal/service"
	"github.com/RoGogDBD/sparkplug-b/internal/topic"
	"github.com/RoGogDBD/sparkplug-b/internal/transport"
	"github.com/RoGogDBD/sparkplug-b/internal/transport/transporttest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func encode(t *testing.T, p *models.Payload) []byte {
	t.Helper()
	data, err := codec.EncodePayload(p)
	require.NoError(t, err)
	return data
}

func TestFormatMessage(t *testing.T) {
	state, err := codec.EncodeHostState(models.HostState{Online: true, Timestamp: 42})
	require.NoError(t, err)
	data := encode(t, &models.Payload{
		Seq:    7,
		HasSeq: true,
		Metrics: []models.Metric{
			{Name: "temp", Datatype: models.Double, DoubleValue: 20.5},
			{Alias: 3, HasAlias: true, Datatype: models.Boolean, BooleanValue: true},
		},
	})

	tests := []struct {
		name    string
		topic   string
		payload []byte
		want    string
	}{
		{"state", "spBv1.0/STATE/scada", state, "STATE scada online=true timestamp=42"},
		{"bad state", "spBv1.0/STATE/scada", []byte(`{}`), "STATE scada: malformed payload"},
		{"node data", "spBv1.0/G1/NDATA/E1", data, "NDATA G1/E1 seq=7 temp=20.5 #3=true"},
		{"device data", "spBv1.0/G1/DDATA/E1/D1", data, "DDATA G1/E1/D1 seq=7 temp=20.5 #3=true"},
		{"bad topic", "other/topic", data, "other/topic: invalid sparkplug topic"},
		{"bad payload", "spBv1.0/G1/NDATA/E1", []byte{0xff}, "NDATA G1/E1: malformed payload"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, strings.HasPrefix(formatMessage(tt.topic, tt.payload), tt.want))
		})
	}
}

func TestWatchFilters(t *testing.T) {
	require.Equal(t, []string{"spBv1.0/#"}, watchFilters(""))
	require.Equal(t, []string{"spBv1.0/G1/#", "spBv1.0/STATE/+"}, watchFilters("G1"))
}

type syncBuffer struct {
	mu  chan struct{}
	buf bytes.Buffer
}

func newSyncBuffer() *syncBuffer { return &syncBuffer{mu: make(chan struct{}, 1)} }

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu <- struct{}{}
	defer func() { <-b.mu }()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu <- struct{}{}
	defer func() { <-b.mu }()
	return b.buf.String()
}

func TestWatch(t *testing.T) {
	b := transporttest.NewBroker()
	pub := b.Client("pub")
	require.NoError(t, pub.Connect(nil, transport.NewQueue()))

	out := newSyncBuffer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watch(ctx, b.Client("watch"), watchFilters("G1"), out) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "watching") }, time.Second, 5*time.Millisecond)

	data := encode(t, &models.Payload{Metrics: []models.Metric{{Name: "temp", Datatype: models.Double, DoubleValue: 1.5}}})
	require.NoError(t, pub.Publish(topic.NodeIdentity("G1", "E1").Topic(topic.NodeData), 0, false, data))
	require.NoError(t, pub.Publish(topic.NodeIdentity("G2", "E1").Topic(topic.NodeData), 0, false, data))

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "NDATA G1/E1 temp=1.5") }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.NotContains(t, out.String(), "G2/E1")
}

func newTestServer(t *testing.T) (*httptest.Server, *host.HostAgent) {
	t.Helper()
	h, err := host.NewHostAgent(host.Config{HostID: "scada"}, transporttest.NewBroker().Client("host"))
	require.NoError(t, err)
	c, err := h.AddNode("G1", "E1")
	require.NoError(t, err)
	require.NoError(t, c.Registry().AddMetric("temp", models.Double, repository.WithAlias(1), repository.WithValue(20.5)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.Run(ctx, time.Hour) }()

	srv := httptest.NewServer(service.NewRouter(handler.NewHandler(h, nil, nil), nil, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, h
}

func runCmd(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", server}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	srv, h := newTestServer(t)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"consumers", []string{"consumers"}, "G1/E1", false},
		{"metrics", []string{"metrics", "G1/E1"}, "temp", false},
		{"set", []string{"set", "G1/E1", "temp", "25"}, "temp = 25 (Double)", false},
		{"set invalid", []string{"set", "G1/E1", "temp", "x"}, "", true},
		{"metrics unknown", []string{"metrics", "G9/E9"}, "", true},
		{"rebirth offline", []string{"rebirth", "G1/E1"}, "", true},
		{"missing args", []string{"set", "G1/E1"}, "", true},
		{"version", []string{"version"}, "Build version:", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCmd(t, srv.URL, tt.args...)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Contains(t, out, tt.want)
		})
	}

	c, ok := h.Consumer(topic.NodeIdentity("G1", "E1"))
	require.True(t, ok)
	require.True(t, c.Registry().HasChanged())
}
