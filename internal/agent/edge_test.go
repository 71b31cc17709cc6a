package agent

import (
	"errors"
	"testing"

	"github.com/RoGogDBD/sparkplug-b/internal/codec"
	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/RoGogDBD/sparkplug-b/internal/repository"
	"github.com/RoGogDBD/sparkplug-b/internal/topic"
	"github.com/RoGogDBD/sparkplug-b/internal/transport"
	"github.com/RoGogDBD/sparkplug-b/internal/transport/transporttest"
	"github.com/stretchr/testify/require"
)

type edgeFixture struct {
	broker *transporttest.Broker
	client *transporttest.Client
	reg    *repository.Registry
	agent  *EdgeAgent
}

func newEdgeFixture(t *testing.T, cfg EdgeConfig) *edgeFixture {
	t.Helper()
	if cfg.Identity == (topic.Identity{}) {
		cfg.Identity = topic.NodeIdentity("G1", "E1")
	}
	b := transporttest.NewBroker()
	c := b.Client("edge")
	reg := repository.NewRegistry(cfg.Identity.String(), nil)
	require.NoError(t, reg.AddMetric("temp", models.Double, repository.WithAlias(1), repository.WithValue(20.5)))
	require.NoError(t, reg.AddMetric("running", models.Boolean, repository.WithAlias(2), repository.WithValue(true)))
	a, err := NewEdgeAgent(cfg, c, reg)
	require.NoError(t, err)
	return &edgeFixture{broker: b, client: c, reg: reg, agent: a}
}

func encode(t *testing.T, p *models.Payload) []byte {
	t.Helper()
	data, err := codec.EncodePayload(p)
	require.NoError(t, err)
	return data
}

// sent возвращает декодированные сообщения клиента для топика.
func sent(t *testing.T, c *transporttest.Client, tp string) []*models.Payload {
	t.Helper()
	var out []*models.Payload
	for _, m := range c.Sent() {
		if m.Topic != tp {
			continue
		}
		p, err := codec.DecodePayload(m.Payload)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func publishHostState(t *testing.T, b *transporttest.Broker, hostID string, online bool, ts int64) {
	t.Helper()
	host := b.Client("host-" + hostID)
	if !host.IsConnected() {
		require.NoError(t, host.Connect(nil, transport.NewQueue()))
	}
	data, err := codec.EncodeHostState(models.HostState{Online: online, Timestamp: ts})
	require.NoError(t, err)
	require.NoError(t, host.Publish(topic.BuildHostStatusTopic(topic.Namespace, hostID), transport.AtLeastOnce, true, data))
}

func requireBirth(t *testing.T, p *models.Payload, reg *repository.Registry, bdSeq uint64) {
	t.Helper()
	var bd, rebirth int
	for _, m := range p.Metrics {
		switch m.Name {
		case models.BdSeqMetric:
			bd++
			require.Equal(t, bdSeq, m.LongValue)
		case models.RebirthMetric:
			rebirth++
			require.False(t, m.BooleanValue)
		default:
			require.True(t, reg.HasMetric(m.Name))
		}
	}
	require.Equal(t, 1, bd)
	require.Equal(t, 1, rebirth)
	require.Len(t, p.Metrics, reg.Len()+2)
	require.Equal(t, models.BdSeqMetric, p.Metrics[0].Name)
	require.Equal(t, models.RebirthMetric, p.Metrics[1].Name)
}

func TestEdgeAgent_StartPublishesBirth(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{})
	require.NoError(t, f.reg.SetValue("temp", 21.0))

	require.NoError(t, f.agent.Start())
	require.Equal(t, Connecting, f.agent.State())
	f.agent.Tick()
	require.Equal(t, Live, f.agent.State())

	births := sent(t, f.client, "spBv1.0/G1/NBIRTH/E1")
	require.Len(t, births, 1)
	requireBirth(t, births[0], f.reg, 1)
	require.False(t, f.reg.HasChanged())
	require.Equal(t, uint64(0), births[0].Seq)

	will := f.client.Will()
	require.NotNil(t, will)
	require.Equal(t, "spBv1.0/G1/NDEATH/E1", will.Topic)
	wp, err := codec.DecodePayload(will.Payload)
	require.NoError(t, err)
	require.Len(t, wp.Metrics, 1)
	require.Equal(t, models.BdSeqMetric, wp.Metrics[0].Name)
	require.Equal(t, uint64(1), wp.Metrics[0].LongValue)
}

func TestEdgeAgent_PublishData(t *testing.T) {
	tests := []struct {
		name     string
		useAlias bool
		check    func(t *testing.T, m models.Metric)
	}{
		{
			name: "by name",
			check: func(t *testing.T, m models.Metric) {
				require.Equal(t, "temp", m.Name)
				require.False(t, m.HasAlias)
			},
		},
		{
			name:     "by alias",
			useAlias: true,
			check: func(t *testing.T, m models.Metric) {
				require.Empty(t, m.Name)
				require.True(t, m.HasAlias)
				require.Equal(t, uint64(1), m.Alias)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newEdgeFixture(t, EdgeConfig{UseAlias: tt.useAlias})
			require.NoError(t, f.agent.Start())
			f.agent.Tick()

			require.ErrorIs(t, f.agent.PublishData(), ErrNothingToPublish)

			require.NoError(t, f.reg.SetValue("temp", 22.5))
			require.NoError(t, f.agent.PublishData())
			require.False(t, f.reg.HasChanged())
			require.Equal(t, uint64(1), f.agent.Seq())

			data := sent(t, f.client, "spBv1.0/G1/NDATA/E1")
			require.Len(t, data, 1)
			require.Equal(t, uint64(1), data[0].Seq)
			require.Len(t, data[0].Metrics, 1)
			tt.check(t, data[0].Metrics[0])
			require.Equal(t, 22.5, data[0].Metrics[0].DoubleValue)
			require.Equal(t, models.Double, data[0].Metrics[0].Datatype)
		})
	}
}

func TestEdgeAgent_AliasModeMissingAlias(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{UseAlias: true})
	require.NoError(t, f.reg.AddMetric("noalias", models.Int32))
	require.NoError(t, f.agent.Start())
	f.agent.Tick()

	require.NoError(t, f.reg.SetValue("noalias", 5))
	err := f.agent.PublishData()
	require.ErrorIs(t, err, models.ErrMissingIdentifier)
	require.Equal(t, uint64(0), f.agent.Seq())
	require.True(t, f.reg.HasChanged())
}

func TestEdgeAgent_PublishDataBeforeConnect(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{})
	require.NoError(t, f.reg.SetValue("temp", 1.0))
	require.ErrorIs(t, f.agent.PublishData(), transport.ErrNotConnected)
	require.True(t, f.reg.HasChanged())
	require.ErrorIs(t, f.agent.PublishBirth(), transport.ErrNotConnected)
}

func TestEdgeAgent_SeqWraps(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{})
	require.NoError(t, f.agent.Start())
	f.agent.Tick()

	for i := 0; i < 300; i++ {
		require.NoError(t, f.reg.SetValue("temp", float64(i)))
		require.NoError(t, f.agent.PublishData())
		require.Less(t, f.agent.Seq(), uint64(models.SeqModulus))
	}
	require.Equal(t, uint64(300%256), f.agent.Seq())

	data := sent(t, f.client, "spBv1.0/G1/NDATA/E1")
	require.Equal(t, uint64(255), data[254].Seq)
	require.Equal(t, uint64(0), data[255].Seq)
}

func TestEdgeAgent_BdSeqWrapsAcrossRestarts(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{})
	for i := 0; i < 256; i++ {
		require.NoError(t, f.agent.Start())
		f.agent.Tick()
		f.agent.Stop()
		require.Less(t, f.agent.BdSeq(), uint64(models.SeqModulus))
	}
	require.Equal(t, uint64(0), f.agent.BdSeq())
}

func TestEdgeAgent_PrimaryHostGating(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{PrimaryHostID: "scada"})
	birthTopic := "spBv1.0/G1/NBIRTH/E1"

	require.NoError(t, f.agent.Start())
	f.agent.Tick()
	require.Equal(t, AwaitingHost, f.agent.State())
	require.Empty(t, sent(t, f.client, birthTopic))

	require.NoError(t, f.reg.SetValue("temp", 30.0))
	require.ErrorIs(t, f.agent.PublishData(), ErrNothingToPublish)
	require.True(t, f.reg.HasChanged())

	publishHostState(t, f.broker, "scada", true, 100)
	f.agent.Tick()
	require.Equal(t, Live, f.agent.State())
	births := sent(t, f.client, birthTopic)
	require.Len(t, births, 1)
	requireBirth(t, births[0], f.reg, 1)

	require.NoError(t, f.reg.SetValue("temp", 31.0))
	require.NoError(t, f.agent.PublishData())

	publishHostState(t, f.broker, "scada", false, 200)
	f.agent.Tick()
	require.Equal(t, AwaitingHost, f.agent.State())
	require.NoError(t, f.reg.SetValue("temp", 32.0))
	require.ErrorIs(t, f.agent.PublishData(), ErrNothingToPublish)

	// устаревший online не применяется
	publishHostState(t, f.broker, "scada", true, 150)
	f.agent.Tick()
	require.False(t, f.agent.Monitor().Online())
	require.Len(t, sent(t, f.client, birthTopic), 1)

	publishHostState(t, f.broker, "scada", true, 300)
	f.agent.Tick()
	require.Len(t, sent(t, f.client, birthTopic), 2)
}

func TestEdgeAgent_RetainedHostStateOnConnect(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{PrimaryHostID: "scada"})
	publishHostState(t, f.broker, "scada", true, 100)

	require.NoError(t, f.agent.Start())
	f.agent.Tick()
	require.Equal(t, Live, f.agent.State())
	require.Len(t, sent(t, f.client, "spBv1.0/G1/NBIRTH/E1"), 1)
}

func TestEdgeAgent_RebirthCommand(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{})
	require.NoError(t, f.agent.Start())
	f.agent.Tick()

	host := f.broker.Client("host")
	require.NoError(t, host.Connect(nil, transport.NewQueue()))
	cmd := encode(t, &models.Payload{Metrics: []models.Metric{
		{Name: models.RebirthMetric, Datatype: models.Boolean, BooleanValue: true},
	}})
	require.NoError(t, host.Publish("spBv1.0/G1/NCMD/E1", transport.AtMostOnce, false, cmd))
	f.agent.Tick()

	births := sent(t, f.client, "spBv1.0/G1/NBIRTH/E1")
	require.Len(t, births, 2)
	requireBirth(t, births[1], f.reg, 1)
	require.Equal(t, uint64(1), f.agent.BdSeq())
}

func TestEdgeAgent_CommandUpdatesRegistry(t *testing.T) {
	b := transporttest.NewBroker()
	c := b.Client("edge")
	rec := &updateRecorder{}
	mgr := repository.NewObserverManager(nil)
	mgr.Attach(rec)
	reg := repository.NewRegistry("G1/E1/D1", mgr)
	require.NoError(t, reg.AddMetric("setpoint", models.Int32, repository.WithAlias(5)))

	a, err := NewEdgeAgent(EdgeConfig{Identity: topic.DeviceIdentity("G1", "E1", "D1")}, c, reg)
	require.NoError(t, err)
	require.NoError(t, a.Start())
	a.Tick()
	require.Len(t, sent(t, c, "spBv1.0/G1/DBIRTH/E1/D1"), 1)

	host := b.Client("host")
	require.NoError(t, host.Connect(nil, transport.NewQueue()))
	cmd := encode(t, &models.Payload{Metrics: []models.Metric{
		{Alias: 5, HasAlias: true, Datatype: models.Int32, IntValue: uint32(0xFFFFFFFF)},
		{Name: "unknown", Datatype: models.Int32, IntValue: 1},
	}})
	require.NoError(t, host.Publish("spBv1.0/G1/DCMD/E1/D1", transport.AtMostOnce, false, cmd))
	require.NoError(t, host.Publish("spBv1.0/G1/DCMD/E1/D1", transport.AtMostOnce, false, []byte{0xff}))
	a.Tick()

	m, ok := reg.GetMetric("setpoint")
	require.True(t, ok)
	v, err := m.Value()
	require.NoError(t, err)
	require.Equal(t, int32(-1), v)
	require.False(t, reg.HasChanged())

	last := rec.updates[len(rec.updates)-1]
	require.Equal(t, "setpoint", last.Name)
	require.Equal(t, int32(-1), last.Value)
}

func TestEdgeAgent_StopIsIdempotentAndSendsNoDeath(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{})
	watcher := f.broker.Client("watch")
	wq := transport.NewQueue()
	require.NoError(t, watcher.Connect(nil, wq))
	require.NoError(t, watcher.Subscribe([]string{"spBv1.0/G1/NDEATH/#", "spBv1.0/G1/NDEATH/E1"}, 0))
	wq.Drain()

	require.NoError(t, f.agent.Start())
	require.NoError(t, f.agent.Start())
	f.agent.Tick()
	require.Equal(t, uint64(1), f.agent.BdSeq())

	f.agent.Stop()
	f.agent.Stop()
	f.agent.Tick()
	require.Equal(t, Disconnected, f.agent.State())
	require.Empty(t, wq.Drain())
	require.Empty(t, sent(t, f.client, "spBv1.0/G1/NDEATH/E1"))
}

func TestEdgeAgent_DeathDeliveredByWill(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{})
	watcher := f.broker.Client("watch")
	wq := transport.NewQueue()
	require.NoError(t, watcher.Connect(nil, wq))
	require.NoError(t, watcher.Subscribe([]string{"spBv1.0/G1/NDEATH/E1"}, 0))
	wq.Drain()

	require.NoError(t, f.agent.Start())
	f.agent.Tick()
	f.client.Kill(errors.New("network down"))
	f.agent.Tick()
	require.Equal(t, Disconnected, f.agent.State())

	events := wq.Drain()
	require.Len(t, events, 1)
	p, err := codec.DecodePayload(events[0].Payload)
	require.NoError(t, err)
	bd, ok := p.Find(models.BdSeqMetric)
	require.True(t, ok)
	require.Equal(t, uint64(1), bd.LongValue)

	// новое подключение — новый bdSeq
	require.NoError(t, f.agent.Start())
	f.agent.Tick()
	births := sent(t, f.client, "spBv1.0/G1/NBIRTH/E1")
	requireBirth(t, births[len(births)-1], f.reg, 2)
}

func TestEdgeAgent_LateConnectAfterStopIsClosed(t *testing.T) {
	id := topic.NodeIdentity("G1", "E1")
	tr := transporttest.NewPending()
	reg := repository.NewRegistry(id.String(), nil)
	require.NoError(t, reg.AddMetric("temp", models.Double, repository.WithAlias(1), repository.WithValue(20.5)))
	a, err := NewEdgeAgent(EdgeConfig{Identity: id}, tr, reg)
	require.NoError(t, err)

	require.NoError(t, a.Start())
	a.Stop()
	require.NotNil(t, tr.Will())

	tr.Complete()
	a.Tick()
	require.Equal(t, Disconnected, a.State())
	require.False(t, tr.IsConnected())
	require.Nil(t, tr.Will())
	require.Empty(t, tr.Sent())

	require.NoError(t, a.Start())
	tr.Complete()
	a.Tick()
	require.Equal(t, Live, a.State())
	require.True(t, tr.IsConnected())
	require.Equal(t, 2, tr.Connects())
	require.Equal(t, uint64(2), a.BdSeq())

	will := tr.Will()
	require.NotNil(t, will)
	wp, err := codec.DecodePayload(will.Payload)
	require.NoError(t, err)
	require.Equal(t, uint64(2), wp.Metrics[0].LongValue)

	sentMsgs := tr.Sent()
	require.Len(t, sentMsgs, 1)
	require.Equal(t, "spBv1.0/G1/NBIRTH/E1", sentMsgs[0].Topic)
}

func TestEdgeAgent_PostRunsOnTick(t *testing.T) {
	f := newEdgeFixture(t, EdgeConfig{})
	done := false
	f.agent.Post(func() {
		done = true
		require.NoError(t, f.reg.SetValue("temp", 1.0))
	})
	require.False(t, done)
	f.agent.Tick()
	require.True(t, done)
}

func TestOutboundMetrics_MissingIdentifier(t *testing.T) {
	_, err := OutboundMetrics([]models.Metric{{Datatype: models.Int32}}, false)
	require.ErrorIs(t, err, models.ErrMissingIdentifier)

	out, err := OutboundMetrics([]models.Metric{{
		Name:          "tpl",
		Datatype:      models.DataTypeTemplate,
		TemplateValue: &models.Template{TemplateRef: "Motor"},
	}}, false)
	require.NoError(t, err)
	require.Equal(t, "Motor{}", out[0].StringValue)
	require.Nil(t, out[0].TemplateValue)
}

type updateRecorder struct {
	updates []models.MetricUpdate
}

func (u *updateRecorder) OnMetricUpdate(update models.MetricUpdate) error {
	u.updates = append(u.updates, update)
	return nil
}
