package agent

import (
	"testing"

	"github.com/RoGogDBD/sparkplug-b/internal/codec"
	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/stretchr/testify/require"
)

type countingBirther struct{ births int }

func (c *countingBirther) PublishBirth() error {
	c.births++
	return nil
}

func TestPrimaryHostMonitor_Apply_TableDriven(t *testing.T) {
	tests := []struct {
		name    string
		updates []models.HostState
		want    models.HostState
		last    Transition
	}{
		{
			name:    "out of order rejected",
			updates: []models.HostState{{Online: false, Timestamp: 100}, {Online: true, Timestamp: 50}},
			want:    models.HostState{Online: false, Timestamp: 100},
			last:    NoTransition,
		},
		{
			name:    "equal timestamp rejected",
			updates: []models.HostState{{Online: true, Timestamp: 100}, {Online: false, Timestamp: 100}},
			want:    models.HostState{Online: true, Timestamp: 100},
			last:    NoTransition,
		},
		{
			name:    "goes online",
			updates: []models.HostState{{Online: true, Timestamp: 1}},
			want:    models.HostState{Online: true, Timestamp: 1},
			last:    WentOnline,
		},
		{
			name:    "goes offline",
			updates: []models.HostState{{Online: true, Timestamp: 1}, {Online: false, Timestamp: 2}},
			want:    models.HostState{Online: false, Timestamp: 2},
			last:    WentOffline,
		},
		{
			name:    "online again without transition",
			updates: []models.HostState{{Online: true, Timestamp: 1}, {Online: true, Timestamp: 2}},
			want:    models.HostState{Online: true, Timestamp: 2},
			last:    NoTransition,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := NewPrimaryHostMonitor("scada", nil, nil)
			var last Transition
			for _, u := range tt.updates {
				last = m.Apply(u)
			}
			require.Equal(t, tt.want, m.Status())
			require.Equal(t, tt.last, last)
		})
	}
}

func TestPrimaryHostMonitor_HandleMessage(t *testing.T) {
	b := &countingBirther{}
	m := NewPrimaryHostMonitor("scada", b, nil)
	require.Equal(t, "spBv1.0/STATE/scada", m.Topic())

	online, err := codec.EncodeHostState(models.HostState{Online: true, Timestamp: 10})
	require.NoError(t, err)
	tr, err := m.HandleMessage(online)
	require.NoError(t, err)
	require.Equal(t, WentOnline, tr)
	require.Equal(t, 1, b.births)

	// повтор того же сообщения отклоняется
	tr, err = m.HandleMessage(online)
	require.NoError(t, err)
	require.Equal(t, NoTransition, tr)
	require.Equal(t, 1, b.births)

	_, err = m.HandleMessage([]byte(`{"online":true}`))
	require.ErrorIs(t, err, codec.ErrMalformedPayload)

	m.Reset()
	require.Equal(t, models.HostState{}, m.Status())
	require.False(t, m.Online())
}
