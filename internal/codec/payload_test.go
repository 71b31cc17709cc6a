package codec

import (
	"testing"

	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func encode(t *testing.T, p *models.Payload) []byte {
	t.Helper()
	data, err := EncodePayload(p)
	require.NoError(t, err)
	return data
}

func TestPayload_EncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		metric models.Metric
	}{
		{"boolean", models.Metric{Name: "b", Datatype: models.Boolean, BooleanValue: true}},
		{"int8 negative", models.Metric{Name: "i8", Datatype: models.Int8, IntValue: uint32(0xFFFFFFF4)}},
		{"uint32", models.Metric{Name: "u32", Alias: 7, HasAlias: true, Datatype: models.UInt32, IntValue: 4000000000}},
		{"int64", models.Metric{Name: "i64", Datatype: models.Int64, LongValue: 1 << 62}},
		{"float", models.Metric{Name: "f", Datatype: models.Float, FloatValue: 3.25}},
		{"double", models.Metric{Name: "d", Datatype: models.Double, DoubleValue: -2.5, Timestamp: 1700000000000}},
		{"string", models.Metric{Name: "s", Datatype: models.String, StringValue: "hello"}},
		{"bytes", models.Metric{Name: "raw", Datatype: models.Bytes, BytesValue: []byte{0, 1, 2}}},
		{"null", models.Metric{Name: "n", Datatype: models.Int32, IsNull: true}},
		{"alias only", models.Metric{Alias: 3, HasAlias: true, Datatype: models.UInt16, IntValue: 12}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			in := &models.Payload{Timestamp: 42, Seq: 0, HasSeq: true, Metrics: []models.Metric{tt.metric}}
			out, err := DecodePayload(encode(t, in))
			require.NoError(t, err)
			require.Equal(t, uint64(42), out.Timestamp)
			require.True(t, out.HasSeq)
			require.Equal(t, uint64(0), out.Seq)
			require.Len(t, out.Metrics, 1)

			want, err := tt.metric.Value()
			require.NoError(t, err)
			got, err := out.Metrics[0].Value()
			require.NoError(t, err)
			require.Equal(t, want, got)
			require.Equal(t, tt.metric.Name, out.Metrics[0].Name)
			require.Equal(t, tt.metric.HasAlias, out.Metrics[0].HasAlias)
			require.Equal(t, tt.metric.Alias, out.Metrics[0].Alias)
		})
	}
}

func TestPayload_NoSeq(t *testing.T) {
	out, err := DecodePayload(encode(t, &models.Payload{Metrics: []models.Metric{
		{Name: models.BdSeqMetric, Datatype: models.UInt64, LongValue: 3},
	}}))
	require.NoError(t, err)
	require.False(t, out.HasSeq)
	m, ok := out.Find(models.BdSeqMetric)
	require.True(t, ok)
	require.Equal(t, uint64(3), m.LongValue)
}

func TestPayload_TemplateAndAttachments(t *testing.T) {
	in := &models.Payload{Metrics: []models.Metric{{
		Name:     "motor",
		Datatype: models.DataTypeTemplate,
		TemplateValue: &models.Template{
			TemplateRef: "Motor",
			Version:     "v1",
			Metrics:     []models.Metric{{Name: "Speed", Datatype: models.Double, DoubleValue: 1.5}},
			Parameters:  []models.Parameter{{Name: "max", Type: models.Int32, IntValue: 10}},
		},
		Metadata: &models.MetaData{ContentType: "application/json", Description: "drive"},
		Properties: &models.PropertySet{
			Keys:   []string{"unit", "scale"},
			Values: []models.PropertyValue{{Type: models.String, StringValue: "rpm"}, {Type: models.Double, DoubleValue: 0.1}},
		},
	}}}

	out, err := DecodePayload(encode(t, in))
	require.NoError(t, err)
	m := out.Metrics[0]
	require.NotNil(t, m.TemplateValue)
	require.Equal(t, "Motor(v1){Speed=1.5}[max=10]", m.TemplateValue.String())
	require.Equal(t, "drive", m.Metadata.Description)
	require.Equal(t, []string{"unit", "scale"}, m.Properties.Keys)
	require.Equal(t, "rpm", m.Properties.Values[0].StringValue)
	require.Equal(t, 0.1, m.Properties.Values[1].DoubleValue)
}

func TestDecodePayload_Malformed(t *testing.T) {
	_, err := DecodePayload([]byte{0x0a, 0xff})
	require.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodePayload([]byte{0xff})
	require.ErrorIs(t, err, ErrMalformedPayload)

	tests := []struct {
		name   string
		metric models.Metric
	}{
		{"dataset", models.Metric{Name: "ds", Datatype: models.DataSet}},
		{"out of range", models.Metric{Name: "x", Datatype: models.DataType(99)}},
		{"inside template", models.Metric{Name: "t", Datatype: models.DataTypeTemplate, TemplateValue: &models.Template{
			Metrics: []models.Metric{{Name: "ds", Datatype: models.DataSet}},
		}}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayload(encode(t, &models.Payload{Metrics: []models.Metric{tt.metric}}))
			require.ErrorIs(t, err, ErrMalformedPayload)
			require.ErrorIs(t, err, models.ErrUnsupportedDataType)
		})
	}
}

func TestDecodePayload_SkipsUnknownFields(t *testing.T) {
	data := encode(t, &models.Payload{Timestamp: 5})
	data = protowire.AppendTag(data, 99, protowire.VarintType)
	data = protowire.AppendVarint(data, 1)

	out, err := DecodePayload(data)
	require.NoError(t, err)
	require.Equal(t, uint64(5), out.Timestamp)
}

func TestEncodePayload_FieldNumbers(t *testing.T) {
	data := encode(t, &models.Payload{Timestamp: 7, Seq: 3, HasSeq: true, Metrics: []models.Metric{
		{Name: "t", Alias: 2, HasAlias: true, Datatype: models.Double, DoubleValue: 1},
	}})

	var nums []protowire.Number
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		require.Positive(t, n)
		data = data[n:]
		n = protowire.ConsumeFieldValue(num, typ, data)
		require.Positive(t, n)
		data = data[n:]
		nums = append(nums, num)
	}
	// timestamp=1, metrics=2, seq=3
	require.ElementsMatch(t, []protowire.Number{1, 2, 3}, nums)

	metric := protowire.AppendTag(nil, 1, protowire.BytesType)
	metric = protowire.AppendString(metric, "raw")
	metric = protowire.AppendTag(metric, 4, protowire.VarintType)
	metric = protowire.AppendVarint(metric, uint64(models.Int32))
	metric = protowire.AppendTag(metric, 10, protowire.VarintType)
	metric = protowire.AppendVarint(metric, 0xFFFFFFFF)
	raw := protowire.AppendTag(nil, 2, protowire.BytesType)
	raw = protowire.AppendBytes(raw, metric)

	out, err := DecodePayload(raw)
	require.NoError(t, err)
	v, err := out.Metrics[0].Value()
	require.NoError(t, err)
	require.Equal(t, int32(-1), v)
}

func TestHostState(t *testing.T) {
	data, err := EncodeHostState(models.HostState{Online: true, Timestamp: 100})
	require.NoError(t, err)
	require.JSONEq(t, `{"online":true,"timestamp":100}`, string(data))

	s, err := DecodeHostState([]byte(`{"online":false,"timestamp":7}`))
	require.NoError(t, err)
	require.Equal(t, models.HostState{Online: false, Timestamp: 7}, s)

	_, err = DecodeHostState([]byte(`{"online":true}`))
	require.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodeHostState([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedPayload)
}
