// Package codec кодирует payload Sparkplug B в формат protobuf (схема sparkplug_b.proto)
// и статус хоста в JSON.
//
// Сообщения описаны дескриптором org.eclipse.tahu.protobuf.Payload и сериализуются
// через dynamicpb и proto.Marshal/proto.Unmarshal.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ErrMalformedPayload — входящий payload не удалось разобрать.
var ErrMalformedPayload = errors.New("malformed payload")

// EncodePayload сериализует payload в protobuf.
func EncodePayload(p *models.Payload) ([]byte, error) {
	desc, err := payloadType()
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(desc)
	if p.Timestamp != 0 {
		set(msg, "timestamp", protoreflect.ValueOfUint64(p.Timestamp))
	}
	for i := range p.Metrics {
		encodeMetric(appendMessage(msg, "metrics"), &p.Metrics[i])
	}
	if p.HasSeq {
		set(msg, "seq", protoreflect.ValueOfUint64(p.Seq))
	}
	if p.UUID != "" {
		set(msg, "uuid", protoreflect.ValueOfString(p.UUID))
	}
	if p.Body != nil {
		set(msg, "body", protoreflect.ValueOfBytes(p.Body))
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload разбирает protobuf-представление payload.
//
// Возвращает ошибку, оборачивающую ErrMalformedPayload, если данные повреждены,
// и дополнительно models.ErrUnsupportedDataType, если тип метрики вне поддерживаемого перечисления.
func DecodePayload(data []byte) (*models.Payload, error) {
	desc, err := payloadType()
	if err != nil {
		return nil, err
	}
	msg := dynamicpb.NewMessage(desc)
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	p := &models.Payload{
		Timestamp: get(msg, "timestamp").Uint(),
		UUID:      get(msg, "uuid").String(),
	}
	metrics := get(msg, "metrics").List()
	for i := 0; i < metrics.Len(); i++ {
		m, err := decodeMetric(metrics.Get(i).Message())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		p.Metrics = append(p.Metrics, m)
	}
	if has(msg, "seq") {
		p.Seq, p.HasSeq = get(msg, "seq").Uint(), true
	}
	if has(msg, "body") {
		p.Body = bytes.Clone(get(msg, "body").Bytes())
	}
	return p, nil
}

func encodeMetric(dst protoreflect.Message, m *models.Metric) {
	if m.HasName() {
		set(dst, "name", protoreflect.ValueOfString(m.Name))
	}
	if m.HasAlias {
		set(dst, "alias", protoreflect.ValueOfUint64(m.Alias))
	}
	if m.Timestamp != 0 {
		set(dst, "timestamp", protoreflect.ValueOfUint64(m.Timestamp))
	}
	if m.Datatype != models.Unknown {
		set(dst, "datatype", protoreflect.ValueOfUint32(uint32(m.Datatype)))
	}
	if m.IsHistorical {
		set(dst, "is_historical", protoreflect.ValueOfBool(true))
	}
	if m.IsTransient {
		set(dst, "is_transient", protoreflect.ValueOfBool(true))
	}
	if m.IsNull {
		set(dst, "is_null", protoreflect.ValueOfBool(true))
	}
	if m.Metadata != nil {
		encodeMetaData(mutable(dst, "metadata"), m.Metadata)
	}
	if m.Properties != nil {
		encodePropertySet(mutable(dst, "properties"), m.Properties)
	}
	if m.IsNull {
		return
	}
	switch m.Datatype {
	case models.Int8, models.Int16, models.Int32, models.UInt8, models.UInt16, models.UInt32:
		set(dst, "int_value", protoreflect.ValueOfUint32(m.IntValue))
	case models.Int64, models.UInt64, models.DateTime:
		set(dst, "long_value", protoreflect.ValueOfUint64(m.LongValue))
	case models.Float:
		set(dst, "float_value", protoreflect.ValueOfFloat32(m.FloatValue))
	case models.Double:
		set(dst, "double_value", protoreflect.ValueOfFloat64(m.DoubleValue))
	case models.Boolean:
		set(dst, "boolean_value", protoreflect.ValueOfBool(m.BooleanValue))
	case models.String, models.Text, models.UUID:
		set(dst, "string_value", protoreflect.ValueOfString(m.StringValue))
	case models.Bytes, models.File:
		set(dst, "bytes_value", protoreflect.ValueOfBytes(m.BytesValue))
	case models.DataTypeTemplate:
		if m.TemplateValue != nil {
			encodeTemplate(mutable(dst, "template_value"), m.TemplateValue)
		} else {
			set(dst, "string_value", protoreflect.ValueOfString(m.StringValue))
		}
	}
}

func decodeMetric(src protoreflect.Message) (models.Metric, error) {
	m := models.Metric{
		Name:         get(src, "name").String(),
		Timestamp:    get(src, "timestamp").Uint(),
		Datatype:     models.DataType(get(src, "datatype").Uint()),
		IsHistorical: get(src, "is_historical").Bool(),
		IsTransient:  get(src, "is_transient").Bool(),
		IsNull:       get(src, "is_null").Bool(),
		IntValue:     uint32(get(src, "int_value").Uint()),
		LongValue:    get(src, "long_value").Uint(),
		FloatValue:   float32(get(src, "float_value").Float()),
		DoubleValue:  get(src, "double_value").Float(),
		BooleanValue: get(src, "boolean_value").Bool(),
		StringValue:  get(src, "string_value").String(),
	}
	if has(src, "alias") {
		m.Alias, m.HasAlias = get(src, "alias").Uint(), true
	}
	if has(src, "bytes_value") {
		m.BytesValue = bytes.Clone(get(src, "bytes_value").Bytes())
	}
	if has(src, "metadata") {
		md := decodeMetaData(get(src, "metadata").Message())
		m.Metadata = &md
	}
	if has(src, "properties") {
		ps := decodePropertySet(get(src, "properties").Message())
		m.Properties = &ps
	}
	if has(src, "template_value") {
		t, err := decodeTemplate(get(src, "template_value").Message())
		if err != nil {
			return models.Metric{}, err
		}
		m.TemplateValue = &t
	}
	if m.Datatype != models.Unknown && !m.Datatype.Supported() {
		return models.Metric{}, fmt.Errorf("metric %q: %w: %s", m.Name, models.ErrUnsupportedDataType, m.Datatype)
	}
	return m, nil
}
