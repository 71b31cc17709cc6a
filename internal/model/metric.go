package models

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RebirthMetric — имя управляющей метрики, запрашивающей повторный birth.
const RebirthMetric = "Node Control/Rebirth"

// BdSeqMetric — имя метрики birth/death sequence number.
const BdSeqMetric = "bdSeq"

// Metric представляет метрику Sparkplug B.
//
// Метрика идентифицируется именем и, опционально, числовым алиасом.
// Значение хранится в одном из типизированных полей в зависимости от Datatype:
//   - IntValue: Int8/16/32 и UInt8/16/32 (знаковые хранятся как битовый образ int32)
//   - LongValue: Int64 и UInt64
//   - FloatValue, DoubleValue, BooleanValue, StringValue, BytesValue
//   - TemplateValue: Template
type Metric struct {
	Name         string
	Alias        uint64
	HasAlias     bool
	Timestamp    uint64 // миллисекунды с начала эпохи, 0 — не задано
	Datatype     DataType
	IsHistorical bool
	IsTransient  bool
	IsNull       bool
	Metadata     *MetaData
	Properties   *PropertySet

	IntValue      uint32
	LongValue     uint64
	FloatValue    float32
	DoubleValue   float64
	BooleanValue  bool
	StringValue   string
	BytesValue    []byte
	TemplateValue *Template
}

// MetaData — необязательные метаданные метрики.
type MetaData struct {
	IsMultiPart bool
	ContentType string
	Size        uint64
	Seq         uint64
	FileName    string
	FileType    string
	MD5         string
	Description string
}

// PropertySet — набор именованных свойств метрики. Keys и Values идут парами.
type PropertySet struct {
	Keys   []string
	Values []PropertyValue
}

// PropertyValue — значение свойства.
type PropertyValue struct {
	Type         DataType
	IsNull       bool
	IntValue     uint32
	LongValue    uint64
	FloatValue   float32
	DoubleValue  float64
	BooleanValue bool
	StringValue  string
	SetValue     *PropertySet
}

// HasName сообщает, задано ли имя метрики.
func (m *Metric) HasName() bool {
	return m.Name != ""
}

// Clone возвращает глубокую копию метрики.
func (m *Metric) Clone() Metric {
	c := *m
	if m.BytesValue != nil {
		c.BytesValue = bytes.Clone(m.BytesValue)
	}
	if m.TemplateValue != nil {
		t := m.TemplateValue.Clone()
		c.TemplateValue = &t
	}
	if m.Metadata != nil {
		md := *m.Metadata
		c.Metadata = &md
	}
	if m.Properties != nil {
		ps := m.Properties.Clone()
		c.Properties = &ps
	}
	return c
}

// Clone возвращает глубокую копию набора свойств.
func (p *PropertySet) Clone() PropertySet {
	c := PropertySet{
		Keys:   append([]string(nil), p.Keys...),
		Values: make([]PropertyValue, len(p.Values)),
	}
	for i, v := range p.Values {
		c.Values[i] = v
		if v.SetValue != nil {
			nested := v.SetValue.Clone()
			c.Values[i].SetValue = &nested
		}
	}
	return c
}

// Value возвращает значение метрики, приведённое к Go-типу согласно Datatype.
//
// Для Template без структурного значения возвращается его строковое представление.
func (m *Metric) Value() (any, error) {
	if m.IsNull {
		return nil, nil
	}
	switch m.Datatype {
	case Boolean:
		return m.BooleanValue, nil
	case Int8:
		return int8(m.IntValue), nil
	case Int16:
		return int16(m.IntValue), nil
	case Int32:
		return int32(m.IntValue), nil
	case UInt8:
		return uint8(m.IntValue), nil
	case UInt16:
		return uint16(m.IntValue), nil
	case UInt32:
		return m.IntValue, nil
	case Int64:
		return int64(m.LongValue), nil
	case UInt64:
		return m.LongValue, nil
	case Float:
		return m.FloatValue, nil
	case Double:
		return m.DoubleValue, nil
	case String, Text:
		return m.StringValue, nil
	case Bytes:
		return bytes.Clone(m.BytesValue), nil
	case DataTypeTemplate:
		if m.TemplateValue != nil {
			return m.TemplateValue.Clone(), nil
		}
		return m.StringValue, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, m.Datatype)
	}
}

// ValueString возвращает значение метрики в текстовом виде для логов и HTTP-ответов.
func (m *Metric) ValueString() string {
	v, err := m.Value()
	if err != nil {
		return ""
	}
	switch val := v.(type) {
	case nil:
		return "null"
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []byte:
		return fmt.Sprintf("%x", val)
	case Template:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// SetValue записывает значение в поле, соответствующее объявленному Datatype.
//
// Целые числа принимаются любого Go-типа, если значение помещается в диапазон типа метрики.
// nil помечает метрику как null. Возвращает ErrInvalidValue при несовпадении типа
// и ErrUnsupportedDataType для неподдерживаемого Datatype.
func (m *Metric) SetValue(v any) error {
	if v == nil {
		m.IsNull = true
		return nil
	}
	switch m.Datatype {
	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return invalidValue(m.Datatype, v)
		}
		m.BooleanValue = b
	case Int8, Int16, Int32:
		i, ok := toInt64(v)
		if !ok || !fitsSigned(m.Datatype, i) {
			return invalidValue(m.Datatype, v)
		}
		m.IntValue = uint32(int32(i))
	case UInt8, UInt16, UInt32:
		u, ok := toUint64(v)
		if !ok || !fitsUnsigned(m.Datatype, u) {
			return invalidValue(m.Datatype, v)
		}
		m.IntValue = uint32(u)
	case Int64:
		i, ok := toInt64(v)
		if !ok {
			return invalidValue(m.Datatype, v)
		}
		m.LongValue = uint64(i)
	case UInt64:
		u, ok := toUint64(v)
		if !ok {
			return invalidValue(m.Datatype, v)
		}
		m.LongValue = u
	case Float:
		f, ok := toFloat64(v)
		if !ok {
			return invalidValue(m.Datatype, v)
		}
		m.FloatValue = float32(f)
	case Double:
		f, ok := toFloat64(v)
		if !ok {
			return invalidValue(m.Datatype, v)
		}
		m.DoubleValue = f
	case String, Text:
		s, ok := v.(string)
		if !ok {
			return invalidValue(m.Datatype, v)
		}
		m.StringValue = s
	case Bytes:
		b, ok := v.([]byte)
		if !ok {
			return invalidValue(m.Datatype, v)
		}
		m.BytesValue = bytes.Clone(b)
	case DataTypeTemplate:
		switch t := v.(type) {
		case Template:
			c := t.Clone()
			m.TemplateValue = &c
		case *Template:
			c := t.Clone()
			m.TemplateValue = &c
		default:
			return invalidValue(m.Datatype, v)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDataType, m.Datatype)
	}
	m.IsNull = false
	return nil
}

// CopyValue копирует значение src в dst согласно Datatype метрики dst.
//
// Int8/16/32 и UInt8/16/32 используют общее 32-битное поле, Int64/UInt64 — общее 64-битное.
// Значение Template переносится в dst в виде строки.
func CopyValue(src, dst *Metric) error {
	switch dst.Datatype {
	case Boolean:
		dst.BooleanValue = src.BooleanValue
	case Int8, UInt8, Int16, UInt16, Int32, UInt32:
		dst.IntValue = src.IntValue
	case Int64, UInt64:
		dst.LongValue = src.LongValue
	case Float:
		dst.FloatValue = src.FloatValue
	case Double:
		dst.DoubleValue = src.DoubleValue
	case String, Text:
		dst.StringValue = src.StringValue
	case Bytes:
		dst.BytesValue = bytes.Clone(src.BytesValue)
	case DataTypeTemplate:
		if src.TemplateValue != nil {
			dst.StringValue = src.TemplateValue.String()
		} else {
			dst.StringValue = src.StringValue
		}
		dst.TemplateValue = nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedDataType, dst.Datatype)
	}
	dst.IsNull = src.IsNull
	return nil
}

// ParseValue разбирает текстовое значение для заданного типа.
//
// Используется конфигурацией, HTTP API и CLI, где значения приходят строками.
func ParseValue(t DataType, s string) (any, error) {
	var (
		v   any
		err error
	)
	switch t {
	case Boolean:
		v, err = strconv.ParseBool(s)
	case Int8:
		var i int64
		i, err = strconv.ParseInt(s, 10, 8)
		v = int8(i)
	case Int16:
		var i int64
		i, err = strconv.ParseInt(s, 10, 16)
		v = int16(i)
	case Int32:
		var i int64
		i, err = strconv.ParseInt(s, 10, 32)
		v = int32(i)
	case Int64:
		v, err = strconv.ParseInt(s, 10, 64)
	case UInt8:
		var u uint64
		u, err = strconv.ParseUint(s, 10, 8)
		v = uint8(u)
	case UInt16:
		var u uint64
		u, err = strconv.ParseUint(s, 10, 16)
		v = uint16(u)
	case UInt32:
		var u uint64
		u, err = strconv.ParseUint(s, 10, 32)
		v = uint32(u)
	case UInt64:
		v, err = strconv.ParseUint(s, 10, 64)
	case Float:
		var f float64
		f, err = strconv.ParseFloat(s, 32)
		v = float32(f)
	case Double:
		v, err = strconv.ParseFloat(s, 64)
	case String, Text:
		v = s
	case Bytes:
		v = []byte(s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q", ErrInvalidValue, t, s)
	}
	return v, nil
}

// NowMillis возвращает текущее время в миллисекундах с начала эпохи.
func NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

func invalidValue(t DataType, v any) error {
	return fmt.Errorf("%w: %s got %T", ErrInvalidValue, t, v)
}

func fitsSigned(t DataType, i int64) bool {
	switch t {
	case Int8:
		return i >= math.MinInt8 && i <= math.MaxInt8
	case Int16:
		return i >= math.MinInt16 && i <= math.MaxInt16
	default:
		return i >= math.MinInt32 && i <= math.MaxInt32
	}
}

func fitsUnsigned(t DataType, u uint64) bool {
	switch t {
	case UInt8:
		return u <= math.MaxUint8
	case UInt16:
		return u <= math.MaxUint16
	default:
		return u <= math.MaxUint32
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	}
	i, ok := toInt64(v)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

func toFloat64(v any) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// describe используется в String() шаблонов: "имя=значение".
func describe(m *Metric) string {
	var b strings.Builder
	if m.HasName() {
		b.WriteString(m.Name)
	} else if m.HasAlias {
		b.WriteString("#" + strconv.FormatUint(m.Alias, 10))
	}
	b.WriteString("=")
	b.WriteString(m.ValueString())
	return b.String()
}
