package models

import (
	"strconv"
	"strings"
)

// Template — значение UDT-шаблона Sparkplug B.
type Template struct {
	Version      string
	Metrics      []Metric
	Parameters   []Parameter
	TemplateRef  string
	IsDefinition bool
}

// Parameter — параметр шаблона.
type Parameter struct {
	Name         string
	Type         DataType
	IntValue     uint32
	LongValue    uint64
	FloatValue   float32
	DoubleValue  float64
	BooleanValue bool
	StringValue  string
}

// Clone возвращает глубокую копию шаблона.
func (t *Template) Clone() Template {
	c := *t
	if t.Metrics != nil {
		c.Metrics = make([]Metric, len(t.Metrics))
		for i := range t.Metrics {
			c.Metrics[i] = t.Metrics[i].Clone()
		}
	}
	c.Parameters = append([]Parameter(nil), t.Parameters...)
	return c
}

// String возвращает плоское текстовое представление шаблона, например
// "Motor(v1){Speed=1.5, Running=true}".
func (t Template) String() string {
	var b strings.Builder
	if t.TemplateRef != "" {
		b.WriteString(t.TemplateRef)
	} else {
		b.WriteString("template")
	}
	if t.Version != "" {
		b.WriteString("(" + t.Version + ")")
	}
	if t.IsDefinition {
		b.WriteString("!def")
	}
	b.WriteString("{")
	for i := range t.Metrics {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(describe(&t.Metrics[i]))
	}
	b.WriteString("}")
	if len(t.Parameters) > 0 {
		b.WriteString("[")
		for i, p := range t.Parameters {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name + "=" + p.valueString())
		}
		b.WriteString("]")
	}
	return b.String()
}

func (p Parameter) valueString() string {
	switch p.Type {
	case Boolean:
		return strconv.FormatBool(p.BooleanValue)
	case Int8, Int16, Int32:
		return strconv.FormatInt(int64(int32(p.IntValue)), 10)
	case UInt8, UInt16, UInt32:
		return strconv.FormatUint(uint64(p.IntValue), 10)
	case Int64:
		return strconv.FormatInt(int64(p.LongValue), 10)
	case UInt64:
		return strconv.FormatUint(p.LongValue, 10)
	case Float:
		return strconv.FormatFloat(float64(p.FloatValue), 'f', -1, 32)
	case Double:
		return strconv.FormatFloat(p.DoubleValue, 'f', -1, 64)
	default:
		return p.StringValue
	}
}
