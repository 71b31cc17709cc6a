package codec

import (
	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func field(m protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	return m.Descriptor().Fields().ByName(name)
}

func get(m protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(field(m, name))
}

func has(m protoreflect.Message, name protoreflect.Name) bool {
	return m.Has(field(m, name))
}

func set(m protoreflect.Message, name protoreflect.Name, v protoreflect.Value) {
	m.Set(field(m, name), v)
}

// mutable возвращает вложенное сообщение поля, создавая его при необходимости.
func mutable(m protoreflect.Message, name protoreflect.Name) protoreflect.Message {
	return m.Mutable(field(m, name)).Message()
}

// appendMessage добавляет пустой элемент в repeated-поле сообщений и возвращает его.
func appendMessage(m protoreflect.Message, name protoreflect.Name) protoreflect.Message {
	list := m.Mutable(field(m, name)).List()
	el := list.NewElement()
	list.Append(el)
	return el.Message()
}

func encodeMetaData(dst protoreflect.Message, md *models.MetaData) {
	if md.IsMultiPart {
		set(dst, "is_multi_part", protoreflect.ValueOfBool(true))
	}
	if md.ContentType != "" {
		set(dst, "content_type", protoreflect.ValueOfString(md.ContentType))
	}
	if md.Size != 0 {
		set(dst, "size", protoreflect.ValueOfUint64(md.Size))
	}
	if md.Seq != 0 {
		set(dst, "seq", protoreflect.ValueOfUint64(md.Seq))
	}
	if md.FileName != "" {
		set(dst, "file_name", protoreflect.ValueOfString(md.FileName))
	}
	if md.FileType != "" {
		set(dst, "file_type", protoreflect.ValueOfString(md.FileType))
	}
	if md.MD5 != "" {
		set(dst, "md5", protoreflect.ValueOfString(md.MD5))
	}
	if md.Description != "" {
		set(dst, "description", protoreflect.ValueOfString(md.Description))
	}
}

func decodeMetaData(src protoreflect.Message) models.MetaData {
	return models.MetaData{
		IsMultiPart: get(src, "is_multi_part").Bool(),
		ContentType: get(src, "content_type").String(),
		Size:        get(src, "size").Uint(),
		Seq:         get(src, "seq").Uint(),
		FileName:    get(src, "file_name").String(),
		FileType:    get(src, "file_type").String(),
		MD5:         get(src, "md5").String(),
		Description: get(src, "description").String(),
	}
}

func encodePropertySet(dst protoreflect.Message, ps *models.PropertySet) {
	if len(ps.Keys) > 0 {
		keys := dst.Mutable(field(dst, "keys")).List()
		for _, k := range ps.Keys {
			keys.Append(protoreflect.ValueOfString(k))
		}
	}
	for i := range ps.Values {
		encodePropertyValue(appendMessage(dst, "values"), &ps.Values[i])
	}
}

func decodePropertySet(src protoreflect.Message) models.PropertySet {
	var ps models.PropertySet
	keys := get(src, "keys").List()
	for i := 0; i < keys.Len(); i++ {
		ps.Keys = append(ps.Keys, keys.Get(i).String())
	}
	values := get(src, "values").List()
	for i := 0; i < values.Len(); i++ {
		ps.Values = append(ps.Values, decodePropertyValue(values.Get(i).Message()))
	}
	return ps
}

func encodePropertyValue(dst protoreflect.Message, v *models.PropertyValue) {
	set(dst, "type", protoreflect.ValueOfUint32(uint32(v.Type)))
	if v.IsNull {
		set(dst, "is_null", protoreflect.ValueOfBool(true))
		return
	}
	switch v.Type {
	case models.Int8, models.Int16, models.Int32, models.UInt8, models.UInt16, models.UInt32:
		set(dst, "int_value", protoreflect.ValueOfUint32(v.IntValue))
	case models.Int64, models.UInt64, models.DateTime:
		set(dst, "long_value", protoreflect.ValueOfUint64(v.LongValue))
	case models.Float:
		set(dst, "float_value", protoreflect.ValueOfFloat32(v.FloatValue))
	case models.Double:
		set(dst, "double_value", protoreflect.ValueOfFloat64(v.DoubleValue))
	case models.Boolean:
		set(dst, "boolean_value", protoreflect.ValueOfBool(v.BooleanValue))
	case models.String, models.Text:
		set(dst, "string_value", protoreflect.ValueOfString(v.StringValue))
	case models.DataTypePropertySet:
		if v.SetValue != nil {
			encodePropertySet(mutable(dst, "propertyset_value"), v.SetValue)
		}
	}
}

func decodePropertyValue(src protoreflect.Message) models.PropertyValue {
	v := models.PropertyValue{
		Type:         models.DataType(get(src, "type").Uint()),
		IsNull:       get(src, "is_null").Bool(),
		IntValue:     uint32(get(src, "int_value").Uint()),
		LongValue:    get(src, "long_value").Uint(),
		FloatValue:   float32(get(src, "float_value").Float()),
		DoubleValue:  get(src, "double_value").Float(),
		BooleanValue: get(src, "boolean_value").Bool(),
		StringValue:  get(src, "string_value").String(),
	}
	if has(src, "propertyset_value") {
		nested := decodePropertySet(get(src, "propertyset_value").Message())
		v.SetValue = &nested
	}
	return v
}

func encodeTemplate(dst protoreflect.Message, t *models.Template) {
	if t.Version != "" {
		set(dst, "version", protoreflect.ValueOfString(t.Version))
	}
	for i := range t.Metrics {
		encodeMetric(appendMessage(dst, "metrics"), &t.Metrics[i])
	}
	for i := range t.Parameters {
		encodeParameter(appendMessage(dst, "parameters"), &t.Parameters[i])
	}
	if t.TemplateRef != "" {
		set(dst, "template_ref", protoreflect.ValueOfString(t.TemplateRef))
	}
	if t.IsDefinition {
		set(dst, "is_definition", protoreflect.ValueOfBool(true))
	}
}

func decodeTemplate(src protoreflect.Message) (models.Template, error) {
	t := models.Template{
		Version:      get(src, "version").String(),
		TemplateRef:  get(src, "template_ref").String(),
		IsDefinition: get(src, "is_definition").Bool(),
	}
	metrics := get(src, "metrics").List()
	for i := 0; i < metrics.Len(); i++ {
		m, err := decodeMetric(metrics.Get(i).Message())
		if err != nil {
			return models.Template{}, err
		}
		t.Metrics = append(t.Metrics, m)
	}
	params := get(src, "parameters").List()
	for i := 0; i < params.Len(); i++ {
		t.Parameters = append(t.Parameters, decodeParameter(params.Get(i).Message()))
	}
	return t, nil
}

func encodeParameter(dst protoreflect.Message, p *models.Parameter) {
	set(dst, "name", protoreflect.ValueOfString(p.Name))
	set(dst, "type", protoreflect.ValueOfUint32(uint32(p.Type)))
	switch p.Type {
	case models.Int8, models.Int16, models.Int32, models.UInt8, models.UInt16, models.UInt32:
		set(dst, "int_value", protoreflect.ValueOfUint32(p.IntValue))
	case models.Int64, models.UInt64, models.DateTime:
		set(dst, "long_value", protoreflect.ValueOfUint64(p.LongValue))
	case models.Float:
		set(dst, "float_value", protoreflect.ValueOfFloat32(p.FloatValue))
	case models.Double:
		set(dst, "double_value", protoreflect.ValueOfFloat64(p.DoubleValue))
	case models.Boolean:
		set(dst, "boolean_value", protoreflect.ValueOfBool(p.BooleanValue))
	default:
		set(dst, "string_value", protoreflect.ValueOfString(p.StringValue))
	}
}

func decodeParameter(src protoreflect.Message) models.Parameter {
	return models.Parameter{
		Name:         get(src, "name").String(),
		Type:         models.DataType(get(src, "type").Uint()),
		IntValue:     uint32(get(src, "int_value").Uint()),
		LongValue:    get(src, "long_value").Uint(),
		FloatValue:   float32(get(src, "float_value").Float()),
		DoubleValue:  get(src, "double_value").Float(),
		BooleanValue: get(src, "boolean_value").Bool(),
		StringValue:  get(src, "string_value").String(),
	}
}
