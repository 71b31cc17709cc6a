package codec

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

const schemaPackage = "org.eclipse.tahu.protobuf"

// payloadType возвращает дескриптор org.eclipse.tahu.protobuf.Payload.
// Схема собирается один раз при первом обращении.
var payloadType = sync.OnceValues(func() (protoreflect.MessageDescriptor, error) {
	fd, err := protodesc.NewFile(sparkplugFile(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sparkplug schema: %w", err)
	}
	return fd.Messages().ByName("Payload"), nil
})

// sparkplugFile описывает используемое подмножество sparkplug_b.proto (proto2).
// DataSet, PropertySetList и extension-поля не описаны: на проводе они остаются неизвестными полями.
func sparkplugFile() *descriptorpb.FileDescriptorProto {
	const (
		u32  = descriptorpb.FieldDescriptorProto_TYPE_UINT32
		u64  = descriptorpb.FieldDescriptorProto_TYPE_UINT64
		f32  = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
		f64  = descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
		bl   = descriptorpb.FieldDescriptorProto_TYPE_BOOL
		str  = descriptorpb.FieldDescriptorProto_TYPE_STRING
		byts = descriptorpb.FieldDescriptorProto_TYPE_BYTES
	)

	parameter := &descriptorpb.DescriptorProto{
		Name: proto.String("Parameter"),
		Field: []*descriptorpb.FieldDescriptorProto{
			optional("name", 1, str),
			optional("type", 2, u32),
			oneof(optional("int_value", 3, u32)),
			oneof(optional("long_value", 4, u64)),
			oneof(optional("float_value", 5, f32)),
			oneof(optional("double_value", 6, f64)),
			oneof(optional("boolean_value", 7, bl)),
			oneof(optional("string_value", 8, str)),
		},
		OneofDecl: valueOneof(),
	}
	template := &descriptorpb.DescriptorProto{
		Name: proto.String("Template"),
		Field: []*descriptorpb.FieldDescriptorProto{
			optional("version", 1, str),
			repeated("metrics", 2, "Metric"),
			repeated("parameters", 3, "Template.Parameter"),
			optional("template_ref", 4, str),
			optional("is_definition", 5, bl),
		},
		NestedType: []*descriptorpb.DescriptorProto{parameter},
	}
	propertyValue := &descriptorpb.DescriptorProto{
		Name: proto.String("PropertyValue"),
		Field: []*descriptorpb.FieldDescriptorProto{
			optional("type", 1, u32),
			optional("is_null", 2, bl),
			oneof(optional("int_value", 3, u32)),
			oneof(optional("long_value", 4, u64)),
			oneof(optional("float_value", 5, f32)),
			oneof(optional("double_value", 6, f64)),
			oneof(optional("boolean_value", 7, bl)),
			oneof(optional("string_value", 8, str)),
			oneof(message("propertyset_value", 9, "PropertySet")),
		},
		OneofDecl: valueOneof(),
	}
	propertySet := &descriptorpb.DescriptorProto{
		Name: proto.String("PropertySet"),
		Field: []*descriptorpb.FieldDescriptorProto{
			{
				Name:   proto.String("keys"),
				Number: proto.Int32(1),
				Label:  descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
				Type:   str.Enum(),
			},
			repeated("values", 2, "PropertyValue"),
		},
	}
	metaData := &descriptorpb.DescriptorProto{
		Name: proto.String("MetaData"),
		Field: []*descriptorpb.FieldDescriptorProto{
			optional("is_multi_part", 1, bl),
			optional("content_type", 2, str),
			optional("size", 3, u64),
			optional("seq", 4, u64),
			optional("file_name", 5, str),
			optional("file_type", 6, str),
			optional("md5", 7, str),
			optional("description", 8, str),
		},
	}
	metric := &descriptorpb.DescriptorProto{
		Name: proto.String("Metric"),
		Field: []*descriptorpb.FieldDescriptorProto{
			optional("name", 1, str),
			optional("alias", 2, u64),
			optional("timestamp", 3, u64),
			optional("datatype", 4, u32),
			optional("is_historical", 5, bl),
			optional("is_transient", 6, bl),
			optional("is_null", 7, bl),
			message("metadata", 8, "MetaData"),
			message("properties", 9, "PropertySet"),
			oneof(optional("int_value", 10, u32)),
			oneof(optional("long_value", 11, u64)),
			oneof(optional("float_value", 12, f32)),
			oneof(optional("double_value", 13, f64)),
			oneof(optional("boolean_value", 14, bl)),
			oneof(optional("string_value", 15, str)),
			oneof(optional("bytes_value", 16, byts)),
			oneof(message("template_value", 18, "Template")),
		},
		OneofDecl: valueOneof(),
	}

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("sparkplug_b.proto"),
		Package: proto.String(schemaPackage),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String("Payload"),
			Field: []*descriptorpb.FieldDescriptorProto{
				optional("timestamp", 1, u64),
				repeated("metrics", 2, "Metric"),
				optional("seq", 3, u64),
				optional("uuid", 4, str),
				optional("body", 5, byts),
			},
			NestedType: []*descriptorpb.DescriptorProto{template, propertyValue, propertySet, metaData, metric},
		}},
	}
}

func optional(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

// message — необязательное поле-сообщение; typ задаётся относительно Payload.
func message(name string, num int32, typ string) *descriptorpb.FieldDescriptorProto {
	f := optional(name, num, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	f.TypeName = proto.String("." + schemaPackage + ".Payload." + typ)
	return f
}

func repeated(name string, num int32, typ string) *descriptorpb.FieldDescriptorProto {
	f := message(name, num, typ)
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

// oneof относит поле к единственному oneof "value" сообщения.
func oneof(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.OneofIndex = proto.Int32(0)
	return f
}

func valueOneof() []*descriptorpb.OneofDescriptorProto {
	return []*descriptorpb.OneofDescriptorProto{{Name: proto.String("value")}}
}
