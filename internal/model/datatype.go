package models

import (
	"fmt"
	"strings"
)

// DataType — код типа данных метрики Sparkplug B.
//
// Числовые значения совпадают с перечислением DataType из sparkplug_b.proto,
// поэтому код можно передавать в payload без преобразований.
type DataType uint32

const (
	Unknown             DataType = 0
	Int8                DataType = 1
	Int16               DataType = 2
	Int32               DataType = 3
	Int64               DataType = 4
	UInt8               DataType = 5
	UInt16              DataType = 6
	UInt32              DataType = 7
	UInt64              DataType = 8
	Float               DataType = 9
	Double              DataType = 10
	Boolean             DataType = 11
	String              DataType = 12
	DateTime            DataType = 13
	Text                DataType = 14
	UUID                DataType = 15
	DataSet             DataType = 16
	Bytes               DataType = 17
	File                DataType = 18
	// Template и PropertySet — также имена типов значений, поэтому коды с префиксом.
	DataTypeTemplate    DataType = 19
	DataTypePropertySet DataType = 20
)

var dataTypeNames = map[DataType]string{
	Unknown:             "Unknown",
	Int8:                "Int8",
	Int16:               "Int16",
	Int32:               "Int32",
	Int64:               "Int64",
	UInt8:               "UInt8",
	UInt16:              "UInt16",
	UInt32:              "UInt32",
	UInt64:              "UInt64",
	Float:               "Float",
	Double:              "Double",
	Boolean:             "Boolean",
	String:              "String",
	DateTime:            "DateTime",
	Text:                "Text",
	UUID:                "UUID",
	DataSet:             "DataSet",
	Bytes:               "Bytes",
	File:                "File",
	DataTypeTemplate:    "Template",
	DataTypePropertySet: "PropertySet",
}

// String возвращает имя типа в том виде, в каком оно записано в proto-схеме.
func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", uint32(t))
}

// Supported сообщает, умеет ли реестр хранить и копировать значения этого типа.
func (t DataType) Supported() bool {
	switch t {
	case Boolean,
		Int8, Int16, Int32,
		UInt8, UInt16, UInt32,
		Int64, UInt64,
		Float, Double,
		String, Text,
		Bytes, DataTypeTemplate:
		return true
	}
	return false
}

// ParseDataType разбирает имя типа без учёта регистра ("int32", "Double", "uint8").
//
// Возвращает ErrUnsupportedDataType, если имя неизвестно или тип не поддерживается реестром.
func ParseDataType(s string) (DataType, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for t, name := range dataTypeNames {
		if strings.ToLower(name) == want {
			if !t.Supported() {
				break
			}
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnsupportedDataType, s)
}
