package models

import "errors"

var (
	// ErrMissingIdentifier — у исходящей метрики нет ни имени, ни алиаса
	// (или нет алиаса при включённом режиме алиасов).
	ErrMissingIdentifier = errors.New("metric has no usable identifier")
	// ErrUnknownMetric — метрика с таким именем или алиасом не зарегистрирована.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrUnsupportedDataType — тип данных вне поддерживаемого перечисления.
	ErrUnsupportedDataType = errors.New("unsupported data type")
	// ErrInvalidValue — значение не подходит под объявленный тип метрики.
	ErrInvalidValue = errors.New("invalid value for metric type")
)
