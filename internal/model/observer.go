package models

// MetricUpdate описывает изменение значения метрики в реестре.
//
// Поля:
//   - Producer: идентификатор производителя ("group/node" или "group/node/device")
//   - Name: имя метрики
//   - Datatype: тип данных
//   - Value: новое значение (см. Metric.Value)
//   - Timestamp: отметка времени значения в миллисекундах
type MetricUpdate struct {
	Producer  string   `json:"producer"`
	Name      string   `json:"name"`
	Datatype  DataType `json:"datatype"`
	Value     any      `json:"value"`
	Timestamp uint64   `json:"timestamp"`
}

// MetricObserver интерфейс наблюдателя за изменениями метрик.
type MetricObserver interface {
	OnMetricUpdate(update MetricUpdate) error
}

// MetricSubject интерфейс субъекта, генерирующего события обновления метрик.
type MetricSubject interface {
	Attach(observer MetricObserver)
	Detach(observer MetricObserver)
	Notify(update MetricUpdate)
}
