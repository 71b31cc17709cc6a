package repository

import (
	"fmt"
	"sort"
	"sync"

	models "github.com/RoGogDBD/sparkplug-b/internal/model"
)

// Registry хранит метрики одного производителя (узла или устройства).
//
// Метрики индексируются по имени, алиасы разрешаются через отдельную карту alias->name.
// Имена метрик, изменённых после последней публикации, собираются в множество changed.
//
// Все изменения выполняются из кооперативного цикла агента; мьютекс нужен только для
// чтения снимков из HTTP/gRPC-обработчиков.
type Registry struct {
	producer string                    // Идентификатор производителя для событий наблюдателям
	metrics  map[string]*models.Metric // Метрики по имени
	aliases  map[uint64]string         // Алиас -> имя
	changed  map[string]struct{}       // Имена изменённых метрик
	subject  models.MetricSubject      // Получатель событий обновления, может быть nil
	mu       sync.RWMutex
}

// MetricOption задаёт необязательные параметры AddMetric.
type MetricOption func(m *models.Metric) error

// WithAlias привязывает к метрике числовой алиас.
func WithAlias(alias uint64) MetricOption {
	return func(m *models.Metric) error {
		m.Alias = alias
		m.HasAlias = true
		return nil
	}
}

// WithValue задаёт начальное значение метрики. Значение должно подходить объявленному типу.
func WithValue(v any) MetricOption {
	return func(m *models.Metric) error {
		return m.SetValue(v)
	}
}

// NewRegistry создаёт пустой реестр.
//
// producer — идентификатор производителя ("group/node[/device]").
// subject — менеджер наблюдателей; nil отключает уведомления.
func NewRegistry(producer string, subject models.MetricSubject) *Registry {
	return &Registry{
		producer: producer,
		metrics:  make(map[string]*models.Metric),
		aliases:  make(map[uint64]string),
		changed:  make(map[string]struct{}),
		subject:  subject,
	}
}

// Producer возвращает идентификатор производителя реестра.
func (r *Registry) Producer() string {
	return r.producer
}

// AddMetric объявляет метрику или переобъявляет существующую с тем же именем.
//
// Возвращает ErrMissingIdentifier для пустого имени, ErrUnsupportedDataType
// для типа вне поддерживаемого перечисления и ошибку опции (например ErrInvalidValue
// из WithValue); при ошибке реестр не меняется.
func (r *Registry) AddMetric(name string, datatype models.DataType, opts ...MetricOption) error {
	m := models.Metric{Name: name, Datatype: datatype}
	for _, opt := range opts {
		if err := opt(&m); err != nil {
			return fmt.Errorf("add metric %q: %w", name, err)
		}
	}
	return r.Register(m)
}

// Register сохраняет копию метрики целиком, включая значение, тип и алиас.
//
// Используется для записей birth: метрика создаётся, если её не было, или полностью
// перезаписывается. Наблюдатели уведомляются всегда.
func (r *Registry) Register(m models.Metric) error {
	if !m.HasName() {
		return fmt.Errorf("register metric: %w", models.ErrMissingIdentifier)
	}
	if !m.Datatype.Supported() {
		return fmt.Errorf("register metric %q: %w: %s", m.Name, models.ErrUnsupportedDataType, m.Datatype)
	}

	c := m.Clone()
	if c.Timestamp == 0 {
		c.Timestamp = models.NowMillis()
	}

	r.mu.Lock()
	if prev, ok := r.metrics[c.Name]; ok && prev.HasAlias {
		if r.aliases[prev.Alias] == c.Name {
			delete(r.aliases, prev.Alias)
		}
	}
	if c.HasAlias {
		if owner, ok := r.aliases[c.Alias]; ok && owner != c.Name {
			if other, ok := r.metrics[owner]; ok {
				other.HasAlias = false
				other.Alias = 0
			}
		}
		r.aliases[c.Alias] = c.Name
	}
	r.metrics[c.Name] = &c
	update := r.updateOf(&c)
	r.mu.Unlock()

	r.notify(update)
	return nil
}

// RemoveMetric удаляет метрику и её алиас. Возвращает false, если метрики не было.
func (r *Registry) RemoveMetric(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.metrics[name]
	if !ok {
		return false
	}
	if m.HasAlias && r.aliases[m.Alias] == name {
		delete(r.aliases, m.Alias)
	}
	delete(r.metrics, name)
	delete(r.changed, name)
	return true
}

// HasMetric сообщает, зарегистрирована ли метрика с таким именем.
func (r *Registry) HasMetric(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.metrics[name]
	return ok
}

// HasAlias сообщает, разрешается ли алиас в зарегистрированную метрику.
func (r *Registry) HasAlias(alias uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byAlias(alias)
	return ok
}

// GetMetric возвращает копию метрики по имени.
func (r *Registry) GetMetric(name string) (models.Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	if !ok {
		return models.Metric{}, false
	}
	return m.Clone(), true
}

// GetByAlias возвращает копию метрики по алиасу.
func (r *Registry) GetByAlias(alias uint64) (models.Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byAlias(alias)
	if !ok {
		return models.Metric{}, false
	}
	return m.Clone(), true
}

// SetValue записывает значение метрики с текущей отметкой времени и помечает её изменённой.
func (r *Registry) SetValue(name string, v any) error {
	return r.SetValueAt(name, v, models.NowMillis())
}

// SetValueAt записывает значение метрики с указанной отметкой времени (мс).
//
// Возвращает ErrUnknownMetric, если имя не зарегистрировано, и ошибку типа значения
// из Metric.SetValue; в обоих случаях реестр не меняется.
func (r *Registry) SetValueAt(name string, v any, ts uint64) error {
	r.mu.Lock()
	m, ok := r.metrics[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("set %q: %w", name, models.ErrUnknownMetric)
	}
	next := m.Clone()
	if err := next.SetValue(v); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("set %q: %w", name, err)
	}
	next.Timestamp = ts
	*m = next
	r.changed[name] = struct{}{}
	update := r.updateOf(m)
	r.mu.Unlock()

	r.notify(update)
	return nil
}

// UpdateFromRemote применяет значение входящей метрики к зарегистрированной.
//
// Метрика ищется по имени, затем по алиасу. Тип копируется, если входящая метрика его
// несёт; отметка времени копируется или заменяется текущей. Множество changed не меняется.
func (r *Registry) UpdateFromRemote(in models.Metric) (models.Metric, error) {
	r.mu.Lock()
	var (
		m  *models.Metric
		ok bool
	)
	if in.HasName() {
		m, ok = r.metrics[in.Name]
	}
	if !ok && in.HasAlias {
		m, ok = r.byAlias(in.Alias)
	}
	if !ok {
		r.mu.Unlock()
		return models.Metric{}, fmt.Errorf("update %s: %w", identifierOf(&in), models.ErrUnknownMetric)
	}

	next := m.Clone()
	if in.Datatype != models.Unknown {
		next.Datatype = in.Datatype
	}
	if err := models.CopyValue(&in, &next); err != nil {
		r.mu.Unlock()
		return models.Metric{}, fmt.Errorf("update %q: %w", next.Name, err)
	}
	if in.Timestamp != 0 {
		next.Timestamp = in.Timestamp
	} else {
		next.Timestamp = models.NowMillis()
	}
	*m = next
	update := r.updateOf(m)
	r.mu.Unlock()

	r.notify(update)
	return next, nil
}

// MarkChanged помечает метрику изменённой без записи значения.
func (r *Registry) MarkChanged(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.metrics[name]; !ok {
		return fmt.Errorf("mark %q: %w", name, models.ErrUnknownMetric)
	}
	r.changed[name] = struct{}{}
	return nil
}

// HasChanged сообщает, есть ли изменённые метрики.
func (r *Registry) HasChanged() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.changed) > 0
}

// SnapshotChanged возвращает копии изменённых метрик, упорядоченные по имени.
// Множество changed не очищается: для этого вызывается ClearChanged.
func (r *Registry) SnapshotChanged() []models.Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.changed))
	for name := range r.changed {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.Metric, 0, len(names))
	for _, name := range names {
		if m, ok := r.metrics[name]; ok {
			out = append(out, m.Clone())
		}
	}
	return out
}

// ClearChanged очищает множество изменённых метрик.
func (r *Registry) ClearChanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.changed)
}

// Metrics возвращает копии всех метрик, упорядоченные по имени.
func (r *Registry) Metrics() []models.Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names возвращает отсортированный список имён метрик.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len возвращает число зарегистрированных метрик.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metrics)
}

// SetMetadata заменяет метаданные метрики.
func (r *Registry) SetMetadata(name string, md models.MetaData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.metrics[name]
	if !ok {
		return fmt.Errorf("metadata %q: %w", name, models.ErrUnknownMetric)
	}
	m.Metadata = &md
	return nil
}

// SetProperties заменяет набор свойств метрики.
func (r *Registry) SetProperties(name string, ps models.PropertySet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.metrics[name]
	if !ok {
		return fmt.Errorf("properties %q: %w", name, models.ErrUnknownMetric)
	}
	c := ps.Clone()
	m.Properties = &c
	return nil
}

func (r *Registry) byAlias(alias uint64) (*models.Metric, bool) {
	name, ok := r.aliases[alias]
	if !ok {
		return nil, false
	}
	m, ok := r.metrics[name]
	return m, ok
}

func (r *Registry) updateOf(m *models.Metric) models.MetricUpdate {
	v, _ := m.Value()
	if t, ok := v.(models.Template); ok {
		v = t.String()
	}
	return models.MetricUpdate{
		Producer:  r.producer,
		Name:      m.Name,
		Datatype:  m.Datatype,
		Value:     v,
		Timestamp: m.Timestamp,
	}
}

func (r *Registry) notify(update models.MetricUpdate) {
	if r.subject != nil {
		r.subject.Notify(update)
	}
}

func identifierOf(m *models.Metric) string {
	switch {
	case m.HasName():
		return fmt.Sprintf("%q", m.Name)
	case m.HasAlias:
		return fmt.Sprintf("alias %d", m.Alias)
	default:
		return "metric without identifier"
	}
}
