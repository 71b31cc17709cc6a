package host

import (
	"fmt"
	"sync"

	models "github.com/RoGogDBD/sparkplug-b/internal/model"
	"github.com/RoGogDBD/sparkplug-b/internal/repository"
	"github.com/RoGogDBD/sparkplug-b/internal/topic"
)

// Consumer — представление хоста об одном узле или устройстве.
//
// Реестр консюмера заполняется из birth-сообщений производителя и обновляется
// data/death-сообщениями; изменения, внесённые через SetValue, уходят производителю
// командой на следующем такте агрегации.
type Consumer struct {
	id       topic.Identity
	registry *repository.Registry

	mu       sync.RWMutex
	born     bool
	bdSeq    uint64
	lastSeq  uint64
	lastSeen uint64
}

// ConsumerStatus — снимок состояния консюмера для API.
type ConsumerStatus struct {
	ID       string `json:"id"`
	Online   bool   `json:"online"`
	BdSeq    uint64 `json:"bdSeq"`
	LastSeq  uint64 `json:"lastSeq"`
	LastSeen uint64 `json:"lastSeen"`
	Metrics  int    `json:"metrics"`
}

func newConsumer(id topic.Identity, subject models.MetricSubject) *Consumer {
	return &Consumer{
		id:       id,
		registry: repository.NewRegistry(id.String(), subject),
	}
}

// Identity возвращает идентичность производителя.
func (c *Consumer) Identity() topic.Identity { return c.id }

// Registry возвращает реестр метрик консюмера.
func (c *Consumer) Registry() *repository.Registry { return c.registry }

// Status возвращает снимок состояния.
func (c *Consumer) Status() ConsumerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConsumerStatus{
		ID:       c.id.String(),
		Online:   c.born,
		BdSeq:    c.bdSeq,
		LastSeq:  c.lastSeq,
		LastSeen: c.lastSeen,
		Metrics:  c.registry.Len(),
	}
}

// topics возвращает топики birth/data/death, на которые подписывается хост.
func (c *Consumer) topics() []string {
	return []string{
		c.id.Topic(topic.NodeBirth),
		c.id.Topic(topic.NodeData),
		c.id.Topic(topic.NodeDeath),
	}
}

func (c *Consumer) observe(kind topic.MessageType, p *models.Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.HasSeq {
		c.lastSeq = p.Seq
	}
	c.lastSeen = models.NowMillis()
	bd, hasBd := p.Find(models.BdSeqMetric)
	switch {
	case kind.IsBirth():
		c.born = true
		if hasBd {
			c.bdSeq = bd.LongValue
		}
	case kind.IsDeath():
		// death предыдущего соединения не гасит новое
		if !hasBd || bd.LongValue == c.bdSeq {
			c.born = false
		}
	}
}

// commandMetrics строит метрики команды: по алиасу, если он есть, иначе по имени.
func commandMetrics(src []models.Metric) ([]models.Metric, error) {
	out := make([]models.Metric, 0, len(src))
	for i := range src {
		s := &src[i]
		m := models.Metric{Datatype: s.Datatype, Timestamp: s.Timestamp}
		switch {
		case s.HasAlias:
			m.Alias, m.HasAlias = s.Alias, true
		case s.HasName():
			m.Name = s.Name
		default:
			return nil, fmt.Errorf("command metric: %w", models.ErrMissingIdentifier)
		}
		if err := models.CopyValue(s, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
