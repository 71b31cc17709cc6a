package models

// Payload — сообщение Sparkplug B: порядковый номер, отметка времени и список метрик.
//
// HasSeq отличает seq=0 от отсутствующего поля (payload last-will и команды хоста
// отправляются без seq).
type Payload struct {
	Timestamp uint64
	Seq       uint64
	HasSeq    bool
	UUID      string
	Body      []byte
	Metrics   []Metric
}

// Find возвращает первую метрику с указанным именем.
func (p *Payload) Find(name string) (*Metric, bool) {
	for i := range p.Metrics {
		if p.Metrics[i].Name == name {
			return &p.Metrics[i], true
		}
	}
	return nil, false
}

// HostState — статус хост-приложения, публикуемый в топик STATE.
type HostState struct {
	Online    bool  `json:"online"`
	Timestamp int64 `json:"timestamp"`
}
