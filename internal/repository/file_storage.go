package repository

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	models "github.com/RoGogDBD/sparkplug-b/internal/model"
)

// snapshotMetric — запись файла снимка: определение метрики и её последнее значение.
type snapshotMetric struct {
	Name      string  `json:"name"`
	Alias     *uint64 `json:"alias,omitempty"`
	Datatype  string  `json:"datatype"`
	Value     *string `json:"value,omitempty"`
	Timestamp uint64  `json:"timestamp"`
}

// SaveSnapshot сохраняет определения и значения метрик реестра в JSON-файл.
// Шаблоны в снимок не попадают.
func SaveSnapshot(reg *Registry, filePath string) error {
	var out []snapshotMetric
	for _, m := range reg.Metrics() {
		if m.Datatype == models.DataTypeTemplate {
			continue
		}
		sm := snapshotMetric{Name: m.Name, Datatype: m.Datatype.String(), Timestamp: m.Timestamp}
		if m.HasAlias {
			alias := m.Alias
			sm.Alias = &alias
		}
		if !m.IsNull {
			v := m.ValueString()
			sm.Value = &v
		}
		out = append(out, sm)
	}

	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	f, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// LoadSnapshot восстанавливает метрики из файла, созданного SaveSnapshot.
//
// Метрики регистрируются заново (с алиасами); восстановленные значения не попадают
// в множество изменённых. Отсутствующий файл не считается ошибкой.
func LoadSnapshot(reg *Registry, filePath string) (int, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	var metrics []snapshotMetric
	if err := json.Unmarshal(data, &metrics); err != nil {
		return 0, fmt.Errorf("failed to parse snapshot %s: %w", filePath, err)
	}

	for _, sm := range metrics {
		dt, err := models.ParseDataType(sm.Datatype)
		if err != nil {
			return 0, fmt.Errorf("snapshot metric %q: %w", sm.Name, err)
		}
		m := models.Metric{Name: sm.Name, Datatype: dt, Timestamp: sm.Timestamp, IsNull: sm.Value == nil}
		if sm.Alias != nil {
			m.Alias, m.HasAlias = *sm.Alias, true
		}
		if sm.Value != nil {
			if err := restoreValue(&m, *sm.Value); err != nil {
				return 0, fmt.Errorf("snapshot metric %q: %w", sm.Name, err)
			}
		}
		if err := reg.Register(m); err != nil {
			return 0, err
		}
	}
	return len(metrics), nil
}

func restoreValue(m *models.Metric, s string) error {
	if m.Datatype == models.Bytes {
		b, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrInvalidValue, err)
		}
		return m.SetValue(b)
	}
	v, err := models.ParseValue(m.Datatype, s)
	if err != nil {
		return err
	}
	return m.SetValue(v)
}
