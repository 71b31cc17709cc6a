package codec

import (
	"encoding/json"
	"fmt"

	models "github.com/RoGogDBD/sparkplug-b/internal/model"
)

type hostStateWire struct {
	Online    *bool  `json:"online"`
	Timestamp *int64 `json:"timestamp"`
}

// EncodeHostState сериализует статус хоста в JSON вида {"online":true,"timestamp":1700000000000}.
func EncodeHostState(s models.HostState) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode host state: %w", err)
	}
	return data, nil
}

// DecodeHostState разбирает JSON статуса хоста.
// Отсутствие любого из полей online/timestamp считается повреждённым сообщением.
func DecodeHostState(data []byte) (models.HostState, error) {
	var w hostStateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return models.HostState{}, fmt.Errorf("%w: host state: %v", ErrMalformedPayload, err)
	}
	if w.Online == nil || w.Timestamp == nil {
		return models.HostState{}, fmt.Errorf("%w: host state requires online and timestamp", ErrMalformedPayload)
	}
	return models.HostState{Online: *w.Online, Timestamp: *w.Timestamp}, nil
}
