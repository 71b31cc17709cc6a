// Package topic строит и разбирает топики Sparkplug B.
//
// Грамматика:
//
//	spBv1.0/{group}/{NBIRTH|NDEATH|NDATA|NCMD}/{node}
//	spBv1.0/{group}/{DBIRTH|DDEATH|DDATA|DCMD}/{node}/{device}
//	spBv1.0/STATE/{hostId}
package topic

import (
	"errors"
	"fmt"
	"strings"
)

// Namespace — корневой сегмент всех топиков Sparkplug B.
const Namespace = "spBv1.0"

// ErrInvalidTopic — топик не соответствует грамматике Sparkplug B.
var ErrInvalidTopic = errors.New("invalid sparkplug topic")

// MessageType — тип сообщения Sparkplug B.
type MessageType string

const (
	NodeBirth     MessageType = "NBIRTH"
	NodeDeath     MessageType = "NDEATH"
	NodeData      MessageType = "NDATA"
	NodeCommand   MessageType = "NCMD"
	DeviceBirth   MessageType = "DBIRTH"
	DeviceDeath   MessageType = "DDEATH"
	DeviceData    MessageType = "DDATA"
	DeviceCommand MessageType = "DCMD"
	State         MessageType = "STATE"
)

// IsNodeLevel сообщает, относится ли тип к уровню узла (4 сегмента).
func (t MessageType) IsNodeLevel() bool {
	switch t {
	case NodeBirth, NodeDeath, NodeData, NodeCommand:
		return true
	}
	return false
}

// IsDeviceLevel сообщает, относится ли тип к уровню устройства (5 сегментов).
func (t MessageType) IsDeviceLevel() bool {
	switch t {
	case DeviceBirth, DeviceDeath, DeviceData, DeviceCommand:
		return true
	}
	return false
}

// IsBirth, IsDeath, IsData и IsCommand не различают уровень узла и устройства.
func (t MessageType) IsBirth() bool   { return t == NodeBirth || t == DeviceBirth }
func (t MessageType) IsDeath() bool   { return t == NodeDeath || t == DeviceDeath }
func (t MessageType) IsData() bool    { return t == NodeData || t == DeviceData }
func (t MessageType) IsCommand() bool { return t == NodeCommand || t == DeviceCommand }

// BuildTopic возвращает топик узла или, если device не пуст, топик устройства.
func BuildTopic(namespace, group string, messageType MessageType, node, device string) string {
	t := namespace + "/" + group + "/" + string(messageType) + "/" + node
	if device != "" {
		t += "/" + device
	}
	return t
}

// BuildHostStatusTopic возвращает топик статуса хост-приложения.
func BuildHostStatusTopic(namespace, hostID string) string {
	return namespace + "/" + string(State) + "/" + hostID
}

// Parsed — результат разбора топика узла или устройства.
type Parsed struct {
	Type   MessageType
	Group  string
	Node   string
	Device string
}

// Identity возвращает идентичность производителя, которому адресован топик.
func (p Parsed) Identity() Identity {
	return Identity{Group: p.Group, Node: p.Node, Device: p.Device}
}

// ParseTopic разбирает топик узла (4 сегмента) или устройства (5 сегментов).
//
// Топики STATE, чужие пространства имён, неизвестные типы сообщений и несовпадение
// уровня типа с числом сегментов возвращают ErrInvalidTopic.
func ParseTopic(t string) (Parsed, error) {
	parts := strings.Split(t, "/")
	if parts[0] != Namespace {
		return Parsed{}, fmt.Errorf("%w: %q", ErrInvalidTopic, t)
	}
	for _, p := range parts {
		if p == "" {
			return Parsed{}, fmt.Errorf("%w: empty segment in %q", ErrInvalidTopic, t)
		}
	}
	switch len(parts) {
	case 4:
		mt := MessageType(parts[2])
		if !mt.IsNodeLevel() {
			return Parsed{}, fmt.Errorf("%w: %q", ErrInvalidTopic, t)
		}
		return Parsed{Type: mt, Group: parts[1], Node: parts[3]}, nil
	case 5:
		mt := MessageType(parts[2])
		if !mt.IsDeviceLevel() {
			return Parsed{}, fmt.Errorf("%w: %q", ErrInvalidTopic, t)
		}
		return Parsed{Type: mt, Group: parts[1], Node: parts[3], Device: parts[4]}, nil
	default:
		return Parsed{}, fmt.Errorf("%w: %q", ErrInvalidTopic, t)
	}
}

// ParseHostStatusTopic извлекает идентификатор хоста из топика STATE.
func ParseHostStatusTopic(t string) (string, error) {
	parts := strings.Split(t, "/")
	if len(parts) != 3 || parts[0] != Namespace || parts[1] != string(State) || parts[2] == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, t)
	}
	return parts[2], nil
}
