package topic

import (
	"fmt"
	"strings"
)

// Identity — путь производителя: group/node (узел) или group/node/device (устройство).
type Identity struct {
	Group  string
	Node   string
	Device string
}

// NodeIdentity создаёт идентичность узла.
func NodeIdentity(group, node string) Identity {
	return Identity{Group: group, Node: node}
}

// DeviceIdentity создаёт идентичность устройства.
func DeviceIdentity(group, node, device string) Identity {
	return Identity{Group: group, Node: node, Device: device}
}

// IsDevice сообщает, состоит ли путь из трёх сегментов.
func (id Identity) IsDevice() bool {
	return id.Device != ""
}

// String возвращает составной ключ "group/node" или "group/node/device".
func (id Identity) String() string {
	if id.IsDevice() {
		return id.Group + "/" + id.Node + "/" + id.Device
	}
	return id.Group + "/" + id.Node
}

// Validate проверяет, что обязательные сегменты заданы и не содержат разделителей MQTT.
func (id Identity) Validate() error {
	if id.Group == "" || id.Node == "" {
		return fmt.Errorf("%w: group and node are required", ErrInvalidTopic)
	}
	for _, s := range []string{id.Group, id.Node, id.Device} {
		if strings.ContainsAny(s, "/+#") {
			return fmt.Errorf("%w: segment %q contains reserved characters", ErrInvalidTopic, s)
		}
	}
	return nil
}

// Topic строит топик для данного типа сообщения. Тип приводится к уровню идентичности:
// для устройства NBIRTH превращается в DBIRTH и т.д.
func (id Identity) Topic(kind MessageType) string {
	return BuildTopic(Namespace, id.Group, id.Level(kind), id.Node, id.Device)
}

// Level возвращает вариант типа сообщения, соответствующий уровню идентичности.
func (id Identity) Level(kind MessageType) MessageType {
	levels := toNodeLevel
	if id.IsDevice() {
		levels = toDeviceLevel
	}
	if t, ok := levels[kind]; ok {
		return t
	}
	return kind
}

var (
	toNodeLevel = map[MessageType]MessageType{
		DeviceBirth: NodeBirth, DeviceDeath: NodeDeath, DeviceData: NodeData, DeviceCommand: NodeCommand,
	}
	toDeviceLevel = map[MessageType]MessageType{
		NodeBirth: DeviceBirth, NodeDeath: DeviceDeath, NodeData: DeviceData, NodeCommand: DeviceCommand,
	}
)

// ParseIdentity разбирает составной ключ "group/node[/device]".
func ParseIdentity(s string) (Identity, error) {
	parts := strings.Split(s, "/")
	var id Identity
	switch len(parts) {
	case 2:
		id = NodeIdentity(parts[0], parts[1])
	case 3:
		id = DeviceIdentity(parts[0], parts[1], parts[2])
	default:
		return Identity{}, fmt.Errorf("%w: identity %q", ErrInvalidTopic, s)
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}
