package mqtt

import "fmt"

// Topic prefixes for the Lumen MQTT surface.
//
// All device topics use the flat scheme: lumen/{category}/{node}
// where {node} is the device's node name (lumen0, lumen1, ...).
const (
	// TopicPrefix is the base for all device topics.
	TopicPrefix = "lumen"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "lumen/system"
)

// Topics provides builders for Lumen MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.DeviceEvent("lumen0")
//	// Returns: "lumen/event/lumen0"
type Topics struct{}

// DeviceEvent returns the topic for events published for a device node.
//
// Example: lumen/event/lumen0
func (Topics) DeviceEvent(node string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, node)
}

// DeviceCommand returns the topic remote clients publish commands to.
//
// Example: lumen/command/lumen0
func (Topics) DeviceCommand(node string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, node)
}

// DeviceAck returns the topic for command acknowledgements.
//
// Example: lumen/ack/lumen0
func (Topics) DeviceAck(node string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, node)
}

// DeviceState returns the topic for the retained device summary.
// Published on attach, profile switch, and detach.
//
// Example: lumen/state/lumen0
func (Topics) DeviceState(node string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, node)
}

// SystemStatus returns the daemon status topic (online/offline, LWT).
//
// Example: lumen/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceCommands returns pattern matching commands for every node.
//
// Pattern: lumen/command/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllDeviceEvents returns a pattern matching all device events.
//
// Pattern: lumen/event/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Lumen topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: lumen/#
func (Topics) AllTopics() string {
	return "lumen/#"
}

// CommandNode extracts the node name from a command topic.
// Returns "" if the topic is not a device command topic.
func (Topics) CommandNode(topic string) string {
	var node string
	if _, err := fmt.Sscanf(topic, TopicPrefix+"/command/%s", &node); err != nil {
		return ""
	}
	return node
}
