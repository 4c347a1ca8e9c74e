package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"device event", topics.DeviceEvent("lumen0"), "lumen/event/lumen0"},
		{"device command", topics.DeviceCommand("lumen1"), "lumen/command/lumen1"},
		{"device ack", topics.DeviceAck("lumen0"), "lumen/ack/lumen0"},
		{"device state", topics.DeviceState("lumen2"), "lumen/state/lumen2"},
		{"system status", topics.SystemStatus(), "lumen/system/status"},
		{"all commands", topics.AllDeviceCommands(), "lumen/command/+"},
		{"all events", topics.AllDeviceEvents(), "lumen/event/+"},
		{"all topics", topics.AllTopics(), "lumen/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestCommandNode(t *testing.T) {
	topics := Topics{}

	if got := topics.CommandNode("lumen/command/lumen0"); got != "lumen0" {
		t.Errorf("CommandNode() = %q, want lumen0", got)
	}
	if got := topics.CommandNode("lumen/event/lumen0"); got != "" {
		t.Errorf("CommandNode() = %q for non-command topic, want empty", got)
	}
}
