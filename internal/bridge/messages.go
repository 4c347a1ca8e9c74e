package bridge

import (
	"time"

	"github.com/nerrad567/lumen-core/internal/device"
)

// EventMessage is the JSON payload published to lumen/event/{node}.
type EventMessage struct {
	Type     string    `json:"type"`
	Code     int       `json:"code,omitempty"`
	Pressed  bool      `json:"pressed,omitempty"`
	Delta    int       `json:"delta,omitempty"`
	Level    int       `json:"level,omitempty"`
	Charging bool      `json:"charging,omitempty"`
	Slot     int       `json:"slot,omitempty"`
	Time     time.Time `json:"time"`
}

// AckMessage is the JSON payload published to lumen/ack/{node} after
// each command received over MQTT.
type AckMessage struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// StateMessage is the retained JSON summary on lumen/state/{node}.
type StateMessage struct {
	Model    string `json:"model"`
	Serial   string `json:"serial"`
	Firmware string `json:"firmware"`
	Status   string `json:"status"`
	Battery  int    `json:"battery"`
	Charging bool   `json:"charging"`
	Online   bool   `json:"online"`
}

func eventMessage(ev device.Event) EventMessage {
	return EventMessage{
		Type:     string(ev.Type),
		Code:     ev.Code,
		Pressed:  ev.Pressed,
		Delta:    ev.Delta,
		Level:    ev.Level,
		Charging: ev.Charging,
		Slot:     ev.Slot,
		Time:     ev.Time,
	}
}

func stateMessage(dev *device.Device, online bool) StateMessage {
	return StateMessage{
		Model:    dev.Model,
		Serial:   dev.Serial,
		Firmware: dev.Firmware,
		Status:   string(dev.Status),
		Battery:  dev.Battery,
		Charging: dev.Charging,
		Online:   online,
	}
}
