package bridge

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nerrad567/lumen-core/internal/device"
	"github.com/nerrad567/lumen-core/internal/infrastructure/mqtt"
)

// Logger is the interface for bridge logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Broker is the MQTT surface the bridge needs. *mqtt.Client
// implements it.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// NodeDispatcher executes textual commands addressed by node index.
// The dispatch engine implements it.
type NodeDispatcher interface {
	DispatchNode(ctx context.Context, node int, line string) error
}

// Directory resolves device records for state summaries.
type Directory interface {
	Get(id string) (*device.Device, error)
}

// Bridge mirrors the node hierarchy onto MQTT: commands arrive on
// lumen/command/{node} with the same grammar and validation as the
// command FIFO, events fan out on lumen/event/{node}, and every
// command is acknowledged on lumen/ack/{node}.
type Bridge struct {
	broker     Broker
	dispatcher NodeDispatcher
	dir        Directory
	hub        *device.Hub
	qos        byte
	logger     Logger
	topics     mqtt.Topics
}

// New creates an MQTT bridge.
func New(broker Broker, dispatcher NodeDispatcher, dir Directory, hub *device.Hub, qos byte) *Bridge {
	return &Bridge{
		broker:     broker,
		dispatcher: dispatcher,
		dir:        dir,
		hub:        hub,
		qos:        qos,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for bridge traffic.
func (b *Bridge) SetLogger(l Logger) {
	if l != nil {
		b.logger = l
	}
}

// Run subscribes to the command pattern and forwards device events
// until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.broker.Subscribe(b.topics.AllDeviceCommands(), b.qos, func(topic string, payload []byte) error {
		b.handleCommand(ctx, topic, payload)
		return nil
	}); err != nil {
		return err
	}

	events, cancel := b.hub.Subscribe(128)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.handleEvent(ev)
		}
	}
}

// handleCommand dispatches one command line received over MQTT and
// acks the outcome. The payload may carry multiple newline-separated
// commands, matching FIFO semantics.
func (b *Bridge) handleCommand(ctx context.Context, topic string, payload []byte) {
	node, ok := parseNode(b.topics.CommandNode(topic))
	if !ok {
		b.logger.Warn("command on unparseable topic", "topic", topic)
		return
	}

	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		err := b.dispatcher.DispatchNode(ctx, node, line)
		ack := AckMessage{Command: line, OK: err == nil}
		if err != nil {
			ack.Error = err.Error()
			b.logger.Debug("mqtt command rejected", "node", node, "line", line, "error", err)
		}
		b.publishJSON(b.topics.DeviceAck(nodeName(node)), ack, false)
	}
}

func (b *Bridge) handleEvent(ev device.Event) {
	switch ev.Type {
	case device.EventAttach, device.EventProfile, device.EventFirmware, device.EventBattery:
		b.publishState(ev, true)
	case device.EventDetach:
		b.publishState(ev, false)
	}

	b.publishJSON(b.topics.DeviceEvent(ev.Node), eventMessage(ev), false)
}

// publishState refreshes the retained summary for the event's node.
func (b *Bridge) publishState(ev device.Event, online bool) {
	if !online {
		b.publishJSON(b.topics.DeviceState(ev.Node), StateMessage{Online: false}, true)
		return
	}
	dev, err := b.dir.Get(ev.DeviceID)
	if err != nil {
		return
	}
	b.publishJSON(b.topics.DeviceState(ev.Node), stateMessage(dev, true), true)
}

func (b *Bridge) publishJSON(topic string, msg any, retained bool) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("payload marshal failed", "topic", topic, "error", err)
		return
	}
	if err := b.broker.Publish(topic, payload, b.qos, retained); err != nil {
		// Broker outages never propagate to the device path.
		b.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// parseNode extracts the node index from a node name like "lumen3".
func parseNode(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, "lumen")
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func nodeName(n int) string {
	return "lumen" + strconv.Itoa(n)
}
