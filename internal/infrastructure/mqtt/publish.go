package mqtt

import (
	"fmt"
)

// maxPayloadSize caps outbound payloads at 1MB, in line with common
// broker limits. Event and state payloads here are a few hundred
// bytes; hitting this indicates a bug upstream.
const maxPayloadSize = 1 << 20

// Publish sends a message and waits for the broker acknowledgment.
//
// retained should be true for state topics (a late subscriber gets
// the last value immediately) and false for events and commands.
//
// Parameters:
//   - topic: Destination topic (e.g. "lumen/event/lumen0")
//   - payload: Message body, at most maxPayloadSize bytes
//   - qos: Delivery guarantee (0 at most once, 1 at least once,
//     2 exactly once)
//   - retained: Whether the broker stores the message for new
//     subscribers
//
// Returns:
//   - error: Validation sentinel, ErrNotConnected, or wrapped
//     ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message at the configured
// default QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
