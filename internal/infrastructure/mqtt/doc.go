// Package mqtt wraps the paho client for the daemon's optional broker link.
//
// MQTT is the remote mirror of the local command channel: device events are
// published per node, and remote clients can send the same textual command
// lines the FIFO accepts. The daemon is fully functional with this package
// unused; the bridge only starts when a broker URL is configured.
//
// The client handles connect and reconnect with paho's exponential backoff,
// re-subscribes after a reconnect, and registers a Last Will so the broker
// marks the daemon offline if the connection drops without a clean Close.
// Graceful shutdown publishes an explicit offline status first.
//
// Subscriptions run the handler inside a recover so a handler panic is logged
// instead of killing paho's router goroutine. Topic layout lives in Topics;
// nothing else in the daemon builds topic strings by hand.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        node := mqtt.Topics{}.CommandNode(topic)
//	        return handleCommand(node, payload)
//	    })
//
//	client.Publish(mqtt.Topics{}.DeviceEvent("lumen0"),
//	    []byte(`{"type":"key","code":41,"pressed":true}`), 1, false)
//
// Credentials come from the config package, which reads the password from
// the environment rather than the YAML file. TLS is expected for anything
// beyond a loopback broker.
package mqtt
