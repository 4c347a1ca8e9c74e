package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	// writeBatchSize is the point count per batch on the non-blocking API.
	// Input events arrive at keystroke rate, so batches fill in seconds.
	writeBatchSize = 100
)

// Client writes daemon telemetry to InfluxDB. Writes go through the
// non-blocking batched API: a device operation never waits on, and never
// fails because of, the metrics backend. Write errors surface through the
// SetOnError callback instead.
//
// All methods are safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.TelemetryConfig

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect builds the InfluxDB client, verifies the server with a ping and
// starts the error drain for the async write API.
//
// Parameters:
//   - cfg: telemetry section of the daemon config
//
// Returns:
//   - *Client: connected client
//   - error: ErrDisabled when telemetry is off, or a wrapped
//     ErrConnectionFailed when the server cannot be reached
func Connect(cfg config.TelemetryConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	flushSeconds := cfg.FlushInterval
	if flushSeconds <= 0 {
		flushSeconds = 10
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(writeBatchSize)).
		SetFlushInterval(uint(flushSeconds) * 1000)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if healthy, err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	} else if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		connected: true,
	}
	go c.drainWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// drainWriteErrors forwards async write failures to the registered callback.
// The channel closes when the client does.
func (c *Client) drainWriteErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	}
}

// Close flushes buffered points and shuts the client down.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the InfluxDB server.
//
// Returns:
//   - error: nil if reachable and healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("telemetry health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("telemetry health check failed: server not healthy")
	}
	return nil
}

// IsConnected reports the last known connection state. HealthCheck performs
// an active ping; this does not.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError registers a callback for async write failures. The batched
// write API reports errors out of band, so this is the only place they
// become visible.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
