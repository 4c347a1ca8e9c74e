package transport

import (
	"sync"
	"time"
)

// Mock is an in-memory Transport for testing.
//
// Devices are scripted: tests register DeviceInfo entries and a
// response function per path. Error injection fields force failures
// on specific operations.
type Mock struct {
	mu sync.Mutex

	// Devices is the list returned by Enumerate.
	Devices []DeviceInfo

	// Conns maps device paths to their scripted connections.
	Conns map[string]*MockConn

	// EnumerateErr, when set, is returned by Enumerate.
	EnumerateErr error

	// OpenErr, when set, is returned by Open.
	OpenErr error

	// OpenCalls records the paths passed to Open.
	OpenCalls []string
}

// NewMock returns an empty mock transport.
func NewMock() *Mock {
	return &Mock{Conns: make(map[string]*MockConn)}
}

// AddDevice registers a device and returns its scripted connection.
func (m *Mock) AddDevice(info DeviceInfo) *MockConn {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Devices = append(m.Devices, info)
	conn := NewMockConn()
	m.Conns[info.Path] = conn
	return conn
}

// RemoveDevice unplugs a device: it disappears from enumeration and
// its connection starts failing reads and writes.
func (m *Mock) RemoveDevice(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.Devices {
		if d.Path == path {
			m.Devices = append(m.Devices[:i], m.Devices[i+1:]...)
			break
		}
	}
	if conn, ok := m.Conns[path]; ok {
		conn.FailAll(ErrReadFailed)
	}
}

func (m *Mock) Enumerate() ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.EnumerateErr != nil {
		return nil, m.EnumerateErr
	}
	out := make([]DeviceInfo, len(m.Devices))
	copy(out, m.Devices)
	return out, nil
}

func (m *Mock) Open(path string) (Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OpenCalls = append(m.OpenCalls, path)
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	conn, ok := m.Conns[path]
	if !ok {
		return nil, ErrOpenFailed
	}
	return conn, nil
}

// MockConn is a scripted device connection.
//
// Writes are recorded; reads return queued input reports. A Responder
// function, when set, maps each written report to a reply queued for
// the next read, which is how command round-trips are scripted.
type MockConn struct {
	mu sync.Mutex

	// Writes records every report written.
	Writes [][]byte

	// Features records every feature report sent.
	Features [][]byte

	// Responder, when set, is called with each written report. A
	// non-nil return value is queued as an input report.
	Responder func(report []byte) []byte

	// WriteErr, ReadErr force the corresponding operation to fail.
	WriteErr error
	ReadErr  error

	// Closed reports whether Close was called.
	Closed bool

	queue [][]byte
	avail chan struct{}
}

// NewMockConn returns an empty scripted connection.
func NewMockConn() *MockConn {
	return &MockConn{avail: make(chan struct{}, 64)}
}

// QueueInput queues an input report for a future Read, simulating
// an unsolicited device report (key press, battery notification).
func (c *MockConn) QueueInput(report []byte) {
	c.mu.Lock()
	c.queue = append(c.queue, report)
	c.mu.Unlock()

	select {
	case c.avail <- struct{}{}:
	default:
	}
}

// FailAll makes every subsequent operation return err.
func (c *MockConn) FailAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WriteErr = err
	c.ReadErr = err
}

func (c *MockConn) Write(report []byte) error {
	c.mu.Lock()
	if c.WriteErr != nil {
		err := c.WriteErr
		c.mu.Unlock()
		return err
	}

	cp := make([]byte, len(report))
	copy(cp, report)
	c.Writes = append(c.Writes, cp)
	responder := c.Responder
	c.mu.Unlock()

	if responder != nil {
		if reply := responder(cp); reply != nil {
			c.QueueInput(reply)
		}
	}
	return nil
}

func (c *MockConn) Read(buf []byte, timeout time.Duration) (int, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		c.mu.Lock()
		if c.ReadErr != nil {
			err := c.ReadErr
			c.mu.Unlock()
			return 0, err
		}
		if len(c.queue) > 0 {
			report := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return copy(buf, report), nil
		}
		c.mu.Unlock()

		select {
		case <-c.avail:
		case <-deadline.C:
			return 0, nil // Timeout, matching hidapi semantics
		}
	}
}

func (c *MockConn) SendFeature(report []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.WriteErr != nil {
		return c.WriteErr
	}
	cp := make([]byte, len(report))
	copy(cp, report)
	c.Features = append(c.Features, cp)
	return nil
}

func (c *MockConn) GetFeature(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ReadErr != nil {
		return 0, c.ReadErr
	}
	return 0, nil
}

func (c *MockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// WriteCount returns the number of recorded writes.
func (c *MockConn) WriteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Writes)
}

// LastWrite returns the most recent written report, or nil.
func (c *MockConn) LastWrite() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Writes) == 0 {
		return nil
	}
	return c.Writes[len(c.Writes)-1]
}
