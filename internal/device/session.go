package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/lumen-core/internal/protocol/bragi"
	"github.com/nerrad567/lumen-core/internal/protocol/legacy"
	"github.com/nerrad567/lumen-core/internal/transport"
)

// RawEvent is an undecoded input report routed out of a session.
//
// ChildSlot is zero for reports from the device itself and 1-based
// for reports relayed from a dongle child.
type RawEvent struct {
	ChildSlot byte
	Report    []byte
}

// SessionOptions tunes a session's round-trip behaviour.
type SessionOptions struct {
	// CommandTimeout bounds one round-trip attempt.
	CommandTimeout time.Duration

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts int

	// RetryBackoff is the initial backoff between attempts, doubling
	// per retry.
	RetryBackoff time.Duration

	// PollTimeout is the reader's per-read timeout.
	PollTimeout time.Duration

	// FaultThreshold and FaultWindow escalate repeated decode faults
	// to a session fault.
	FaultThreshold int
	FaultWindow    time.Duration

	// OnFault is called once when the session fails: transport error
	// or decode faults over threshold. Called from the reader
	// goroutine; must not block.
	OnFault func(err error)
}

// Session owns one transport connection and demultiplexes its
// inbound reports.
//
// A single reader goroutine performs all reads. Command replies are
// matched to waiting callers (legacy: the one outstanding command;
// Bragi: by echoed sequence byte) and everything else is routed to
// the Events channel as input. Dongle child envelopes are unwrapped
// before routing, so callers see child frames with their slot.
type Session struct {
	conn   transport.Conn
	family Family
	opts   SessionOptions

	// Seq generates Bragi sequence bytes. Shared across all devices
	// multiplexed on this connection.
	Seq *bragi.SequenceGenerator

	mu          sync.Mutex
	pending     map[byte]chan []byte // Bragi replies by sequence
	legacyReply chan []byte
	faults      []time.Time
	failed      bool

	events    chan RawEvent
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSession wraps an open connection. Call Start to begin reading.
func NewSession(conn transport.Conn, family Family, opts SessionOptions) *Session {
	return &Session{
		conn:        conn,
		family:      family,
		opts:        opts,
		Seq:         &bragi.SequenceGenerator{},
		pending:     make(map[byte]chan []byte),
		legacyReply: make(chan []byte, 1),
		events:      make(chan RawEvent, 64),
		done:        make(chan struct{}),
	}
}

// Events returns the channel of undecoded input reports. Closed when
// the session stops.
func (s *Session) Events() <-chan RawEvent {
	return s.events
}

// Start launches the reader goroutine.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.readLoop()
}

// Close stops the reader and closes the connection.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

// readLoop is the single reader for the connection.
func (s *Session) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	buf := make([]byte, 64)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.conn.Read(buf, s.opts.PollTimeout)
		if err != nil {
			select {
			case <-s.done:
				// Close() raced the read; not a fault.
			default:
				s.fail(fmt.Errorf("%w: %w", ErrGone, err))
			}
			return
		}
		if n == 0 {
			continue // Poll timeout
		}

		report := make([]byte, n)
		copy(report, buf[:n])

		switch s.family {
		case FamilyBragi:
			s.routeBragi(report)
		default:
			s.routeLegacy(report)
		}
	}
}

// routeLegacy routes a legacy report: event types go to the event
// channel, everything else is the reply to the outstanding command.
func (s *Session) routeLegacy(report []byte) {
	if len(report) >= 3 && report[0] >= byte(legacy.EventKey) && report[0] <= byte(legacy.EventMode) {
		s.emit(RawEvent{Report: report})
		return
	}

	select {
	case s.legacyReply <- report:
	default:
		// No command outstanding; stale or duplicate reply.
	}
}

// routeBragi routes a Bragi frame, unwrapping child envelopes first.
func (s *Session) routeBragi(frame []byte) {
	childSlot := byte(0)
	inner := frame

	if bragi.IsChildFrame(frame) {
		slot, unwrapped, err := bragi.UnwrapChild(frame)
		if err != nil {
			s.recordFault(err)
			return
		}
		childSlot = slot
		inner = unwrapped
	}

	reply, err := bragi.ParseReply(inner)
	if err != nil {
		// Device errors still correlate to a sequence; deliver them
		// so the caller fails fast instead of timing out.
		if len(inner) >= 3 && inner[2] == bragi.OpError {
			s.deliver(inner[1], inner)
			return
		}
		s.recordFault(err)
		return
	}

	if reply.Notification {
		s.emit(RawEvent{ChildSlot: childSlot, Report: inner})
		return
	}
	s.deliver(reply.Seq, inner)
}

// deliver hands a reply frame to the caller waiting on seq.
func (s *Session) deliver(seq byte, frame []byte) {
	s.mu.Lock()
	ch, ok := s.pending[seq]
	if ok {
		delete(s.pending, seq)
	}
	s.mu.Unlock()

	if ok {
		ch <- frame // Buffered; never blocks
	}
}

// emit sends an event without blocking the reader. Overflow drops
// the oldest queued event.
func (s *Session) emit(ev RawEvent) {
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
		}
	}
}

// recordFault counts a decode fault and fails the session when the
// threshold is crossed within the window.
func (s *Session) recordFault(err error) {
	if s.opts.FaultThreshold <= 0 {
		return
	}

	now := time.Now()
	cutoff := now.Add(-s.opts.FaultWindow)

	s.mu.Lock()
	kept := s.faults[:0]
	for _, t := range s.faults {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.faults = append(kept, now)
	over := len(s.faults) >= s.opts.FaultThreshold
	s.mu.Unlock()

	if over {
		s.fail(fmt.Errorf("%w: repeated decode faults: %w", ErrGone, err))
	}
}

// fail invokes OnFault exactly once.
func (s *Session) fail(err error) {
	s.mu.Lock()
	already := s.failed
	s.failed = true
	s.mu.Unlock()

	if !already && s.opts.OnFault != nil {
		s.opts.OnFault(err)
	}
}

// Write sends a report without expecting a reply.
func (s *Session) Write(report []byte) error {
	return s.conn.Write(report)
}

// LegacyRoundTrip sends a legacy command and waits for its reply.
//
// Callers must hold the device command lock; legacy devices support
// only one outstanding command. Retries with doubling backoff on
// timeout.
//
// Returns the reply payload after the opcode echo.
func (s *Session) LegacyRoundTrip(ctx context.Context, report []byte, opcode byte) ([]byte, error) {
	// Drain any stale reply from an earlier timed-out command.
	select {
	case <-s.legacyReply:
	default:
	}

	backoff := s.opts.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= s.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		if err := s.conn.Write(report); err != nil {
			lastErr = fmt.Errorf("%w: %w", ErrGone, err)
			continue
		}

		timer := time.NewTimer(s.opts.CommandTimeout)
		select {
		case reply := <-s.legacyReply:
			timer.Stop()
			payload, err := legacy.ParseReply(reply, opcode)
			if err != nil {
				return nil, err
			}
			return payload, nil
		case <-timer.C:
			lastErr = fmt.Errorf("%w: opcode 0x%02X", ErrTimeout, opcode)
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// BragiRoundTrip sends a Bragi frame and waits for the reply echoing
// its sequence byte.
//
// childSlot, when non-zero, wraps the frame in a routing envelope for
// that child. The builder closure is invoked per attempt so each
// retry carries a fresh sequence.
func (s *Session) BragiRoundTrip(ctx context.Context, childSlot byte, build func(seq byte) []byte) (bragi.Reply, error) {
	backoff := s.opts.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= s.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return bragi.Reply{}, ctx.Err()
			}
			backoff *= 2
		}

		seq := s.Seq.Next()
		frame := build(seq)

		if childSlot != 0 {
			wrapped, err := bragi.WrapChild(childSlot, frame)
			if err != nil {
				return bragi.Reply{}, err
			}
			frame = wrapped
		}

		ch := make(chan []byte, 1)
		s.mu.Lock()
		s.pending[seq] = ch
		s.mu.Unlock()

		if err := s.conn.Write(frame); err != nil {
			s.unregister(seq)
			lastErr = fmt.Errorf("%w: %w", ErrGone, err)
			continue
		}

		timer := time.NewTimer(s.opts.CommandTimeout)
		select {
		case replyFrame := <-ch:
			timer.Stop()
			reply, err := bragi.ParseReply(replyFrame)
			if err != nil {
				return bragi.Reply{}, err
			}
			return reply, nil
		case <-timer.C:
			s.unregister(seq)
			lastErr = fmt.Errorf("%w: seq %d", ErrTimeout, seq)
		case <-ctx.Done():
			timer.Stop()
			s.unregister(seq)
			return bragi.Reply{}, ctx.Err()
		}
	}

	return bragi.Reply{}, lastErr
}

func (s *Session) unregister(seq byte) {
	s.mu.Lock()
	delete(s.pending, seq)
	s.mu.Unlock()
}
