package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Store.
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

// Store holds the profile and mode mirror for every bound device.
//
// The mirror tracks what the hardware is confirmed to hold: commits
// write to the device first and update the mirror only when the write
// succeeds. A failed write leaves the mirror at its last known-good
// value, so reading state after an error is consistent with hardware.
//
// Profiles are persisted to SQLite keyed by device serial, so
// software-only slots and profile names survive replugs and daemon
// restarts. The database is optional; without one the store is
// memory-only.
//
// All public methods are thread-safe. The dispatcher is the only
// mutator; reads are shared.
type Store struct {
	db     *sql.DB
	logger Logger

	mu     sync.RWMutex
	states map[string]*state
}

// state is one bound device's mirror.
type state struct {
	serial   string
	ledCount int
	active   int
	profiles map[int]*Profile
}

// NewStore creates a profile store. db may be nil for memory-only
// operation.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: noopLogger{},
		states: make(map[string]*state),
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Bind registers a device with the store.
//
// The hardware slots are seeded with defaults, then any persisted
// profiles for the serial are loaded over them. Called once per
// attach, before the device serves commands.
func (s *Store) Bind(ctx context.Context, deviceID, serial string, ledCount int) error {
	st := &state{
		serial:   serial,
		ledCount: ledCount,
		profiles: make(map[int]*Profile),
	}
	for i := 0; i < HardwareSlots; i++ {
		st.profiles[i] = defaultProfile(i)
	}

	if s.db != nil {
		saved, err := s.loadSaved(ctx, serial)
		if err != nil {
			return err
		}
		for _, p := range saved {
			st.profiles[p.Index] = p
		}
	}

	s.mu.Lock()
	s.states[deviceID] = st
	s.mu.Unlock()

	s.logger.Debug("profiles bound", "device", deviceID, "serial", serial,
		"slots", len(st.profiles))
	return nil
}

// Bound reports whether the device has a mirror in the store.
func (s *Store) Bound(deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.states[deviceID]
	return ok
}

// Release drops a device's mirror. Persisted profiles are untouched.
func (s *Store) Release(deviceID string) {
	s.mu.Lock()
	delete(s.states, deviceID)
	s.mu.Unlock()
}

// LoadProfile returns a copy of the profile at index.
func (s *Store) LoadProfile(deviceID string, index int) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, deviceID)
	}
	p, ok := st.profiles[index]
	if !ok {
		return nil, fmt.Errorf("%w: profile %d", ErrNotFound, index)
	}
	return p.DeepCopy(), nil
}

// ActiveProfile returns a copy of the device's active profile.
func (s *Store) ActiveProfile(deviceID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, deviceID)
	}
	return st.profiles[st.active].DeepCopy(), nil
}

// ActiveMode returns a copy of the active mode of the active profile.
func (s *Store) ActiveMode(deviceID string) (Mode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[deviceID]
	if !ok {
		return Mode{}, fmt.Errorf("%w: %s", ErrNotBound, deviceID)
	}
	p := st.profiles[st.active]
	m, err := p.Mode(p.ActiveMode)
	if err != nil {
		return Mode{}, err
	}
	return m.DeepCopy(), nil
}

// CommitMode writes a mode to the hardware and, on confirmed success,
// into the mirror.
//
// write performs the actual hardware round-trips; it runs before any
// mirror mutation. If it fails, the mirror keeps its previous value
// and the profile is flagged degraded (the device may have applied
// part of a multi-frame write).
func (s *Store) CommitMode(ctx context.Context, deviceID string, profileIndex int, mode Mode, write func(ctx context.Context, m Mode) error) error {
	s.mu.RLock()
	st, ok := s.states[deviceID]
	if !ok {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNotBound, deviceID)
	}
	if _, ok := st.profiles[profileIndex]; !ok {
		s.mu.RUnlock()
		return fmt.Errorf("%w: profile %d", ErrNotFound, profileIndex)
	}
	ledCount := st.ledCount
	s.mu.RUnlock()

	if err := mode.Validate(ledCount); err != nil {
		return err
	}

	if err := write(ctx, mode); err != nil {
		s.markDegraded(deviceID, profileIndex)
		return fmt.Errorf("hardware write: %w", err)
	}

	s.mu.Lock()
	st, ok = s.states[deviceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotBound, deviceID)
	}
	p := st.profiles[profileIndex]
	replaced := false
	for i := range p.Modes {
		if p.Modes[i].Index == mode.Index {
			p.Modes[i] = mode.DeepCopy()
			replaced = true
			break
		}
	}
	if !replaced {
		p.Modes = append(p.Modes, mode.DeepCopy())
	}
	p.ActiveMode = mode.Index
	p.Degraded = false
	serial := st.serial
	snapshot := p.DeepCopy()
	s.mu.Unlock()

	s.persist(ctx, serial, snapshot)
	return nil
}

// SwitchProfile makes index the device's active profile.
//
// write performs the hardware profile select; the mirror's active
// index moves only after it succeeds.
func (s *Store) SwitchProfile(ctx context.Context, deviceID string, index int, write func(ctx context.Context) error) error {
	s.mu.RLock()
	st, ok := s.states[deviceID]
	if !ok {
		s.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNotBound, deviceID)
	}
	_, exists := st.profiles[index]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: profile %d", ErrNotFound, index)
	}

	if err := write(ctx); err != nil {
		return fmt.Errorf("hardware write: %w", err)
	}

	s.mu.Lock()
	if st, ok := s.states[deviceID]; ok {
		st.active = index
	}
	s.mu.Unlock()
	return nil
}

// CreateProfile adds a software-only profile at the next free index
// past the hardware slots.
func (s *Store) CreateProfile(ctx context.Context, deviceID, name string) (*Profile, error) {
	s.mu.Lock()
	st, ok := s.states[deviceID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotBound, deviceID)
	}

	index := HardwareSlots
	for {
		if _, taken := st.profiles[index]; !taken {
			break
		}
		index++
	}
	p := defaultProfile(index)
	if name != "" {
		p.Name = name
	}
	st.profiles[index] = p
	serial := st.serial
	snapshot := p.DeepCopy()
	s.mu.Unlock()

	s.persist(ctx, serial, snapshot)
	return snapshot, nil
}

// RenameProfile sets a profile's name.
func (s *Store) RenameProfile(ctx context.Context, deviceID string, index int, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSlot)
	}

	s.mu.Lock()
	st, ok := s.states[deviceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotBound, deviceID)
	}
	p, ok := st.profiles[index]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: profile %d", ErrNotFound, index)
	}
	p.Name = name
	serial := st.serial
	snapshot := p.DeepCopy()
	s.mu.Unlock()

	s.persist(ctx, serial, snapshot)
	return nil
}

// Profiles returns copies of all profiles for a device, ordered by
// index.
func (s *Store) Profiles(deviceID string) ([]*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[deviceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, deviceID)
	}

	out := make([]*Profile, 0, len(st.profiles))
	for i := 0; len(out) < len(st.profiles); i++ {
		if p, ok := st.profiles[i]; ok {
			out = append(out, p.DeepCopy())
		}
	}
	return out, nil
}

func (s *Store) markDegraded(deviceID string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[deviceID]; ok {
		if p, ok := st.profiles[index]; ok {
			p.Degraded = true
		}
	}
}

// persist upserts a profile row keyed by serial and slot. Best
// effort: persistence failures are logged, not surfaced, because the
// hardware write already succeeded and the mirror is authoritative
// for this run.
func (s *Store) persist(ctx context.Context, serial string, p *Profile) {
	if s.db == nil {
		return
	}

	payload, err := json.Marshal(p)
	if err != nil {
		s.logger.Error("profile marshal", "serial", serial, "slot", p.Index, "error", err)
		return
	}
	now := time.Now().UTC().Format(time.RFC3339)

	var id string
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM profiles WHERE serial = ? AND slot = ?`,
		serial, p.Index).Scan(&id)
	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx,
			`UPDATE profiles SET name = ?, payload = ?, updated_at = ? WHERE id = ?`,
			p.Name, string(payload), now, id)
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO profiles (id, serial, name, slot, payload, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), serial, p.Name, p.Index, string(payload), now, now)
	}
	if err != nil {
		s.logger.Error("profile persist", "serial", serial, "slot", p.Index, "error", err)
	}
}

// loadSaved reads all persisted profiles for a serial.
func (s *Store) loadSaved(ctx context.Context, serial string) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM profiles WHERE serial = ? ORDER BY slot`, serial)
	if err != nil {
		return nil, fmt.Errorf("load profiles for %s: %w", serial, err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		var p Profile
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			s.logger.Warn("corrupt profile payload skipped", "serial", serial, "error", err)
			continue
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}
