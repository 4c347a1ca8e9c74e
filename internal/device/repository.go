package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SQLiteNodeStore implements NodeStore using SQLite.
//
// Node indices are keyed by device serial so a device that detaches
// and reattaches, or survives a daemon restart, keeps its node name.
// New serials get the lowest index not currently assigned.
type SQLiteNodeStore struct {
	db *sql.DB
}

// NewSQLiteNodeStore creates a SQLite-backed node store.
// The node_paths table must already exist (created by migrations).
func NewSQLiteNodeStore(db *sql.DB) *SQLiteNodeStore {
	return &SQLiteNodeStore{db: db}
}

// EnsureNodeIndex returns the node index for serial, assigning the
// lowest free index on first sight.
func (s *SQLiteNodeStore) EnsureNodeIndex(ctx context.Context, serial, model string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	var idx int
	err = tx.QueryRowContext(ctx,
		`SELECT node_index FROM node_paths WHERE serial = ?`, serial).Scan(&idx)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE node_paths SET model = ?, last_seen = ? WHERE serial = ?`,
			model, now, serial); err != nil {
			return 0, fmt.Errorf("update node path: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		idx, err = lowestFreeIndex(ctx, tx)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO node_paths (serial, node_index, model, first_seen, last_seen)
			 VALUES (?, ?, ?, ?, ?)`,
			serial, idx, model, now, now); err != nil {
			return 0, fmt.Errorf("insert node path: %w", err)
		}
	default:
		return 0, fmt.Errorf("query node path: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return idx, nil
}

// lowestFreeIndex scans assigned indices in order and returns the
// first gap, or the next index past the end.
func lowestFreeIndex(ctx context.Context, tx *sql.Tx) (int, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT node_index FROM node_paths ORDER BY node_index`)
	if err != nil {
		return 0, fmt.Errorf("list node indices: %w", err)
	}
	defer rows.Close()

	next := 0
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return 0, fmt.Errorf("scan node index: %w", err)
		}
		if idx > next {
			break
		}
		if idx == next {
			next++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate node indices: %w", err)
	}
	return next, nil
}

// TouchLastSeen records that serial is currently attached.
func (s *SQLiteNodeStore) TouchLastSeen(ctx context.Context, serial string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`UPDATE node_paths SET last_seen = ? WHERE serial = ?`, now, serial)
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}

// History lists all serials ever assigned a node index, most recently
// seen first.
func (s *SQLiteNodeStore) History(ctx context.Context) ([]NodeAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT serial, node_index, model, first_seen, last_seen
		 FROM node_paths ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("list node paths: %w", err)
	}
	defer rows.Close()

	var out []NodeAssignment
	for rows.Next() {
		var a NodeAssignment
		var first, last string
		if err := rows.Scan(&a.Serial, &a.Node, &a.Model, &first, &last); err != nil {
			return nil, fmt.Errorf("scan node path: %w", err)
		}
		a.FirstSeen, _ = time.Parse(time.RFC3339, first)
		a.LastSeen, _ = time.Parse(time.RFC3339, last)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate node paths: %w", err)
	}
	return out, nil
}

// NodeAssignment is one row of the serial to node index mapping.
type NodeAssignment struct {
	Serial    string
	Node      int
	Model     string
	FirstSeen time.Time
	LastSeen  time.Time
}

// memoryNodeStore is an in-memory NodeStore for registries running
// without persistence.
type memoryNodeStore struct {
	mu      sync.Mutex
	indices map[string]int
}

// NewMemoryNodeStore creates a NodeStore that forgets assignments on
// restart. Intended for tests and diskless operation.
func NewMemoryNodeStore() NodeStore {
	return &memoryNodeStore{indices: make(map[string]int)}
}

func (m *memoryNodeStore) EnsureNodeIndex(_ context.Context, serial, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.indices[serial]; ok {
		return idx, nil
	}
	used := make(map[int]bool, len(m.indices))
	for _, idx := range m.indices {
		used[idx] = true
	}
	next := 0
	for used[next] {
		next++
	}
	m.indices[serial] = next
	return next, nil
}

func (m *memoryNodeStore) TouchLastSeen(context.Context, string) error {
	return nil
}
