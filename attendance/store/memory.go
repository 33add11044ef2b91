// Package store provides an in-memory attendance.Store.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a mutex-guarded attendance.Store. Records keep insertion order,
// which is the tie-break for equal sort values.
type Memory struct {
	mu      sync.RWMutex
	records []attendance.Record // insertion order
	byID    map[string]int
	byKey   map[string]int // natural key triple -> index

	// Now stamps createdAt/updatedAt. Replace in tests for fixed times.
	Now func() time.Time
}

// NewMemory returns an empty store stamped by the wall clock.
func NewMemory() *Memory {
	return &Memory{
		byID:  make(map[string]int),
		byKey: make(map[string]int),
		Now:   time.Now,
	}
}

// FindOne returns the tenant's record for the key, or nil.
func (m *Memory) FindOne(_ context.Context, key attendance.NaturalKey) (*attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.byKey[key.String()]
	if !ok || m.records[i].TenantID != key.TenantID {
		return nil, nil
	}
	r := m.records[i].Clone()
	return &r, nil
}

// FindAll returns matching records in insertion order, or sorted.
func (m *Memory) FindAll(_ context.Context, p attendance.Predicate, sort *attendance.Sort) ([]attendance.Record, error) {
	m.mu.RLock()
	out := make([]attendance.Record, 0)
	for _, r := range m.records {
		if p.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	m.mu.RUnlock()

	attendance.SortRecords(out, sort)
	return out, nil
}

// Create inserts a record, failing on a natural key collision.
func (m *Memory) Create(_ context.Context, r attendance.Record) (attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := r.Key().String()
	if _, taken := m.byKey[k]; taken {
		return attendance.Record{}, fmt.Errorf("%w: %s", attendance.ErrNaturalKeyConflict, k)
	}

	r = r.Clone()
	if r.AttendanceID == "" {
		r.AttendanceID = uuid.NewString()
	}
	now := m.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	m.records = append(m.records, r)
	m.byID[r.AttendanceID] = len(m.records) - 1
	m.byKey[k] = len(m.records) - 1
	return r.Clone(), nil
}

// Save replaces an existing record by id and stamps updatedAt.
func (m *Memory) Save(_ context.Context, r attendance.Record) (attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.byID[r.AttendanceID]
	if !ok {
		return attendance.Record{}, fmt.Errorf("%w: %s", attendance.ErrRecordNotFound, r.AttendanceID)
	}
	prev := m.records[i]
	if prev.Key().String() != r.Key().String() {
		k := r.Key().String()
		if j, taken := m.byKey[k]; taken && j != i {
			return attendance.Record{}, fmt.Errorf("%w: %s", attendance.ErrNaturalKeyConflict, k)
		}
		delete(m.byKey, prev.Key().String())
		m.byKey[k] = i
	}

	r = r.Clone()
	r.CreatedAt = prev.CreatedAt
	r.UpdatedAt = m.Now().UTC()
	m.records[i] = r
	return r.Clone(), nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
