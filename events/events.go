/*
Package events publishes attendance write events.

PURPOSE:
  After a mark is created or updated, downstream consumers (reporting,
  notifications) receive an ATTENDANCE_CREATED or ATTENDANCE_UPDATED event
  keyed by attendanceId. Publishing is fire-and-report: the caller logs a
  failure and never fails the write because of it.

IMPLEMENTATIONS:
  - Nop:            drops events (default)
  - Memory:         keeps events in memory (tests, dev)
  - AsynqPublisher: enqueues one asynq task per event on Redis

SEE ALSO:
  - attendance/service.go: the only producer
*/
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// Event types.
const (
	TypeAttendanceCreated = "ATTENDANCE_CREATED"
	TypeAttendanceUpdated = "ATTENDANCE_UPDATED"
)

// Event is the payload published for one write.
type Event struct {
	Type         string            `json:"eventType"`
	AttendanceID string            `json:"attendanceId"`
	TenantID     string            `json:"tenantId"`
	Actor        string            `json:"actor"`
	OccurredAt   time.Time         `json:"occurredAt"`
	Attendance   attendance.Record `json:"data"`
}

// FromOutcome builds the event for a successful resolution.
func FromOutcome(actor string, o attendance.Outcome, at time.Time) Event {
	typ := TypeAttendanceUpdated
	if o.Kind == attendance.OutcomeCreated {
		typ = TypeAttendanceCreated
	}
	return Event{
		Type:         typ,
		AttendanceID: o.Record.AttendanceID,
		TenantID:     o.Record.TenantID,
		Actor:        actor,
		OccurredAt:   at.UTC(),
		Attendance:   o.Record,
	}
}

// Encode returns the JSON payload.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a payload produced by Encode.
func Decode(payload []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(payload, &e)
	return e, err
}

// =============================================================================
// NOP / MEMORY
// =============================================================================

// Nop drops every event.
type Nop struct{}

func (Nop) PublishOutcome(context.Context, string, attendance.Outcome) error { return nil }

// Memory records events in publish order.
type Memory struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) PublishOutcome(_ context.Context, actor string, o attendance.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, FromOutcome(actor, o, m.now()))
	return nil
}

// Events returns a copy of what was published.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
