/*
reconcile.go - Create-or-update reconciliation on the natural key

PURPOSE:
  The write path. An incoming Entry is resolved against the record that owns
  its natural key (userId, contextId, attendanceDate):

    found     -> Merge(existing, entry), updatedBy = actor, Save  -> updated
    not found -> NewRecord(entry, actor), Create                  -> created

CONCURRENCY:
  find-then-persist is held under a per-key lock (KeyLocker), so two
  resolutions of the same key never interleave inside one process. Stores
  also enforce uniqueness; a Create that loses a cross-process race returns
  ErrNaturalKeyConflict and is retried exactly once as an update.

BATCHES:
  Items are grouped by natural key. Items of one group run in input order on
  one goroutine; groups run concurrently with a bounded errgroup. Every
  item lands in its input slot, so outcome and error lists are in input
  order and "first failing entry" is deterministic. A failing item never
  aborts its siblings and no item is ever dropped.

SEE ALSO:
  - merge.go: field-level update semantics
  - classify.go: outcome -> external status
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds the number of key groups resolved at once.
const DefaultBatchConcurrency = 4

// =============================================================================
// OUTCOMES
// =============================================================================

// OutcomeKind says whether a resolution created or updated a record.
type OutcomeKind string

const (
	OutcomeCreated OutcomeKind = "created"
	OutcomeUpdated OutcomeKind = "updated"
)

// Outcome is the successful result of resolving one entry.
type Outcome struct {
	Kind   OutcomeKind `json:"status"`
	Record Record      `json:"attendance"`
}

// BatchError echoes a failed batch item with its error message.
type BatchError struct {
	Input   Entry  `json:"attendance"`
	Message string `json:"error"`
	Index   int    `json:"-"`
	Err     error  `json:"-"`
}

// BatchOutcome aggregates a batch. Every input item appears in exactly one
// of Outcomes or Errors, each list in input order.
type BatchOutcome struct {
	Count    int          `json:"count"`
	Outcomes []Outcome    `json:"outcomes"`
	Errors   []BatchError `json:"errors"`
}

// Failed reports a batch with errors and no success at all.
func (b BatchOutcome) Failed() bool {
	return b.Count == 0 && len(b.Errors) > 0
}

// Partial reports a batch with both successes and errors.
func (b BatchOutcome) Partial() bool {
	return b.Count > 0 && len(b.Errors) > 0
}

// FirstError returns the message of the first failing input item.
func (b BatchOutcome) FirstError() string {
	if len(b.Errors) == 0 {
		return ""
	}
	return b.Errors[0].Message
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler resolves entries against a Store.
type Reconciler struct {
	Store  Store
	Locker KeyLocker

	// Check, when set, runs on each entry before resolution. A failing
	// check fails only that entry.
	Check func(Entry) error

	// Concurrency bounds concurrent key groups in ResolveBatch.
	Concurrency int

	lockerOnce sync.Once
}

// NewReconciler returns a Reconciler with an in-process locker.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{
		Store:       store,
		Locker:      NewMemoryLocker(),
		Concurrency: DefaultBatchConcurrency,
	}
}

// Resolve creates or updates the record owning the entry's natural key.
func (r *Reconciler) Resolve(ctx context.Context, actor string, e Entry) (Outcome, error) {
	if r.Check != nil {
		if err := r.Check(e); err != nil {
			return Outcome{}, err
		}
	}
	key := e.Key()
	if !key.Complete() {
		return Outcome{}, fmt.Errorf("%w: userId, contextId and attendanceDate are required", ErrIncompleteKey)
	}

	unlock, err := r.locker().Lock(ctx, key.String())
	if err != nil {
		return Outcome{}, fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()

	existing, err := r.Store.FindOne(ctx, key)
	if err != nil {
		return Outcome{}, err
	}
	if existing != nil {
		return r.update(ctx, *existing, e, actor)
	}

	created, err := r.Store.Create(ctx, NewRecord(e, actor))
	if err == nil {
		return Outcome{Kind: OutcomeCreated, Record: created}, nil
	}
	if !errors.Is(err, ErrNaturalKeyConflict) {
		return Outcome{}, err
	}

	// Someone outside this process created it first: retry once as update.
	existing, findErr := r.Store.FindOne(ctx, key)
	if findErr != nil {
		return Outcome{}, findErr
	}
	if existing == nil {
		return Outcome{}, err
	}
	return r.update(ctx, *existing, e, actor)
}

func (r *Reconciler) update(ctx context.Context, existing Record, e Entry, actor string) (Outcome, error) {
	merged := Merge(existing, e)
	merged.UpdatedBy = actor
	saved, err := r.Store.Save(ctx, merged)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeUpdated, Record: saved}, nil
}

func (r *Reconciler) locker() KeyLocker {
	r.lockerOnce.Do(func() {
		if r.Locker == nil {
			r.Locker = NewMemoryLocker()
		}
	})
	return r.Locker
}

// =============================================================================
// BATCH
// =============================================================================

type slot struct {
	outcome Outcome
	err     error
}

// ResolveBatch resolves every entry and collects per-item results. It never
// fails as a whole: a cancelled ctx turns the remaining items into errors.
func (r *Reconciler) ResolveBatch(ctx context.Context, actor string, entries []Entry) BatchOutcome {
	slots := make([]slot, len(entries))

	// Group indexes by natural key, keeping first-seen group order. Items
	// without a complete key cannot collide and get a group of their own.
	var order []string
	groups := make(map[string][]int)
	for i, e := range entries {
		k := e.Key()
		name := k.String()
		if !k.Complete() {
			name = "#" + strconv.Itoa(i)
		}
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], i)
	}

	limit := r.Concurrency
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, name := range order {
		idxs := groups[name]
		g.Go(func() error {
			for _, i := range idxs {
				if err := ctx.Err(); err != nil {
					slots[i].err = err
					continue
				}
				slots[i].outcome, slots[i].err = r.Resolve(ctx, actor, entries[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	out := BatchOutcome{Outcomes: []Outcome{}, Errors: []BatchError{}}
	for i, s := range slots {
		if s.err != nil {
			out.Errors = append(out.Errors, BatchError{
				Input:   entries[i],
				Message: s.err.Error(),
				Index:   i,
				Err:     s.err,
			})
			continue
		}
		out.Outcomes = append(out.Outcomes, s.outcome)
	}
	out.Count = len(out.Outcomes)
	return out
}

// =============================================================================
// BULK REQUEST
// =============================================================================

// BulkRequest is a batch sharing a date and context. Items inherit the
// shared fields unless they carry their own.
type BulkRequest struct {
	AttendanceDate string  `json:"attendanceDate" validate:"required,calendardate,notfuture"`
	ContextID      string  `json:"contextId" validate:"required,uuid"`
	Context        string  `json:"context" validate:"required"`
	Scope          Scope   `json:"scope" validate:"omitempty,scope"`
	UserAttendance []Entry `json:"userAttendance" validate:"required,min=1"`
}

// Entries returns the items with shared fields and the tenant applied.
func (b BulkRequest) Entries(tenantID string) []Entry {
	out := make([]Entry, len(b.UserAttendance))
	for i, item := range b.UserAttendance {
		e := item
		e.TenantID = tenantID
		if e.AttendanceDate == "" {
			e.AttendanceDate = b.AttendanceDate
		}
		if e.ContextID == "" {
			e.ContextID = b.ContextID
		}
		if e.Context == "" {
			e.Context = b.Context
		}
		if e.Scope == "" {
			e.Scope = b.Scope
		}
		out[i] = e
	}
	return out
}
