/*
Package sqlite provides a SQLite-backed attendance.Store.

PURPOSE:
  Persists attendance records in a single table. In production the same
  table lives in PostgreSQL (store/gormstore); only dialect details differ.

KEY TABLE:
  attendance: one row per mark, keyed by attendance_id (uuid)

INDEXES:
  - idx_attendance_natural_key (UNIQUE): user_id, context_id, attendance_date
    Enforces the natural key. A violating INSERT surfaces as
    attendance.ErrNaturalKeyConflict and the reconciler retries as update.
  - idx_attendance_tenant_context: tenant_id, context_id (hot search path)

NULLS:
  Optional text columns store NULL, never "". An attribute filter with a
  null value becomes IS NULL, matching the in-memory store.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL, database-level
  concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - attendance/store.go: interface definition
  - attendance/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/attendance-engine/attendance"
)

// timeLayout is fixed width so text ordering equals time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// columns maps attribute names to column names.
var columns = map[string]string{
	attendance.AttrAttendanceID:   "attendance_id",
	attendance.AttrTenantID:       "tenant_id",
	attendance.AttrUserID:         "user_id",
	attendance.AttrAttendanceDate: "attendance_date",
	attendance.AttrAttendance:     "attendance",
	attendance.AttrRemark:         "remark",
	attendance.AttrLatitude:       "latitude",
	attendance.AttrLongitude:      "longitude",
	attendance.AttrImage:          "image",
	attendance.AttrMetaData:       "meta_data",
	attendance.AttrSyncTime:       "sync_time",
	attendance.AttrSession:        "session",
	attendance.AttrContext:        "context",
	attendance.AttrContextID:      "context_id",
	attendance.AttrScope:          "scope",
	attendance.AttrCreatedAt:      "created_at",
	attendance.AttrUpdatedAt:      "updated_at",
	attendance.AttrCreatedBy:      "created_by",
	attendance.AttrUpdatedBy:      "updated_by",
}

const selectColumns = `attendance_id, tenant_id, user_id, attendance_date, attendance, remark,
	latitude, longitude, image, meta_data, sync_time, session, context, context_id, scope,
	created_at, updated_at, created_by, updated_by`

// Store implements attendance.Store using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attendance (
		attendance_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		attendance_date TEXT,
		attendance TEXT,
		remark TEXT,
		latitude REAL,
		longitude REAL,
		image TEXT,
		meta_data TEXT,
		sync_time TEXT,
		session TEXT,
		context TEXT,
		context_id TEXT,
		scope TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		created_by TEXT,
		updated_by TEXT
	);

	-- CRITICAL: one mark per user, context and day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_natural_key
		ON attendance(user_id, context_id, attendance_date);

	CREATE INDEX IF NOT EXISTS idx_attendance_tenant_context
		ON attendance(tenant_id, context_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// attendance.Store
// =============================================================================

// FindOne returns the tenant's record for a natural key, or nil.
func (s *Store) FindOne(ctx context.Context, key attendance.NaturalKey) (*attendance.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + selectColumns + ` FROM attendance
		WHERE tenant_id = ? AND user_id = ? AND context_id = ? AND attendance_date = ?`

	rows, err := s.db.QueryContext(ctx, query, key.TenantID, key.UserID, key.ContextID, key.AttendanceDate)
	if err != nil {
		return nil, unavailable("find attendance", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// FindAll returns every record matching p. No limit is applied.
func (s *Store) FindAll(ctx context.Context, p attendance.Predicate, sort *attendance.Sort) ([]attendance.Record, error) {
	where, args, err := whereClause(p)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + selectColumns + ` FROM attendance WHERE ` + where

	if sort != nil {
		col, ok := columns[sort.Field]
		if !ok {
			return nil, &attendance.SortKeyError{Key: sort.Field}
		}
		dir := "DESC"
		if sort.Order.Normalize() == attendance.SortAsc {
			dir = "ASC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s, rowid ASC", col, dir)
	} else {
		query += " ORDER BY rowid ASC"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("query attendance", err)
	}
	defer rows.Close()

	records := make([]attendance.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Create inserts a record, assigning its id and timestamps.
func (s *Store) Create(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.AttendanceID == "" {
		r.AttendanceID = uuid.NewString()
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	r.CreatedAt, r.UpdatedAt = now, now

	metaData, err := encodeMetaData(r.MetaData)
	if err != nil {
		return attendance.Record{}, err
	}

	query := `
		INSERT INTO attendance (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		r.AttendanceID,
		r.TenantID,
		r.UserID,
		nullString(r.AttendanceDate),
		nullString(string(r.Attendance)),
		nullString(r.Remark),
		nullFloat(r.Latitude),
		nullFloat(r.Longitude),
		nullString(r.Image),
		metaData,
		nullString(r.SyncTime),
		nullString(r.Session),
		nullString(r.Context),
		nullString(r.ContextID),
		nullString(string(r.Scope)),
		r.CreatedAt.Format(timeLayout),
		r.UpdatedAt.Format(timeLayout),
		nullString(r.CreatedBy),
		nullString(r.UpdatedBy),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return attendance.Record{}, fmt.Errorf("%w: %s", attendance.ErrNaturalKeyConflict, r.Key())
		}
		return attendance.Record{}, unavailable("insert attendance", err)
	}
	return r, nil
}

// Save updates every mutable column of an existing record.
func (s *Store) Save(ctx context.Context, r attendance.Record) (attendance.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaData, err := encodeMetaData(r.MetaData)
	if err != nil {
		return attendance.Record{}, err
	}
	r.UpdatedAt = s.now().UTC().Truncate(time.Microsecond)

	query := `
		UPDATE attendance SET
			attendance_date = ?, attendance = ?, remark = ?, latitude = ?, longitude = ?,
			image = ?, meta_data = ?, sync_time = ?, session = ?, context = ?, context_id = ?,
			scope = ?, updated_at = ?, updated_by = ?, user_id = ?
		WHERE attendance_id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		nullString(r.AttendanceDate),
		nullString(string(r.Attendance)),
		nullString(r.Remark),
		nullFloat(r.Latitude),
		nullFloat(r.Longitude),
		nullString(r.Image),
		metaData,
		nullString(r.SyncTime),
		nullString(r.Session),
		nullString(r.Context),
		nullString(r.ContextID),
		nullString(string(r.Scope)),
		r.UpdatedAt.Format(timeLayout),
		nullString(r.UpdatedBy),
		r.UserID,
		r.AttendanceID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return attendance.Record{}, fmt.Errorf("%w: %s", attendance.ErrNaturalKeyConflict, r.Key())
		}
		return attendance.Record{}, unavailable("update attendance", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.Record{}, fmt.Errorf("%w: %s", attendance.ErrRecordNotFound, r.AttendanceID)
	}

	var createdAt string
	err = s.db.QueryRowContext(ctx, `SELECT created_at FROM attendance WHERE attendance_id = ?`, r.AttendanceID).Scan(&createdAt)
	if err != nil {
		return attendance.Record{}, unavailable("reload attendance", err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return attendance.Record{}, fmt.Errorf("failed to decode created_at of %s: %w", r.AttendanceID, err)
	}
	return r, nil
}

// =============================================================================
// QUERY TRANSLATION
// =============================================================================

// whereClause translates a predicate. Field names are only ever taken from
// the columns map, values are always bound.
func whereClause(p attendance.Predicate) (string, []any, error) {
	parts := []string{"tenant_id = ?"}
	args := []any{p.TenantID}

	for _, c := range p.Conditions {
		col, ok := columns[c.Field]
		if !ok {
			return "", nil, &attendance.FilterKeyError{Key: c.Field}
		}
		switch c.Op {
		case attendance.OpEqual:
			if c.Value == nil {
				parts = append(parts, col+" IS NULL")
				continue
			}
			parts = append(parts, col+" = ?")
			args = append(args, bindValue(c.Value))
		case attendance.OpEqualOrNull:
			parts = append(parts, "("+col+" = ? OR "+col+" IS NULL)")
			args = append(args, bindValue(c.Value))
		case attendance.OpBetween:
			parts = append(parts, col+" BETWEEN ? AND ?")
			args = append(args, bindValue(c.Value), bindValue(c.To))
		default:
			return "", nil, fmt.Errorf("unsupported operator %d", c.Op)
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

func bindValue(v any) any {
	switch x := v.(type) {
	case nil, string, float64, int, int64, bool:
		return x
	case attendance.Status:
		return string(x)
	case attendance.Scope:
		return string(x)
	case time.Time:
		return x.UTC().Format(timeLayout)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return attendance.FormatValue(x)
		}
		return string(b)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func scanRecord(rows *sql.Rows) (attendance.Record, error) {
	var (
		r                    attendance.Record
		date, status         sql.NullString
		remark, image        sql.NullString
		metaData, syncTime   sql.NullString
		session, ctxName     sql.NullString
		contextID, scope     sql.NullString
		createdBy, updatedBy sql.NullString
		latitude, longitude  sql.NullFloat64
		createdAt, updatedAt string
	)

	err := rows.Scan(
		&r.AttendanceID, &r.TenantID, &r.UserID, &date, &status, &remark,
		&latitude, &longitude, &image, &metaData, &syncTime, &session, &ctxName, &contextID, &scope,
		&createdAt, &updatedAt, &createdBy, &updatedBy,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan attendance: %w", err)
	}

	r.AttendanceDate = date.String
	r.Attendance = attendance.Status(status.String)
	r.Remark = remark.String
	r.Image = image.String
	r.SyncTime = syncTime.String
	r.Session = session.String
	r.Context = ctxName.String
	r.ContextID = contextID.String
	r.Scope = attendance.Scope(scope.String)
	r.CreatedBy = createdBy.String
	r.UpdatedBy = updatedBy.String
	if latitude.Valid {
		v := latitude.Float64
		r.Latitude = &v
	}
	if longitude.Valid {
		v := longitude.Float64
		r.Longitude = &v
	}
	if metaData.Valid && metaData.String != "" {
		if err := json.Unmarshal([]byte(metaData.String), &r.MetaData); err != nil {
			return r, fmt.Errorf("failed to decode metaData of %s: %w", r.AttendanceID, err)
		}
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, fmt.Errorf("failed to decode created_at of %s: %w", r.AttendanceID, err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return r, fmt.Errorf("failed to decode updated_at of %s: %w", r.AttendanceID, err)
	}
	return r, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func encodeMetaData(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("%w: metaData is not JSON: %w", attendance.ErrValidation, err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", attendance.ErrStoreUnavailable, op, err)
}
