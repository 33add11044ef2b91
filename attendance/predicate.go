package attendance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Pseudo filter keys that together become a closed range on attendanceDate.
const (
	FilterFromDate = "fromDate"
	FilterToDate   = "toDate"
)

// =============================================================================
// FILTERS - ordered key/value pairs
// =============================================================================

// Filter is one caller-supplied key/value pair.
type Filter struct {
	Key   string
	Value any
}

// Filters keeps the order in which the caller supplied keys. Validation is
// key-by-key in that order, so the first invalid key is the one reported.
type Filters []Filter

// Get returns the value of the first filter with the given key.
func (fs Filters) Get(key string) (any, bool) {
	for _, f := range fs {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// hasValue reports whether key is present with a non-empty value.
func (fs Filters) hasValue(key string) bool {
	v, ok := fs.Get(key)
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return true
}

// UnmarshalJSON decodes a JSON object while preserving key order.
func (fs *Filters) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*fs = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("filters must be an object")
	}

	var out Filters
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("filters: unexpected key token %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("filters: value of %q: %w", key, err)
		}
		out = append(out, Filter{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*fs = out
	return nil
}

// MarshalJSON writes the filters back as an object in order.
func (fs Filters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// =============================================================================
// PREDICATE BUILDER
// =============================================================================

// BuildPredicate validates filters against the schema and translates them
// into a tenant-scoped Predicate.
//
// Rules:
//   - a known attribute becomes an equality; attendanceDate also matches null
//   - any other key is tolerated only when both fromDate and toDate are
//     present, and then sets a closed range on attendanceDate
//   - otherwise the key fails with FilterKeyError
//
// A later condition on the same field replaces the earlier one. The tenant
// condition is never part of Conditions and cannot be replaced.
func BuildPredicate(schema Schema, tenantID string, filters Filters) (Predicate, error) {
	p := Predicate{TenantID: tenantID}
	hasRange := filters.hasValue(FilterFromDate) && filters.hasValue(FilterToDate)

	for _, f := range filters {
		switch {
		case schema.HasAttribute(f.Key):
			op := OpEqual
			if f.Key == AttrAttendanceDate {
				op = OpEqualOrNull
			}
			value, err := filterValue(f)
			if err != nil {
				return Predicate{}, err
			}
			p.set(Condition{Field: f.Key, Op: op, Value: value})

		case hasRange:
			from, to, err := dateRange(filters)
			if err != nil {
				return Predicate{}, err
			}
			p.set(Condition{Field: AttrAttendanceDate, Op: OpBetween, Value: from, To: to})

		default:
			return Predicate{}, &FilterKeyError{Key: f.Key}
		}
	}
	return p, nil
}

func (p *Predicate) set(c Condition) {
	for i := range p.Conditions {
		if p.Conditions[i].Field == c.Field {
			p.Conditions[i] = c
			return
		}
	}
	p.Conditions = append(p.Conditions, c)
}

// filterValue parses timestamp filters into UTC times so each store can bind
// them in its own column format.
func filterValue(f Filter) (any, error) {
	if (f.Key != AttrCreatedAt && f.Key != AttrUpdatedAt) || f.Value == nil {
		return f.Value, nil
	}
	if s, ok := f.Value.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
	}
	return nil, &ValidationError{Fields: map[string]string{
		f.Key: fmt.Sprintf("%s must be an RFC 3339 timestamp", f.Key),
	}}
}

func dateRange(filters Filters) (string, string, error) {
	fromRaw, _ := filters.Get(FilterFromDate)
	toRaw, _ := filters.Get(FilterToDate)

	fields := map[string]string{}
	from, ok := normalizeDate(fromRaw)
	if !ok {
		fields[FilterFromDate] = fmt.Sprintf("%s must be a date in the format yyyy-mm-dd", FilterFromDate)
	}
	to, ok := normalizeDate(toRaw)
	if !ok {
		fields[FilterToDate] = fmt.Sprintf("%s must be a date in the format yyyy-mm-dd", FilterToDate)
	}
	if len(fields) > 0 {
		return "", "", &ValidationError{Fields: fields}
	}
	return from, to, nil
}

// normalizeDate accepts yyyy-mm-dd or an RFC 3339 timestamp and returns the
// calendar date.
func normalizeDate(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t.Format(DateLayout), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(DateLayout), true
	}
	return "", false
}
