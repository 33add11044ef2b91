/*
facet.go - Faceted aggregation of attendance records

PURPOSE:
  Turns a flat, already filtered record set into per-group status
  statistics for one grouping field (a facet):

    contextId:
      <ctx-1>: present=3 absent=1 present_percentage=75.00 absent_percentage=25.00
      <ctx-2>: absent=2 absent_percentage=100.00

ALGORITHM:
  1. Collect the statuses observed across ALL input records.
  2. Bucket records by the facet field (first-seen order), count statuses.
  3. percentage = count * 100 / total, rounded to 2 places.
  4. Backfill "0.00" for every globally observed status a group lacks, so
     every group is comparable on every percentage key.
  5. Validate and apply the sort (stable, no secondary key).
  6. Strip the backfilled placeholders. Callers only ever see percentages
     for statuses that occur in the group.

SORT KEYS:
  The key with a trailing "_percentage" removed must be an observed status,
  or the key must be literally present_percentage or absent_percentage.
  The literal pair is accepted even when neither status was observed.

SEE ALSO:
  - search.go: runs several facets concurrently
*/
package attendance

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const percentageSuffix = "_percentage"

// Literal sort keys that are always accepted on facets.
const (
	SortPresentPercentage = "present_percentage"
	SortAbsentPercentage  = "absent_percentage"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// RESULT TYPES
// =============================================================================

// StatusStat is the count and percentage of one status inside a group.
type StatusStat struct {
	Status     Status
	Count      int
	Percentage decimal.Decimal
}

// FacetGroup is one bucket of a facet: the records sharing a field value.
type FacetGroup struct {
	Value string
	Total int
	Stats []StatusStat // first-seen status order, real statuses only
}

// Stat returns the stat for status, if the group contains it.
func (g FacetGroup) Stat(status Status) (StatusStat, bool) {
	for _, s := range g.Stats {
		if s.Status == status {
			return s, true
		}
	}
	return StatusStat{}, false
}

// MarshalJSON writes counts first, then "<status>_percentage" strings.
func (g FacetGroup) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	write := func(key string, value any) error {
		if n > 0 {
			buf.WriteByte(',')
		}
		n++
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}
	for _, s := range g.Stats {
		if err := write(string(s.Status), s.Count); err != nil {
			return nil, err
		}
	}
	for _, s := range g.Stats {
		if err := write(string(s.Status)+percentageSuffix, s.Percentage.StringFixed(2)); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FacetResult is the ordered group mapping for one facet field.
type FacetResult struct {
	Field  string
	Groups []FacetGroup
}

// Group returns the group for a field value.
func (f FacetResult) Group(value string) (FacetGroup, bool) {
	for _, g := range f.Groups {
		if g.Value == value {
			return g, true
		}
	}
	return FacetGroup{}, false
}

// Values returns the group values in output order.
func (f FacetResult) Values() []string {
	out := make([]string, len(f.Groups))
	for i, g := range f.Groups {
		out[i] = g.Value
	}
	return out
}

// MarshalJSON writes the groups as an object in output order.
func (f FacetResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, g := range f.Groups {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(g.Value)
		if err != nil {
			return nil, err
		}
		v, err := g.MarshalJSON()
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
// AGGREGATION
// =============================================================================

// bucket is the working form of a group while sorting. percentages holds
// real and backfilled values; backfilled marks the placeholders.
type bucket struct {
	group       FacetGroup
	percentages map[Status]decimal.Decimal
	backfilled  map[Status]bool
}

// Aggregate groups records by field and computes status percentages. The
// field is assumed to be a validated attribute. sort may be nil.
func Aggregate(records []Record, field string, sortSpec *Sort) (FacetResult, error) {
	// 1. statuses observed anywhere in the input
	var observed []Status
	seen := make(map[Status]bool)
	for _, r := range records {
		if r.Attendance != "" && !seen[r.Attendance] {
			seen[r.Attendance] = true
			observed = append(observed, r.Attendance)
		}
	}

	// 2. bucket by field value, count statuses
	var buckets []*bucket
	index := make(map[string]*bucket)
	for _, r := range records {
		value := NullGroup
		if v, ok := r.Value(field); ok {
			value = FormatValue(v)
		}
		b, ok := index[value]
		if !ok {
			b = &bucket{group: FacetGroup{Value: value}}
			index[value] = b
			buckets = append(buckets, b)
		}
		status := r.Attendance
		if status == "" {
			status = Status(NullGroup)
		}
		b.add(status)
	}

	// 3 + 4. percentages and placeholders
	for _, b := range buckets {
		b.computePercentages()
		b.backfill(observed)
	}

	// 5. sort
	if sortSpec != nil {
		status, ok := resolveFacetSort(sortSpec.Field, seen)
		if !ok {
			return FacetResult{}, &SortKeyError{Key: sortSpec.Field, Faceted: true}
		}
		asc := sortSpec.Order.Normalize() == SortAsc
		sort.SliceStable(buckets, func(i, j int) bool {
			a := buckets[i].percentages[status]
			b := buckets[j].percentages[status]
			if asc {
				return a.LessThan(b)
			}
			return a.GreaterThan(b)
		})
	}

	// 6. strip placeholders
	result := FacetResult{Field: field, Groups: make([]FacetGroup, 0, len(buckets))}
	for _, b := range buckets {
		result.Groups = append(result.Groups, b.strip())
	}
	return result, nil
}

func (b *bucket) add(status Status) {
	b.group.Total++
	for i := range b.group.Stats {
		if b.group.Stats[i].Status == status {
			b.group.Stats[i].Count++
			return
		}
	}
	b.group.Stats = append(b.group.Stats, StatusStat{Status: status, Count: 1})
}

func (b *bucket) computePercentages() {
	total := decimal.NewFromInt(int64(b.group.Total))
	b.percentages = make(map[Status]decimal.Decimal, len(b.group.Stats))
	for i := range b.group.Stats {
		s := &b.group.Stats[i]
		s.Percentage = decimal.NewFromInt(int64(s.Count)).Mul(hundred).Div(total).Round(2)
		b.percentages[s.Status] = s.Percentage
	}
}

func (b *bucket) backfill(observed []Status) {
	b.backfilled = make(map[Status]bool)
	for _, status := range observed {
		if _, ok := b.percentages[status]; !ok {
			b.percentages[status] = decimal.Zero
			b.backfilled[status] = true
		}
	}
}

// strip returns the group without any placeholder percentage. Stats only
// ever holds real statuses, so this drops the working maps.
func (b *bucket) strip() FacetGroup {
	for status := range b.backfilled {
		delete(b.percentages, status)
	}
	return b.group
}

// resolveFacetSort maps a sort key to the status whose percentage it orders by.
func resolveFacetSort(key string, observed map[Status]bool) (Status, bool) {
	status := Status(strings.TrimSuffix(key, percentageSuffix))
	if observed[status] || key == SortPresentPercentage || key == SortAbsentPercentage {
		return status, true
	}
	return "", false
}
