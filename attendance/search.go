package attendance

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is the page size when the caller gives none.
const DefaultLimit = 20

// SearchRequest is the query entry point input.
type SearchRequest struct {
	Limit   int      `json:"limit,omitempty"`
	Page    int      `json:"page,omitempty"`
	Filters Filters  `json:"filters,omitempty"`
	Facets  []string `json:"facets,omitempty"`
	Sort    *Sort    `json:"sort,omitempty"`
}

// Faceted reports whether the request takes the aggregation path.
func (r SearchRequest) Faceted() bool { return len(r.Facets) > 0 }

// SearchResult holds either a page of records or one FacetResult per
// requested facet, in request order.
type SearchResult struct {
	AttendanceList []Record
	Facets         []FacetResult
}

// Facet returns the result for a facet field.
func (r SearchResult) Facet(field string) (FacetResult, bool) {
	for _, f := range r.Facets {
		if f.Field == field {
			return f, true
		}
	}
	return FacetResult{}, false
}

// MarshalJSON writes {"attendanceList": [...]} or {"result": {facet: groups}}.
func (r SearchResult) MarshalJSON() ([]byte, error) {
	if r.Facets == nil {
		list := r.AttendanceList
		if list == nil {
			list = []Record{}
		}
		return json.Marshal(struct {
			AttendanceList []Record `json:"attendanceList"`
		}{list})
	}

	out := []byte(`{"result":{`)
	for i, f := range r.Facets {
		if i > 0 {
			out = append(out, ',')
		}
		k, err := json.Marshal(f.Field)
		if err != nil {
			return nil, err
		}
		v, err := f.MarshalJSON()
		if err != nil {
			return nil, err
		}
		out = append(out, k...)
		out = append(out, ':')
		out = append(out, v...)
	}
	return append(out, '}', '}'), nil
}

// =============================================================================
// QUERY PATH
// =============================================================================

// Search validates the request, queries the store and either paginates the
// list or aggregates it per facet. All validation happens before the store
// is touched.
func Search(ctx context.Context, store Store, schema Schema, tenantID string, req SearchRequest) (SearchResult, error) {
	pred, err := BuildPredicate(schema, tenantID, req.Filters)
	if err != nil {
		return SearchResult{}, err
	}

	if !req.Faceted() {
		var sortSpec *Sort
		if req.Sort != nil {
			if !schema.HasAttribute(req.Sort.Field) {
				return SearchResult{}, &SortKeyError{Key: req.Sort.Field}
			}
			sortSpec = &Sort{Field: req.Sort.Field, Order: req.Sort.Order.Normalize()}
		}
		records, err := store.FindAll(ctx, pred, sortSpec)
		if err != nil {
			return SearchResult{}, err
		}
		return SearchResult{AttendanceList: Paginate(records, req.Limit, req.Page)}, nil
	}

	for _, facet := range req.Facets {
		if !schema.HasAttribute(facet) {
			return SearchResult{}, &FacetError{Facet: facet}
		}
	}
	records, err := store.FindAll(ctx, pred, nil)
	if err != nil {
		return SearchResult{}, err
	}
	facets, err := AggregateFacets(records, req.Facets, req.Sort)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Facets: facets}, nil
}

// Paginate slices a fully materialized result. limit <= 0 means
// DefaultLimit; page <= 1 means the first page.
func Paginate(records []Record, limit, page int) []Record {
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := 0
	if page > 1 {
		offset = limit * (page - 1)
	}
	if offset >= len(records) {
		return []Record{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

// AggregateFacets runs Aggregate for every facet concurrently over the same
// record snapshot. When several facets fail, the error of the first one in
// request order is returned and no partial result is.
func AggregateFacets(records []Record, facets []string, sortSpec *Sort) ([]FacetResult, error) {
	results := make([]FacetResult, len(facets))
	errs := make([]error, len(facets))

	var g errgroup.Group
	for i, field := range facets {
		g.Go(func() error {
			results[i], errs[i] = Aggregate(records, field, sortSpec)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
