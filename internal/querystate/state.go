// Package querystate keeps a list view's pagination, filter and sort state in
// lockstep with the page's query string and with a resource store's request
// parameters.
package querystate

import (
	"encoding/json"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Query string keys owned by a manager.
const (
	KeyPage     = "page"
	KeyPageSize = "pageSize"
	KeyFilter   = "filter"
	KeySort     = "sort"
)

var stateKeys = []string{KeyPage, KeyPageSize, KeyFilter, KeySort}

// MatchMode is how a filter condition compares a field to its value.
type MatchMode string

const (
	Contains   MatchMode = "contains"
	Equals     MatchMode = "equals"
	StartsWith MatchMode = "startsWith"
	EndsWith   MatchMode = "endsWith"
)

// Valid reports whether m is a known match mode.
func (m MatchMode) Valid() bool {
	switch m {
	case Contains, Equals, StartsWith, EndsWith:
		return true
	}
	return false
}

// FilterItem is one filter condition.
type FilterItem struct {
	Field    string    `json:"field"`
	Operator MatchMode `json:"operator"`
	Value    string    `json:"value"`
}

// FilterModel is the set of filter conditions of a list view.
type FilterModel struct {
	Items []FilterItem `json:"items"`
}

// Empty reports whether the model has no conditions.
func (f FilterModel) Empty() bool {
	return len(f.Items) == 0
}

// Wire converts the model into store filter keys: startsWith becomes
// "<field>_starts", endsWith "<field>_ends", and contains and equals keep the
// bare field name. Conditions with an empty value are skipped.
func (f FilterModel) Wire() map[string]string {
	if f.Empty() {
		return nil
	}
	out := make(map[string]string, len(f.Items))
	for _, item := range f.Items {
		if item.Value == "" {
			continue
		}
		out[wireKey(item)] = item.Value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func wireKey(item FilterItem) string {
	switch item.Operator {
	case StartsWith:
		return item.Field + "_starts"
	case EndsWith:
		return item.Field + "_ends"
	default:
		return item.Field
	}
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortItem is one sort key.
type SortItem struct {
	Field string    `json:"field"`
	Sort  Direction `json:"sort"`
}

// SortModel is an ordered list of sort keys.
type SortModel []SortItem

// Wire serializes the model as a comma-joined field list with "-" marking
// descending fields, e.g. "-created_at,name".
func (s SortModel) Wire() string {
	parts := make([]string, 0, len(s))
	for _, item := range s {
		if item.Sort == Desc {
			parts = append(parts, "-"+item.Field)
		} else {
			parts = append(parts, item.Field)
		}
	}
	return strings.Join(parts, ",")
}

// QueryState is the pagination, filter and sort state of a list view. Page
// is 0-based.
type QueryState struct {
	Page     int
	PageSize int
	Filter   FilterModel
	Sort     SortModel
}

// Defaults returns the state of a view with no query string.
func Defaults(pageSize int) QueryState {
	return QueryState{PageSize: pageSize}
}

// IsDefault reports whether q equals Defaults(pageSize).
func (q QueryState) IsDefault(pageSize int) bool {
	return q.Page == 0 && q.PageSize == pageSize && q.Filter.Empty() && len(q.Sort) == 0
}

// Equal reports whether two states are the same.
func (q QueryState) Equal(o QueryState) bool {
	return q.Page == o.Page &&
		q.PageSize == o.PageSize &&
		slices.Equal(q.Filter.Items, o.Filter.Items) &&
		slices.Equal(q.Sort, o.Sort)
}

// Codec parses and encodes QueryState against a set of allowed page sizes.
type Codec struct {
	DefaultPageSize int
	PageSizes       []int
}

// Parse reads a QueryState from query values. Missing, malformed or
// out-of-range values fall back to defaults; Parse never fails.
func (c Codec) Parse(v url.Values) QueryState {
	q := Defaults(c.DefaultPageSize)

	if page, err := strconv.Atoi(v.Get(KeyPage)); err == nil && page >= 0 {
		q.Page = page
	}
	if size, err := strconv.Atoi(v.Get(KeyPageSize)); err == nil && c.allowed(size) {
		q.PageSize = size
	}
	q.Filter = parseFilter(v.Get(KeyFilter))
	q.Sort = parseSort(v.Get(KeySort))
	return q
}

// Encode writes q as query values. Empty filter and sort are omitted.
func (c Codec) Encode(q QueryState) url.Values {
	v := url.Values{}
	v.Set(KeyPage, strconv.Itoa(q.Page))
	v.Set(KeyPageSize, strconv.Itoa(q.PageSize))
	if !q.Filter.Empty() {
		v.Set(KeyFilter, encodeFilter(q.Filter))
	}
	if len(q.Sort) > 0 {
		v.Set(KeySort, encodeSort(q.Sort))
	}
	return v
}

func (c Codec) allowed(size int) bool {
	if len(c.PageSizes) == 0 {
		return size > 0
	}
	return slices.Contains(c.PageSizes, size)
}

// HasStateKeys reports whether v carries any key owned by a manager.
func HasStateKeys(v url.Values) bool {
	for _, k := range stateKeys {
		if _, ok := v[k]; ok {
			return true
		}
	}
	return false
}

// parseFilter decodes {"items":[...]}. Malformed JSON yields an empty model;
// items with no field or an unknown operator are dropped.
func parseFilter(raw string) FilterModel {
	if raw == "" {
		return FilterModel{}
	}
	var m FilterModel
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return FilterModel{}
	}
	return normalizeFilter(m)
}

func normalizeFilter(m FilterModel) FilterModel {
	var items []FilterItem
	for _, item := range m.Items {
		item.Field = strings.TrimSpace(item.Field)
		if item.Field == "" || !item.Operator.Valid() {
			continue
		}
		items = append(items, item)
	}
	return FilterModel{Items: items}
}

// parseSort decodes [{"field":..,"sort":..}]. Malformed JSON yields an empty
// model; items with no field or an unknown direction are dropped.
func parseSort(raw string) SortModel {
	if raw == "" {
		return nil
	}
	var m SortModel
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return normalizeSort(m)
}

func normalizeSort(m SortModel) SortModel {
	var items SortModel
	for _, item := range m {
		item.Field = strings.TrimSpace(item.Field)
		if item.Field == "" || (item.Sort != Asc && item.Sort != Desc) {
			continue
		}
		items = append(items, item)
	}
	return items
}

func encodeFilter(f FilterModel) string {
	// Marshaling plain strings cannot fail.
	b, _ := json.Marshal(f)
	return string(b)
}

func encodeSort(s SortModel) string {
	b, _ := json.Marshal(s)
	return string(b)
}
