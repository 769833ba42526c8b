package crud

import (
	"maps"
	"net/url"
	"slices"
	"strconv"
)

// Default list parameters.
const (
	DefaultPage    = 1
	DefaultPerPage = 10
)

// Params is the wire-format mirror of a list view's query state. Page is
// 1-based. Filter keys are already suffixed by match mode ("name_starts").
type Params struct {
	Page    int
	PerPage int
	Filter  map[string]string
	Sort    string
}

// DefaultParams returns the parameters a store starts with.
func DefaultParams() Params {
	return Params{Page: DefaultPage, PerPage: DefaultPerPage}
}

// Values expands p into query parameters:
// page=2&per_page=10&filter[name_starts]=Al&sort=-created_at,name.
// Empty filter values and an empty sort are omitted.
func (p Params) Values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(p.PerPage))
	}
	for _, key := range slices.Sorted(maps.Keys(p.Filter)) {
		if val := p.Filter[key]; val != "" {
			v.Set("filter["+key+"]", val)
		}
	}
	if p.Sort != "" {
		v.Set("sort", p.Sort)
	}
	return v
}

func (p Params) clone() Params {
	p.Filter = maps.Clone(p.Filter)
	return p
}

// ParamOption merges one field into Params.
type ParamOption func(*Params)

// Page sets the 1-based page number.
func Page(n int) ParamOption {
	return func(p *Params) { p.Page = n }
}

// PerPage sets the page size.
func PerPage(n int) ParamOption {
	return func(p *Params) { p.PerPage = n }
}

// Filter replaces the filter mapping. A nil or empty map clears it.
func Filter(f map[string]string) ParamOption {
	return func(p *Params) {
		if len(f) == 0 {
			p.Filter = nil
			return
		}
		p.Filter = maps.Clone(f)
	}
}

// Sort sets the comma-joined sort expression. An empty string clears it.
func Sort(s string) ParamOption {
	return func(p *Params) { p.Sort = s }
}
