package crudview

import (
	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/querystate"
)

// GridView is the template data of the grid partial.
type GridView struct {
	Path     string
	Title    string
	Singular string
	URL      string
	Editable bool

	Columns []ColumnView
	Rows    []RowView
	Loading bool
	Error   string
	Meta    domain.PageMeta

	// Page is 0-based, as in the URL.
	Page      int
	PageSize  int
	PageSizes []int
	HasPrev   bool
	HasNext   bool

	Filter     querystate.FilterItem
	Filterable []ColumnView
	MatchModes []querystate.MatchMode

	Selected    int
	AllSelected bool
}

// ColumnView is a column header. Sort is the active direction, if any.
type ColumnView struct {
	Field    string
	Label    string
	Sortable bool
	Sort     querystate.Direction
}

// RowView is one rendered row.
type RowView struct {
	ID       string
	Cells    []string
	Selected bool
}

var matchModes = []querystate.MatchMode{
	querystate.Contains,
	querystate.Equals,
	querystate.StartsWith,
	querystate.EndsWith,
}

func (g *Grid[T, ID]) view() GridView {
	snap := g.store.Snapshot()
	state := g.query.State()
	sel := g.query.Selection()

	v := GridView{
		Path:        g.path,
		Title:       g.title,
		Singular:    g.singular,
		URL:         g.loc.URL(),
		Editable:    g.form != nil,
		Loading:     snap.Loading,
		Error:       snap.Error,
		Meta:        snap.Meta,
		Page:        state.Page,
		PageSize:    state.PageSize,
		PageSizes:   g.pageSizes,
		HasPrev:     state.Page > 0,
		HasNext:     state.Page+1 < snap.Meta.LastPage,
		MatchModes:  matchModes,
		AllSelected: sel.Mode() == querystate.Exclude,
	}
	if len(state.Filter.Items) > 0 {
		v.Filter = state.Filter.Items[0]
	} else {
		v.Filter.Operator = querystate.Contains
	}

	for _, col := range g.columns {
		cv := ColumnView{Field: col.Field, Label: col.Label, Sortable: col.Sortable}
		for _, s := range state.Sort {
			if s.Field == col.Field {
				cv.Sort = s.Sort
			}
		}
		v.Columns = append(v.Columns, cv)
		if col.Filterable {
			v.Filterable = append(v.Filterable, cv)
		}
	}

	v.Rows = make([]RowView, 0, len(snap.Items))
	for _, item := range snap.Items {
		row := RowView{
			ID:       formatID(item.GetID()),
			Cells:    make([]string, len(g.columns)),
			Selected: sel.Has(item.GetID()),
		}
		if row.Selected {
			v.Selected++
		}
		for i, col := range g.columns {
			if col.Value != nil {
				row.Cells[i] = col.Value(item)
			}
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}
