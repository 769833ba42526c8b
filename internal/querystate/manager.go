package querystate

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/simp-lee/crudboard/internal/crud"
)

// Target is the resource store a manager drives.
type Target interface {
	SetParams(opts ...crud.ParamOption)
	FetchAll(ctx context.Context) error
}

// Options configures a Manager.
type Options struct {
	DefaultPageSize int
	PageSizes       []int
	Logger          *slog.Logger
}

// Manager owns a list view's QueryState and keeps it consistent with the
// Location and with the Target's parameters. Every logical change results in
// exactly one FetchAll on the target.
type Manager[ID comparable] struct {
	codec  Codec
	target Target
	loc    Location
	logger *slog.Logger

	mu          sync.Mutex
	state       QueryState
	selection   Selection[ID]
	initialized bool
}

// NewManager creates a manager. A DefaultPageSize outside PageSizes falls
// back to the first allowed size.
func NewManager[ID comparable](target Target, loc Location, opts Options) *Manager[ID] {
	codec := Codec{DefaultPageSize: opts.DefaultPageSize, PageSizes: opts.PageSizes}
	if codec.DefaultPageSize <= 0 {
		codec.DefaultPageSize = crud.DefaultPerPage
	}
	if !codec.allowed(codec.DefaultPageSize) {
		codec.DefaultPageSize = opts.PageSizes[0]
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager[ID]{
		codec:  codec,
		target: target,
		loc:    loc,
		logger: logger,
		state:  Defaults(codec.DefaultPageSize),
	}
}

// Codec returns the codec the manager parses and encodes with.
func (m *Manager[ID]) Codec() Codec {
	return m.codec
}

// State returns the current query state.
func (m *Manager[ID]) State() QueryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize seeds the state from the location, falling back to defaults for
// anything missing or malformed, pushes it into the target and fetches once.
func (m *Manager[ID]) Initialize(ctx context.Context) error {
	m.mu.Lock()
	v := m.loc.Query()
	m.state = m.codec.Parse(v)
	if HasStateKeys(v) {
		m.writeLocationLocked(func(q url.Values) {
			for _, k := range stateKeys {
				q.Del(k)
			}
			for k, vs := range m.codec.Encode(m.state) {
				q[k] = vs
			}
		})
	}
	m.selection.Clear()
	m.pushAllLocked()
	m.initialized = true
	m.mu.Unlock()

	return m.target.FetchAll(ctx)
}

// SetPage moves to a 0-based page with the given page size. A size outside
// the allowed set keeps the current size.
func (m *Manager[ID]) SetPage(ctx context.Context, page, pageSize int) error {
	m.mu.Lock()
	if page < 0 {
		page = 0
	}
	if !m.codec.allowed(pageSize) {
		pageSize = m.state.PageSize
	}
	m.state.Page = page
	m.state.PageSize = pageSize
	m.selection.Clear()
	m.writeLocationLocked(func(q url.Values) {
		enc := m.codec.Encode(m.state)
		q.Set(KeyPage, enc.Get(KeyPage))
		q.Set(KeyPageSize, enc.Get(KeyPageSize))
	})
	m.target.SetParams(crud.Page(page+1), crud.PerPage(pageSize))
	m.mu.Unlock()

	return m.target.FetchAll(ctx)
}

// SetFilter replaces the filter model. An empty model removes the filter
// from the location and from the target.
func (m *Manager[ID]) SetFilter(ctx context.Context, model FilterModel) error {
	model = normalizeFilter(model)

	m.mu.Lock()
	m.state.Filter = model
	m.selection.Clear()
	m.writeLocationLocked(func(q url.Values) {
		if model.Empty() {
			q.Del(KeyFilter)
			return
		}
		q.Set(KeyFilter, encodeFilter(model))
	})
	m.target.SetParams(crud.Filter(model.Wire()))
	m.mu.Unlock()

	return m.target.FetchAll(ctx)
}

// SetSort replaces the sort model. An empty model removes the sort from the
// location and from the target.
func (m *Manager[ID]) SetSort(ctx context.Context, model SortModel) error {
	model = normalizeSort(model)

	m.mu.Lock()
	m.state.Sort = model
	m.selection.Clear()
	m.writeLocationLocked(func(q url.Values) {
		if len(model) == 0 {
			q.Del(KeySort)
			return
		}
		q.Set(KeySort, encodeSort(model))
	})
	m.target.SetParams(crud.Sort(model.Wire()))
	m.mu.Unlock()

	return m.target.FetchAll(ctx)
}

// OnExternalNavigation resets everything to defaults and refetches when the
// location has lost all state keys while the in-memory state is not the
// default. It reports whether a reset happened.
func (m *Manager[ID]) OnExternalNavigation(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if HasStateKeys(m.loc.Query()) || m.state.IsDefault(m.codec.DefaultPageSize) {
		m.mu.Unlock()
		return false, nil
	}
	m.state = Defaults(m.codec.DefaultPageSize)
	m.selection.Clear()
	m.pushAllLocked()
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "query state reset after external navigation")
	return true, m.target.FetchAll(ctx)
}

// Navigate handles a page load with query values v. The first call
// initializes the manager. Afterwards a query without state keys goes through
// OnExternalNavigation and a query describing a different state is adopted.
// It reports whether a fetch was issued.
func (m *Manager[ID]) Navigate(ctx context.Context, v url.Values) (bool, error) {
	m.mu.Lock()
	m.loc.SetQuery(v)
	initialized := m.initialized
	m.mu.Unlock()

	if !initialized {
		return true, m.Initialize(ctx)
	}
	if !HasStateKeys(v) {
		return m.OnExternalNavigation(ctx)
	}

	parsed := m.codec.Parse(v)
	m.mu.Lock()
	if parsed.Equal(m.state) {
		m.mu.Unlock()
		return false, nil
	}
	m.mu.Unlock()
	return true, m.Initialize(ctx)
}

// Select marks id as selected.
func (m *Manager[ID]) Select(id ID) {
	m.mu.Lock()
	m.selection.Select(id)
	m.mu.Unlock()
}

// Deselect marks id as not selected.
func (m *Manager[ID]) Deselect(id ID) {
	m.mu.Lock()
	m.selection.Deselect(id)
	m.mu.Unlock()
}

// Toggle flips the selection of id.
func (m *Manager[ID]) Toggle(id ID) {
	m.mu.Lock()
	m.selection.Toggle(id)
	m.mu.Unlock()
}

// SelectAll selects every row of the remote result set.
func (m *Manager[ID]) SelectAll() {
	m.mu.Lock()
	m.selection.SelectAll()
	m.mu.Unlock()
}

// ClearSelection empties the selection.
func (m *Manager[ID]) ClearSelection() {
	m.mu.Lock()
	m.selection.Clear()
	m.mu.Unlock()
}

// Selection returns a copy of the current selection.
func (m *Manager[ID]) Selection() Selection[ID] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selection.Clone()
}

// SelectedIDs resolves the selection against the ids of the loaded page.
func (m *Manager[ID]) SelectedIDs(pageIDs []ID) []ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selection.Resolve(pageIDs)
}

// SelectedCount returns how many rows of the loaded page are selected, which
// is what a bulk delete would remove.
func (m *Manager[ID]) SelectedCount(pageIDs []ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.selection.Resolve(pageIDs))
}

func (m *Manager[ID]) pushAllLocked() {
	m.target.SetParams(
		crud.Page(m.state.Page+1),
		crud.PerPage(m.state.PageSize),
		crud.Filter(m.state.Filter.Wire()),
		crud.Sort(m.state.Sort.Wire()),
	)
}

func (m *Manager[ID]) writeLocationLocked(fn func(url.Values)) {
	q := m.loc.Query()
	fn(q)
	m.loc.SetQuery(q)
}
