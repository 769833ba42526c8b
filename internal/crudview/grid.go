// Package crudview renders a crud.Store as a server-side data grid with
// query state kept in the page URL, row selection, confirmed deletes and
// create/edit forms. Full pages are rendered for normal requests and the grid
// partial for htmx interactions.
package crudview

import (
	"cmp"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudboard/internal/crud"
	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/middleware"
	"github.com/simp-lee/crudboard/internal/pkg"
	"github.com/simp-lee/crudboard/internal/querystate"
)

// UserKey is the gin context key holding the signed-in profile shown by the
// layout.
const UserKey = "CurrentUser"

// DefaultLoginPath is where an expired session is sent.
const DefaultLoginPath = "/login"

// reloadedWindow bounds how long after a redirect the following page load may
// reuse the data the redirecting handler just fetched.
const reloadedWindow = 10 * time.Second

// Column describes one grid column.
type Column[T any] struct {
	// Field is the API field name used for sorting and filtering.
	Field      string
	Label      string
	Sortable   bool
	Filterable bool
	Value      func(T) string
}

// Config configures a Grid.
type Config[T crud.Resource[ID], ID comparable] struct {
	// Path is the console path of the grid, e.g. "/users".
	Path string
	// Title is the plural heading; Singular names one row in messages.
	Title    string
	Singular string
	Columns  []Column[T]
	Store    *crud.Store[T, ID]
	ParseID  func(string) (ID, error)
	// Form enables the create and edit pages. Nil makes the grid read-only
	// apart from deletes.
	Form *Form[T, ID]

	Settings
}

// Settings are shared by every grid of the console.
type Settings struct {
	DefaultPageSize int
	PageSizes       []int
	// Timeout and RefetchAfterDelete configure the stores built by NewStore.
	Timeout            time.Duration
	RefetchAfterDelete *bool
	LoginPath          string
	Logger             *slog.Logger
}

// NewStore creates the store of one API collection with the shared settings.
func NewStore[T crud.Resource[ID], ID comparable](client crud.Client, endpoint string, s Settings) *crud.Store[T, ID] {
	return crud.New[T, ID](client, crud.Options[T]{
		Endpoint:           endpoint,
		RefetchAfterDelete: s.RefetchAfterDelete,
		Timeout:            s.Timeout,
		Logger:             s.Logger,
	})
}

// Grid serves one resource. Its query state and selection are process-wide,
// matching a console with a single operator.
type Grid[T crud.Resource[ID], ID comparable] struct {
	path      string
	title     string
	singular  string
	columns   []Column[T]
	store     *crud.Store[T, ID]
	parseID   func(string) (ID, error)
	form      *Form[T, ID]
	query     *querystate.Manager[ID]
	loc       *querystate.MemoryLocation
	pageSizes []int
	loginPath string
	logger    *slog.Logger

	mu         sync.Mutex
	reloaded   string
	reloadedAt time.Time
}

// New creates a grid for cfg.Store.
func New[T crud.Resource[ID], ID comparable](cfg Config[T, ID]) *Grid[T, ID] {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := cmp.Or(cfg.DefaultPageSize, crud.DefaultPerPage)
	pageSizes := cfg.PageSizes
	if len(pageSizes) == 0 {
		pageSizes = []int{pageSize}
	}

	loc := querystate.NewLocation(cfg.Path)
	return &Grid[T, ID]{
		path:      cfg.Path,
		title:     cfg.Title,
		singular:  cmp.Or(cfg.Singular, cfg.Title),
		columns:   cfg.Columns,
		store:     cfg.Store,
		parseID:   cfg.ParseID,
		form:      cfg.Form,
		loc:       loc,
		pageSizes: pageSizes,
		loginPath: cmp.Or(cfg.LoginPath, DefaultLoginPath),
		logger:    logger.With(slog.String("grid", cfg.Path)),
		query: querystate.NewManager[ID](cfg.Store, loc, querystate.Options{
			DefaultPageSize: pageSize,
			PageSizes:       pageSizes,
			Logger:          logger,
		}),
	}
}

// Query exposes the query state manager.
func (g *Grid[T, ID]) Query() *querystate.Manager[ID] {
	return g.query
}

// URL returns the grid location including its query string.
func (g *Grid[T, ID]) URL() string {
	return g.loc.URL()
}

// RegisterRoutes mounts the grid on r. Static segments are registered before
// the :id routes.
func (g *Grid[T, ID]) RegisterRoutes(r *gin.RouterGroup) {
	p := g.path
	r.GET(p, g.List)
	r.POST(p+"/page", g.Page)
	r.POST(p+"/filter", g.Filter)
	r.POST(p+"/sort", g.Sort)
	r.POST(p+"/refresh", g.Refresh)
	r.POST(p+"/select", g.Toggle)
	r.POST(p+"/select-all", g.SelectAll)
	r.POST(p+"/select-clear", g.ClearSelection)
	r.GET(p+"/bulk-delete", g.ConfirmBulkDelete)
	r.POST(p+"/bulk-delete", g.BulkDelete)
	r.DELETE(p+"/bulk-delete", g.BulkDelete)
	if g.form != nil {
		r.GET(p+"/new", g.NewPage)
		r.POST(p, g.Create)
		r.GET(p+"/:id/edit", g.EditPage)
		r.POST(p+"/:id", g.Update)
		r.PUT(p+"/:id", g.Update)
	}
	r.GET(p+"/:id/delete", g.ConfirmDelete)
	r.POST(p+"/:id/delete", g.Delete)
	r.DELETE(p+"/:id", g.Delete)
}

// List renders the grid for the query in the URL. Every page load fetches
// once, except the load that follows a redirect from a handler that has just
// reloaded the grid. Loading the bare path after the state has changed resets
// the grid to its defaults.
// GET /{path}
func (g *Grid[T, ID]) List(c *gin.Context) {
	ctx := c.Request.Context()
	reloaded := g.takeReloaded(c.Request.URL.RequestURI())
	fetched, err := g.query.Navigate(ctx, c.Request.URL.Query())
	if err == nil && !fetched && !reloaded {
		err = g.store.FetchAll(ctx)
	}
	if g.expired(c, err) {
		return
	}
	g.render(c, false)
}

// Page changes the page and page size.
// POST /{path}/page
func (g *Grid[T, ID]) Page(c *gin.Context) {
	state := g.query.State()
	page := formInt(c, "page", state.Page)
	size := formInt(c, "pageSize", state.PageSize)
	if size != state.PageSize {
		page = 0
	}
	err := g.query.SetPage(c.Request.Context(), max(page, 0), size)
	if g.expired(c, err) {
		return
	}
	g.render(c, true)
}

// Filter applies a single-field filter. An empty value or an unknown field
// clears the filter.
// POST /{path}/filter
func (g *Grid[T, ID]) Filter(c *gin.Context) {
	item := querystate.FilterItem{
		Field:    c.PostForm("field"),
		Operator: querystate.MatchMode(c.PostForm("operator")),
		Value:    c.PostForm("value"),
	}
	if item.Operator == "" {
		item.Operator = querystate.Contains
	}

	var model querystate.FilterModel
	if item.Value != "" && item.Operator.Valid() && g.filterable(item.Field) {
		model.Items = []querystate.FilterItem{item}
	}
	err := g.query.SetFilter(c.Request.Context(), model)
	if g.expired(c, err) {
		return
	}
	g.render(c, true)
}

// Sort cycles the sort of one column through ascending, descending and off.
// POST /{path}/sort
func (g *Grid[T, ID]) Sort(c *gin.Context) {
	field := c.PostForm("field")
	if !g.sortable(field) {
		g.render(c, true)
		return
	}
	next := nextSort(g.query.State().Sort, field)
	err := g.query.SetSort(c.Request.Context(), next)
	if g.expired(c, err) {
		return
	}
	g.render(c, true)
}

// Refresh reloads the current page.
// POST /{path}/refresh
func (g *Grid[T, ID]) Refresh(c *gin.Context) {
	err := g.store.FetchAll(c.Request.Context())
	if g.expired(c, err) {
		return
	}
	g.render(c, true)
}

// Toggle flips the selection of the row in the "id" form field.
// POST /{path}/select
func (g *Grid[T, ID]) Toggle(c *gin.Context) {
	id, err := g.parseID(c.PostForm("id"))
	if err != nil {
		g.toastOnly(c, "Unknown "+g.singular+".", pkg.ToastError)
		return
	}
	g.query.Toggle(id)
	g.render(c, true)
}

// SelectAll selects every row of the filtered result set.
// POST /{path}/select-all
func (g *Grid[T, ID]) SelectAll(c *gin.Context) {
	g.query.SelectAll()
	g.render(c, true)
}

// ClearSelection empties the selection.
// POST /{path}/select-clear
func (g *Grid[T, ID]) ClearSelection(c *gin.Context) {
	g.query.ClearSelection()
	g.render(c, true)
}

// render writes the full list page, or the grid partial for htmx requests.
// Query interactions also push the new location into the browser history.
func (g *Grid[T, ID]) render(c *gin.Context, push bool) {
	if pkg.IsHTMX(c) {
		if push {
			c.Header("HX-Push-Url", g.loc.URL())
		}
		c.HTML(http.StatusOK, "crud/grid.html", PageData(c, gin.H{"Grid": g.view()}))
		return
	}
	if push {
		g.backToGrid(c)
		return
	}
	c.HTML(http.StatusOK, "crud/list.html", PageData(c, gin.H{
		"Title": g.title,
		"Grid":  g.view(),
	}))
}

// backToGrid redirects to the grid location and lets the page load that
// follows show the store as it is.
func (g *Grid[T, ID]) backToGrid(c *gin.Context) {
	target := g.loc.URL()
	g.mu.Lock()
	g.reloaded = target
	g.reloadedAt = time.Now()
	g.mu.Unlock()
	pkg.Redirect(c, target)
}

// takeReloaded reports whether uri is the target of a recent backToGrid, and
// forgets that redirect either way.
func (g *Grid[T, ID]) takeReloaded(uri string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ok := g.reloaded != "" && g.reloaded == uri && time.Since(g.reloadedAt) < reloadedWindow
	g.reloaded = ""
	return ok
}

// expired handles a rejected session: the unauthorized hook has already
// logged out, so the operator is sent to the login page. It reports whether
// the request was handled.
func (g *Grid[T, ID]) expired(c *gin.Context, err error) bool {
	if !domain.IsUnauthorized(err) {
		return false
	}
	pkg.Toast(c, "Your session has expired. Please log in again.", pkg.ToastError)
	pkg.Redirect(c, g.loginPath)
	return true
}

func (g *Grid[T, ID]) toastOnly(c *gin.Context, message, kind string) {
	if pkg.IsHTMX(c) {
		c.Header("HX-Reswap", "none")
		pkg.Toast(c, message, kind)
		c.Status(http.StatusOK)
		return
	}
	c.Redirect(http.StatusSeeOther, g.loc.URL())
}

func (g *Grid[T, ID]) filterable(field string) bool {
	for _, col := range g.columns {
		if col.Field == field && col.Filterable {
			return true
		}
	}
	return false
}

func (g *Grid[T, ID]) sortable(field string) bool {
	for _, col := range g.columns {
		if col.Field == field && col.Sortable {
			return true
		}
	}
	return false
}

func (g *Grid[T, ID]) pageIDs() []ID {
	items := g.store.Snapshot().Items
	ids := make([]ID, len(items))
	for i, item := range items {
		ids[i] = item.GetID()
	}
	return ids
}

// nextSort returns the single-column sort after clicking field.
func nextSort(current querystate.SortModel, field string) querystate.SortModel {
	if len(current) == 0 || current[0].Field != field {
		return querystate.SortModel{{Field: field, Sort: querystate.Asc}}
	}
	if current[0].Sort == querystate.Asc {
		return querystate.SortModel{{Field: field, Sort: querystate.Desc}}
	}
	return nil
}

func formInt(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.PostForm(key))
	if err != nil {
		return fallback
	}
	return n
}

// PageData adds the values every layout needs to data.
func PageData(c *gin.Context, data gin.H) gin.H {
	if data == nil {
		data = gin.H{}
	}
	data["CSRFToken"] = middleware.GetCSRFToken(c)
	if user, ok := c.Get(UserKey); ok {
		data["CurrentUser"] = user
	}
	return data
}

func formatID[ID comparable](id ID) string {
	return fmt.Sprint(id)
}
