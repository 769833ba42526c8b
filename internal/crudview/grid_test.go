package crudview

import (
	"context"
	"encoding/json"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"

	"github.com/simp-lee/crudboard/internal/apiclient"
	"github.com/simp-lee/crudboard/internal/crud"
	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/querystate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type thing struct {
	ID   int      `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func (t thing) GetID() int { return t.ID }

type thingInput struct {
	Name string   `json:"name" form:"name" binding:"required"`
	Tags []string `json:"tags" form:"tags"`
}

type apiCall struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// fakeAPI is an in-memory "things" collection.
type fakeAPI struct {
	mu     sync.Mutex
	items  []thing
	nextID int
	calls  []apiCall
	fail   error
	// total overrides meta.total when set.
	total int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		items: []thing{
			{ID: 1, Name: "alpha"},
			{ID: 2, Name: "beta", Tags: []string{"a"}},
			{ID: 3, Name: "gamma"},
		},
		nextID: 4,
	}
}

func (f *fakeAPI) Get(ctx context.Context, path string, query url.Values) (*apiclient.Envelope, error) {
	return f.Send(ctx, http.MethodGet, path, query, nil)
}

func (f *fakeAPI) Send(_ context.Context, method, path string, query url.Values, body any) (*apiclient.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, apiCall{Method: method, Path: path, Query: query, Body: body})
	if f.fail != nil {
		return nil, f.fail
	}

	rest, hasID := strings.CutPrefix(path, "things/")
	switch {
	case method == http.MethodGet && path == "things":
		total := int64(len(f.items))
		if f.total > 0 {
			total = f.total
		}
		return envelope(f.items, &domain.PageMeta{Total: total, PerPage: 5, CurrentPage: 1, LastPage: 2})
	case method == http.MethodPost && path == "things":
		in := body.(thingInput)
		if in.Name == "taken" {
			return nil, domain.NewValidationError("The given data was invalid.", map[string][]string{
				"name": {"The name has already been taken."},
			})
		}
		t := thing{ID: f.nextID, Name: in.Name, Tags: in.Tags}
		f.nextID++
		f.items = append(f.items, t)
		return envelope(t, nil)
	case method == http.MethodDelete && rest == "batch-delete":
		for _, raw := range strings.Split(query.Get("ids"), ",") {
			id, _ := strconv.Atoi(raw)
			f.remove(id)
		}
		return &apiclient.Envelope{}, nil
	case hasID:
		id, _ := strconv.Atoi(rest)
		i := slices.IndexFunc(f.items, func(t thing) bool { return t.ID == id })
		if i < 0 {
			return nil, domain.NewAppError(domain.CodeNotFound, "Thing not found", nil)
		}
		switch method {
		case http.MethodGet:
			return envelope(f.items[i], nil)
		case http.MethodPut:
			in := body.(thingInput)
			f.items[i].Name, f.items[i].Tags = in.Name, in.Tags
			return envelope(f.items[i], nil)
		case http.MethodDelete:
			f.remove(id)
			return &apiclient.Envelope{}, nil
		}
	}
	return nil, domain.NewAppError(domain.CodeNotFound, "Not Found", nil)
}

func (f *fakeAPI) remove(id int) {
	f.items = slices.DeleteFunc(f.items, func(t thing) bool { return t.ID == id })
}

func (f *fakeAPI) add(t thing) {
	f.mu.Lock()
	f.items = append(f.items, t)
	f.mu.Unlock()
}

func (f *fakeAPI) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *fakeAPI) callsTo(method, path string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// lastList returns the query of the latest list request.
func (f *fakeAPI) lastList(t *testing.T) url.Values {
	t.Helper()
	lists := f.callsTo(http.MethodGet, "things")
	if len(lists) == 0 {
		t.Fatal("no list request issued")
	}
	return lists[len(lists)-1].Query
}

func envelope(data any, meta *domain.PageMeta) (*apiclient.Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &apiclient.Envelope{Data: raw, Meta: meta}, nil
}

const testTemplates = `
{{define "grid"}}rows:{{range .Rows}} {{.ID}}{{if .Selected}}*{{end}}={{index .Cells 0}}{{end}};selected:{{.Selected}};page:{{.Page}};error:{{.Error}}{{end}}
{{define "crud/list.html"}}LIST {{template "grid" .Grid}}{{end}}
{{define "crud/grid.html"}}{{template "grid" .Grid}}{{end}}
{{define "crud/confirm.html"}}CONFIRM {{.Message}} -> {{.Action}}{{end}}
{{define "crud/form.html"}}FORM {{.Form.Title}} action:{{.Form.Action}} error:{{.Form.Error}}{{range .Form.Fields}} {{.Name}}={{.Value}}{{range .Errors}}!{{.}}{{end}}{{range .Options}}[{{.Value}}{{if .Checked}}x{{end}}]{{end}}{{end}}{{end}}
{{define "errors/404.html"}}NOT FOUND{{end}}
{{define "errors/500.html"}}SERVER ERROR {{.Message}}{{end}}
`

type harness struct {
	t      *testing.T
	api    *fakeAPI
	engine *gin.Engine
	saved  []thing
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, api: newFakeAPI()}

	store := crud.New[thing, int](h.api, crud.Options[thing]{Endpoint: "things", Logger: discardLogger()})
	grid := New(Config[thing, int]{
		Path:     "/things",
		Title:    "Things",
		Singular: "Thing",
		Columns: []Column[thing]{
			{Field: "name", Label: "Name", Sortable: true, Filterable: true, Value: func(t thing) string { return t.Name }},
			{Field: "id", Label: "ID", Sortable: true},
		},
		Store:   store,
		ParseID: strconv.Atoi,
		Settings: Settings{
			DefaultPageSize: 5,
			PageSizes:       []int{5, 10},
			Logger:          discardLogger(),
		},
		Form: &Form[thing, int]{
			Fields: []Field{
				{Name: "name", Label: "Name", Type: "text", Required: true},
				{Name: "tags", Label: "Tags", Type: "checkboxes", Options: func(extra any) []Option {
					var opts []Option
					for _, tag := range extra.([]string) {
						opts = append(opts, Option{Value: tag, Label: strings.ToUpper(tag)})
					}
					return opts
				}},
			},
			Values: func(t thing) map[string][]string {
				return map[string][]string{"name": {t.Name}, "tags": t.Tags}
			},
			Bind: func(c *gin.Context, _ bool) (any, map[string][]string) {
				return BindForm[thingInput](c)
			},
			Extra: func(context.Context) (any, error) {
				return []string{"a", "b"}, nil
			},
			AfterSave: func(_ context.Context, _ *gin.Context, item thing) error {
				h.saved = append(h.saved, item)
				return nil
			},
		},
	})

	h.engine = gin.New()
	h.engine.SetHTMLTemplate(template.Must(template.New("").Parse(testTemplates)))
	grid.RegisterRoutes(&h.engine.RouterGroup)
	return h
}

func (h *harness) do(method, target string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	h.t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

// toast returns the message of the showToast trigger, if any.
func toast(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	raw := w.Header().Get("HX-Trigger")
	if raw == "" {
		return ""
	}
	var trigger struct {
		ShowToast struct {
			Message string `json:"message"`
		} `json:"showToast"`
	}
	if err := json.Unmarshal([]byte(raw), &trigger); err != nil {
		t.Fatalf("HX-Trigger %q: %v", raw, err)
	}
	return trigger.ShowToast.Message
}

func TestList_InitialLoad(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/things", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got, want := w.Body.String(), "LIST rows: 1=alpha 2=beta 3=gamma;selected:0;page:0;error:"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	want := url.Values{"page": {"1"}, "per_page": {"5"}}
	if diff := cmp.Diff(want, h.api.lastList(t)); diff != "" {
		t.Errorf("list query mismatch (-want +got):\n%s", diff)
	}

	// Reloading the same location fetches again.
	h.api.add(thing{ID: 4, Name: "delta"})
	w = h.do(http.MethodGet, "/things", nil, false)
	if n := len(h.api.callsTo(http.MethodGet, "things")); n != 2 {
		t.Errorf("list requests = %d, want 2", n)
	}
	if !strings.Contains(w.Body.String(), "4=delta") {
		t.Errorf("reloaded body = %q, want the new row", w.Body.String())
	}
}

func TestList_ReloadClearsLoadError(t *testing.T) {
	h := newHarness(t)
	h.api.setFail(domain.NewAppError(domain.CodeTransport, "connection refused", nil))

	w := h.do(http.MethodGet, "/things", nil, false)
	if got := w.Body.String(); got != "LIST rows:;selected:0;page:0;error:connection refused" {
		t.Fatalf("body = %q", got)
	}

	h.api.setFail(nil)
	w = h.do(http.MethodGet, "/things", nil, false)
	if got, want := w.Body.String(), "LIST rows: 1=alpha 2=beta 3=gamma;selected:0;page:0;error:"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestList_FollowingOwnRedirectFetchesOnce(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)

	w := h.do(http.MethodPost, "/things/sort", url.Values{"field": {"name"}}, false)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	h.do(http.MethodGet, w.Header().Get("Location"), nil, false)
	if n := len(h.api.callsTo(http.MethodGet, "things")); n != 2 {
		t.Errorf("list requests = %d, want 2", n)
	}

	// A later reload of the same location is a fresh page load.
	h.do(http.MethodGet, w.Header().Get("Location"), nil, false)
	if n := len(h.api.callsTo(http.MethodGet, "things")); n != 3 {
		t.Errorf("list requests = %d, want 3", n)
	}
}

func TestList_AdoptsQueryFromURL(t *testing.T) {
	h := newHarness(t)

	q := url.Values{
		"page":     {"1"},
		"pageSize": {"10"},
		"sort":     {`[{"field":"name","sort":"desc"}]`},
	}
	h.do(http.MethodGet, "/things?"+q.Encode(), nil, false)
	want := url.Values{"page": {"2"}, "per_page": {"10"}, "sort": {"-name"}}
	if diff := cmp.Diff(want, h.api.lastList(t)); diff != "" {
		t.Errorf("list query mismatch (-want +got):\n%s", diff)
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantFilter url.Values
	}{
		{
			name:       "starts with",
			form:       url.Values{"field": {"name"}, "operator": {"startsWith"}, "value": {"al"}},
			wantFilter: url.Values{"filter[name_starts]": {"al"}},
		},
		{
			name:       "operator defaults to contains",
			form:       url.Values{"field": {"name"}, "value": {"et"}},
			wantFilter: url.Values{"filter[name]": {"et"}},
		},
		{
			name:       "unknown field clears",
			form:       url.Values{"field": {"password"}, "value": {"x"}},
			wantFilter: url.Values{},
		},
		{
			name:       "empty value clears",
			form:       url.Values{"field": {"name"}, "operator": {"equals"}},
			wantFilter: url.Values{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.do(http.MethodGet, "/things", nil, false)

			w := h.do(http.MethodPost, "/things/filter", tt.form, true)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}

			got := url.Values{}
			for k, v := range h.api.lastList(t) {
				if strings.HasPrefix(k, "filter[") {
					got[k] = v
				}
			}
			if diff := cmp.Diff(tt.wantFilter, got); diff != "" {
				t.Errorf("filter mismatch (-want +got):\n%s", diff)
			}

			pushed, err := url.Parse(w.Header().Get("HX-Push-Url"))
			if err != nil || pushed.Path != "/things" {
				t.Fatalf("HX-Push-Url = %q", w.Header().Get("HX-Push-Url"))
			}
			if hasFilter := pushed.Query().Has("filter"); hasFilter != (len(tt.wantFilter) > 0) {
				t.Errorf("pushed URL %q: filter present = %v", pushed, hasFilter)
			}
		})
	}
}

func TestSort_CyclesThroughDirections(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)

	for _, want := range []string{"name", "-name", ""} {
		h.do(http.MethodPost, "/things/sort", url.Values{"field": {"name"}}, true)
		if got := h.api.lastList(t).Get("sort"); got != want {
			t.Errorf("sort = %q, want %q", got, want)
		}
	}
}

func TestSort_UnsortableColumnIgnored(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)

	h.do(http.MethodPost, "/things/sort", url.Values{"field": {"tags"}}, true)
	if n := len(h.api.callsTo(http.MethodGet, "things")); n != 1 {
		t.Errorf("list requests = %d, want 1", n)
	}
}

func TestNextSort(t *testing.T) {
	tests := []struct {
		name    string
		current querystate.SortModel
		field   string
		want    querystate.SortModel
	}{
		{"none to asc", nil, "name", querystate.SortModel{{Field: "name", Sort: querystate.Asc}}},
		{"asc to desc", querystate.SortModel{{Field: "name", Sort: querystate.Asc}}, "name", querystate.SortModel{{Field: "name", Sort: querystate.Desc}}},
		{"desc to none", querystate.SortModel{{Field: "name", Sort: querystate.Desc}}, "name", nil},
		{"other column starts asc", querystate.SortModel{{Field: "id", Sort: querystate.Desc}}, "name", querystate.SortModel{{Field: "name", Sort: querystate.Asc}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, nextSort(tt.current, tt.field)); diff != "" {
				t.Errorf("nextSort mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPage_SizeChangeReturnsToFirstPage(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)

	h.do(http.MethodPost, "/things/page", url.Values{"page": {"2"}, "pageSize": {"5"}}, true)
	if got := h.api.lastList(t).Get("page"); got != "3" {
		t.Errorf("page = %q, want 3", got)
	}

	h.do(http.MethodPost, "/things/page", url.Values{"page": {"2"}, "pageSize": {"10"}}, true)
	q := h.api.lastList(t)
	if q.Get("page") != "1" || q.Get("per_page") != "10" {
		t.Errorf("query = %v, want page 1 of 10", q)
	}
}

func TestPage_NonHTMXRedirectsToLocation(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)

	w := h.do(http.MethodPost, "/things/page", url.Values{"page": {"1"}}, false)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	loc, _ := url.Parse(w.Header().Get("Location"))
	if loc.Query().Get("page") != "1" {
		t.Errorf("Location = %q", loc)
	}
}

func TestExternalNavigation_ResetsState(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)
	h.do(http.MethodPost, "/things/filter", url.Values{"field": {"name"}, "value": {"al"}}, true)

	w := h.do(http.MethodGet, "/things", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if q := h.api.lastList(t); q.Has("filter[name]") {
		t.Errorf("filter kept after navigating to the bare path: %v", q)
	}
	if n := len(h.api.callsTo(http.MethodGet, "things")); n != 3 {
		t.Errorf("list requests = %d, want 3", n)
	}
}

func TestSelectionAndBulkDelete(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)

	h.do(http.MethodPost, "/things/select", url.Values{"id": {"1"}}, true)
	w := h.do(http.MethodPost, "/things/select", url.Values{"id": {"3"}}, true)
	if !strings.Contains(w.Body.String(), "1*=alpha") || !strings.Contains(w.Body.String(), "selected:2") {
		t.Fatalf("grid = %q", w.Body.String())
	}

	w = h.do(http.MethodGet, "/things/bulk-delete", nil, false)
	if got := w.Body.String(); got != "CONFIRM Delete 2 selected Things? This cannot be undone. -> /things/bulk-delete" {
		t.Errorf("confirm = %q", got)
	}

	w = h.do(http.MethodPost, "/things/bulk-delete", url.Values{}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	deletes := h.api.callsTo(http.MethodDelete, "things/batch-delete")
	if len(deletes) != 1 || deletes[0].Query.Get("ids") != "1,3" {
		t.Fatalf("batch deletes = %+v", deletes)
	}
	if got := toast(t, w); got != "2 Things deleted." {
		t.Errorf("toast = %q", got)
	}
	if got := w.Body.String(); got != "rows: 2=beta;selected:0;page:0;error:" {
		t.Errorf("grid = %q", got)
	}
}

func TestBulkDelete_SelectAllUsesLoadedPage(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)

	h.do(http.MethodPost, "/things/select-all", url.Values{}, true)
	h.do(http.MethodPost, "/things/select", url.Values{"id": {"2"}}, true)
	h.do(http.MethodPost, "/things/bulk-delete", url.Values{}, true)

	deletes := h.api.callsTo(http.MethodDelete, "things/batch-delete")
	if len(deletes) != 1 || deletes[0].Query.Get("ids") != "1,3" {
		t.Fatalf("batch deletes = %+v", deletes)
	}
}

func TestSelectAll_CountMatchesBulkDelete(t *testing.T) {
	h := newHarness(t)
	h.api.total = 23
	h.do(http.MethodGet, "/things", nil, false)

	w := h.do(http.MethodPost, "/things/select-all", url.Values{}, true)
	if got := w.Body.String(); got != "rows: 1*=alpha 2*=beta 3*=gamma;selected:3;page:0;error:" {
		t.Errorf("grid = %q", got)
	}
	w = h.do(http.MethodPost, "/things/select", url.Values{"id": {"2"}}, true)
	if !strings.Contains(w.Body.String(), "selected:2;") {
		t.Errorf("grid = %q", w.Body.String())
	}

	w = h.do(http.MethodGet, "/things/bulk-delete", nil, false)
	if !strings.HasPrefix(w.Body.String(), "CONFIRM Delete 2 selected Things?") {
		t.Errorf("confirm = %q", w.Body.String())
	}
	h.do(http.MethodPost, "/things/bulk-delete", url.Values{}, true)
	deletes := h.api.callsTo(http.MethodDelete, "things/batch-delete")
	if len(deletes) != 1 || deletes[0].Query.Get("ids") != "1,3" {
		t.Fatalf("batch deletes = %+v", deletes)
	}
}

func TestBulkDelete_NothingSelected(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)

	w := h.do(http.MethodPost, "/things/bulk-delete", url.Values{}, true)
	if got := toast(t, w); got != "Select at least one row." {
		t.Errorf("toast = %q", got)
	}
	if n := len(h.api.callsTo(http.MethodDelete, "things/batch-delete")); n != 0 {
		t.Errorf("batch deletes = %d, want 0", n)
	}

	w = h.do(http.MethodGet, "/things/bulk-delete", nil, true)
	if w.Header().Get("HX-Redirect") != "/things" {
		t.Errorf("HX-Redirect = %q", w.Header().Get("HX-Redirect"))
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		wantToast string
		wantRows  string
	}{
		{"existing", "2", "Thing deleted.", "rows: 1=alpha 3=gamma"},
		{"missing", "9", "Thing not found", "rows: 1=alpha 2=beta 3=gamma"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.do(http.MethodGet, "/things", nil, false)

			w := h.do(http.MethodGet, "/things/"+tt.id+"/delete", nil, false)
			if !strings.HasPrefix(w.Body.String(), "CONFIRM Delete Thing "+tt.id+"?") {
				t.Errorf("confirm = %q", w.Body.String())
			}

			w = h.do(http.MethodDelete, "/things/"+tt.id, nil, true)
			if got := toast(t, w); got != tt.wantToast {
				t.Errorf("toast = %q, want %q", got, tt.wantToast)
			}
			if w.Header().Get("HX-Retarget") != "#grid" {
				t.Errorf("HX-Retarget = %q", w.Header().Get("HX-Retarget"))
			}
			if !strings.HasPrefix(w.Body.String(), tt.wantRows+";") {
				t.Errorf("grid = %q, want rows %q", w.Body.String(), tt.wantRows)
			}
		})
	}
}

func TestDelete_NonHTMXRedirects(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)

	w := h.do(http.MethodPost, "/things/1/delete", url.Values{}, false)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/things" {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestCreate(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)

	w := h.do(http.MethodPost, "/things", url.Values{"name": {"delta"}, "tags": {"a", "b"}}, true)
	if w.Header().Get("HX-Redirect") != "/things" {
		t.Fatalf("HX-Redirect = %q, body %q", w.Header().Get("HX-Redirect"), w.Body.String())
	}
	if got := toast(t, w); got != "Thing created." {
		t.Errorf("toast = %q", got)
	}

	posts := h.api.callsTo(http.MethodPost, "things")
	if len(posts) != 1 {
		t.Fatalf("create requests = %d", len(posts))
	}
	if diff := cmp.Diff(thingInput{Name: "delta", Tags: []string{"a", "b"}}, posts[0].Body); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	if len(h.saved) != 1 || h.saved[0].ID != 4 {
		t.Errorf("AfterSave got %+v", h.saved)
	}
	if n := len(h.api.callsTo(http.MethodGet, "things")); n != 2 {
		t.Errorf("list requests = %d, want a reload after create", n)
	}
}

func TestCreate_Rejected(t *testing.T) {
	tests := []struct {
		name      string
		form      url.Values
		wantBody  string
		wantPosts int
	}{
		{
			name:      "bind error",
			form:      url.Values{"tags": {"b"}},
			wantBody:  "FORM New Thing action:/things error: name=!The name field is required. tags=[a][bx]",
			wantPosts: 0,
		},
		{
			name:      "server validation",
			form:      url.Values{"name": {"taken"}},
			wantBody:  "FORM New Thing action:/things error: name=taken!The name has already been taken. tags=[a][b]",
			wantPosts: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			w := h.do(http.MethodPost, "/things", tt.form, false)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want 422", w.Code)
			}
			if got := w.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q\nwant   %q", got, tt.wantBody)
			}
			if n := len(h.api.callsTo(http.MethodPost, "things")); n != tt.wantPosts {
				t.Errorf("create requests = %d, want %d", n, tt.wantPosts)
			}
		})
	}
}

func TestCreate_HTMXRejectionKeeps200(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/things", url.Values{}, true)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestEditPage(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/things/2/edit", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got, want := w.Body.String(), "FORM Edit Thing action:/things/2 error: name=beta tags=[ax][b]"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}

	for _, id := range []string{"9", "nope"} {
		w = h.do(http.MethodGet, "/things/"+id+"/edit", nil, false)
		if w.Code != http.StatusNotFound || w.Body.String() != "NOT FOUND" {
			t.Errorf("edit %s: status = %d, body %q", id, w.Code, w.Body.String())
		}
	}
}

func TestUpdate(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/things/1", url.Values{"name": {"omega"}}, false)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, body %q", w.Code, w.Body.String())
	}
	puts := h.api.callsTo(http.MethodPut, "things/1")
	if len(puts) != 1 {
		t.Fatalf("update requests = %d", len(puts))
	}
	if len(h.saved) != 1 || h.saved[0].Name != "omega" {
		t.Errorf("AfterSave got %+v", h.saved)
	}

	w = h.do(http.MethodPost, "/things/9", url.Values{"name": {"omega"}}, false)
	if !strings.Contains(w.Body.String(), "error:Thing not found") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestUnauthorized_SendsToLogin(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)
	h.api.setFail(domain.NewAppError(domain.CodeUnauthorized, "Unauthenticated.", nil))

	w := h.do(http.MethodPost, "/things/refresh", url.Values{}, true)
	if w.Header().Get("HX-Redirect") != DefaultLoginPath {
		t.Errorf("HX-Redirect = %q", w.Header().Get("HX-Redirect"))
	}

	w = h.do(http.MethodGet, "/things/1/edit", nil, false)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != DefaultLoginPath {
		t.Errorf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestRefresh_ShowsLoadError(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/things", nil, false)
	h.api.setFail(domain.NewAppError(domain.CodeTransport, "connection refused", nil))

	w := h.do(http.MethodPost, "/things/refresh", url.Values{}, true)
	if got := w.Body.String(); got != "rows: 1=alpha 2=beta 3=gamma;selected:0;page:0;error:connection refused" {
		t.Errorf("grid = %q", got)
	}
}
