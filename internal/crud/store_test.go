package crud

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/simp-lee/crudboard/internal/apiclient"
	"github.com/simp-lee/crudboard/internal/domain"
)

type widget struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (w widget) GetID() int { return w.ID }

type call struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

type fakeClient struct {
	mu     sync.Mutex
	calls  []call
	handle func(ctx context.Context, c call) (*apiclient.Envelope, error)
}

func (f *fakeClient) Get(ctx context.Context, path string, query url.Values) (*apiclient.Envelope, error) {
	return f.Send(ctx, http.MethodGet, path, query, nil)
}

func (f *fakeClient) Send(ctx context.Context, method, path string, query url.Values, body any) (*apiclient.Envelope, error) {
	c := call{Method: method, Path: path, Query: query, Body: body}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	handle := f.handle
	f.mu.Unlock()
	if handle == nil {
		return &apiclient.Envelope{}, nil
	}
	return handle(ctx, c)
}

func (f *fakeClient) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func listEnvelope(t *testing.T, total int64, items ...widget) *apiclient.Envelope {
	t.Helper()
	if items == nil {
		items = []widget{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	next := "next"
	return &apiclient.Envelope{
		Data:  data,
		Meta:  &domain.PageMeta{Total: total, PerPage: 10, CurrentPage: 1, LastPage: int((total + 9) / 10)},
		Links: &domain.PageLinks{Next: &next},
	}
}

func itemEnvelope(t *testing.T, w widget) *apiclient.Envelope {
	t.Helper()
	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &apiclient.Envelope{Data: data}
}

func newTestStore(fc *fakeClient, refetch bool) *Store[widget, int] {
	return New[widget, int](fc, Options[widget]{Endpoint: "/widgets/", RefetchAfterDelete: &refetch})
}

func TestParams_Values(t *testing.T) {
	p := Params{
		Page:    2,
		PerPage: 25,
		Filter:  map[string]string{"name_starts": "Al", "email_ends": ".org", "role": "admin", "empty": ""},
		Sort:    "-created_at,name",
	}
	want := url.Values{
		"page":                {"2"},
		"per_page":            {"25"},
		"filter[name_starts]": {"Al"},
		"filter[email_ends]":  {".org"},
		"filter[role]":        {"admin"},
		"sort":                {"-created_at,name"},
	}
	if diff := cmp.Diff(want, p.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SetParamsMergesWithoutFetching(t *testing.T) {
	fc := &fakeClient{}
	s := newTestStore(fc, true)

	if got := s.Snapshot().Params; got.Page != 1 || got.PerPage != 10 {
		t.Fatalf("default params = %+v, want page 1 per_page 10", got)
	}

	s.SetParams(Page(3), Filter(map[string]string{"name": "x"}))
	s.SetParams(Sort("-name"))
	got := s.Snapshot().Params
	want := Params{Page: 3, PerPage: 10, Filter: map[string]string{"name": "x"}, Sort: "-name"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Params mismatch (-want +got):\n%s", diff)
	}

	s.SetParams(Filter(nil), Sort(""))
	if got := s.Snapshot().Params; got.Filter != nil || got.Sort != "" {
		t.Errorf("cleared params = %+v", got)
	}
	if n := len(fc.Calls()); n != 0 {
		t.Errorf("SetParams issued %d requests, want 0", n)
	}
}

func TestStore_FetchAllSuccess(t *testing.T) {
	fc := &fakeClient{}
	fc.handle = func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		return listEnvelope(t, 23, widget{ID: 1, Name: "a"}, widget{ID: 2, Name: "b"}), nil
	}
	s := newTestStore(fc, true)
	s.SetParams(Filter(map[string]string{"name_starts": "Al"}))

	if err := s.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}

	calls := fc.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].Path != "widgets" {
		t.Errorf("path = %q, want %q", calls[0].Path, "widgets")
	}
	if got := calls[0].Query.Get("filter[name_starts]"); got != "Al" {
		t.Errorf("filter[name_starts] = %q, want %q", got, "Al")
	}
	if got := calls[0].Query.Get("page"); got != "1" {
		t.Errorf("page = %q, want %q", got, "1")
	}

	st := s.Snapshot()
	if diff := cmp.Diff([]widget{{1, "a"}, {2, "b"}}, st.Items); diff != "" {
		t.Errorf("Items mismatch (-want +got):\n%s", diff)
	}
	if st.Meta.Total != 23 || st.Meta.LastPage != 3 {
		t.Errorf("Meta = %+v, want total 23 last page 3", st.Meta)
	}
	if st.Links.Next == nil || *st.Links.Next != "next" {
		t.Errorf("Links.Next = %v", st.Links.Next)
	}
	if st.Loading || st.Error != "" {
		t.Errorf("Loading=%v Error=%q after success", st.Loading, st.Error)
	}
}

func TestStore_FetchAllWithoutMeta(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		return &apiclient.Envelope{Data: []byte(`[{"id":1}]`)}, nil
	}}
	s := newTestStore(fc, true)
	s.SetParams(Page(2), PerPage(5))

	if err := s.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll() error: %v", err)
	}
	want := domain.PageMeta{Total: 1, PerPage: 5, CurrentPage: 2, LastPage: 1}
	if diff := cmp.Diff(want, s.Snapshot().Meta); diff != "" {
		t.Errorf("Meta mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_FetchAllKeepsStaleItemsOnFailure(t *testing.T) {
	fail := false
	fc := &fakeClient{}
	fc.handle = func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		if fail {
			return nil, domain.NewAppError(domain.CodeInternal, "boom", nil)
		}
		return listEnvelope(t, 3, widget{ID: 1}, widget{ID: 2}, widget{ID: 3}), nil
	}
	s := newTestStore(fc, true)

	if err := s.FetchAll(context.Background()); err != nil {
		t.Fatalf("first FetchAll() error: %v", err)
	}
	fail = true
	if err := s.FetchAll(context.Background()); err == nil {
		t.Fatal("second FetchAll() = nil, want error")
	}

	st := s.Snapshot()
	if len(st.Items) != 3 {
		t.Errorf("len(Items) = %d, want 3 stale items", len(st.Items))
	}
	if st.Error != "boom" {
		t.Errorf("Error = %q, want %q", st.Error, "boom")
	}
	if st.ValidationErrors != nil {
		t.Errorf("ValidationErrors = %v, want nil", st.ValidationErrors)
	}
	if st.Loading {
		t.Error("Loading should be false after failure")
	}
}

func TestStore_FetchAllMalformedList(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		return &apiclient.Envelope{Data: []byte(`{"id":1}`)}, nil
	}}
	s := newTestStore(fc, true)

	err := s.FetchAll(context.Background())
	if !errors.Is(err, apiclient.ErrMalformedResponse) {
		t.Fatalf("FetchAll() error = %v, want ErrMalformedResponse", err)
	}
	if s.Snapshot().Error == "" {
		t.Error("Error should be set for a malformed list")
	}
}

// blockingClient holds every request until release is closed, so tests can
// observe the store mid-flight.
func blockingClient(started chan<- struct{}, release <-chan struct{}, result func(c call) (*apiclient.Envelope, error)) *fakeClient {
	return &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		started <- struct{}{}
		<-release
		return result(c)
	}}
}

func TestStore_LoadingInvariant(t *testing.T) {
	ops := map[string]func(ctx context.Context, s *Store[widget, int]) error{
		"FetchAll": func(ctx context.Context, s *Store[widget, int]) error { return s.FetchAll(ctx) },
		"CreateOne": func(ctx context.Context, s *Store[widget, int]) error {
			_, err := s.CreateOne(ctx, map[string]string{"name": "x"})
			return err
		},
		"UpdateOne": func(ctx context.Context, s *Store[widget, int]) error {
			_, err := s.UpdateOne(ctx, 1, map[string]string{"name": "x"})
			return err
		},
		"DeleteOne":  func(ctx context.Context, s *Store[widget, int]) error { return s.DeleteOne(ctx, 1) },
		"DeleteMany": func(ctx context.Context, s *Store[widget, int]) error { return s.DeleteMany(ctx, []int{1, 2}) },
	}
	outcomes := map[string]func(c call) (*apiclient.Envelope, error){
		"success": func(c call) (*apiclient.Envelope, error) {
			if c.Method == http.MethodGet {
				return &apiclient.Envelope{Data: []byte(`[]`)}, nil
			}
			return &apiclient.Envelope{}, nil
		},
		"failure": func(c call) (*apiclient.Envelope, error) {
			return nil, domain.NewAppError(domain.CodeInternal, "boom", nil)
		},
	}

	for opName, op := range ops {
		for outcomeName, outcome := range outcomes {
			t.Run(opName+"/"+outcomeName, func(t *testing.T) {
				started := make(chan struct{}, 4)
				release := make(chan struct{})
				fc := blockingClient(started, release, outcome)
				// Optimistic removal keeps deletes to a single request.
				s := newTestStore(fc, false)

				done := make(chan error, 1)
				go func() { done <- op(context.Background(), s) }()

				<-started
				if !s.Snapshot().Loading {
					t.Error("Loading = false while request is in flight")
				}
				close(release)
				err := <-done

				if s.Snapshot().Loading {
					t.Error("Loading = true after settlement")
				}
				if outcomeName == "failure" && err == nil {
					t.Error("expected error on failure path")
				}
				if outcomeName == "success" && err != nil {
					t.Errorf("unexpected error on success path: %v", err)
				}
			})
		}
	}
}

func TestStore_ValidationVsGenericErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantError     string
		wantFields    map[string][]string
		wantFieldsNil bool
	}{
		{
			name:       "422 populates validation errors",
			err:        domain.NewValidationError("invalid", map[string][]string{"name": {"required"}}),
			wantFields: map[string][]string{"name": {"required"}},
		},
		{
			name:          "500 populates error",
			err:           domain.NewAppError(domain.CodeInternal, "server exploded", nil),
			wantError:     "server exploded",
			wantFieldsNil: true,
		},
		{
			name:          "transport populates error",
			err:           domain.NewAppError(domain.CodeTransport, "connection refused", nil),
			wantError:     "connection refused",
			wantFieldsNil: true,
		},
	}

	for _, tt := range tests {
		for _, op := range []string{"create", "update"} {
			t.Run(tt.name+"/"+op, func(t *testing.T) {
				fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
					return nil, tt.err
				}}
				s := newTestStore(fc, true)

				var err error
				if op == "create" {
					_, err = s.CreateOne(context.Background(), map[string]string{})
				} else {
					_, err = s.UpdateOne(context.Background(), 1, map[string]string{})
				}
				if err == nil {
					t.Fatal("expected error")
				}

				st := s.Snapshot()
				if st.Error != tt.wantError {
					t.Errorf("Error = %q, want %q", st.Error, tt.wantError)
				}
				if tt.wantFieldsNil {
					if st.ValidationErrors != nil {
						t.Errorf("ValidationErrors = %v, want nil", st.ValidationErrors)
					}
				} else if diff := cmp.Diff(tt.wantFields, st.ValidationErrors); diff != "" {
					t.Errorf("ValidationErrors mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestStore_CreateAcceptsEnvelopedAndBareItems(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		return itemEnvelope(t, widget{ID: 9, Name: "new"}), nil
	}}
	s := newTestStore(fc, true)

	got, err := s.CreateOne(context.Background(), map[string]string{"name": "new"})
	if err != nil {
		t.Fatalf("CreateOne() error: %v", err)
	}
	if got != (widget{ID: 9, Name: "new"}) {
		t.Errorf("CreateOne() = %+v", got)
	}
	calls := fc.Calls()
	if calls[0].Method != http.MethodPost || calls[0].Path != "widgets" {
		t.Errorf("call = %+v, want POST widgets", calls[0])
	}

	if _, err := s.UpdateOne(context.Background(), 9, map[string]string{"name": "x"}); err != nil {
		t.Fatalf("UpdateOne() error: %v", err)
	}
	if c := fc.Calls()[1]; c.Method != http.MethodPut || c.Path != "widgets/9" {
		t.Errorf("call = %+v, want PUT widgets/9", c)
	}
}

func TestStore_FetchOneNotFound(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		return nil, domain.NewAppError(domain.CodeNotFound, "widget not found", nil)
	}}
	s := newTestStore(fc, true)

	_, err := s.FetchOne(context.Background(), 5)
	if !domain.IsNotFound(err) {
		t.Fatalf("FetchOne() error = %v, want not found", err)
	}
	if got := s.Snapshot().Error; got != "widget not found" {
		t.Errorf("Error = %q, want %q", got, "widget not found")
	}
	if got := fc.Calls()[0].Path; got != "widgets/5" {
		t.Errorf("path = %q, want %q", got, "widgets/5")
	}
}

func TestStore_FetchOneDoesNotTouchItems(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		if c.Path == "widgets" {
			return listEnvelope(t, 1, widget{ID: 1}), nil
		}
		return itemEnvelope(t, widget{ID: 2, Name: "two"}), nil
	}}
	s := newTestStore(fc, true)
	_ = s.FetchAll(context.Background())

	got, err := s.FetchOne(context.Background(), 2)
	if err != nil {
		t.Fatalf("FetchOne() error: %v", err)
	}
	if got.Name != "two" {
		t.Errorf("FetchOne() = %+v", got)
	}
	if diff := cmp.Diff([]widget{{ID: 1}}, s.Snapshot().Items); diff != "" {
		t.Errorf("Items mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_UnauthorizedIsNotRecorded(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "Unauthorized", nil)
	}}
	s := newTestStore(fc, true)

	if err := s.FetchAll(context.Background()); !domain.IsUnauthorized(err) {
		t.Fatalf("FetchAll() error = %v, want unauthorized", err)
	}
	if st := s.Snapshot(); st.Error != "" || st.ValidationErrors != nil {
		t.Errorf("state = %+v, want no recorded error", st)
	}
}

func TestStore_DeleteManyEmptyIsNoop(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		return listEnvelope(t, 2, widget{ID: 1}, widget{ID: 2}), nil
	}}
	s := newTestStore(fc, true)
	_ = s.FetchAll(context.Background())
	before := s.Snapshot()

	var notified int
	unsubscribe := s.Subscribe(func(State[widget]) { notified++ })
	defer unsubscribe()

	for _, ids := range [][]int{nil, {}} {
		if err := s.DeleteMany(context.Background(), ids); err != nil {
			t.Fatalf("DeleteMany(%v) error: %v", ids, err)
		}
	}

	if n := len(fc.Calls()); n != 1 {
		t.Errorf("requests = %d, want only the initial fetch", n)
	}
	if diff := cmp.Diff(before, s.Snapshot()); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}
	if notified != 0 {
		t.Errorf("listeners notified %d times, want 0", notified)
	}
}

func TestStore_DeleteOneRefetches(t *testing.T) {
	var fetches int
	fc := &fakeClient{}
	fc.handle = func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		switch c.Method {
		case http.MethodDelete:
			return &apiclient.Envelope{}, nil
		default:
			fetches++
			if fetches == 1 {
				return listEnvelope(t, 2, widget{ID: 1}, widget{ID: 2}), nil
			}
			// The server's current page after the delete also holds id 3.
			return listEnvelope(t, 2, widget{ID: 2}, widget{ID: 3}), nil
		}
	}
	s := newTestStore(fc, true)
	_ = s.FetchAll(context.Background())

	if err := s.DeleteOne(context.Background(), 1); err != nil {
		t.Fatalf("DeleteOne() error: %v", err)
	}

	calls := fc.Calls()
	if len(calls) != 3 {
		t.Fatalf("calls = %d, want fetch, delete, fetch", len(calls))
	}
	if calls[1].Method != http.MethodDelete || calls[1].Path != "widgets/1" {
		t.Errorf("delete call = %+v", calls[1])
	}
	if diff := cmp.Diff([]widget{{ID: 2}, {ID: 3}}, s.Snapshot().Items); diff != "" {
		t.Errorf("Items mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_DeleteManyRequestShape(t *testing.T) {
	fc := &fakeClient{}
	s := newTestStore(fc, false)

	if err := s.DeleteMany(context.Background(), []int{1, 2, 3}); err != nil {
		t.Fatalf("DeleteMany() error: %v", err)
	}
	c := fc.Calls()[0]
	if c.Method != http.MethodDelete || c.Path != "widgets/batch-delete" {
		t.Errorf("call = %+v, want DELETE widgets/batch-delete", c)
	}
	if got := c.Query.Get("ids"); got != "1,2,3" {
		t.Errorf("ids = %q, want %q", got, "1,2,3")
	}
}

func TestStore_OptimisticRemoval(t *testing.T) {
	fc := &fakeClient{}
	fc.handle = func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		if c.Method == http.MethodGet {
			return listEnvelope(t, 3, widget{ID: 1}, widget{ID: 2}, widget{ID: 3}), nil
		}
		return &apiclient.Envelope{}, nil
	}
	s := newTestStore(fc, false)
	_ = s.FetchAll(context.Background())

	if err := s.DeleteMany(context.Background(), []int{1, 3}); err != nil {
		t.Fatalf("DeleteMany() error: %v", err)
	}

	st := s.Snapshot()
	if diff := cmp.Diff([]widget{{ID: 2}}, st.Items); diff != "" {
		t.Errorf("Items mismatch (-want +got):\n%s", diff)
	}
	if st.Meta.Total != 1 {
		t.Errorf("Meta.Total = %d, want 1", st.Meta.Total)
	}
	if n := len(fc.Calls()); n != 2 {
		t.Errorf("calls = %d, want no refetch", n)
	}
}

func TestStore_DeleteFailureIsRecordedAndReturned(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		return nil, domain.NewAppError(domain.CodeNotFound, "gone already", nil)
	}}
	s := newTestStore(fc, true)

	if err := s.DeleteOne(context.Background(), 1); !domain.IsNotFound(err) {
		t.Fatalf("DeleteOne() error = %v, want not found", err)
	}
	if got := s.Snapshot().Error; got != "gone already" {
		t.Errorf("Error = %q", got)
	}
	if n := len(fc.Calls()); n != 1 {
		t.Errorf("calls = %d, want no refetch after a failed delete", n)
	}
}

func TestStore_SupersededFetchIsDiscarded(t *testing.T) {
	firstStarted := make(chan struct{})
	var firstCtx context.Context
	fc := &fakeClient{}
	var mu sync.Mutex
	n := 0
	fc.handle = func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		mu.Lock()
		n++
		mine := n
		mu.Unlock()
		if mine == 1 {
			firstCtx = ctx
			close(firstStarted)
			<-ctx.Done()
			// A server that ignores cancellation still answers late.
			return listEnvelope(t, 1, widget{ID: 100, Name: "stale"}), nil
		}
		return listEnvelope(t, 1, widget{ID: 200, Name: "fresh"}), nil
	}
	s := newTestStore(fc, true)

	firstDone := make(chan error, 1)
	go func() { firstDone <- s.FetchAll(context.Background()) }()
	<-firstStarted

	if err := s.FetchAll(context.Background()); err != nil {
		t.Fatalf("second FetchAll() error: %v", err)
	}
	if err := <-firstDone; err != nil {
		t.Errorf("superseded FetchAll() error = %v, want nil", err)
	}

	if !errors.Is(firstCtx.Err(), context.Canceled) {
		t.Errorf("superseded request ctx err = %v, want canceled", firstCtx.Err())
	}
	st := s.Snapshot()
	if diff := cmp.Diff([]widget{{ID: 200, Name: "fresh"}}, st.Items); diff != "" {
		t.Errorf("Items mismatch (-want +got):\n%s", diff)
	}
	if st.Loading {
		t.Error("Loading should be false once both fetches settled")
	}
}

// hookHandler runs onRecord for every log record.
type hookHandler struct {
	onRecord func(slog.Record)
}

func (h hookHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h hookHandler) Handle(_ context.Context, r slog.Record) error {
	h.onRecord(r)
	return nil
}
func (h hookHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h hookHandler) WithGroup(string) slog.Handler      { return h }

func TestStore_SupersededFailureKeepsNewerResult(t *testing.T) {
	fc := &fakeClient{}
	var mu sync.Mutex
	n := 0
	fc.handle = func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		mu.Lock()
		n++
		mine := n
		mu.Unlock()
		if mine == 1 {
			return nil, domain.NewAppError(domain.CodeTransport, "connection refused", nil)
		}
		return listEnvelope(t, 1, widget{ID: 200, Name: "fresh"}), nil
	}

	var s *Store[widget, int]
	var once sync.Once
	var secondErr error
	// The failed fetch logs its warning before recording the error; a newer
	// fetch completes in that window.
	logger := slog.New(hookHandler{onRecord: func(r slog.Record) {
		if r.Message == "resource operation failed" {
			once.Do(func() { secondErr = s.FetchAll(context.Background()) })
		}
	}})
	s = New[widget, int](fc, Options[widget]{Endpoint: "widgets", Logger: logger})

	if err := s.FetchAll(context.Background()); !domain.IsTransport(err) {
		t.Fatalf("first FetchAll() error = %v, want transport", err)
	}
	if secondErr != nil {
		t.Fatalf("second FetchAll() error: %v", secondErr)
	}

	st := s.Snapshot()
	if st.Error != "" {
		t.Errorf("Error = %q, want the newer fetch's clean state", st.Error)
	}
	if diff := cmp.Diff([]widget{{ID: 200, Name: "fresh"}}, st.Items); diff != "" {
		t.Errorf("Items mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_RequestTimeout(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		<-ctx.Done()
		return nil, domain.NewAppError(domain.CodeTransport, "request timed out", ctx.Err())
	}}
	s := New[widget, int](fc, Options[widget]{Endpoint: "widgets", Timeout: 20 * time.Millisecond})

	start := time.Now()
	err := s.FetchAll(context.Background())
	if !domain.IsTransport(err) {
		t.Fatalf("FetchAll() error = %v, want transport", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("FetchAll took %v, want it bounded by the timeout", elapsed)
	}
	st := s.Snapshot()
	if st.Loading || st.Error != "request timed out" {
		t.Errorf("state = Loading %v, Error %q", st.Loading, st.Error)
	}
}

func TestStore_TransformHooks(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		return listEnvelope(t, 2, widget{ID: 1, Name: "b"}, widget{ID: 2, Name: "a"}), nil
	}}
	s := New[widget, int](fc, Options[widget]{
		Endpoint: "widgets",
		TransformParams: func(p Params) Params {
			p.Sort = "name"
			return p
		},
		TransformItems: func(items []widget) []widget {
			for i := range items {
				items[i].Name = "x" + items[i].Name
			}
			return items
		},
	})

	_ = s.FetchAll(context.Background())
	if got := fc.Calls()[0].Query.Get("sort"); got != "name" {
		t.Errorf("sort = %q, want transformed %q", got, "name")
	}
	if got := s.Snapshot().Items[0].Name; got != "xb" {
		t.Errorf("Items[0].Name = %q, want %q", got, "xb")
	}
	if got := s.Snapshot().Params.Sort; got != "" {
		t.Errorf("stored Params.Sort = %q, transform must not leak into state", got)
	}
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	fc := &fakeClient{handle: func(ctx context.Context, c call) (*apiclient.Envelope, error) {
		return listEnvelope(t, 1, widget{ID: 1}), nil
	}}
	s := newTestStore(fc, true)

	var loadingSeen []bool
	unsubscribe := s.Subscribe(func(st State[widget]) {
		loadingSeen = append(loadingSeen, st.Loading)
	})

	_ = s.FetchAll(context.Background())
	if len(loadingSeen) < 2 || !loadingSeen[0] || loadingSeen[len(loadingSeen)-1] {
		t.Errorf("loading transitions = %v, want true first and false last", loadingSeen)
	}

	unsubscribe()
	seen := len(loadingSeen)
	_ = s.FetchAll(context.Background())
	if len(loadingSeen) != seen {
		t.Errorf("listener called after unsubscribe")
	}
}
