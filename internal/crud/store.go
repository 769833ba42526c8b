// Package crud provides a generic, per-resource store that caches the current
// page of a remote collection and exposes its list, read, create, update and
// delete operations.
package crud

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/simp-lee/crudboard/internal/apiclient"
	"github.com/simp-lee/crudboard/internal/domain"
)

// DefaultTimeout bounds every request issued by a store.
const DefaultTimeout = 15 * time.Second

// Resource is an item with a unique identifier.
type Resource[ID comparable] interface {
	GetID() ID
}

// Client is the subset of *apiclient.Client a store needs.
type Client interface {
	Get(ctx context.Context, path string, query url.Values) (*apiclient.Envelope, error)
	Send(ctx context.Context, method, path string, query url.Values, body any) (*apiclient.Envelope, error)
}

// State is a snapshot of a store.
type State[T any] struct {
	Items            []T
	Loading          bool
	Error            string
	ValidationErrors map[string][]string
	Meta             domain.PageMeta
	Links            domain.PageLinks
	Params           Params
}

// Options configures a store.
type Options[T any] struct {
	// Endpoint is the collection path relative to the API base, e.g. "users".
	Endpoint string
	// RefetchAfterDelete reloads the current page after a delete. When false,
	// deleted items are removed from Items locally. Nil means true.
	RefetchAfterDelete *bool
	// Timeout is the per-request deadline. Zero means DefaultTimeout.
	Timeout time.Duration
	// TransformParams rewrites the parameters just before a list request.
	TransformParams func(Params) Params
	// TransformItems post-processes a fetched page.
	TransformItems func([]T) []T
	Logger         *slog.Logger
}

// Store caches one page of a remote collection. All methods are safe for
// concurrent use.
type Store[T Resource[ID], ID comparable] struct {
	client             Client
	endpoint           string
	refetchAfterDelete bool
	timeout            time.Duration
	transformParams    func(Params) Params
	transformItems     func([]T) []T
	logger             *slog.Logger

	mu          sync.Mutex
	state       State[T]
	inflight    int
	seq         uint64
	cancelFetch context.CancelFunc
	listeners   map[int]func(State[T])
	nextID      int
}

// New creates a store for opts.Endpoint.
func New[T Resource[ID], ID comparable](client Client, opts Options[T]) *Store[T, ID] {
	refetch := true
	if opts.RefetchAfterDelete != nil {
		refetch = *opts.RefetchAfterDelete
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := strings.Trim(opts.Endpoint, "/")

	return &Store[T, ID]{
		client:             client,
		endpoint:           endpoint,
		refetchAfterDelete: refetch,
		timeout:            timeout,
		transformParams:    opts.TransformParams,
		transformItems:     opts.TransformItems,
		logger:             logger.With(slog.String("resource", endpoint)),
		state:              State[T]{Params: DefaultParams()},
		listeners:          make(map[int]func(State[T])),
	}
}

// Endpoint returns the collection path of the store.
func (s *Store[T, ID]) Endpoint() string {
	return s.endpoint
}

// Snapshot returns a copy of the current state.
func (s *Store[T, ID]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to be called with a snapshot after every state
// change. The returned function removes the listener.
func (s *Store[T, ID]) Subscribe(fn func(State[T])) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SetParams shallow-merges opts into the stored parameters. It does not fetch.
func (s *Store[T, ID]) SetParams(opts ...ParamOption) {
	s.update(func(st *State[T]) {
		for _, opt := range opts {
			opt(&st.Params)
		}
	})
}

// FetchAll loads the page described by the current parameters. On success
// Items, Meta and Links are replaced together; on failure Error is set and
// Items are left as they were. Issuing a new FetchAll abandons the previous
// one: its request is canceled and its response is discarded.
//
// The returned error is already recorded in the state.
func (s *Store[T, ID]) FetchAll(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	if s.cancelFetch != nil {
		s.cancelFetch()
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	s.cancelFetch = cancel
	params := s.state.Params.clone()
	s.beginLocked()
	snap, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()
	notify(listeners, snap)

	defer func() {
		cancel()
		s.end(func(*State[T]) {
			if s.seq == seq {
				s.cancelFetch = nil
			}
		})
	}()

	if s.transformParams != nil {
		params = s.transformParams(params)
	}

	env, err := s.client.Get(reqCtx, s.endpoint, params.Values())
	var items []T
	if err == nil {
		items, err = apiclient.DecodeList[T](env)
	}

	if !s.isLatest(seq) {
		s.logger.DebugContext(ctx, "discarding superseded list response", slog.Uint64("seq", seq))
		return nil
	}

	if err != nil {
		s.failWhen(ctx, "list", err, func() bool { return s.isLatestLocked(seq) })
		return err
	}

	if s.transformItems != nil {
		items = s.transformItems(items)
	}
	s.update(func(st *State[T]) {
		if !s.isLatestLocked(seq) {
			return
		}
		st.Items = items
		st.Meta = metaFor(env, params, len(items))
		st.Links = domain.PageLinks{}
		if env.Links != nil {
			st.Links = *env.Links
		}
		st.Error = ""
	})
	return nil
}

// FetchOne loads a single item without touching Items. A not-found response
// is recorded in Error.
func (s *Store[T, ID]) FetchOne(ctx context.Context, id ID) (T, error) {
	var zero T
	s.begin()
	defer s.end(nil)

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	env, err := s.client.Get(reqCtx, s.itemPath(id), nil)
	if err != nil {
		s.fail(ctx, "fetch", err)
		return zero, err
	}
	item, err := apiclient.DecodeData[T](env)
	if err != nil {
		s.fail(ctx, "fetch", err)
		return zero, err
	}
	return item, nil
}

// CreateOne submits payload as a new item. A 422 response populates
// ValidationErrors and clears Error; any other failure sets Error. The error
// is returned in both cases.
func (s *Store[T, ID]) CreateOne(ctx context.Context, payload any) (T, error) {
	return s.write(ctx, "create", http.MethodPost, s.endpoint, payload)
}

// UpdateOne submits payload for the item id, with the same failure handling
// as CreateOne.
func (s *Store[T, ID]) UpdateOne(ctx context.Context, id ID, payload any) (T, error) {
	return s.write(ctx, "update", http.MethodPut, s.itemPath(id), payload)
}

func (s *Store[T, ID]) write(ctx context.Context, op, method, path string, payload any) (T, error) {
	var zero T
	s.begin()
	defer s.end(nil)

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	env, err := s.client.Send(reqCtx, method, path, nil, payload)
	if err != nil {
		s.fail(ctx, op, err)
		return zero, err
	}
	if !env.HasData() {
		return zero, nil
	}
	item, err := apiclient.DecodeData[T](env)
	if err != nil {
		s.fail(ctx, op, err)
		return zero, err
	}
	return item, nil
}

// DeleteOne deletes the item id and then either reloads the current page or
// drops the item locally, depending on RefetchAfterDelete. Failures set Error
// and are returned.
func (s *Store[T, ID]) DeleteOne(ctx context.Context, id ID) error {
	return s.remove(ctx, "delete", s.itemPath(id), nil, []ID{id})
}

// DeleteMany deletes ids in one request. An empty ids is a no-op.
func (s *Store[T, ID]) DeleteMany(ctx context.Context, ids []ID) error {
	if len(ids) == 0 {
		return nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = formatID(id)
	}
	query := url.Values{"ids": {strings.Join(parts, ",")}}
	return s.remove(ctx, "batch delete", s.endpoint+"/batch-delete", query, ids)
}

func (s *Store[T, ID]) remove(ctx context.Context, op, path string, query url.Values, ids []ID) error {
	s.begin()
	defer s.end(nil)

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err := s.client.Send(reqCtx, http.MethodDelete, path, query, nil)
	cancel()
	if err != nil {
		s.fail(ctx, op, err)
		return err
	}

	if s.refetchAfterDelete {
		// The delete itself succeeded; a failed reload is recorded in Error.
		_ = s.FetchAll(ctx)
		return nil
	}

	gone := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
	}
	s.update(func(st *State[T]) {
		before := len(st.Items)
		st.Items = slices.DeleteFunc(slices.Clone(st.Items), func(item T) bool {
			_, ok := gone[item.GetID()]
			return ok
		})
		if removed := int64(before - len(st.Items)); removed > 0 && st.Meta.Total >= removed {
			st.Meta.Total -= removed
		}
	})
	return nil
}

// fail records err in the state. A 401 is left to the client's unauthorized
// hook and is not recorded here.
func (s *Store[T, ID]) fail(ctx context.Context, op string, err error) {
	s.failWhen(ctx, op, err, nil)
}

// failWhen is fail for results that can be superseded: err is recorded only
// if current, checked under the state lock, still holds.
func (s *Store[T, ID]) failWhen(ctx context.Context, op string, err error, current func() bool) {
	if domain.IsUnauthorized(err) {
		return
	}
	s.logger.WarnContext(ctx, "resource operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	s.update(func(st *State[T]) {
		if current != nil && !current() {
			return
		}
		if domain.IsValidation(err) {
			fields := domain.ValidationFields(err)
			if fields == nil {
				fields = map[string][]string{}
			}
			st.ValidationErrors = fields
			st.Error = ""
			return
		}
		st.Error = domain.Message(err)
		st.ValidationErrors = nil
	})
}

func (s *Store[T, ID]) itemPath(id ID) string {
	return s.endpoint + "/" + url.PathEscape(formatID(id))
}

func (s *Store[T, ID]) begin() {
	s.mu.Lock()
	s.beginLocked()
	snap, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()
	notify(listeners, snap)
}

func (s *Store[T, ID]) beginLocked() {
	s.inflight++
	s.state.Loading = true
	s.state.Error = ""
	s.state.ValidationErrors = nil
}

// end marks one operation as settled. Loading stays true while other
// operations are still in flight.
func (s *Store[T, ID]) end(fn func(*State[T])) {
	s.update(func(st *State[T]) {
		if fn != nil {
			fn(st)
		}
		s.inflight--
		st.Loading = s.inflight > 0
	})
}

func (s *Store[T, ID]) isLatest(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isLatestLocked(seq)
}

func (s *Store[T, ID]) isLatestLocked(seq uint64) bool {
	return s.seq == seq
}

func (s *Store[T, ID]) update(fn func(*State[T])) {
	s.mu.Lock()
	fn(&s.state)
	snap, listeners := s.snapshotLocked(), s.listenersLocked()
	s.mu.Unlock()
	notify(listeners, snap)
}

func (s *Store[T, ID]) snapshotLocked() State[T] {
	st := s.state
	st.Items = slices.Clone(s.state.Items)
	st.ValidationErrors = maps.Clone(s.state.ValidationErrors)
	st.Params = s.state.Params.clone()
	return st
}

func (s *Store[T, ID]) listenersLocked() []func(State[T]) {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]func(State[T]), 0, len(s.listeners))
	for _, id := range slices.Sorted(maps.Keys(s.listeners)) {
		out = append(out, s.listeners[id])
	}
	return out
}

func notify[T any](listeners []func(State[T]), snap State[T]) {
	for _, fn := range listeners {
		fn(snap)
	}
}

// metaFor returns the server's pagination meta, or one derived from the
// request when the server sent none.
func metaFor(env *apiclient.Envelope, params Params, n int) domain.PageMeta {
	if env.Meta != nil {
		return *env.Meta
	}
	return domain.PageMeta{
		Total:       int64(n),
		PerPage:     params.PerPage,
		CurrentPage: max(params.Page, 1),
		LastPage:    1,
	}
}

func formatID[ID comparable](id ID) string {
	return fmt.Sprint(id)
}
