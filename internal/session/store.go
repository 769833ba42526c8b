// Package session holds the console's authentication state: the persisted
// bearer token and the signed-in user's profile.
package session

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/simp-lee/crudboard/internal/apiclient"
	"github.com/simp-lee/crudboard/internal/domain"
)

// API is the subset of *apiclient.Client the session needs.
type API interface {
	Get(ctx context.Context, path string, query url.Values) (*apiclient.Envelope, error)
	Send(ctx context.Context, method, path string, query url.Values, body any) (*apiclient.Envelope, error)
	Upload(ctx context.Context, method, path string, fields url.Values, file *apiclient.File) (*apiclient.Envelope, error)
	SetToken(token string)
}

// TokenPersister stores the bearer token across restarts.
type TokenPersister interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// State is a snapshot of the session.
type State struct {
	Profile          *domain.User
	LoggedIn         bool
	Loading          bool
	Token            string
	Error            string
	ValidationErrors map[string][]string
}

// ProfileUpdate is submitted to change the signed-in user's profile. Empty
// fields are not sent. Avatar is optional.
type ProfileUpdate struct {
	Name   string
	Email  string
	Avatar *Avatar
}

// Avatar is an uploaded image.
type Avatar struct {
	Filename string
	Content  io.Reader
}

// Store is the process-wide authentication state.
type Store struct {
	api          API
	tokens       TokenPersister
	refreshAhead time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	state    State
	inflight int
}

// Option configures a Store.
type Option func(*Store)

// WithRefreshAhead sets how long before expiry RefreshIfNeeded renews the
// token.
func WithRefreshAhead(d time.Duration) Option {
	return func(s *Store) { s.refreshAhead = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a logged-out Store. Call Init to restore a persisted token.
func New(api API, tokens TokenPersister, opts ...Option) *Store {
	s := &Store{
		api:          api,
		tokens:       tokens,
		refreshAhead: 5 * time.Minute,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.ValidationErrors = maps.Clone(s.state.ValidationErrors)
	if s.state.Profile != nil {
		p := *s.state.Profile
		st.Profile = &p
	}
	return st
}

// LoggedIn reports whether a user is signed in.
func (s *Store) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LoggedIn
}

// Init restores the persisted token and loads the profile with it. A token
// the API rejects is discarded. A transport failure keeps the token so a
// later request can retry.
func (s *Store) Init(ctx context.Context) error {
	token, err := s.tokens.Load(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return nil
	}

	s.api.SetToken(token)
	s.set(func(st *State) { st.Token = token })

	s.begin()
	defer s.end()

	if _, err := s.fetchProfile(ctx); err != nil {
		if domain.IsTransport(err) {
			s.set(func(st *State) { st.Error = domain.Message(err) })
			return err
		}
		s.logger.InfoContext(ctx, "discarding persisted token", slog.String("error", err.Error()))
		return s.clear(ctx)
	}
	s.set(func(st *State) { st.LoggedIn = true })
	return nil
}

// Login exchanges credentials for a token. A 422 response populates
// ValidationErrors. The error is returned either way.
func (s *Store) Login(ctx context.Context, in domain.Credentials) error {
	return s.authenticate(ctx, "auth/login", in)
}

// Register creates an account and signs it in, with the same failure
// handling as Login.
func (s *Store) Register(ctx context.Context, in domain.Registration) error {
	return s.authenticate(ctx, "auth/register", in)
}

func (s *Store) authenticate(ctx context.Context, path string, body any) error {
	s.begin()
	defer s.end()

	env, err := s.api.Send(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		s.fail(err)
		return err
	}
	tok, err := apiclient.DecodeData[domain.AccessToken](env)
	if err != nil || tok.AccessToken == "" {
		if err == nil {
			err = domain.NewAppError(domain.CodeInternal, "response carried no access token", nil)
		}
		s.fail(err)
		return err
	}

	if err := s.adopt(ctx, tok.AccessToken); err != nil {
		return err
	}
	s.set(func(st *State) { st.LoggedIn = true })

	if _, err := s.fetchProfile(ctx); err != nil {
		// Signed in regardless; the profile is loaded again on the next page.
		s.logger.WarnContext(ctx, "profile load after sign-in failed", slog.String("error", err.Error()))
	}
	return nil
}

// Logout forgets the token locally. Requests already in flight are not
// canceled.
func (s *Store) Logout(ctx context.Context) error {
	return s.clear(ctx)
}

// Refresh renews the token. Any failure logs the user out.
func (s *Store) Refresh(ctx context.Context) error {
	env, err := s.api.Send(ctx, http.MethodPost, "auth/refresh", nil, nil)
	if err == nil {
		var tok domain.AccessToken
		tok, err = apiclient.DecodeData[domain.AccessToken](env)
		if err == nil && tok.AccessToken != "" {
			return s.adopt(ctx, tok.AccessToken)
		}
		if err == nil {
			err = domain.NewAppError(domain.CodeInternal, "response carried no access token", nil)
		}
	}
	s.logger.WarnContext(ctx, "token refresh failed", slog.String("error", err.Error()))
	if clearErr := s.clear(ctx); clearErr != nil {
		return clearErr
	}
	return err
}

// RefreshIfNeeded renews the token when it expires within the refresh-ahead
// window. Tokens without an expiry are left alone.
func (s *Store) RefreshIfNeeded(ctx context.Context) error {
	s.mu.Lock()
	token, loggedIn := s.state.Token, s.state.LoggedIn
	s.mu.Unlock()
	if !loggedIn || token == "" {
		return nil
	}
	exp, ok := TokenExpiry(token)
	if !ok || exp.Sub(s.now()) > s.refreshAhead {
		return nil
	}
	return s.Refresh(ctx)
}

// FetchProfile loads the signed-in user's profile.
func (s *Store) FetchProfile(ctx context.Context) (*domain.User, error) {
	return s.fetchProfile(ctx)
}

func (s *Store) fetchProfile(ctx context.Context) (*domain.User, error) {
	env, err := s.api.Get(ctx, "auth/profile", nil)
	if err != nil {
		return nil, err
	}
	user, err := apiclient.DecodeData[domain.User](env)
	if err != nil {
		return nil, err
	}
	s.set(func(st *State) { st.Profile = &user })
	return &user, nil
}

// UpdateProfile submits the profile form as multipart data. A 422 response
// populates ValidationErrors; other failures set Error. The error is returned
// either way.
func (s *Store) UpdateProfile(ctx context.Context, in ProfileUpdate) (*domain.User, error) {
	s.begin()
	defer s.end()

	fields := url.Values{}
	if in.Name != "" {
		fields.Set("name", in.Name)
	}
	if in.Email != "" {
		fields.Set("email", in.Email)
	}
	var file *apiclient.File
	if in.Avatar != nil && in.Avatar.Content != nil {
		file = &apiclient.File{Field: "avatar", Filename: in.Avatar.Filename, Content: in.Avatar.Content}
	}

	env, err := s.api.Upload(ctx, http.MethodPost, "auth/profile", fields, file)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	user, err := apiclient.DecodeData[domain.User](env)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.set(func(st *State) { st.Profile = &user })
	return &user, nil
}

// TokenExpiry decodes the exp claim of a JWT without verifying its
// signature. It reports false for tokens that are not JWTs or carry no exp.
func TokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func (s *Store) adopt(ctx context.Context, token string) error {
	s.api.SetToken(token)
	s.set(func(st *State) { st.Token = token })
	return s.tokens.Save(ctx, token)
}

func (s *Store) clear(ctx context.Context) error {
	s.api.SetToken("")
	s.set(func(st *State) {
		st.Token = ""
		st.LoggedIn = false
		st.Profile = nil
	})
	return s.tokens.Clear(ctx)
}

func (s *Store) fail(err error) {
	s.set(func(st *State) {
		if domain.IsValidation(err) {
			st.ValidationErrors = domain.ValidationFields(err)
			if st.ValidationErrors == nil {
				st.ValidationErrors = map[string][]string{}
			}
			st.Error = ""
			return
		}
		st.Error = domain.Message(err)
		st.ValidationErrors = nil
	})
}

func (s *Store) begin() {
	s.set(func(st *State) {
		s.inflight++
		st.Loading = true
		st.Error = ""
		st.ValidationErrors = nil
	})
}

func (s *Store) end() {
	s.set(func(st *State) {
		s.inflight--
		st.Loading = s.inflight > 0
	})
}

func (s *Store) set(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}
