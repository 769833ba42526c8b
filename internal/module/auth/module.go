// Package auth serves the console's login, registration, logout and profile
// pages on top of the session store.
package auth

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/session"
)

// Session is the part of *session.Store the pages use.
type Session interface {
	Snapshot() session.State
	Login(ctx context.Context, in domain.Credentials) error
	Register(ctx context.Context, in domain.Registration) error
	Logout(ctx context.Context) error
	FetchProfile(ctx context.Context) (*domain.User, error)
	UpdateProfile(ctx context.Context, in session.ProfileUpdate) (*domain.User, error)
}

// Options configures the auth pages.
type Options struct {
	// HomePath is where a successful sign-in lands. Defaults to "/".
	HomePath string
	// LoginPath is the login page. Defaults to "/login".
	LoginPath string
	Logger    *slog.Logger
}

// AuthModule implements the app.Module interface for the auth pages.
type AuthModule struct {
	handler *AuthHandler
}

// NewModule creates a new AuthModule. Panics if sess is nil.
func NewModule(sess Session, opts Options) *AuthModule {
	if sess == nil {
		panic("auth.NewModule: session must not be nil")
	}
	if opts.HomePath == "" {
		opts.HomePath = "/"
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &AuthModule{handler: &AuthHandler{sess: sess, opts: opts}}
}

// RegisterRoutes registers the pages that need a signed-in user.
func (m *AuthModule) RegisterRoutes(pages *gin.RouterGroup) {
	pages.POST("/logout", m.handler.Logout)
	pages.GET("/profile", m.handler.Profile)
	pages.GET("/profile/edit", m.handler.EditProfilePage)
	pages.POST("/profile/edit", m.handler.UpdateProfile)
}

// RegisterGuestRoutes registers the pages only visitors without a session
// may see.
func (m *AuthModule) RegisterGuestRoutes(guest *gin.RouterGroup) {
	guest.GET("/login", m.handler.LoginPage)
	guest.POST("/login", m.handler.Login)
	guest.GET("/register", m.handler.RegisterPage)
	guest.POST("/register", m.handler.Register)
}
