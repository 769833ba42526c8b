// Package mockapi is a demo REST backend speaking the wire format the
// console expects: enveloped JSON, filter[...] and sort query parameters,
// page metadata with links, 422 field errors and bearer-token auth.
package mockapi

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/simp-lee/crudboard/internal/config"
	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/middleware"
	"github.com/simp-lee/crudboard/internal/pkg"
)

// Options configures the demo API server.
type Options struct {
	JWTSecret    string
	TokenExpiry  time.Duration
	AvatarDir    string
	AllowOrigins []string

	// Registerer receives the HTTP metrics. Nil disables them.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
	Now        func() time.Time
}

// OptionsFromConfig maps validated configuration onto Options.
func OptionsFromConfig(cfg config.MockAPIConfig) Options {
	return Options{
		JWTSecret:    cfg.JWTSecret,
		TokenExpiry:  config.MustDuration(cfg.TokenExpiry, 24*time.Hour),
		AvatarDir:    cfg.AvatarDir,
		AllowOrigins: cfg.AllowOrigins,
	}
}

// Models lists the tables the demo API migrates.
func Models() []any {
	return []any{&domain.User{}, &domain.Permission{}, &domain.Role{}, &domain.Employee{}}
}

// NewServer builds the gin engine serving every demo endpoint under /api.
// The tables from Models must already exist.
func NewServer(db *gorm.DB, opts Options) (*gin.Engine, error) {
	if db == nil {
		return nil, errors.New("database is nil")
	}
	if len(strings.TrimSpace(opts.JWTSecret)) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	if opts.TokenExpiry <= 0 {
		opts.TokenExpiry = 24 * time.Hour
	}
	if opts.AvatarDir == "" {
		opts.AvatarDir = filepath.Join(os.TempDir(), "crudboard-avatars")
	}
	if opts.Logger == nil {
		opts.Logger = config.Component("mockapi")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	pkg.RegisterValidators()

	cors := middleware.DefaultCORSConfig()
	if len(opts.AllowOrigins) > 0 {
		cors.AllowOrigins = opts.AllowOrigins
		cors.AllowCredentials = true
	}

	engine := gin.New()
	engine.Use(
		middleware.Recovery(opts.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{TrustUpstream: true}),
		middleware.Logger(opts.Logger),
		middleware.CORS(cors),
	)
	if opts.Registerer != nil {
		engine.Use(middleware.NewHTTPMetrics(opts.Registerer, "crudboard_mockapi").Handler())
	}

	users := newUserResource(db)
	roles := newRoleResource(db)
	auth := &authHandler{
		users:     users.repo,
		tokens:    &tokenIssuer{secret: []byte(opts.JWTSecret), ttl: opts.TokenExpiry, now: opts.Now},
		avatarDir: opts.AvatarDir,
		logger:    opts.Logger,
	}
	permSync := &rolePermissionsHandler{db: db, roles: roles.repo}

	engine.Static(AvatarRoute, opts.AvatarDir)

	api := engine.Group("/api")
	api.POST("/auth/login", auth.Login)
	api.POST("/auth/register", auth.Register)

	authed := api.Group("")
	authed.Use(auth.authenticate)
	authed.GET("/auth/profile", auth.Profile)
	authed.POST("/auth/profile", auth.UpdateProfile)
	authed.POST("/auth/refresh", auth.Refresh)

	users.register(authed, "/users")
	roles.register(authed, "/roles")
	authed.PUT("/roles/:id/permissions", permSync.sync)
	newPermissionResource(db).register(authed, "/permissions")
	newEmployeeResource(db, opts.Now).register(authed, "/employees")

	engine.NoRoute(func(c *gin.Context) {
		pkg.Error(c, domain.NewAppError(domain.CodeNotFound, "Not Found", nil))
	})

	return engine, nil
}
