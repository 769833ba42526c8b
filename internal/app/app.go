package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/crudboard/internal/apiclient"
	"github.com/simp-lee/crudboard/internal/config"
	"github.com/simp-lee/crudboard/internal/crudview"
	"github.com/simp-lee/crudboard/internal/middleware"
	"github.com/simp-lee/crudboard/internal/module/auth"
	"github.com/simp-lee/crudboard/internal/module/employee"
	"github.com/simp-lee/crudboard/internal/module/permission"
	"github.com/simp-lee/crudboard/internal/module/role"
	"github.com/simp-lee/crudboard/internal/module/user"
	"github.com/simp-lee/crudboard/internal/pkg"
	"github.com/simp-lee/crudboard/internal/session"
	"github.com/simp-lee/crudboard/web"
)

// sessionInitTimeout bounds restoring the persisted session at startup.
const sessionInitTimeout = 10 * time.Second

// App holds the console's dependencies and its HTTP handler.
type App struct {
	engine  *gin.Engine
	db      *gorm.DB
	logger  *logger.Logger
	cfg     *config.Config
	session *session.Store
}

// New creates and wires the console from cfg.
//
// It sets up logging, the token database, the API client, the session,
// the resource modules, middleware, template rendering and routes. The
// persisted session is restored before New returns; an unreachable API only
// logs a warning.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 reloads templates from disk and uses a random csrf secret")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// The console's own database only stores the access token.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger, &session.Entry{})
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if success {
			return
		}
		if err := config.CloseDatabase(db); err != nil {
			slog.Error("database close error", slog.Any("error", err))
		}
	}()

	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	apiTimeout := config.MustDuration(cfg.API.Timeout, 15*time.Second)
	clientOpts := []apiclient.Option{
		apiclient.WithTimeout(apiTimeout),
		apiclient.WithLogger(log.Logger.With(slog.String("component", "apiclient"))),
	}
	if reg != nil {
		clientOpts = append(clientOpts, apiclient.WithMetrics(apiclient.NewMetrics(reg)))
	}
	client, err := apiclient.New(cfg.API.BaseURL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("setup api client: %w", err)
	}

	sess := session.New(client, session.NewTokenStore(db, cfg.Session.StorageKey),
		session.WithRefreshAhead(config.MustDuration(cfg.Session.RefreshAhead, 5*time.Minute)),
		session.WithLogger(log.Logger.With(slog.String("component", "session"))),
	)
	// A 401 from any request ends the session; pages then send the
	// operator to the login form.
	client.OnUnauthorized(func(ctx context.Context, err error) {
		log.Logger.WarnContext(ctx, "api rejected the access token", slog.String("error", err.Error()))
		if err := sess.Logout(ctx); err != nil {
			log.Logger.ErrorContext(ctx, "logout after 401 failed", slog.Any("error", err))
		}
	})

	initCtx, cancel := context.WithTimeout(context.Background(), sessionInitTimeout)
	err = sess.Init(initCtx)
	cancel()
	if err != nil {
		log.Warn("could not restore the session", slog.String("error", err.Error()))
	}

	pkg.RegisterValidators()
	settings := crudview.Settings{
		DefaultPageSize:    cfg.Grid.DefaultPageSize,
		PageSizes:          cfg.Grid.PageSizeOptions,
		Timeout:            apiTimeout,
		RefetchAfterDelete: cfg.API.RefetchAfterDelete,
		LoginPath:          crudview.DefaultLoginPath,
		Logger:             log.Logger.With(slog.String("component", "grid")),
	}
	modules := []Module{
		auth.NewModule(sess, auth.Options{
			LoginPath: crudview.DefaultLoginPath,
			Logger:    log.Logger.With(slog.String("component", "auth")),
		}),
		user.NewModule(client, settings),
		role.NewModule(client, settings),
		permission.NewModule(client, settings),
		employee.NewModule(client, settings),
	}

	quiet := []string{"/static/", "/health"}
	if cfg.Metrics.Enabled {
		quiet = append(quiet, cfg.Metrics.Path)
	}

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.LoggerWithConfig(log.Logger, middleware.LoggerConfig{SkipPrefixes: quiet}),
	)
	if reg != nil {
		engine.Use(middleware.NewHTTPMetrics(reg, "crudboard").Handler())
	}

	debug := cfg.Server.Mode == gin.DebugMode
	var fsys fs.FS
	if debug {
		fsys, err = resolveDebugWebFS()
		if err != nil {
			return nil, fmt.Errorf("resolve debug template fs: %w", err)
		}
	} else {
		fsys = web.EmbeddedFS
	}

	renderer, err := NewTemplateRenderer(fsys, debug)
	if err != nil {
		return nil, fmt.Errorf("setup template renderer: %w", err)
	}
	engine.HTMLRender = renderer

	csrfSecret := cfg.Server.CSRFSecret
	if isPlaceholderCSRFSecret(csrfSecret) {
		if cfg.Server.Mode == gin.ReleaseMode {
			return nil, errors.New("csrf_secret must be a non-placeholder value in release mode")
		}

		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate csrf secret: %w", err)
		}
		csrfSecret = hex.EncodeToString(b)
		log.Warn("no csrf_secret configured, using random secret in non-release mode (will change on restart)")
	} else if cfg.Server.Mode == gin.ReleaseMode {
		if err := validateReleaseCSRFSecret(csrfSecret); err != nil {
			return nil, err
		}
	}

	deps := &RouteDeps{
		Modules:    modules,
		Session:    sess,
		DB:         db,
		Mode:       cfg.Server.Mode,
		CSRFSecret: csrfSecret,
		LoginPath:  crudview.DefaultLoginPath,
	}
	if reg != nil {
		deps.Gatherer = reg
		deps.MetricsPath = cfg.Metrics.Path
	}
	if err := RegisterRoutes(engine, deps); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:  engine,
		db:      db,
		logger:  log,
		cfg:     cfg,
		session: sess,
	}, nil
}

// Handler returns the console's HTTP handler.
func (a *App) Handler() *gin.Engine {
	return a.engine
}

func isPlaceholderCSRFSecret(secret string) bool {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return true
	}

	switch strings.ToLower(trimmed) {
	case "change-me-to-a-random-secret", "change-me-in-env":
		return true
	default:
		return false
	}
}

func validateReleaseCSRFSecret(secret string) error {
	secret = strings.TrimSpace(secret)
	if len(secret) < 32 {
		return errors.New("csrf_secret must be at least 32 characters in release mode")
	}
	if config.CountSecretClasses(secret) < 3 {
		return errors.New("csrf_secret must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode")
	}
	return nil
}

func resolveDebugWebFS() (fs.FS, error) {
	if _, file, _, ok := runtime.Caller(0); ok {
		webDir := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "web"))
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	exePath, err := os.Executable()
	if err == nil {
		webDir := filepath.Join(filepath.Dir(exePath), "web")
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	return nil, errors.New("debug web directory not found")
}

// Run serves the console until a shutdown signal, then closes the database
// and the logger.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	runErr := RunServer(addr, a.engine, log, config.MustDuration(a.cfg.Server.Timeout, DefaultWriteTimeout))

	if a.db != nil {
		if err := config.CloseDatabase(a.db); err != nil {
			log.Error("database close error", slog.Any("error", err))
		} else {
			log.Info("database connection closed")
		}
	}

	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}
