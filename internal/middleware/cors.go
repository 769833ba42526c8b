package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig holds the configuration for the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to make cross-origin requests.
	// ["*"] allows every origin; an empty list denies every cross-origin request.
	AllowOrigins []string

	// AllowCredentials indicates whether the request can include credentials like cookies.
	AllowCredentials bool

	// MaxAge is how long the results of a preflight request can be cached.
	MaxAge time.Duration
}

// DefaultCORSConfig returns a permissive CORS configuration suitable for development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		MaxAge:       24 * time.Hour,
	}
}

// CORS returns a gin middleware that handles Cross-Origin Resource Sharing
// for the demo API. Browsers may call it directly with a bearer token, so
// Authorization is an allowed header and X-Request-ID is exposed.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Request-ID"}
	c.ExposeHeaders = []string{"X-Request-ID"}
	if cfg.MaxAge > 0 {
		c.MaxAge = cfg.MaxAge
	}

	switch {
	case slices.Contains(cfg.AllowOrigins, "*"):
		c.AllowAllOrigins = true
	case len(cfg.AllowOrigins) == 0:
		c.AllowOriginFunc = func(string) bool { return false }
	default:
		c.AllowOrigins = cfg.AllowOrigins
		c.AllowCredentials = cfg.AllowCredentials
	}

	return cors.New(c)
}
