package middleware

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudboard/internal/pkg"
)

// Session is the part of the auth store the guards need.
type Session interface {
	LoggedIn() bool
	RefreshIfNeeded(ctx context.Context) error
}

// RequireSession sends visitors without a session to loginPath. For signed-in
// users it renews a token that is about to expire before the handler runs.
func RequireSession(sess Session, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sess.LoggedIn() {
			if err := sess.RefreshIfNeeded(c.Request.Context()); err != nil {
				slog.WarnContext(c.Request.Context(), "token refresh failed", slog.String("error", err.Error()))
			}
		}
		if !sess.LoggedIn() {
			pkg.Redirect(c, loginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// GuestOnly sends signed-in users away from the login and registration
// pages.
func GuestOnly(sess Session, homePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sess.LoggedIn() {
			pkg.Redirect(c, homePath)
			c.Abort()
			return
		}
		c.Next()
	}
}
