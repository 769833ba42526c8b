package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudboard/internal/crudview"
	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/pkg"
	"github.com/simp-lee/crudboard/internal/session"
)

// AuthHandler renders the auth pages.
type AuthHandler struct {
	sess Session
	opts Options
}

// LoginPage handles GET /login.
func (h *AuthHandler) LoginPage(c *gin.Context) {
	h.render(c, http.StatusOK, "auth/login.html", gin.H{"Title": "Log in"})
}

// Login handles POST /login.
func (h *AuthHandler) Login(c *gin.Context) {
	in, fields := crudview.BindForm[domain.Credentials](c)
	data := gin.H{"Title": "Log in", "Email": in.Email}
	if fields != nil {
		h.reject(c, "auth/login.html", data, fields, "")
		return
	}

	if err := h.sess.Login(c.Request.Context(), in); err != nil {
		h.rejectSession(c, "auth/login.html", data)
		return
	}
	h.signedIn(c, "Welcome back")
}

// RegisterPage handles GET /register.
func (h *AuthHandler) RegisterPage(c *gin.Context) {
	h.render(c, http.StatusOK, "auth/register.html", gin.H{"Title": "Create an account"})
}

// Register handles POST /register.
func (h *AuthHandler) Register(c *gin.Context) {
	in, fields := crudview.BindForm[domain.Registration](c)
	data := gin.H{"Title": "Create an account", "Name": in.Name, "Email": in.Email}
	if fields != nil {
		h.reject(c, "auth/register.html", data, fields, "")
		return
	}

	if err := h.sess.Register(c.Request.Context(), in); err != nil {
		h.rejectSession(c, "auth/register.html", data)
		return
	}
	h.signedIn(c, "Welcome")
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sess.Logout(c.Request.Context()); err != nil {
		h.opts.Logger.ErrorContext(c.Request.Context(), "logout failed", slog.String("error", err.Error()))
	}
	pkg.Toast(c, "You have been logged out.", pkg.ToastInfo)
	pkg.Redirect(c, h.opts.LoginPath)
}

// Profile handles GET /profile. The profile is reloaded from the API; when
// that fails for any reason but an expired session the last known profile
// is shown with the error.
func (h *AuthHandler) Profile(c *gin.Context) {
	profile, err := h.sess.FetchProfile(c.Request.Context())
	data := gin.H{"Title": "Profile"}
	if err != nil {
		if h.expired(c, err) {
			return
		}
		profile = h.sess.Snapshot().Profile
		data["Error"] = domain.Message(err)
	}
	data["Profile"] = profile
	h.render(c, http.StatusOK, "auth/profile.html", data)
}

// EditProfilePage handles GET /profile/edit.
func (h *AuthHandler) EditProfilePage(c *gin.Context) {
	profile := h.sess.Snapshot().Profile
	if profile == nil {
		var err error
		if profile, err = h.sess.FetchProfile(c.Request.Context()); err != nil {
			if h.expired(c, err) {
				return
			}
			h.render(c, http.StatusOK, "auth/profile_edit.html", gin.H{"Title": "Edit profile", "Error": domain.Message(err)})
			return
		}
	}
	h.render(c, http.StatusOK, "auth/profile_edit.html", gin.H{
		"Title":   "Edit profile",
		"Profile": profile,
		"Name":    profile.Name,
		"Email":   profile.Email,
	})
}

// UpdateProfile handles POST /profile/edit. The form is multipart so it can
// carry an optional avatar image.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	in, fields := crudview.BindForm[domain.ProfileInput](c)
	data := gin.H{"Title": "Edit profile", "Profile": h.sess.Snapshot().Profile, "Name": in.Name, "Email": in.Email}
	if fields != nil {
		h.reject(c, "auth/profile_edit.html", data, fields, "")
		return
	}

	update := session.ProfileUpdate{Name: in.Name, Email: in.Email}
	fh, err := c.FormFile("avatar")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		h.reject(c, "auth/profile_edit.html", data, map[string][]string{"avatar": {"The avatar failed to upload."}}, "")
		return
	default:
		f, err := fh.Open()
		if err != nil {
			h.reject(c, "auth/profile_edit.html", data, map[string][]string{"avatar": {"The avatar failed to upload."}}, "")
			return
		}
		defer f.Close()
		update.Avatar = &session.Avatar{Filename: fh.Filename, Content: f}
	}

	if _, err := h.sess.UpdateProfile(c.Request.Context(), update); err != nil {
		if h.expired(c, err) {
			return
		}
		h.rejectSession(c, "auth/profile_edit.html", data)
		return
	}
	pkg.Toast(c, "Profile updated.", pkg.ToastSuccess)
	pkg.Redirect(c, "/profile")
}

func (h *AuthHandler) signedIn(c *gin.Context, greeting string) {
	msg := greeting + "."
	if p := h.sess.Snapshot().Profile; p != nil {
		msg = greeting + ", " + p.Name + "."
	}
	pkg.Toast(c, msg, pkg.ToastSuccess)
	pkg.Redirect(c, h.opts.HomePath)
}

// rejectSession re-renders a form with the errors the session store
// recorded for the last request.
func (h *AuthHandler) rejectSession(c *gin.Context, page string, data gin.H) {
	st := h.sess.Snapshot()
	h.reject(c, page, data, st.ValidationErrors, st.Error)
}

func (h *AuthHandler) reject(c *gin.Context, page string, data gin.H, fields map[string][]string, message string) {
	if msg, ok := fields[crudview.FormErrorKey]; ok {
		message = msg[0]
		delete(fields, crudview.FormErrorKey)
	}
	data["Errors"] = fields
	data["Error"] = message
	status := http.StatusUnprocessableEntity
	if pkg.IsHTMX(c) {
		status = http.StatusOK
	}
	h.render(c, status, page, data)
}

func (h *AuthHandler) expired(c *gin.Context, err error) bool {
	if !domain.IsUnauthorized(err) {
		return false
	}
	pkg.Toast(c, "Your session has expired. Please log in again.", pkg.ToastError)
	pkg.Redirect(c, h.opts.LoginPath)
	return true
}

// render fills in an empty error set so pages can look up field errors by
// name.
func (h *AuthHandler) render(c *gin.Context, status int, page string, data gin.H) {
	if _, ok := data["Errors"]; !ok {
		data["Errors"] = map[string][]string{}
	}
	c.HTML(status, page, crudview.PageData(c, data))
}
