package mockapi

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/pkg"
)

const (
	userIDKey = "auth_user_id"

	// AvatarRoute is where uploaded avatars are served from.
	AvatarRoute = "/storage/avatars"

	maxAvatarBytes = 2 << 20
	badCredentials = "These credentials do not match our records."
)

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// authHandler serves the auth/* endpoints.
type authHandler struct {
	users     *Repository[domain.User]
	tokens    *tokenIssuer
	avatarDir string
	logger    *slog.Logger
}

// Login handles POST auth/login.
func (h *authHandler) Login(c *gin.Context) {
	var in domain.Credentials
	if !pkg.BindAndValidate(c, &in) {
		return
	}

	user, err := h.users.FindBy(c.Request.Context(), "email", strings.TrimSpace(in.Email))
	if err != nil {
		// Unknown accounts and wrong passwords look the same.
		if domain.IsNotFound(err) {
			pkg.Error(c, credentialsError())
			return
		}
		pkg.Error(c, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		pkg.Error(c, credentialsError())
		return
	}

	h.respondToken(c, http.StatusOK, user.ID)
}

// Register handles POST auth/register.
func (h *authHandler) Register(c *gin.Context) {
	var in domain.Registration
	if !pkg.BindAndValidate(c, &in) {
		return
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	user := domain.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
	}
	if err := h.users.Create(c.Request.Context(), &user); err != nil {
		if domain.IsAlreadyExists(err) {
			err = takenError("email")
		}
		pkg.Error(c, err)
		return
	}

	h.respondToken(c, http.StatusCreated, user.ID)
}

// Refresh handles POST auth/refresh.
func (h *authHandler) Refresh(c *gin.Context) {
	h.respondToken(c, http.StatusOK, c.GetUint(userIDKey))
}

// Profile handles GET auth/profile.
func (h *authHandler) Profile(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.GetUint(userIDKey))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, user)
}

// UpdateProfile handles POST auth/profile. The body is multipart form data
// with optional name, email and avatar parts.
func (h *authHandler) UpdateProfile(c *gin.Context) {
	var in domain.ProfileInput
	if !pkg.BindAndValidate(c, &in) {
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Get(ctx, c.GetUint(userIDKey))
	if err != nil {
		pkg.Error(c, err)
		return
	}

	if name := strings.TrimSpace(in.Name); name != "" {
		user.Name = name
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		user.Email = email
	}

	fh, err := c.FormFile("avatar")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		pkg.Error(c, avatarError("The avatar failed to upload."))
		return
	default:
		name, err := h.storeAvatar(c, fh)
		if err != nil {
			pkg.Error(c, err)
			return
		}
		avatar := absoluteURL(c, AvatarRoute+"/"+name)
		user.Avatar = &avatar
	}

	if err := h.users.Save(ctx, user); err != nil {
		if domain.IsAlreadyExists(err) {
			err = takenError("email")
		}
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, user)
}

// storeAvatar checks the upload is a small image and writes it under a
// random name. It returns the stored file name.
func (h *authHandler) storeAvatar(c *gin.Context, fh *multipart.FileHeader) (string, error) {
	if fh.Size > maxAvatarBytes {
		return "", avatarError("The avatar may not be greater than 2048 kilobytes.")
	}

	f, err := fh.Open()
	if err != nil {
		return "", avatarError("The avatar failed to upload.")
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", avatarError("The avatar failed to upload.")
	}
	ext, ok := avatarExtensions[http.DetectContentType(head[:n])]
	if !ok {
		return "", avatarError("The avatar must be an image.")
	}

	if err := os.MkdirAll(h.avatarDir, 0o755); err != nil {
		return "", domain.NewAppError(domain.CodeInternal, "failed to prepare avatar storage", err)
	}
	name := uuid.NewString() + ext
	if err := c.SaveUploadedFile(fh, filepath.Join(h.avatarDir, name)); err != nil {
		return "", domain.NewAppError(domain.CodeInternal, "failed to store avatar", err)
	}
	h.logger.InfoContext(c.Request.Context(), "avatar stored",
		slog.String("file", name),
		slog.Int64("bytes", fh.Size),
	)
	return name, nil
}

func (h *authHandler) respondToken(c *gin.Context, status int, userID uint) {
	token, err := h.tokens.issue(userID)
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeInternal, "failed to generate token", err))
		return
	}
	c.JSON(status, pkg.Response{Data: domain.AccessToken{AccessToken: token}})
}

// authenticate rejects requests without a valid bearer token whose user
// still exists.
func (h *authHandler) authenticate(c *gin.Context) {
	raw, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		abortUnauthenticated(c)
		return
	}
	id, err := h.tokens.verify(raw)
	if err != nil {
		abortUnauthenticated(c)
		return
	}
	if _, err := h.users.Get(c.Request.Context(), id); err != nil {
		if domain.IsNotFound(err) {
			abortUnauthenticated(c)
			return
		}
		pkg.Error(c, err)
		c.Abort()
		return
	}
	c.Set(userIDKey, id)
	c.Next()
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthenticated(c *gin.Context) {
	pkg.Error(c, domain.NewAppError(domain.CodeUnauthorized, "Unauthenticated.", nil))
	c.Abort()
}

func credentialsError() error {
	return domain.NewValidationError(badCredentials, map[string][]string{
		"email": {badCredentials},
	})
}

func avatarError(msg string) error {
	return domain.NewValidationError(pkg.ValidationMessage, map[string][]string{
		"avatar": {msg},
	})
}
