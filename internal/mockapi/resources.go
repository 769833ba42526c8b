package mockapi

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/pkg"
)

const hiredAtLayout = "2006-01-02"

func parseUintID(s string) (any, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return nil, domain.ErrNotFound
	}
	return uint(id), nil
}

func parseUUID(s string) (any, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return id, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", domain.NewAppError(domain.CodeInternal, "failed to hash password", err)
	}
	return string(hash), nil
}

// setTrimmed stores the trimmed value of v in dst when v is present.
func setTrimmed(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func newUserResource(db *gorm.DB) *resource[domain.User, domain.UserInput, domain.UserPatch] {
	return &resource[domain.User, domain.UserInput, domain.UserPatch]{
		label: "User",
		repo: NewRepository(db,
			Sortable[domain.User]("id", "name", "email", "created_at", "updated_at"),
			Filterable[domain.User]("name", "email"),
		),
		parseID: parseUintID,
		unique:  "email",
		validateCreate: func(in domain.UserInput) map[string][]string {
			if in.Password == "" {
				return map[string][]string{"password": {"The password field is required."}}
			}
			return nil
		},
		build: func(_ context.Context, in domain.UserInput) (*domain.User, error) {
			hash, err := hashPassword(in.Password)
			if err != nil {
				return nil, err
			}
			return &domain.User{
				Name:         strings.TrimSpace(in.Name),
				Email:        strings.TrimSpace(in.Email),
				PasswordHash: hash,
			}, nil
		},
		validateUpdate: func(up domain.UserPatch) map[string][]string {
			if up.PasswordConfirmation != nil && (up.Password == nil || *up.Password != *up.PasswordConfirmation) {
				return map[string][]string{"password_confirmation": {"The password confirmation does not match."}}
			}
			return nil
		},
		apply: func(_ context.Context, u *domain.User, up domain.UserPatch) error {
			setTrimmed(&u.Name, up.Name)
			setTrimmed(&u.Email, up.Email)
			if up.Password == nil {
				return nil
			}
			hash, err := hashPassword(*up.Password)
			if err != nil {
				return err
			}
			u.PasswordHash = hash
			return nil
		},
	}
}

func newRoleResource(db *gorm.DB) *resource[domain.Role, domain.RoleInput, domain.RolePatch] {
	return &resource[domain.Role, domain.RoleInput, domain.RolePatch]{
		label: "Role",
		repo: NewRepository(db,
			Sortable[domain.Role]("id", "name", "created_at", "updated_at"),
			Filterable[domain.Role]("name", "description"),
			Preload[domain.Role]("Permissions"),
		),
		parseID: parseUintID,
		unique:  "name",
		build: func(_ context.Context, in domain.RoleInput) (*domain.Role, error) {
			return &domain.Role{
				Name:        strings.TrimSpace(in.Name),
				Description: strings.TrimSpace(in.Description),
			}, nil
		},
		apply: func(_ context.Context, r *domain.Role, up domain.RolePatch) error {
			setTrimmed(&r.Name, up.Name)
			setTrimmed(&r.Description, up.Description)
			return nil
		},
	}
}

func newPermissionResource(db *gorm.DB) *resource[domain.Permission, domain.PermissionInput, domain.PermissionPatch] {
	return &resource[domain.Permission, domain.PermissionInput, domain.PermissionPatch]{
		label: "Permission",
		repo: NewRepository(db,
			Sortable[domain.Permission]("id", "name", "display_name", "created_at"),
			Filterable[domain.Permission]("name", "display_name"),
			OnDelete[domain.Permission](func(tx *gorm.DB, id any) error {
				return tx.Exec("DELETE FROM role_permissions WHERE permission_id = ?", id).Error
			}),
		),
		parseID: parseUintID,
		unique:  "name",
		build: func(_ context.Context, in domain.PermissionInput) (*domain.Permission, error) {
			return &domain.Permission{
				Name:        strings.TrimSpace(in.Name),
				DisplayName: strings.TrimSpace(in.DisplayName),
			}, nil
		},
		apply: func(_ context.Context, p *domain.Permission, up domain.PermissionPatch) error {
			setTrimmed(&p.Name, up.Name)
			setTrimmed(&p.DisplayName, up.DisplayName)
			return nil
		},
	}
}

func newEmployeeResource(db *gorm.DB, now func() time.Time) *resource[domain.Employee, domain.EmployeeInput, domain.EmployeePatch] {
	hiredAt := func(s string) time.Time {
		if t, err := time.Parse(hiredAtLayout, s); err == nil {
			return t
		}
		y, m, d := now().UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	return &resource[domain.Employee, domain.EmployeeInput, domain.EmployeePatch]{
		label: "Employee",
		repo: NewRepository(db,
			Sortable[domain.Employee]("name", "email", "position", "salary", "hired_at", "created_at"),
			Filterable[domain.Employee]("name", "email", "position"),
		),
		parseID: parseUUID,
		build: func(_ context.Context, in domain.EmployeeInput) (*domain.Employee, error) {
			return &domain.Employee{
				ID:       uuid.New(),
				Name:     strings.TrimSpace(in.Name),
				Email:    strings.TrimSpace(in.Email),
				Position: strings.TrimSpace(in.Position),
				Salary:   in.Salary.Round(2),
				HiredAt:  hiredAt(in.HiredAt),
			}, nil
		},
		apply: func(_ context.Context, e *domain.Employee, up domain.EmployeePatch) error {
			setTrimmed(&e.Name, up.Name)
			setTrimmed(&e.Email, up.Email)
			setTrimmed(&e.Position, up.Position)
			if up.Salary != nil {
				e.Salary = up.Salary.Round(2)
			}
			if up.HiredAt != nil {
				e.HiredAt = hiredAt(*up.HiredAt)
			}
			return nil
		},
	}
}

// rolePermissionsHandler serves PUT roles/:id/permissions, replacing the
// role's permission set in one transaction.
type rolePermissionsHandler struct {
	db    *gorm.DB
	roles *Repository[domain.Role]
}

func (h *rolePermissionsHandler) sync(c *gin.Context) {
	id, err := parseUintID(c.Param("id"))
	if err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeNotFound, "Role not found", err))
		return
	}
	var in domain.RolePermissions
	if !pkg.BindAndValidate(c, &in) {
		return
	}

	ids := slices.Clone(in.PermissionIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	ctx := c.Request.Context()
	err = pkg.WithTx(ctx, h.db, func(tx *gorm.DB) error {
		var role domain.Role
		if err := tx.First(&role, "id = ?", id).Error; err != nil {
			return domain.NewAppError(domain.CodeNotFound, "Role not found", mapError(err))
		}

		perms := make([]domain.Permission, 0, len(ids))
		if len(ids) > 0 {
			if err := tx.Where("id IN ?", ids).Find(&perms).Error; err != nil {
				return mapError(err)
			}
		}
		if len(perms) != len(ids) {
			return domain.NewValidationError(pkg.ValidationMessage, map[string][]string{
				"permission_ids": {"The selected permission ids is invalid."},
			})
		}

		assoc := tx.Model(&role).Association("Permissions")
		if len(perms) == 0 {
			return mapError(assoc.Clear())
		}
		return mapError(assoc.Replace(perms))
	})
	if err != nil {
		pkg.Error(c, err)
		return
	}

	role, err := h.roles.Get(ctx, id)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, role)
}
