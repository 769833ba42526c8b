// Package user is the console's user management grid.
package user

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudboard/internal/crud"
	"github.com/simp-lee/crudboard/internal/crudview"
	"github.com/simp-lee/crudboard/internal/domain"
)

// UserModule serves /users.
type UserModule struct {
	grid *crudview.Grid[domain.User, uint]
}

// NewModule creates the users grid backed by the "users" collection.
// Panics if client is nil.
func NewModule(client crud.Client, s crudview.Settings) *UserModule {
	if client == nil {
		panic("user.NewModule: client must not be nil")
	}
	return &UserModule{grid: crudview.New(crudview.Config[domain.User, uint]{
		Path:     "/users",
		Title:    "Users",
		Singular: "User",
		Columns:  columns,
		Store:    crudview.NewStore[domain.User, uint](client, "users", s),
		ParseID:  crudview.ParseUint,
		Form:     form,
		Settings: s,
	})}
}

// RegisterRoutes registers the user pages.
func (m *UserModule) RegisterRoutes(pages *gin.RouterGroup) {
	m.grid.RegisterRoutes(pages)
}

var columns = []crudview.Column[domain.User]{
	{Field: "id", Label: "ID", Sortable: true, Value: func(u domain.User) string { return crudview.FormatUint(u.ID) }},
	{Field: "name", Label: "Name", Sortable: true, Filterable: true, Value: func(u domain.User) string { return u.Name }},
	{Field: "email", Label: "Email", Sortable: true, Filterable: true, Value: func(u domain.User) string { return u.Email }},
	{Field: "created_at", Label: "Created", Sortable: true, Value: func(u domain.User) string { return crudview.FormatTime(u.CreatedAt) }},
}

var form = &crudview.Form[domain.User, uint]{
	Fields: []crudview.Field{
		{Name: "name", Label: "Name", Type: "text", Required: true},
		{Name: "email", Label: "Email", Type: "email", Required: true},
		{Name: "password", Label: "Password", Type: "password", Hint: "At least 8 characters. Leave blank to keep the current password."},
		{Name: "password_confirmation", Label: "Confirm password", Type: "password"},
	},
	Values: func(u domain.User) map[string][]string {
		return map[string][]string{"name": {u.Name}, "email": {u.Email}}
	},
	Bind: bind,
}

// bind reads the user form. A password is required on create, and a given
// password must be confirmed.
func bind(c *gin.Context, editing bool) (any, map[string][]string) {
	in, fields := crudview.BindForm[domain.UserInput](c)
	if fields != nil {
		return nil, fields
	}
	fields = map[string][]string{}
	if !editing && in.Password == "" {
		fields["password"] = []string{"The password field is required."}
	}
	if in.Password != "" && in.PasswordConfirmation != in.Password {
		fields["password_confirmation"] = []string{"The password confirmation does not match."}
	}
	if len(fields) > 0 {
		return nil, fields
	}
	return in, nil
}
