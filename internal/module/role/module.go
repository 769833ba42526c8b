// Package role is the console's role grid. The role form also assigns
// permissions, which the API stores through a dedicated call.
package role

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudboard/internal/apiclient"
	"github.com/simp-lee/crudboard/internal/crud"
	"github.com/simp-lee/crudboard/internal/crudview"
	"github.com/simp-lee/crudboard/internal/domain"
)

// catalogPageSize is the page size used to read the whole permission list.
const catalogPageSize = 100

// RoleModule serves /roles.
type RoleModule struct {
	grid *crudview.Grid[domain.Role, uint]
}

// NewModule creates the roles grid backed by the "roles" collection.
// Panics if client is nil.
func NewModule(client crud.Client, s crudview.Settings) *RoleModule {
	if client == nil {
		panic("role.NewModule: client must not be nil")
	}
	perms := &permissions{client: client}
	return &RoleModule{grid: crudview.New(crudview.Config[domain.Role, uint]{
		Path:     "/roles",
		Title:    "Roles",
		Singular: "Role",
		Columns:  columns,
		Store:    crudview.NewStore[domain.Role, uint](client, "roles", s),
		ParseID:  crudview.ParseUint,
		Settings: s,
		Form: &crudview.Form[domain.Role, uint]{
			Fields: []crudview.Field{
				{Name: "name", Label: "Name", Type: "text", Required: true},
				{Name: "description", Label: "Description", Type: "textarea"},
				{Name: "permission_ids", Label: "Permissions", Type: "checkboxes", Options: options},
			},
			Values: func(r domain.Role) map[string][]string {
				ids := make([]string, 0, len(r.Permissions))
				for _, id := range r.PermissionIDs() {
					ids = append(ids, crudview.FormatUint(id))
				}
				return map[string][]string{
					"name":           {r.Name},
					"description":    {r.Description},
					"permission_ids": ids,
				}
			},
			Bind: func(c *gin.Context, _ bool) (any, map[string][]string) {
				in, fields := crudview.BindForm[domain.RoleInput](c)
				if fields != nil {
					return nil, fields
				}
				return in, nil
			},
			Extra:     perms.catalog,
			AfterSave: perms.assign,
		},
	})}
}

// RegisterRoutes registers the role pages.
func (m *RoleModule) RegisterRoutes(pages *gin.RouterGroup) {
	m.grid.RegisterRoutes(pages)
}

var columns = []crudview.Column[domain.Role]{
	{Field: "id", Label: "ID", Sortable: true, Value: func(r domain.Role) string { return crudview.FormatUint(r.ID) }},
	{Field: "name", Label: "Name", Sortable: true, Filterable: true, Value: func(r domain.Role) string { return r.Name }},
	{Field: "description", Label: "Description", Filterable: true, Value: func(r domain.Role) string { return r.Description }},
	{Field: "permissions", Label: "Permissions", Value: func(r domain.Role) string { return strconv.Itoa(len(r.Permissions)) }},
	{Field: "created_at", Label: "Created", Sortable: true, Value: func(r domain.Role) string { return crudview.FormatTime(r.CreatedAt) }},
}

// permissions reads the permission catalogue and writes role assignments.
type permissions struct {
	client crud.Client
}

// catalog loads every permission, ordered by name.
func (p *permissions) catalog(ctx context.Context) (any, error) {
	var all []domain.Permission
	for page := 1; ; page++ {
		env, err := p.client.Get(ctx, "permissions", url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(catalogPageSize)},
			"sort":     {"name"},
		})
		if err != nil {
			return nil, err
		}
		items, err := apiclient.DecodeList[domain.Permission](env)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if env.Meta == nil || page >= env.Meta.LastPage || len(items) == 0 {
			return all, nil
		}
	}
}

// assign replaces the permissions of role with the checked ones.
func (p *permissions) assign(ctx context.Context, c *gin.Context, role domain.Role) error {
	ids := make([]uint, 0)
	for _, raw := range c.PostFormArray("permission_ids") {
		id, err := crudview.ParseUint(strings.TrimSpace(raw))
		if err != nil {
			return domain.NewValidationError("The given data was invalid.", map[string][]string{
				"permission_ids": {"The selected permission ids is invalid."},
			})
		}
		ids = append(ids, id)
	}
	path := "roles/" + crudview.FormatUint(role.ID) + "/permissions"
	_, err := p.client.Send(ctx, http.MethodPut, path, nil, domain.RolePermissions{PermissionIDs: ids})
	return err
}

func options(extra any) []crudview.Option {
	perms, _ := extra.([]domain.Permission)
	opts := make([]crudview.Option, 0, len(perms))
	for _, p := range perms {
		label := p.DisplayName
		if label == "" {
			label = p.Name
		}
		opts = append(opts, crudview.Option{Value: crudview.FormatUint(p.ID), Label: label})
	}
	return opts
}
