// Package permission is the console's permission grid.
package permission

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/crudboard/internal/crud"
	"github.com/simp-lee/crudboard/internal/crudview"
	"github.com/simp-lee/crudboard/internal/domain"
)

// PermissionModule serves /permissions.
type PermissionModule struct {
	grid *crudview.Grid[domain.Permission, uint]
}

// NewModule creates the permissions grid. Panics if client is nil.
func NewModule(client crud.Client, s crudview.Settings) *PermissionModule {
	if client == nil {
		panic("permission.NewModule: client must not be nil")
	}
	return &PermissionModule{grid: crudview.New(crudview.Config[domain.Permission, uint]{
		Path:     "/permissions",
		Title:    "Permissions",
		Singular: "Permission",
		Columns: []crudview.Column[domain.Permission]{
			{Field: "id", Label: "ID", Sortable: true, Value: func(p domain.Permission) string { return crudview.FormatUint(p.ID) }},
			{Field: "name", Label: "Name", Sortable: true, Filterable: true, Value: func(p domain.Permission) string { return p.Name }},
			{Field: "display_name", Label: "Display name", Sortable: true, Filterable: true, Value: func(p domain.Permission) string { return p.DisplayName }},
		},
		Store:    crudview.NewStore[domain.Permission, uint](client, "permissions", s),
		ParseID:  crudview.ParseUint,
		Settings: s,
		Form: &crudview.Form[domain.Permission, uint]{
			Fields: []crudview.Field{
				{Name: "name", Label: "Name", Type: "text", Required: true, Hint: "Dotted identifier, e.g. reports.view"},
				{Name: "display_name", Label: "Display name", Type: "text"},
			},
			Values: func(p domain.Permission) map[string][]string {
				return map[string][]string{"name": {p.Name}, "display_name": {p.DisplayName}}
			},
			Bind: func(c *gin.Context, _ bool) (any, map[string][]string) {
				in, fields := crudview.BindForm[domain.PermissionInput](c)
				if fields != nil {
					return nil, fields
				}
				return in, nil
			},
		},
	})}
}

// RegisterRoutes registers the permission pages.
func (m *PermissionModule) RegisterRoutes(pages *gin.RouterGroup) {
	m.grid.RegisterRoutes(pages)
}
