package domain

// Role groups permissions. Permissions are assigned through a dedicated call
// rather than through the generic update.
type Role struct {
	BaseModel
	Name        string       `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string       `gorm:"size:255" json:"description"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
}

// PermissionIDs returns the identifiers of the role's permissions.
func (r Role) PermissionIDs() []uint {
	ids := make([]uint, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		ids = append(ids, p.ID)
	}
	return ids
}

// Permission is a named capability that can be granted to roles.
type Permission struct {
	BaseModel
	Name        string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	DisplayName string `gorm:"size:255" json:"display_name"`
}

// RoleInput is the payload for creating or updating a role.
type RoleInput struct {
	Name        string `json:"name" form:"name" binding:"required,min=2,max=100"`
	Description string `json:"description" form:"description" binding:"max=255"`
}

// PermissionInput is the payload for creating or updating a permission.
type PermissionInput struct {
	Name        string `json:"name" form:"name" binding:"required,min=2,max=100"`
	DisplayName string `json:"display_name" form:"display_name" binding:"max=255"`
}

// RolePatch is a partial role update.
type RolePatch struct {
	Name        *string `json:"name" binding:"omitempty,min=2,max=100"`
	Description *string `json:"description" binding:"omitempty,max=255"`
}

// PermissionPatch is a partial permission update.
type PermissionPatch struct {
	Name        *string `json:"name" binding:"omitempty,min=2,max=100"`
	DisplayName *string `json:"display_name" binding:"omitempty,max=255"`
}

// RolePermissions is the body of the role permission assignment call.
type RolePermissions struct {
	PermissionIDs []uint `json:"permission_ids" form:"permission_ids"`
}
