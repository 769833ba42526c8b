package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Employee is the demo data set. It is keyed by UUID rather than an integer.
type Employee struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string          `gorm:"size:100;not null" json:"name"`
	Email     string          `gorm:"size:255;not null" json:"email"`
	Position  string          `gorm:"size:100" json:"position"`
	Salary    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"salary"`
	HiredAt   time.Time       `json:"hired_at"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// GetID returns the employee identifier.
func (e Employee) GetID() uuid.UUID {
	return e.ID
}

// EmployeeInput is the payload for creating or updating an employee.
type EmployeeInput struct {
	Name     string          `json:"name" form:"name" binding:"required,min=2,max=100"`
	Email    string          `json:"email" form:"email" binding:"required,email"`
	Position string          `json:"position" form:"position" binding:"max=100"`
	Salary   decimal.Decimal `json:"salary" form:"-" binding:"gte=0"`
	HiredAt  string          `json:"hired_at,omitempty" form:"hired_at" binding:"omitempty,datetime=2006-01-02"`
}

// EmployeePatch is a partial employee update. Nil fields are left unchanged.
type EmployeePatch struct {
	Name     *string          `json:"name" binding:"omitempty,min=2,max=100"`
	Email    *string          `json:"email" binding:"omitempty,email"`
	Position *string          `json:"position" binding:"omitempty,max=100"`
	Salary   *decimal.Decimal `json:"salary" binding:"omitempty,gte=0"`
	HiredAt  *string          `json:"hired_at" binding:"omitempty,datetime=2006-01-02"`
}
