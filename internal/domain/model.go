package domain

import "time"

// BaseModel is the common base struct for all domain models.
// It replaces gorm.Model to avoid the implicit soft delete behavior of DeletedAt.
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetID returns the primary key.
func (m BaseModel) GetID() uint {
	return m.ID
}

// PageRequest holds pagination, sorting, and filtering parameters as received
// on the wire: 1-based page, per_page, a comma-separated sort list with "-"
// marking descending fields, and filter[<key>] values.
type PageRequest struct {
	Page    int
	PerPage int
	Sort    string
	Filter  map[string]string
}

// PageMeta is the pagination metadata returned with a list response.
type PageMeta struct {
	Total       int64 `json:"total"`
	PerPage     int   `json:"per_page"`
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
}

// PageLinks holds references to neighbouring pages of a list response.
// Absent links are nil.
type PageLinks struct {
	First *string `json:"first"`
	Last  *string `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
}

// Page is one page of a list result.
type Page[T any] struct {
	Items []T
	Meta  PageMeta
	Links PageLinks
}
