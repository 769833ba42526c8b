// Package employee is the console's grid for the demo employee data set,
// which is keyed by UUID and carries a decimal salary.
package employee

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simp-lee/crudboard/internal/crud"
	"github.com/simp-lee/crudboard/internal/crudview"
	"github.com/simp-lee/crudboard/internal/domain"
)

// EmployeeModule serves /employees.
type EmployeeModule struct {
	grid *crudview.Grid[domain.Employee, uuid.UUID]
}

// NewModule creates the employees grid. Panics if client is nil.
func NewModule(client crud.Client, s crudview.Settings) *EmployeeModule {
	if client == nil {
		panic("employee.NewModule: client must not be nil")
	}
	return &EmployeeModule{grid: crudview.New(crudview.Config[domain.Employee, uuid.UUID]{
		Path:     "/employees",
		Title:    "Employees",
		Singular: "Employee",
		Columns:  columns,
		Store:    crudview.NewStore[domain.Employee, uuid.UUID](client, "employees", s),
		ParseID:  uuid.Parse,
		Settings: s,
		Form: &crudview.Form[domain.Employee, uuid.UUID]{
			Fields: []crudview.Field{
				{Name: "name", Label: "Name", Type: "text", Required: true},
				{Name: "email", Label: "Email", Type: "email", Required: true},
				{Name: "position", Label: "Position", Type: "text"},
				{Name: "salary", Label: "Salary", Type: "number", Required: true, Hint: "Yearly, two decimals"},
				{Name: "hired_at", Label: "Hired", Type: "date"},
			},
			Values: func(e domain.Employee) map[string][]string {
				return map[string][]string{
					"name":     {e.Name},
					"email":    {e.Email},
					"position": {e.Position},
					"salary":   {e.Salary.StringFixed(2)},
					"hired_at": {crudview.FormatDate(e.HiredAt)},
				}
			},
			Bind: bind,
		},
	})}
}

// RegisterRoutes registers the employee pages.
func (m *EmployeeModule) RegisterRoutes(pages *gin.RouterGroup) {
	m.grid.RegisterRoutes(pages)
}

var columns = []crudview.Column[domain.Employee]{
	{Field: "name", Label: "Name", Sortable: true, Filterable: true, Value: func(e domain.Employee) string { return e.Name }},
	{Field: "email", Label: "Email", Sortable: true, Filterable: true, Value: func(e domain.Employee) string { return e.Email }},
	{Field: "position", Label: "Position", Sortable: true, Filterable: true, Value: func(e domain.Employee) string { return e.Position }},
	{Field: "salary", Label: "Salary", Sortable: true, Value: func(e domain.Employee) string { return e.Salary.StringFixed(2) }},
	{Field: "hired_at", Label: "Hired", Sortable: true, Value: func(e domain.Employee) string { return crudview.FormatDate(e.HiredAt) }},
}

// employeeForm is the submitted form. Salary arrives as text and is parsed
// into a decimal so no precision is lost on the way to the API.
type employeeForm struct {
	Name     string `form:"name" json:"name" binding:"required,min=2,max=100"`
	Email    string `form:"email" json:"email" binding:"required,email"`
	Position string `form:"position" json:"position" binding:"max=100"`
	Salary   string `form:"salary" json:"salary" binding:"required"`
	HiredAt  string `form:"hired_at" json:"hired_at" binding:"omitempty,datetime=2006-01-02"`
}

func bind(c *gin.Context, _ bool) (any, map[string][]string) {
	in, fields := crudview.BindForm[employeeForm](c)
	if fields != nil {
		return nil, fields
	}
	salary, err := decimal.NewFromString(strings.TrimSpace(in.Salary))
	if err != nil {
		return nil, map[string][]string{"salary": {"The salary must be a number."}}
	}
	if salary.IsNegative() {
		return nil, map[string][]string{"salary": {"The salary must be greater than or equal to 0."}}
	}
	return domain.EmployeeInput{
		Name:     in.Name,
		Email:    in.Email,
		Position: in.Position,
		Salary:   salary,
		HiredAt:  in.HiredAt,
	}, nil
}
