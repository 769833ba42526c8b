package employee

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simp-lee/crudboard/internal/crudview"
	"github.com/simp-lee/crudboard/internal/crudview/viewtest"
	"github.com/simp-lee/crudboard/internal/domain"
)

func newTestModule(t *testing.T) (*gin.Engine, *viewtest.API) {
	t.Helper()
	api := viewtest.NewSignedInAPI(t)
	engine := viewtest.Engine()
	NewModule(api.Client, crudview.Settings{
		DefaultPageSize: 5,
		PageSizes:       []int{5, 25},
		Logger:          viewtest.DiscardLogger(),
	}).RegisterRoutes(&engine.RouterGroup)
	return engine, api
}

func seededID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("crudboard/employee/"+name))
}

func TestEmployeeGrid_SortBySalary(t *testing.T) {
	engine, _ := newTestModule(t)
	viewtest.Do(engine, http.MethodGet, "/employees", nil, false)

	viewtest.Do(engine, http.MethodPost, "/employees/sort", url.Values{"field": {"salary"}}, true)
	w := viewtest.Do(engine, http.MethodPost, "/employees/sort", url.Values{"field": {"salary"}}, true)

	want := "rows: [" + seededID("Bjarne Stroustrup").String() + "|Bjarne Stroustrup|employee24@example.com|Recruiter|82250.50|2023-11-29]"
	if !strings.HasPrefix(w.Body.String(), want) {
		t.Errorf("grid = %q\nwant prefix %q", w.Body.String(), want)
	}
}

func TestEmployeeForm_Edit(t *testing.T) {
	engine, _ := newTestModule(t)

	w := viewtest.Do(engine, http.MethodGet, "/employees/"+seededID("Ada Lovelace").String()+"/edit", nil, false)
	want := "FORM Edit Employee error: name=Ada Lovelace email=employee01@example.com position=Engineer salary=42000.50 hired_at=2020-01-06"
	if got := w.Body.String(); got != want {
		t.Errorf("edit page = %q\nwant        %q", got, want)
	}

	w = viewtest.Do(engine, http.MethodGet, "/employees/not-a-uuid/edit", nil, false)
	if w.Code != http.StatusNotFound {
		t.Errorf("bad id status = %d, want 404", w.Code)
	}
}

func TestEmployeeForm_CreateRoundsSalary(t *testing.T) {
	engine, api := newTestModule(t)

	w := viewtest.Do(engine, http.MethodPost, "/employees", url.Values{
		"name":     {"Hedy Lamarr"},
		"email":    {"hedy@example.com"},
		"position": {"Inventor"},
		"salary":   {"1234.567"},
		"hired_at": {"2024-02-29"},
	}, true)
	if w.Header().Get("HX-Redirect") != "/employees" {
		t.Fatalf("HX-Redirect = %q, body %q", w.Header().Get("HX-Redirect"), w.Body.String())
	}

	var e domain.Employee
	if err := api.DB.Where("email = ?", "hedy@example.com").First(&e).Error; err != nil {
		t.Fatalf("employee not stored: %v", err)
	}
	if !e.Salary.Equal(decimal.RequireFromString("1234.57")) {
		t.Errorf("salary = %s, want 1234.57", e.Salary)
	}
	if got := e.HiredAt.Format("2006-01-02"); got != "2024-02-29" {
		t.Errorf("hired_at = %s", got)
	}
}

func TestBind(t *testing.T) {
	tests := []struct {
		name       string
		salary     string
		wantErr    string
		wantSalary string
	}{
		{"decimal", "98000.46", "", "98000.46"},
		{"padded", " 10 ", "", "10"},
		{"not a number", "abc", "The salary must be a number.", ""},
		{"negative", "-1", "The salary must be greater than or equal to 0.", ""},
		{"missing", "", "The salary field is required.", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := viewtest.Engine()
			var (
				payload any
				fields  map[string][]string
			)
			engine.POST("/", func(c *gin.Context) { payload, fields = bind(c, false) })
			viewtest.Do(engine, http.MethodPost, "/", url.Values{
				"name": {"Some One"}, "email": {"one@example.com"}, "salary": {tt.salary},
			}, false)

			if tt.wantErr != "" {
				if got := fields["salary"]; len(got) != 1 || got[0] != tt.wantErr {
					t.Errorf("salary errors = %v, want %q", got, tt.wantErr)
				}
				return
			}
			in, ok := payload.(domain.EmployeeInput)
			if !ok || len(fields) > 0 {
				t.Fatalf("bind = %#v, %v", payload, fields)
			}
			if !in.Salary.Equal(decimal.RequireFromString(tt.wantSalary)) {
				t.Errorf("salary = %s, want %s", in.Salary, tt.wantSalary)
			}
		})
	}
}
