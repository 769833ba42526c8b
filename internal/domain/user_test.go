package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func TestUserJSON_PasswordHashHidden(t *testing.T) {
	avatar := "http://api.test/avatars/1.png"
	user := User{
		BaseModel:    BaseModel{ID: 7},
		Name:         "Alice",
		Email:        "alice@example.com",
		Avatar:       &avatar,
		PasswordHash: "$2a$10$examplehash",
	}

	raw, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}
	body := string(raw)
	if strings.Contains(body, "password_hash") || strings.Contains(body, "$2a$10$examplehash") {
		t.Fatalf("json leaks the password hash: %s", body)
	}

	var back User
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	user.PasswordHash = ""
	if diff := cmp.Diff(user, back); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}
}

func TestUserJSON_NullAvatar(t *testing.T) {
	var user User
	input := `{"id":3,"name":"Bob","email":"bob@example.com","avatar":null,"password_hash":"attacker-controlled"}`
	if err := json.Unmarshal([]byte(input), &user); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	if user.Avatar != nil {
		t.Errorf("Avatar = %q, want nil", *user.Avatar)
	}
	if user.PasswordHash != "" {
		t.Errorf("PasswordHash = %q, want empty", user.PasswordHash)
	}
	if user.GetID() != 3 {
		t.Errorf("GetID() = %d, want 3", user.GetID())
	}
}

func TestUserInputJSON_OmitsEmptyPassword(t *testing.T) {
	raw, err := json.Marshal(UserInput{Name: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"name":"Alice","email":"alice@example.com"}`; string(raw) != want {
		t.Errorf("json = %s, want %s", raw, want)
	}
}

func TestEmployeeJSON_Salary(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"quoted", `{"salary":"42000.50"}`, "42000.5"},
		{"number", `{"salary":42000.5}`, "42000.5"},
		{"integer", `{"salary":100}`, "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Employee
			if err := json.Unmarshal([]byte(tt.input), &e); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !e.Salary.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Salary = %s, want %s", e.Salary, tt.want)
			}
		})
	}
}
