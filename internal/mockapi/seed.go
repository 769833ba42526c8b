package mockapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/simp-lee/crudboard/internal/domain"
	"github.com/simp-lee/crudboard/internal/pkg"
)

// Seed credentials for the demo administrator.
const (
	SeedAdminEmail    = "admin@example.com"
	SeedAdminPassword = "password"
)

var seedPermissions = []domain.Permission{
	{Name: "users.view", DisplayName: "View users"},
	{Name: "users.manage", DisplayName: "Create, edit and delete users"},
	{Name: "roles.view", DisplayName: "View roles"},
	{Name: "roles.manage", DisplayName: "Create, edit and delete roles"},
	{Name: "permissions.view", DisplayName: "View permissions"},
	{Name: "permissions.manage", DisplayName: "Create, edit and delete permissions"},
	{Name: "employees.view", DisplayName: "View employees"},
	{Name: "employees.manage", DisplayName: "Create, edit and delete employees"},
}

var seedPositions = []string{"Engineer", "Designer", "Product Manager", "Support", "Accountant", "Recruiter"}

var seedNames = []string{
	"Ada Lovelace", "Alan Turing", "Barbara Liskov", "Brian Kernighan", "Dennis Ritchie",
	"Donald Knuth", "Edsger Dijkstra", "Frances Allen", "Grace Hopper", "John McCarthy",
	"Ken Thompson", "Leslie Lamport", "Margaret Hamilton", "Niklaus Wirth", "Radia Perlman",
	"Rob Pike", "Robert Griesemer", "Shafi Goldwasser", "Tony Hoare", "Vint Cerf",
	"Whitfield Diffie", "Yukihiro Matsumoto", "Anders Hejlsberg", "Bjarne Stroustrup",
}

// Seed fills an empty database with demo rows. It does nothing when any
// user exists already.
func Seed(ctx context.Context, db *gorm.DB, logger *slog.Logger) error {
	var users int64
	if err := db.WithContext(ctx).Model(&domain.User{}).Count(&users).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if users > 0 {
		logger.Info("seed skipped, database not empty", slog.Int64("users", users))
		return nil
	}

	hash, err := hashPassword(SeedAdminPassword)
	if err != nil {
		return err
	}

	err = pkg.WithTx(ctx, db, func(tx *gorm.DB) error {
		perms := make([]domain.Permission, len(seedPermissions))
		copy(perms, seedPermissions)
		if err := tx.Create(&perms).Error; err != nil {
			return fmt.Errorf("seed permissions: %w", err)
		}

		var views []domain.Permission
		for i, p := range perms {
			if i%2 == 0 {
				views = append(views, p)
			}
		}
		roles := []domain.Role{
			{Name: "admin", Description: "Full access", Permissions: perms},
			{Name: "editor", Description: "Manages employees", Permissions: append(views[:len(views):len(views)], perms[7])},
			{Name: "viewer", Description: "Read-only access", Permissions: views},
		}
		if err := tx.Create(&roles).Error; err != nil {
			return fmt.Errorf("seed roles: %w", err)
		}

		all := []domain.User{{Name: "Administrator", Email: SeedAdminEmail, PasswordHash: hash}}
		for i, name := range seedNames {
			all = append(all, domain.User{
				Name:         name,
				Email:        fmt.Sprintf("user%02d@example.com", i+1),
				PasswordHash: hash,
			})
		}
		if err := tx.Create(&all).Error; err != nil {
			return fmt.Errorf("seed users: %w", err)
		}

		hired := time.Date(2020, time.January, 6, 0, 0, 0, 0, time.UTC)
		employees := make([]domain.Employee, 0, len(seedNames))
		for i, name := range seedNames {
			employees = append(employees, domain.Employee{
				ID:       uuid.NewSHA1(uuid.NameSpaceURL, []byte("crudboard/employee/"+name)),
				Name:     name,
				Email:    fmt.Sprintf("employee%02d@example.com", i+1),
				Position: seedPositions[i%len(seedPositions)],
				Salary:   decimal.NewFromInt(42000).Add(decimal.NewFromInt(int64(i) * 1750)).Add(decimal.RequireFromString("0.50")),
				HiredAt:  hired.AddDate(0, i*2, i),
			})
		}
		if err := tx.Create(&employees).Error; err != nil {
			return fmt.Errorf("seed employees: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("demo data seeded",
		slog.Int("users", len(seedNames)+1),
		slog.Int("employees", len(seedNames)),
		slog.String("admin", SeedAdminEmail),
	)
	return nil
}
