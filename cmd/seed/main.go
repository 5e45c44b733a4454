// seed creates one user per role and a spread of blood units in the local
// dev database. Re-running skips users that already exist.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/ErlanBelekov/bloodbank/internal/domain"
	"github.com/ErlanBelekov/bloodbank/internal/events"
	"github.com/ErlanBelekov/bloodbank/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/bloodbank/internal/token"
	"github.com/ErlanBelekov/bloodbank/internal/usecase"
	"github.com/ErlanBelekov/bloodbank/migrations"
	"github.com/joho/godotenv"
)

const seedPassword = "seed-password-123"

var users = []struct {
	username string
	role     domain.Role
	blood    domain.BloodType
}{
	{"admin", domain.RoleAdmin, domain.BloodTypeOPositive},
	{"dr.house", domain.RoleDoctor, domain.BloodTypeANegative},
	{"nurse.joy", domain.RoleNurse, domain.BloodTypeBPositive},
	{"tech.lab", domain.RoleTechnician, domain.BloodTypeABPositive},
	{"donor.one", domain.RoleDonor, domain.BloodTypeONegative},
	{"recipient.one", domain.RoleRecipient, domain.BloodTypeAPositive},
}

var units = []struct {
	blood    domain.BloodType
	quantity int
	expires  time.Duration
}{
	{domain.BloodTypeOPositive, 450, 30 * 24 * time.Hour},
	{domain.BloodTypeONegative, 450, 21 * 24 * time.Hour},
	{domain.BloodTypeAPositive, 300, 14 * 24 * time.Hour},
	{domain.BloodTypeANegative, 200, 7 * 24 * time.Hour},
	{domain.BloodTypeBPositive, 450, 35 * 24 * time.Hour},
	{domain.BloodTypeABPositive, 150, 2 * time.Hour},
	// Due for the next sweep
	{domain.BloodTypeBNegative, 250, -time.Hour},
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, migrations.FS); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Tokens issued here are printed for convenience; they only verify if the
	// server shares this secret.
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "local-seed-secret-local-seed-secret"
	}
	tokens := token.NewService([]byte(secret))

	auth := usecase.NewAuthUsecase(postgres.NewUserRepository(pool), tokens, 0)
	inventory := usecase.NewInventoryUsecase(postgres.NewInventoryRepository(pool), events.NewLogPublisher(logger), logger)

	var created, skipped int
	for _, u := range users {
		blood := u.blood
		_, err := auth.Register(ctx, usecase.RegisterInput{
			Username:  u.username,
			Email:     u.username + "@bloodbank.local",
			Password:  seedPassword,
			FirstName: u.username,
			Role:      u.role,
			BloodType: &blood,
		})
		switch {
		case errors.Is(err, domain.ErrDuplicateIdentity):
			skipped++
		case err != nil:
			log.Fatalf("register %s: %v", u.username, err)
		default:
			created++
		}
	}

	now := time.Now()
	var unitIDs []string
	for _, spec := range units {
		collected := now.Add(-24 * time.Hour)
		unit, err := inventory.Add(ctx, usecase.AddUnitInput{
			BloodType:      spec.blood,
			Quantity:       spec.quantity,
			ExpiryDate:     now.Add(spec.expires),
			CollectionDate: &collected,
			Notes:          "seeded",
		})
		if err != nil {
			log.Fatalf("add unit %s: %v", spec.blood, err)
		}
		unitIDs = append(unitIDs, unit.ID)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Users created: %d  (skipped %d already existing)\n", created, skipped)
	fmt.Printf("  Password:      %s\n", seedPassword)
	fmt.Printf("  Units added:   %d\n", len(unitIDs))
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1: log in as admin")
	fmt.Println()
	fmt.Printf("    curl -s -X POST http://localhost:8080/auth/login \\\n")
	fmt.Printf("      -H 'Content-Type: application/json' \\\n")
	fmt.Printf("      -d '{\"username\":\"admin\",\"password\":\"%s\"}'\n", seedPassword)
	fmt.Println()
	fmt.Println("  Step 2: list available stock")
	fmt.Println()
	fmt.Println("    export JWT=eyJ...")
	fmt.Println("    curl -s http://localhost:8080/inventory/available -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Step 3: run one sweep; the B_NEGATIVE unit becomes EXPIRED")
	fmt.Println()
	fmt.Println("    go run ./cmd/sweeper -once")
}
