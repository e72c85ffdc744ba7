package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"loophr/internal/platform/config"
)

// Seed provisions the bootstrap admin account when the users table has no
// admin yet. It is a no-op on every later start.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		slog.Info("seed skipped, no admin credentials configured")
		return nil
	}

	var exists bool
	if err := pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE 'admin' = ANY(roles))",
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking for existing admin: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.SeedAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing seed admin password: %w", err)
	}

	_, err = pool.Exec(ctx, `
    INSERT INTO users (name, email, password_hash, roles, position)
    VALUES ($1, $2, $3, '{admin}', 'Administrator')
    ON CONFLICT (email) DO NOTHING
  `, cfg.SeedAdminName, cfg.SeedAdminEmail, string(hash))
	if err != nil {
		return fmt.Errorf("inserting seed admin: %w", err)
	}

	slog.Info("seeded bootstrap admin", "email", cfg.SeedAdminEmail)
	return nil
}
