package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"paydesk/internal/domain/auth"
	"paydesk/internal/platform/config"
)

func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if err := ensureAdminUser(ctx, pool, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		return err
	}
	return ensureDepartments(ctx, pool, cfg.SeedDepartments)
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var id int64
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	if err == nil {
		return nil
	}
	if !IsNoRows(err) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
    INSERT INTO users (email, password_hash, role, first_name, last_name)
    VALUES ($1, $2, $3, 'System', 'Administrator')
    ON CONFLICT (email) DO NOTHING
  `, email, hash, auth.RoleAdmin)
	return err
}

func ensureDepartments(ctx context.Context, pool *pgxpool.Pool, names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := pool.Exec(ctx, "INSERT INTO departments (name) VALUES ($1) ON CONFLICT DO NOTHING", name); err != nil {
			return err
		}
	}
	return nil
}
