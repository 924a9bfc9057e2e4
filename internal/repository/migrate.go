package repository

import (
	"context"
	_ "embed"

	"github.com/asuwest1/ContractReviewOA/internal/database"
	"github.com/asuwest1/ContractReviewOA/internal/errors"
)

//go:embed schema.sql
var schemaSQL string

// Seed values applied on every startup; inserts are idempotent.
var (
	defaultThresholds = map[string]string{
		"aging_threshold_1": "2",
		"aging_threshold_2": "5",
		"aging_threshold_3": "10",
		"aging_threshold_4": "15",
		"aging_threshold_5": "30",
	}
	seedRoles = []string{"Customer Service", "Technical", "Commercial", "Legal", "Admin"}
)

// Migrate creates the schema if needed and seeds default settings and roles.
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "apply schema")
	}

	for key, value := range defaultThresholds {
		_, err := db.Exec(ctx, `
			INSERT INTO system_settings (key, value)
			VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING
		`, key, value)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "seed settings")
		}
	}

	for _, role := range seedRoles {
		_, err := db.Exec(ctx, `
			INSERT INTO roles (role_name)
			VALUES ($1)
			ON CONFLICT (role_name) DO NOTHING
		`, role)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "seed roles")
		}
	}
	return nil
}
