package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/asuwest1/ContractReviewOA/internal/database"
	"github.com/asuwest1/ContractReviewOA/internal/errors"
)

// settingKeys is the fixed whitelist of persisted settings. PutSetting
// rejects anything outside it, so arbitrary keys can never reach the table.
var settingKeys = map[string]struct{}{
	"aging_threshold_1": {},
	"aging_threshold_2": {},
	"aging_threshold_3": {},
	"aging_threshold_4": {},
	"aging_threshold_5": {},
}

// SettingsRepository manages system settings, the role catalog and the
// user-role mapping.
type SettingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetSettings returns all settings ordered by key.
func (r *SettingsRepository) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM system_settings ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get settings")
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan setting")
		}
		settings[key] = value
	}
	return settings, nil
}

// PutSetting upserts one whitelisted setting.
func (r *SettingsRepository) PutSetting(ctx context.Context, key, value string) error {
	if _, ok := settingKeys[key]; !ok {
		return errors.InvalidInput("key", "unknown setting key: "+key)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO system_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to put setting")
	}
	return nil
}

// ListRoles returns the role catalog sorted by name.
func (r *SettingsRepository) ListRoles(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT role_name FROM roles ORDER BY role_name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list roles")
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan role")
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// RoleExists reports whether the role is in the catalog.
func (r *SettingsRepository) RoleExists(ctx context.Context, name string) (bool, error) {
	var found string
	err := r.db.QueryRow(ctx, `SELECT role_name FROM roles WHERE role_name = $1`, name).Scan(&found)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check role")
	}
	return true, nil
}

// CreateRole adds a role to the catalog. Creating an existing role is a no-op.
func (r *SettingsRepository) CreateRole(ctx context.Context, name string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO roles (role_name)
		VALUES ($1)
		ON CONFLICT (role_name) DO NOTHING
	`, name)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create role")
	}
	return nil
}

// ListUserRoles returns user-role mappings, for one user or all.
func (r *SettingsRepository) ListUserRoles(ctx context.Context, user string) ([]*UserRole, error) {
	var rows pgx.Rows
	var err error
	if user == "" {
		rows, err = r.db.Query(ctx, `
			SELECT user_name, role_name FROM user_roles ORDER BY user_name, role_name
		`)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT user_name, role_name FROM user_roles WHERE user_name = $1 ORDER BY role_name
		`, user)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list user roles")
	}
	defer rows.Close()

	var mappings []*UserRole
	for rows.Next() {
		m := &UserRole{}
		if err := rows.Scan(&m.UserName, &m.RoleName); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan user role")
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// ReplaceUserRoles swaps a user's role set atomically.
func (r *SettingsRepository) ReplaceUserRoles(ctx context.Context, user string, roles []string) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_name = $1`, user); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear user roles")
		}
		for _, role := range roles {
			_, err := tx.Exec(ctx, `
				INSERT INTO user_roles (user_name, role_name) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, user, role)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert user role")
			}
		}
		return nil
	})
}

// UsersWithRole returns the users holding a role.
func (r *SettingsRepository) UsersWithRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_name FROM user_roles WHERE role_name = $1 ORDER BY user_name
	`, role)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list users with role")
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var user string
		if err := rows.Scan(&user); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan user")
		}
		users = append(users, user)
	}
	return users, nil
}
