package service

import (
	"context"
	"regexp"
	"strconv"

	"github.com/asuwest1/ContractReviewOA/internal/errors"
	"github.com/asuwest1/ContractReviewOA/internal/identity"
	"github.com/asuwest1/ContractReviewOA/internal/logger"
	"github.com/asuwest1/ContractReviewOA/internal/repository"
)

var roleNamePattern = regexp.MustCompile(`^[A-Za-z0-9 ]+$`)

// AdminService covers the administrative surface: aging-threshold settings,
// the role catalog and user-role assignments.
type AdminService struct {
	settings SettingsStore
	audit    AuditStore
	log      *logger.Logger
}

// NewAdminService creates an AdminService.
func NewAdminService(settings SettingsStore, audit AuditStore, log *logger.Logger) *AdminService {
	return &AdminService{settings: settings, audit: audit, log: log}
}

// GetSettings returns the system settings map.
func (s *AdminService) GetSettings(ctx context.Context, ident identity.Identity) (map[string]string, error) {
	if !hasPermission(ident.Roles, PermAdminSettings) {
		return nil, errors.Unauthorized("Admin role required to read settings")
	}
	return s.settings.GetSettings(ctx)
}

// UpdateSettings applies the given setting values. Keys outside the known
// whitelist and non-positive values are rejected; nothing is written unless
// all entries validate.
func (s *AdminService) UpdateSettings(ctx context.Context, values map[string]string, ident identity.Identity) (map[string]string, error) {
	if !hasPermission(ident.Roles, PermAdminSettings) {
		return nil, errors.Unauthorized("Admin role required to update settings")
	}
	// Whole-request validation before the first write; an invalid entry
	// anywhere means nothing is stored.
	for key, value := range values {
		if !isSettingKey(key) {
			return nil, errors.InvalidInput(key, "unknown setting")
		}
		days, err := strconv.Atoi(value)
		if err != nil || days <= 0 {
			return nil, errors.InvalidInput(key, "must be a positive integer")
		}
	}
	for key, value := range values {
		if err := s.settings.PutSetting(ctx, key, value); err != nil {
			return nil, err
		}
	}

	s.appendAudit(ctx, "settings", "system", "update", ident.User, map[string]any{
		"values": values,
	})
	return s.settings.GetSettings(ctx)
}

// ListRoles returns the role catalog.
func (s *AdminService) ListRoles(ctx context.Context, ident identity.Identity) ([]string, error) {
	if !hasPermission(ident.Roles, PermAdminRoles) {
		return nil, errors.Unauthorized("Admin role required to manage roles")
	}
	return s.settings.ListRoles(ctx)
}

// CreateRole adds a role to the catalog. Creation is idempotent: creating an
// existing role succeeds without effect.
func (s *AdminService) CreateRole(ctx context.Context, name string, ident identity.Identity) ([]string, error) {
	if !hasPermission(ident.Roles, PermAdminRoles) {
		return nil, errors.Unauthorized("Admin role required to manage roles")
	}
	if name == "" || len(name) > MaxRoleNameLength || !roleNamePattern.MatchString(name) {
		return nil, errors.InvalidInput("name",
			"role names are 1-100 characters of letters, digits and spaces")
	}
	if err := s.settings.CreateRole(ctx, name); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, "role", name, "create", ident.User, nil)
	return s.settings.ListRoles(ctx)
}

// GetUserRoles returns role assignments, for one user or all of them.
func (s *AdminService) GetUserRoles(ctx context.Context, user string, ident identity.Identity) ([]*repository.UserRole, error) {
	if !hasPermission(ident.Roles, PermAdminRoles) {
		return nil, errors.Unauthorized("Admin role required to manage user roles")
	}
	return s.settings.ListUserRoles(ctx, user)
}

// ReplaceUserRoles replaces a user's role set. Every role must already exist
// in the catalog.
func (s *AdminService) ReplaceUserRoles(ctx context.Context, user string, roles []string, ident identity.Identity) ([]*repository.UserRole, error) {
	if !hasPermission(ident.Roles, PermAdminRoles) {
		return nil, errors.Unauthorized("Admin role required to manage user roles")
	}
	if user == "" {
		return nil, errors.InvalidInput("user", "is required")
	}
	for _, role := range roles {
		known, err := s.settings.RoleExists(ctx, role)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, errors.Newf(errors.ErrCodeValidation, "unknown role: %s", role)
		}
	}
	if err := s.settings.ReplaceUserRoles(ctx, user, roles); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, "user_roles", user, "replace", ident.User, map[string]any{
		"roles": roles,
	})
	return s.settings.ListUserRoles(ctx, user)
}

func (s *AdminService) appendAudit(ctx context.Context, entityType, entityID, action, actor string, details map[string]any) {
	err := s.audit.AppendAudit(ctx, &repository.AuditEntry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Details:    details,
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("entity_type", entityType).
			Str("action", action).
			Msg("Failed to write audit log entry")
	}
}
