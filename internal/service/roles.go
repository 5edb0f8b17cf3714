package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/tenantly/tenantly/internal/cache"
	"github.com/tenantly/tenantly/internal/config"
	"github.com/tenantly/tenantly/internal/model"
)

// CreateRoleInput is the payload for creating a role. Slug is derived from
// Name when empty.
type CreateRoleInput struct {
	Name        string   `json:"name" validate:"required,min=2,max=50"`
	Slug        string   `json:"slug" validate:"omitempty,slug,max=50"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions"`
	IsDefault   bool     `json:"isDefault"`
	IsActive    *bool    `json:"isActive"`
}

// UpdateRoleInput is a partial role update; nil fields are left unchanged.
type UpdateRoleInput struct {
	Name        *string   `json:"name" validate:"omitnil,min=2,max=50"`
	Slug        *string   `json:"slug" validate:"omitnil,slug,max=50"`
	Description *string   `json:"description" validate:"omitnil,max=255"`
	Permissions *[]string `json:"permissions"`
	IsActive    *bool     `json:"isActive"`
}

// RoleService manages roles and their cache entries.
type RoleService struct {
	store  *config.Store
	cache  *cache.Store
	events Publisher
	logger *slog.Logger
}

func NewRoleService(d Deps) *RoleService {
	d = d.withDefaults()
	return &RoleService{store: d.Store, cache: d.Cache, events: d.Events, logger: d.Logger}
}

// Permissions returns the permission catalog.
func (s *RoleService) Permissions() []string {
	return model.KnownPermissions()
}

// Get returns a role by ID through the cache.
func (s *RoleService) Get(ctx context.Context, id string) (*model.Role, error) {
	role, err := cache.GetOrCompute(ctx, s.cache, roleKey(id), 0, func(ctx context.Context) (model.Role, error) {
		r, err := s.store.GetRole(ctx, id)
		if err != nil {
			return model.Role{}, storeError(err, "Role not found", "")
		}
		return *r, nil
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// GetDefault returns the current default role.
func (s *RoleService) GetDefault(ctx context.Context) (*model.Role, error) {
	role, err := cache.GetOrCompute(ctx, s.cache, roleDefaultKey, 0, func(ctx context.Context) (model.Role, error) {
		r, err := s.store.GetDefaultRole(ctx)
		if err != nil {
			return model.Role{}, storeError(err, "No default role configured", "")
		}
		return *r, nil
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// List returns roles ordered by name.
func (s *RoleService) List(ctx context.Context, activeOnly bool) ([]model.Role, error) {
	return cache.GetOrCompute(ctx, s.cache, roleListKey(activeOnly), listTTL, func(ctx context.Context) ([]model.Role, error) {
		return s.store.ListRoles(ctx, activeOnly)
	})
}

// Create validates and inserts a new role.
func (s *RoleService) Create(ctx context.Context, in CreateRoleInput) (*model.Role, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	perms, err := checkPermissions(in.Permissions)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	slug := in.Slug
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return nil, Validation(model.FieldError{Field: "slug", Message: "slug could not be derived from name"})
	}
	if err := checkReservedSlug(slug); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, "", name, slug); err != nil {
		return nil, err
	}

	role := &model.Role{
		Name:        name,
		Slug:        slug,
		Description: in.Description,
		Permissions: perms,
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, storeError(err, "", "Role name or slug already exists")
	}

	if in.IsDefault {
		if err := s.store.SetDefaultRole(ctx, role.ID); err != nil {
			return nil, fmt.Errorf("set default role: %w", err)
		}
		role.IsDefault = true
	}

	s.invalidate(ctx, role.ID)
	s.events.Publish(RoomAdmins, EventRoleCreated, role)
	s.logger.Info("role created", "role_id", role.ID, "slug", role.Slug)
	return role, nil
}

// Update applies a partial update.
func (s *RoleService) Update(ctx context.Context, id string, in UpdateRoleInput) (*model.Role, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, storeError(err, "Role not found", "")
	}

	name, slug := role.Name, role.Slug
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	if in.Slug != nil {
		slug = *in.Slug
		if err := checkReservedSlug(slug); err != nil {
			return nil, err
		}
	}
	if name != role.Name || slug != role.Slug {
		if err := s.checkUnique(ctx, role.ID, name, slug); err != nil {
			return nil, err
		}
	}
	if in.Permissions != nil {
		perms, err := checkPermissions(*in.Permissions)
		if err != nil {
			return nil, err
		}
		role.Permissions = perms
	}
	if in.IsActive != nil {
		if !*in.IsActive && role.IsDefault {
			return nil, BadRequest("Cannot deactivate the default role")
		}
		role.IsActive = *in.IsActive
	}
	if in.Description != nil {
		role.Description = *in.Description
	}
	role.Name, role.Slug = name, slug

	if err := s.store.UpdateRole(ctx, role); err != nil {
		return nil, storeError(err, "Role not found", "Role name or slug already exists")
	}

	s.invalidate(ctx, role.ID)
	s.events.Publish(RoomAdmins, EventRoleUpdated, role)
	return role, nil
}

// SetDefault makes id the only default role.
func (s *RoleService) SetDefault(ctx context.Context, id string) (*model.Role, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, storeError(err, "Role not found", "")
	}
	if !role.IsActive {
		return nil, BadRequest("Cannot set an inactive role as default")
	}
	if err := s.store.SetDefaultRole(ctx, id); err != nil {
		return nil, storeError(err, "Role not found", "")
	}
	role.IsDefault = true

	// Every role's default flag may have changed.
	s.cache.Invalidate(ctx, []string{roleDefaultKey}, rolePattern, rolesPattern, dashboardPattern, DashboardResponsePattern)
	s.events.Publish(RoomAdmins, EventRoleUpdated, role)
	s.logger.Info("default role changed", "role_id", id)
	return role, nil
}

// ToggleActive flips the active flag. The default role cannot be
// deactivated.
func (s *RoleService) ToggleActive(ctx context.Context, id string) (*model.Role, error) {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, storeError(err, "Role not found", "")
	}
	active := !role.IsActive
	return s.Update(ctx, id, UpdateRoleInput{IsActive: &active})
}

// Delete removes a role. Roles that are default or still referenced by users
// are rejected.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return storeError(err, "Role not found", "")
	}
	if role.IsDefault {
		return BadRequest("Cannot delete the default role")
	}
	n, err := s.store.CountUsersByRole(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return BadRequest(fmt.Sprintf("Cannot delete role with %d assigned user(s)", n))
	}
	if err := s.store.DeleteRole(ctx, id); err != nil {
		if errors.Is(err, config.ErrInUse) {
			return BadRequest("Cannot delete role with assigned users")
		}
		return storeError(err, "Role not found", "")
	}

	s.invalidate(ctx, id)
	s.events.Publish(RoomAdmins, EventRoleDeleted, map[string]string{"id": id})
	s.logger.Info("role deleted", "role_id", id)
	return nil
}

// invalidate drops the role's own key, then every derived listing. Cached
// users embed their role, so those go too.
func (s *RoleService) invalidate(ctx context.Context, id string) {
	s.cache.Invalidate(ctx, []string{roleKey(id), roleDefaultKey},
		rolesPattern, userPattern, usersPattern, dashboardPattern, DashboardResponsePattern)
}

func (s *RoleService) checkUnique(ctx context.Context, selfID, name, slug string) error {
	if r, err := s.store.GetRoleByName(ctx, name); err == nil && r.ID != selfID {
		return Conflict("Role name already exists")
	} else if err != nil && !errors.Is(err, config.ErrNotFound) {
		return err
	}
	if r, err := s.store.GetRoleBySlug(ctx, slug); err == nil && r.ID != selfID {
		return Conflict("Role slug already exists")
	} else if err != nil && !errors.Is(err, config.ErrNotFound) {
		return err
	}
	return nil
}

// checkReservedSlug rejects slugs that collide with the key-access role name.
func checkReservedSlug(slug string) error {
	if slug == model.APIRole {
		return Validation(model.FieldError{Field: "slug", Message: fmt.Sprintf("slug %q is reserved", slug)})
	}
	return nil
}

var permissionPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*:[a-z][a-z0-9_-]*$`)

func checkPermissions(perms []string) (model.PermissionSet, error) {
	set := model.NewPermissionSet(perms...)
	var fields []model.FieldError
	for _, p := range set {
		if !permissionPattern.MatchString(p) {
			fields = append(fields, model.FieldError{Field: "permissions", Message: fmt.Sprintf("permission %q must look like action:resource", p)})
		}
	}
	if len(fields) > 0 {
		return nil, Validation(fields...)
	}
	return set, nil
}

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
