package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tenantly/tenantly/internal/cache"
	"github.com/tenantly/tenantly/internal/config"
	"github.com/tenantly/tenantly/internal/model"
)

// CreateAdminInput is the payload for creating an admin account.
type CreateAdminInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=SUPER_ADMIN ADMIN MODERATOR"`
}

// UpdateAdminInput is a partial admin update.
type UpdateAdminInput struct {
	Email    *string `json:"email" validate:"omitnil,email,max=255"`
	Name     *string `json:"name" validate:"omitnil,min=2,max=100"`
	Role     *string `json:"role" validate:"omitnil,oneof=SUPER_ADMIN ADMIN MODERATOR"`
	IsActive *bool   `json:"isActive"`
}

// AdminList is one page of admins.
type AdminList struct {
	Admins []model.Admin   `json:"admins"`
	Meta   *model.PageMeta `json:"meta"`
}

// AdminService manages admin accounts.
type AdminService struct {
	store  *config.Store
	cache  *cache.Store
	events Publisher
	logger *slog.Logger
}

func NewAdminService(d Deps) *AdminService {
	d = d.withDefaults()
	return &AdminService{store: d.Store, cache: d.Cache, events: d.Events, logger: d.Logger}
}

// Create inserts an admin. Role defaults to ADMIN.
func (s *AdminService) Create(ctx context.Context, in CreateAdminInput) (*model.Admin, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	email := normalizeEmail(in.Email)
	if _, err := s.store.GetAdminByEmail(ctx, email); err == nil {
		return nil, Conflict("Email already registered")
	} else if !errors.Is(err, config.ErrNotFound) {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = model.AdminRoleAdmin
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	admin := &model.Admin{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		return nil, storeError(err, "", "Email already registered")
	}

	s.invalidate(ctx, admin.ID)
	s.events.Publish(RoomAdmins, EventAdminCreated, admin)
	s.logger.Info("admin created", "admin_id", admin.ID, "role", admin.Role)
	return admin, nil
}

// Get returns an admin through the cache.
func (s *AdminService) Get(ctx context.Context, id string) (*model.Admin, error) {
	a, err := cache.GetOrCompute(ctx, s.cache, adminKey(id), 0, func(ctx context.Context) (model.Admin, error) {
		a, err := s.store.GetAdmin(ctx, id)
		if err != nil {
			return model.Admin{}, storeError(err, "Admin not found", "")
		}
		return *a, nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns one page of admins.
func (s *AdminService) List(ctx context.Context, page, limit int) (*AdminList, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return cache.GetOrCompute(ctx, s.cache, adminListKey(page, limit), listTTL, func(ctx context.Context) (*AdminList, error) {
		total, err := s.store.CountAdmins(ctx)
		if err != nil {
			return nil, err
		}
		admins, err := s.store.ListAdmins(ctx, model.Page{Page: page, Limit: limit})
		if err != nil {
			return nil, err
		}
		return &AdminList{Admins: admins, Meta: model.NewPageMeta(page, limit, total)}, nil
	})
}

// Update applies a partial update. actorID is the admin performing it; an
// admin may not demote or deactivate themselves.
func (s *AdminService) Update(ctx context.Context, actorID, id string, in UpdateAdminInput) (*model.Admin, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	admin, err := s.store.GetAdmin(ctx, id)
	if err != nil {
		return nil, storeError(err, "Admin not found", "")
	}

	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email != admin.Email {
			if other, err := s.store.GetAdminByEmail(ctx, email); err == nil && other.ID != admin.ID {
				return nil, Conflict("Email already registered")
			}
			admin.Email = email
		}
	}
	if in.Name != nil {
		admin.Name = strings.TrimSpace(*in.Name)
	}
	if in.Role != nil && *in.Role != admin.Role {
		if actorID == admin.ID {
			return nil, BadRequest("Cannot change your own role")
		}
		admin.Role = *in.Role
	}
	if in.IsActive != nil && *in.IsActive != admin.IsActive {
		if actorID == admin.ID && !*in.IsActive {
			return nil, BadRequest("Cannot deactivate your own account")
		}
		admin.IsActive = *in.IsActive
	}

	if err := s.store.UpdateAdmin(ctx, admin); err != nil {
		return nil, storeError(err, "Admin not found", "Email already registered")
	}

	s.invalidate(ctx, admin.ID)
	s.events.Publish(RoomAdmins, EventAdminUpdated, admin)
	return admin, nil
}

// ToggleActive flips an admin's active flag.
func (s *AdminService) ToggleActive(ctx context.Context, actorID, id string) (*model.Admin, error) {
	admin, err := s.store.GetAdmin(ctx, id)
	if err != nil {
		return nil, storeError(err, "Admin not found", "")
	}
	active := !admin.IsActive
	return s.Update(ctx, actorID, id, UpdateAdminInput{IsActive: &active})
}

// Delete removes an admin. Admins cannot delete themselves.
func (s *AdminService) Delete(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return BadRequest("Cannot delete your own account")
	}
	if err := s.store.DeleteAdmin(ctx, id); err != nil {
		return storeError(err, "Admin not found", "")
	}
	s.invalidate(ctx, id)
	s.events.Publish(RoomAdmins, EventAdminDeleted, map[string]string{"id": id})
	s.logger.Info("admin deleted", "admin_id", id)
	return nil
}

// RecordLogin stamps the last login time.
func (s *AdminService) RecordLogin(ctx context.Context, id string) {
	if err := s.store.UpdateAdminLastLogin(ctx, id); err != nil {
		s.logger.Warn("record admin login", "admin_id", id, "error", err)
		return
	}
	s.cache.Delete(ctx, adminKey(id))
}

func (s *AdminService) invalidate(ctx context.Context, id string) {
	s.cache.Invalidate(ctx, []string{adminKey(id)}, adminsPattern, dashboardPattern, DashboardResponsePattern)
}
