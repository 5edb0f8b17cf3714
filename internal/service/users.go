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

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// RegisterInput is the payload for creating a user account. When RoleID is
// empty the current default role is assigned.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,min=2,max=100"`
	RoleID   string `json:"roleId" validate:"omitempty,uuid"`
}

// UpdateUserInput is an administrative partial update.
type UpdateUserInput struct {
	Email    *string `json:"email" validate:"omitnil,email,max=255"`
	Name     *string `json:"name" validate:"omitnil,min=2,max=100"`
	RoleID   *string `json:"roleId" validate:"omitnil,uuid"`
	IsActive *bool   `json:"isActive"`
}

// UpdateProfileInput is what users may change about themselves.
type UpdateProfileInput struct {
	Email *string `json:"email" validate:"omitnil,email,max=255"`
	Name  *string `json:"name" validate:"omitnil,min=2,max=100"`
}

// ChangePasswordInput replaces a user's password.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

// ListUsersInput filters and pages a user listing.
type ListUsersInput struct {
	Page     int    `json:"page" validate:"min=0"`
	Limit    int    `json:"limit" validate:"min=0,max=100"`
	Search   string `json:"search" validate:"max=100"`
	RoleID   string `json:"roleId"`
	IsActive *bool  `json:"isActive"`
	Sort     string `json:"sort"`
}

// UserList is one page of users.
type UserList struct {
	Users []model.User    `json:"users"`
	Meta  *model.PageMeta `json:"meta"`
}

// UserService manages user accounts.
type UserService struct {
	store  *config.Store
	cache  *cache.Store
	roles  *RoleService
	events Publisher
	logger *slog.Logger
}

func NewUserService(d Deps, roles *RoleService) *UserService {
	d = d.withDefaults()
	return &UserService{store: d.Store, cache: d.Cache, roles: roles, events: d.Events, logger: d.Logger}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user. The email pre-check only produces a friendly
// error; the unique index is what actually prevents duplicates.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	email := normalizeEmail(in.Email)

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, Conflict("Email already registered")
	} else if !errors.Is(err, config.ErrNotFound) {
		return nil, err
	}

	role, err := s.resolveRole(ctx, in.RoleID)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		IsActive:     true,
	}
	if role != nil {
		u.RoleID = role.ID
		u.Role = role
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, storeError(err, "", "Email already registered")
	}

	s.invalidate(ctx, u.ID)
	s.events.Publish(RoomAdmins, EventUserCreated, u)
	s.logger.Info("user registered", "user_id", u.ID)
	return u, nil
}

// resolveRole returns the requested role, or the default role when roleID is
// empty. A missing default is not an error; the user is created without one.
func (s *UserService) resolveRole(ctx context.Context, roleID string) (*model.Role, error) {
	if roleID == "" {
		role, err := s.roles.GetDefault(ctx)
		if IsKind(err, KindNotFound) {
			s.logger.Warn("no default role configured; user created without role")
			return nil, nil
		}
		return role, err
	}
	role, err := s.roles.Get(ctx, roleID)
	if IsKind(err, KindNotFound) {
		return nil, BadRequest("Role does not exist")
	}
	if err != nil {
		return nil, err
	}
	if !role.IsActive {
		return nil, BadRequest("Role is not active")
	}
	return role, nil
}

// Get returns a user with its role attached, through the cache.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := cache.GetOrCompute(ctx, s.cache, userKey(id), 0, func(ctx context.Context) (model.User, error) {
		u, err := s.store.GetUser(ctx, id)
		if err != nil {
			return model.User{}, storeError(err, "User not found", "")
		}
		if u.RoleID != "" {
			role, err := s.roles.Get(ctx, u.RoleID)
			if err != nil && !IsKind(err, KindNotFound) {
				return model.User{}, err
			}
			u.Role = role
		}
		return *u, nil
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns one filtered page of users.
func (s *UserService) List(ctx context.Context, in ListUsersInput) (*UserList, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 {
		in.Limit = defaultPageLimit
	}
	if in.Limit > maxPageLimit {
		in.Limit = maxPageLimit
	}
	in.Search = strings.TrimSpace(in.Search)

	return cache.GetOrCompute(ctx, s.cache, userListKey(in), listTTL, func(ctx context.Context) (*UserList, error) {
		filter := model.UserFilter{Search: in.Search, RoleID: in.RoleID, IsActive: in.IsActive}
		page := model.Page{Page: in.Page, Limit: in.Limit}

		total, err := s.store.CountUsers(ctx, filter)
		if err != nil {
			return nil, err
		}
		users, err := s.store.ListUsers(ctx, filter, page, config.UserOrder(in.Sort))
		if err != nil {
			return nil, err
		}
		return &UserList{Users: users, Meta: model.NewPageMeta(in.Page, in.Limit, total)}, nil
	})
}

// Update applies an administrative partial update.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*model.User, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, storeError(err, "User not found", "")
	}

	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email != u.Email {
			if other, err := s.store.GetUserByEmail(ctx, email); err == nil && other.ID != u.ID {
				return nil, Conflict("Email already registered")
			}
			u.Email = email
		}
	}
	if in.Name != nil {
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.RoleID != nil && *in.RoleID != u.RoleID {
		role, err := s.resolveRole(ctx, *in.RoleID)
		if err != nil {
			return nil, err
		}
		u.RoleID = ""
		if role != nil {
			u.RoleID = role.ID
		}
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}

	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, storeError(err, "User not found", "Email already registered")
	}

	s.invalidate(ctx, u.ID)
	s.events.Publish(RoomAdmins, EventUserUpdated, u)
	s.events.Publish(UserRoom(u.ID), EventUserUpdated, u)
	return u, nil
}

// UpdateProfile lets a user change their own name or email.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (*model.User, error) {
	return s.Update(ctx, id, UpdateUserInput{Email: in.Email, Name: in.Name})
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, id string, in ChangePasswordInput) error {
	if err := validateInput(in); err != nil {
		return err
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return storeError(err, "User not found", "")
	}
	if !CheckPassword(u.PasswordHash, in.CurrentPassword) {
		return BadRequest("Current password is incorrect")
	}
	hash, err := HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, id, hash); err != nil {
		return storeError(err, "User not found", "")
	}
	s.cache.Delete(ctx, userKey(id))
	return nil
}

// ToggleActive flips a user's active flag.
func (s *UserService) ToggleActive(ctx context.Context, id string) (*model.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, storeError(err, "User not found", "")
	}
	active := !u.IsActive
	return s.Update(ctx, id, UpdateUserInput{IsActive: &active})
}

// Delete removes a user and the user's API sessions.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return storeError(err, "User not found", "")
	}
	s.invalidate(ctx, id)
	s.events.Publish(RoomAdmins, EventUserDeleted, map[string]string{"id": id})
	s.logger.Info("user deleted", "user_id", id)
	return nil
}

// RecordLogin stamps the last login time.
func (s *UserService) RecordLogin(ctx context.Context, id string) {
	if err := s.store.UpdateUserLastLogin(ctx, id); err != nil {
		s.logger.Warn("record user login", "user_id", id, "error", err)
		return
	}
	s.cache.Delete(ctx, userKey(id))
}

func (s *UserService) invalidate(ctx context.Context, id string) {
	s.cache.Invalidate(ctx, []string{userKey(id)}, usersPattern, dashboardPattern, DashboardResponsePattern)
}
