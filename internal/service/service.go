package service

import (
	"errors"
	"log/slog"

	"github.com/tenantly/tenantly/internal/cache"
	"github.com/tenantly/tenantly/internal/config"
)

// Deps are the collaborators shared by every entity service.
type Deps struct {
	Store  *config.Store
	Cache  *cache.Store
	Events Publisher
	Logger *slog.Logger
}

func (d Deps) withDefaults() Deps {
	d.Events = publisherOrNop(d.Events)
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return d
}

// Services bundles the entity services wired to one set of Deps.
type Services struct {
	Auth      *AuthService
	Users     *UserService
	Admins    *AdminService
	Roles     *RoleService
	Dashboard *DashboardService
}

// New constructs all services.
func New(d Deps, codec *TokenCodec, opts AuthOptions) *Services {
	d = d.withDefaults()
	roles := NewRoleService(d)
	users := NewUserService(d, roles)
	admins := NewAdminService(d)
	return &Services{
		Auth:      NewAuthService(d, codec, users, admins, roles, opts),
		Users:     users,
		Admins:    admins,
		Roles:     roles,
		Dashboard: NewDashboardService(d),
	}
}

// storeError translates store sentinels into business errors.
func storeError(err error, notFound, duplicate string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, config.ErrNotFound):
		return NotFound(notFound)
	case errors.Is(err, config.ErrDuplicate):
		return Conflict(duplicate)
	}
	return err
}
