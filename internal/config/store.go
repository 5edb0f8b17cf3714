package config

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tenantly/tenantly/internal/model"
)

// Store manages tenantly's persistent state: users, admins, roles and API
// sessions. It runs on SQLite by default or PostgreSQL through pgx.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore creates a SQLite-backed store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "tenantly.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open("sqlite", dsn)
}

// Open connects to the database named by driver ("sqlite" or "postgres")
// and applies migrations.
func Open(driver, dsn string) (*Store, error) {
	sqlDriver := driver
	switch driver {
	case "sqlite":
	case "postgres", "pgx":
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if sqlDriver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		// Enable foreign keys (off by default in SQLite).
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, driver: sqlDriver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the database/sql driver name in use.
func (s *Store) Driver() string {
	return s.driver
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// classifyWriteError maps constraint violations to store sentinels.
func classifyWriteError(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w: %s", op, ErrDuplicate, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%s: %w", op, ErrInUse)
		}
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "unique constraint"):
		return fmt.Errorf("%s: %w: %s", op, ErrDuplicate, err.Error())
	case strings.Contains(lower, "foreign key constraint"):
		return fmt.Errorf("%s: %w", op, ErrInUse)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func rowsAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Role CRUD
// ---------------------------------------------------------------------------

// roleRow maps 1:1 to the roles table. Permissions are stored as JSON text;
// this is the only place that encoding is known.
type roleRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	Description string    `db:"description"`
	Permissions string    `db:"permissions"`
	IsDefault   bool      `db:"is_default"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func roleRowFromModel(r *model.Role) (roleRow, error) {
	perms := r.Permissions
	if perms == nil {
		perms = model.PermissionSet{}
	}
	raw, err := json.Marshal([]string(perms))
	if err != nil {
		return roleRow{}, fmt.Errorf("marshal permissions: %w", err)
	}
	return roleRow{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		Permissions: string(raw),
		IsDefault:   r.IsDefault,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func (r roleRow) toModel() (model.Role, error) {
	var perms []string
	if r.Permissions != "" {
		if err := json.Unmarshal([]byte(r.Permissions), &perms); err != nil {
			return model.Role{}, fmt.Errorf("unmarshal permissions for role %s: %w", r.ID, err)
		}
	}
	return model.Role{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		Permissions: model.NewPermissionSet(perms...),
		IsDefault:   r.IsDefault,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

// CreateRole inserts a new role. The ID, CreatedAt, and UpdatedAt fields are
// populated before insert.
func (s *Store) CreateRole(ctx context.Context, role *model.Role) error {
	now := time.Now().UTC()
	if role.ID == "" {
		role.ID = newID()
	}
	role.CreatedAt = now
	role.UpdatedAt = now
	role.Permissions = model.NewPermissionSet(role.Permissions...)

	row, err := roleRowFromModel(role)
	if err != nil {
		return err
	}

	const q = `INSERT INTO roles
		(id, name, slug, description, permissions, is_default, is_active, created_at, updated_at)
		VALUES
		(:id, :name, :slug, :description, :permissions, :is_default, :is_active, :created_at, :updated_at)`

	_, err = s.db.NamedExecContext(ctx, q, row)
	return classifyWriteError(err, "insert role")
}

func (s *Store) getRoleWhere(ctx context.Context, where string, arg interface{}) (*model.Role, error) {
	var row roleRow
	q := s.db.Rebind("SELECT * FROM roles WHERE " + where)
	if err := s.db.GetContext(ctx, &row, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	role, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRole returns a role by ID.
func (s *Store) GetRole(ctx context.Context, id string) (*model.Role, error) {
	return s.getRoleWhere(ctx, "id = ?", id)
}

// GetRoleByName returns a role by its unique name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	return s.getRoleWhere(ctx, "name = ?", name)
}

// GetRoleBySlug returns a role by its unique slug.
func (s *Store) GetRoleBySlug(ctx context.Context, slug string) (*model.Role, error) {
	return s.getRoleWhere(ctx, "slug = ?", slug)
}

// GetDefaultRole returns the role flagged as default, or ErrNotFound.
func (s *Store) GetDefaultRole(ctx context.Context) (*model.Role, error) {
	return s.getRoleWhere(ctx, "is_default = ?", true)
}

// ListRoles returns roles ordered by name. When activeOnly is set inactive
// roles are skipped.
func (s *Store) ListRoles(ctx context.Context, activeOnly bool) ([]model.Role, error) {
	q := "SELECT * FROM roles"
	var args []interface{}
	if activeOnly {
		q += " WHERE is_active = ?"
		args = append(args, true)
	}
	q += " ORDER BY name"

	var rows []roleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	roles := make([]model.Role, 0, len(rows))
	for _, r := range rows {
		role, err := r.toModel()
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// CountRoles returns the number of roles, optionally only active ones.
func (s *Store) CountRoles(ctx context.Context, activeOnly bool) (int64, error) {
	q := "SELECT COUNT(*) FROM roles"
	var args []interface{}
	if activeOnly {
		q += " WHERE is_active = ?"
		args = append(args, true)
	}
	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(q), args...); err != nil {
		return 0, fmt.Errorf("count roles: %w", err)
	}
	return n, nil
}

// UpdateRole updates name, slug, description, permissions and active flag.
// IsDefault is only changed through SetDefaultRole.
func (s *Store) UpdateRole(ctx context.Context, role *model.Role) error {
	role.UpdatedAt = time.Now().UTC()
	role.Permissions = model.NewPermissionSet(role.Permissions...)

	row, err := roleRowFromModel(role)
	if err != nil {
		return err
	}

	const q = `UPDATE roles SET
		name = :name, slug = :slug, description = :description, permissions = :permissions,
		is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return classifyWriteError(err, "update role")
	}
	return rowsAffected(result, "update role")
}

// SetDefaultRole clears the default flag on every role and sets it on id,
// inside one transaction.
func (s *Store) SetDefaultRole(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE roles SET is_default = ?, updated_at = ? WHERE is_default = ?"),
		false, now, true); err != nil {
		return fmt.Errorf("clear default roles: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE roles SET is_default = ?, updated_at = ? WHERE id = ?"),
		true, now, id)
	if err != nil {
		return classifyWriteError(err, "set default role")
	}
	if err := rowsAffected(result, "set default role"); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteRole removes a role by ID. Returns ErrInUse while users reference it.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM roles WHERE id = ?"), id)
	if err != nil {
		return classifyWriteError(err, "delete role")
	}
	return rowsAffected(result, "delete role")
}

// RoleDistribution counts users per role, including roles with no users.
func (s *Store) RoleDistribution(ctx context.Context) ([]model.RoleCount, error) {
	const q = `SELECT r.id AS role_id, r.name AS role_name, COUNT(u.id) AS users
		FROM roles r LEFT JOIN users u ON u.role_id = r.id
		GROUP BY r.id, r.name
		ORDER BY users DESC, r.name`

	out := []model.RoleCount{}
	if err := s.db.SelectContext(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("role distribution: %w", err)
	}
	return out, nil
}

// SeedDefaultRole creates the initial default role when the roles table is
// empty. It returns the role that is default after the call.
func (s *Store) SeedDefaultRole(ctx context.Context) (*model.Role, error) {
	n, err := s.CountRoles(ctx, false)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return s.GetDefaultRole(ctx)
	}
	role := &model.Role{
		Name:        "User",
		Slug:        "user",
		Description: "Default role for registered users",
		Permissions: model.DefaultRolePermissions(),
		IsDefault:   true,
		IsActive:    true,
	}
	if err := s.CreateRole(ctx, role); err != nil {
		return nil, fmt.Errorf("seed default role: %w", err)
	}
	return role, nil
}

// ---------------------------------------------------------------------------
// User CRUD
// ---------------------------------------------------------------------------

// userRow exists because role_id is nullable in the table.
type userRow struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	Name         string         `db:"name"`
	RoleID       sql.NullString `db:"role_id"`
	IsActive     bool           `db:"is_active"`
	LastLoginAt  *time.Time     `db:"last_login_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func userRowFromModel(u *model.User) userRow {
	return userRow{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Name:         u.Name,
		RoleID:       sql.NullString{String: u.RoleID, Valid: u.RoleID != ""},
		IsActive:     u.IsActive,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRow) toModel() model.User {
	return model.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Name:         r.Name,
		RoleID:       r.RoleID.String,
		IsActive:     r.IsActive,
		LastLoginAt:  r.LastLoginAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// CreateUser inserts a new user. The ID, CreatedAt, and UpdatedAt fields are
// populated before insert. A duplicate email yields ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	if u.ID == "" {
		u.ID = newID()
	}
	u.CreatedAt = now
	u.UpdatedAt = now

	const q = `INSERT INTO users
		(id, email, password_hash, name, role_id, is_active, created_at, updated_at)
		VALUES
		(:id, :email, :password_hash, :name, :role_id, :is_active, :created_at, :updated_at)`

	_, err := s.db.NamedExecContext(ctx, q, userRowFromModel(u))
	return classifyWriteError(err, "insert user")
}

func (s *Store) getUserWhere(ctx context.Context, where string, arg interface{}) (*model.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT * FROM users WHERE "+where), arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u := row.toModel()
	return &u, nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

// GetUserByEmail returns a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUserWhere(ctx, "email = ?", strings.ToLower(email))
}

func userWhere(f model.UserFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		clauses = append(clauses, "(LOWER(email) LIKE ? OR LOWER(name) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if f.RoleID != "" {
		clauses = append(clauses, "role_id = ?")
		args = append(args, f.RoleID)
	}
	if f.IsActive != nil {
		clauses = append(clauses, "is_active = ?")
		args = append(args, *f.IsActive)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var userOrderColumns = map[string]string{
	"createdAt": "created_at",
	"email":     "email",
	"name":      "name",
	"lastLogin": "last_login_at",
}

// UserOrder converts an API sort expression ("email", "-createdAt") into a
// safe ORDER BY clause. Unknown fields fall back to newest first.
func UserOrder(sort string) string {
	dir := "ASC"
	if strings.HasPrefix(sort, "-") {
		dir = "DESC"
		sort = sort[1:]
	}
	col, ok := userOrderColumns[sort]
	if !ok {
		return "created_at DESC"
	}
	return col + " " + dir
}

// ListUsers returns one page of users matching f. order must come from
// UserOrder.
func (s *Store) ListUsers(ctx context.Context, f model.UserFilter, page model.Page, order string) ([]model.User, error) {
	if order == "" {
		order = "created_at DESC"
	}
	where, args := userWhere(f)
	q := "SELECT * FROM users" + where + " ORDER BY " + order + ", id LIMIT ? OFFSET ?"
	args = append(args, page.Limit, page.Offset())

	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]model.User, len(rows))
	for i, r := range rows {
		users[i] = r.toModel()
	}
	return users, nil
}

// CountUsers returns the number of users matching f.
func (s *Store) CountUsers(ctx context.Context, f model.UserFilter) (int64, error) {
	where, args := userWhere(f)
	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM users"+where), args...); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CountUsersSince returns the number of users created at or after t.
func (s *Store) CountUsersSince(ctx context.Context, t time.Time) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM users WHERE created_at >= ?"), t.UTC()); err != nil {
		return 0, fmt.Errorf("count users since: %w", err)
	}
	return n, nil
}

// CountUsersByRole returns the number of users referencing roleID.
func (s *Store) CountUsersByRole(ctx context.Context, roleID string) (int64, error) {
	return s.CountUsers(ctx, model.UserFilter{RoleID: roleID})
}

// UpdateUser updates email, name, role and active flag. The UpdatedAt field
// is refreshed automatically.
func (s *Store) UpdateUser(ctx context.Context, u *model.User) error {
	u.UpdatedAt = time.Now().UTC()

	const q = `UPDATE users SET
		email = :email, name = :name, role_id = :role_id, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, userRowFromModel(u))
	if err != nil {
		return classifyWriteError(err, "update user")
	}
	return rowsAffected(result, "update user")
}

// UpdateUserPassword replaces a user's password hash.
func (s *Store) UpdateUserPassword(ctx context.Context, id, hash string) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?"),
		hash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return rowsAffected(result, "update user password")
}

// UpdateUserLastLogin sets the last_login_at timestamp for a user.
func (s *Store) UpdateUserLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?"), now, now, id)
	if err != nil {
		return fmt.Errorf("update user last login: %w", err)
	}
	return rowsAffected(result, "update user last login")
}

// DeleteUser removes a user by ID along with the user's API sessions.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM api_sessions WHERE owner_id = ? AND owner_type = ?"),
		id, string(model.PrincipalUser)); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	result, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := rowsAffected(result, "delete user"); err != nil {
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Admin CRUD
// ---------------------------------------------------------------------------

// CreateAdmin inserts a new admin account. The ID, CreatedAt, and UpdatedAt
// fields are populated before insert.
func (s *Store) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	now := time.Now().UTC()
	if admin.ID == "" {
		admin.ID = newID()
	}
	admin.CreatedAt = now
	admin.UpdatedAt = now

	const q = `INSERT INTO admins
		(id, email, password_hash, name, role, is_active, created_at, updated_at)
		VALUES
		(:id, :email, :password_hash, :name, :role, :is_active, :created_at, :updated_at)`

	_, err := s.db.NamedExecContext(ctx, q, admin)
	return classifyWriteError(err, "insert admin")
}

// GetAdmin returns an admin by ID.
func (s *Store) GetAdmin(ctx context.Context, id string) (*model.Admin, error) {
	var admin model.Admin
	if err := s.db.GetContext(ctx, &admin, s.db.Rebind("SELECT * FROM admins WHERE id = ?"), id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

// GetAdminByEmail returns an admin by email address.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	var admin model.Admin
	if err := s.db.GetContext(ctx, &admin, s.db.Rebind("SELECT * FROM admins WHERE email = ?"), strings.ToLower(email)); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return &admin, nil
}

// ListAdmins returns one page of admin accounts ordered by email.
func (s *Store) ListAdmins(ctx context.Context, page model.Page) ([]model.Admin, error) {
	admins := []model.Admin{}
	q := s.db.Rebind("SELECT * FROM admins ORDER BY email LIMIT ? OFFSET ?")
	if err := s.db.SelectContext(ctx, &admins, q, page.Limit, page.Offset()); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// CountAdmins returns the number of admin accounts.
func (s *Store) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM admins"); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

// HasAnyAdmin reports whether at least one admin account exists. This is used
// for first-run detection.
func (s *Store) HasAnyAdmin(ctx context.Context) (bool, error) {
	n, err := s.CountAdmins(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateAdmin updates email, name, role and active flag.
func (s *Store) UpdateAdmin(ctx context.Context, admin *model.Admin) error {
	admin.UpdatedAt = time.Now().UTC()

	const q = `UPDATE admins SET
		email = :email, name = :name, role = :role, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, admin)
	if err != nil {
		return classifyWriteError(err, "update admin")
	}
	return rowsAffected(result, "update admin")
}

// UpdateAdminLastLogin sets the last_login_at timestamp for an admin.
func (s *Store) UpdateAdminLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE admins SET last_login_at = ?, updated_at = ? WHERE id = ?"), now, now, id)
	if err != nil {
		return fmt.Errorf("update admin last login: %w", err)
	}
	return rowsAffected(result, "update admin last login")
}

// DeleteAdmin removes an admin by ID along with the admin's API sessions.
func (s *Store) DeleteAdmin(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM api_sessions WHERE owner_id = ? AND owner_type = ?"),
		id, string(model.PrincipalAdmin)); err != nil {
		return fmt.Errorf("delete admin sessions: %w", err)
	}
	result, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM admins WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	if err := rowsAffected(result, "delete admin"); err != nil {
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// API session management
// ---------------------------------------------------------------------------

// CreateAPISession inserts a new API session. KeyHash must already be set
// (use HashAPIKey).
func (s *Store) CreateAPISession(ctx context.Context, sess *model.APISession) error {
	if sess.ID == "" {
		sess.ID = newID()
	}
	sess.CreatedAt = time.Now().UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()

	const q = `INSERT INTO api_sessions
		(id, key_hash, key_prefix, label, owner_id, owner_type, expires_at, created_at)
		VALUES
		(:id, :key_hash, :key_prefix, :label, :owner_id, :owner_type, :expires_at, :created_at)`

	_, err := s.db.NamedExecContext(ctx, q, sess)
	return classifyWriteError(err, "insert api session")
}

// GetAPISessionByHash looks up an API session by its SHA-256 key hash.
func (s *Store) GetAPISessionByHash(ctx context.Context, hash string) (*model.APISession, error) {
	var sess model.APISession
	if err := s.db.GetContext(ctx, &sess, s.db.Rebind("SELECT * FROM api_sessions WHERE key_hash = ?"), hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api session by hash: %w", err)
	}
	return &sess, nil
}

// ListAPISessions returns the sessions owned by ownerID, newest first.
func (s *Store) ListAPISessions(ctx context.Context, ownerID string) ([]model.APISession, error) {
	out := []model.APISession{}
	q := s.db.Rebind("SELECT * FROM api_sessions WHERE owner_id = ? ORDER BY created_at DESC")
	if err := s.db.SelectContext(ctx, &out, q, ownerID); err != nil {
		return nil, fmt.Errorf("list api sessions: %w", err)
	}
	return out, nil
}

// DeleteAPISession removes a session owned by ownerID.
func (s *Store) DeleteAPISession(ctx context.Context, id, ownerID string) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM api_sessions WHERE id = ? AND owner_id = ?"), id, ownerID)
	if err != nil {
		return fmt.Errorf("delete api session: %w", err)
	}
	return rowsAffected(result, "delete api session")
}

// TouchAPISession sets the last_used timestamp for a session.
func (s *Store) TouchAPISession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_sessions SET last_used = ? WHERE id = ?"), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch api session: %w", err)
	}
	return rowsAffected(result, "touch api session")
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
