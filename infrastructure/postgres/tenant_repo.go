package postgres

import (
	"context"
	"database/sql"
	"errors"

	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/domain/tenant"
)

// TenantRepo persists Tenant rows. Tenants are the root of the isolation
// hierarchy so, unlike every other repository in this package, its methods
// are not themselves tenant-scoped.
type TenantRepo struct {
	db *DB
}

// NewTenantRepo constructs a TenantRepo.
func NewTenantRepo(db *DB) *TenantRepo { return &TenantRepo{db: db} }

// Create inserts a new Tenant.
func (r *TenantRepo) Create(ctx context.Context, t tenant.Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)`,
		t.ID, t.Name, t.CreatedAt)
	if err != nil {
		return svcerrors.DatabaseError("tenant.create", err)
	}
	return nil
}

// Get fetches a Tenant by ID.
func (r *TenantRepo) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.GetContext(ctx, &t,
		`SELECT id, name, created_at FROM tenants WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("tenant", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("tenant.get", err)
	}
	return &t, nil
}

// UserRepo persists User rows, each owned by exactly one Tenant.
type UserRepo struct {
	db *DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new User. Returns a CONFLICT ServiceError if the email
// is already taken (email is globally unique, per the auth register flow).
func (r *UserRepo) Create(ctx context.Context, u tenant.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, email, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.TenantID, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if isUniqueViolation(err) {
		return svcerrors.AlreadyExists("user", u.Email)
	}
	if err != nil {
		return svcerrors.DatabaseError("user.create", err)
	}
	return nil
}

// GetByEmail fetches a User by its globally-unique email, used by login.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*tenant.User, error) {
	var u tenant.User
	err := r.db.GetContext(ctx, &u,
		`SELECT id, tenant_id, email, password_hash, role, created_at
		 FROM users WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("user", email)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("user.getByEmail", err)
	}
	return &u, nil
}

// GetByID fetches a User scoped to tenantID.
func (r *UserRepo) GetByID(ctx context.Context, tenantID, id string) (*tenant.User, error) {
	var u tenant.User
	err := r.db.GetContext(ctx, &u,
		`SELECT id, tenant_id, email, password_hash, role, created_at
		 FROM users WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("user", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("user.getByID", err)
	}
	return &u, nil
}
