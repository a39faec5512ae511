// Package tenant holds the entity types for the isolation unit shared by
// both services: Tenant and the Users that belong to it.
package tenant

import "time"

// Role is a User's privilege level within its Tenant.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Tenant is the top-level unit of isolation. Every Workflow, Run, Site,
// SiteVersion and Page belongs to exactly one Tenant.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// User authenticates against one Tenant. Email is globally unique.
type User struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenantId" db:"tenant_id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
