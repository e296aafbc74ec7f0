// Package store persists tenants and the routing entities the FreeSWITCH
// renderer compiles. The database is the source of truth; generated files are
// always derived from what is stored here.
package store

import (
	"context"
	"errors"

	"pbx-admin/internal/models"
)

var (
	// ErrNotFound is returned when a single record lookup matches nothing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness or
	// reference constraint (duplicate SIP domain, context, number...).
	ErrConflict = errors.New("record conflict")
)

// Dependents counts the records that block a tenant delete.
type Dependents struct {
	Extensions int `json:"extensions"`
	Users      int `json:"users"`
}

// Kinds names the dependent record kinds that are present.
func (d Dependents) Kinds() []string {
	var kinds []string
	if d.Extensions > 0 {
		kinds = append(kinds, "extensions")
	}
	if d.Users > 0 {
		kinds = append(kinds, "users")
	}
	return kinds
}

// Store is the record store. List methods return an empty slice, never
// ErrNotFound.
type Store interface {
	Ping(ctx context.Context) error

	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantBySIPDomain(ctx context.Context, domain string) (*models.Tenant, error)
	GetTenantByContext(ctx context.Context, name string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	CountTenants(ctx context.Context) (int, error)
	UpsertTenant(ctx context.Context, t *models.Tenant) error
	DeleteTenant(ctx context.Context, id string) error
	CountDependents(ctx context.Context, tenantID string) (Dependents, error)

	CreateUser(ctx context.Context, u *models.User) error

	ListExtensions(ctx context.Context, tenantID string) ([]models.Extension, error)
	GetExtension(ctx context.Context, tenantID, id string) (*models.Extension, error)
	UpsertExtension(ctx context.Context, e *models.Extension) error
	DeleteExtension(ctx context.Context, tenantID, id string) error

	ListRingGroups(ctx context.Context, tenantID string) ([]models.RingGroup, error)
	UpsertRingGroup(ctx context.Context, g *models.RingGroup) error
	DeleteRingGroup(ctx context.Context, tenantID, id string) error

	ListInboundRoutes(ctx context.Context, tenantID string) ([]models.InboundRoute, error)
	UpsertInboundRoute(ctx context.Context, r *models.InboundRoute) error
	DeleteInboundRoute(ctx context.Context, tenantID, id string) error

	// ListOutboundRoutes returns routes by ascending priority.
	ListOutboundRoutes(ctx context.Context, tenantID string) ([]models.OutboundRoute, error)
	UpsertOutboundRoute(ctx context.Context, r *models.OutboundRoute) error
	DeleteOutboundRoute(ctx context.Context, tenantID, id string) error
}
