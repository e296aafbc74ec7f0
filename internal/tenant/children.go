package tenant

import (
	"context"
	"fmt"

	"pbx-admin/internal/models"
)

// Routing entities belong to exactly one tenant. Every write is followed by a
// best-effort resync of that tenant so the switch sees the change.

func (c *Controller) ListExtensions(ctx context.Context, tenantID string) ([]models.Extension, error) {
	if _, err := c.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	return c.store.ListExtensions(ctx, tenantID)
}

// SaveExtension creates or updates e. Deactivating or renumbering an
// extension removes its old directory file on the resync.
func (c *Controller) SaveExtension(ctx context.Context, tenantID string, e *models.Extension) (*SyncOutcome, error) {
	return saveChild(ctx, c, tenantID, "extension", e, func(e *models.Extension) {
		e.TenantID = tenantID
		if e.UserID != nil && *e.UserID == "" {
			e.UserID = nil
		}
	}, c.store.UpsertExtension)
}

func (c *Controller) DeleteExtension(ctx context.Context, tenantID, id string) (*SyncOutcome, error) {
	return c.deleteChild(ctx, tenantID, id, "extension", c.store.DeleteExtension)
}

func (c *Controller) ListRingGroups(ctx context.Context, tenantID string) ([]models.RingGroup, error) {
	if _, err := c.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	return c.store.ListRingGroups(ctx, tenantID)
}

func (c *Controller) SaveRingGroup(ctx context.Context, tenantID string, g *models.RingGroup) (*SyncOutcome, error) {
	return saveChild(ctx, c, tenantID, "ring group", g, func(g *models.RingGroup) {
		g.TenantID = tenantID
		if g.Strategy == "" {
			g.Strategy = models.RingStrategySimultaneous
		}
		if g.Timeout == 0 {
			g.Timeout = models.DefaultRingTimeout
		}
		if g.Members == nil {
			g.Members = []string{}
		}
	}, c.store.UpsertRingGroup)
}

func (c *Controller) DeleteRingGroup(ctx context.Context, tenantID, id string) (*SyncOutcome, error) {
	return c.deleteChild(ctx, tenantID, id, "ring group", c.store.DeleteRingGroup)
}

func (c *Controller) ListInboundRoutes(ctx context.Context, tenantID string) ([]models.InboundRoute, error) {
	if _, err := c.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	return c.store.ListInboundRoutes(ctx, tenantID)
}

func (c *Controller) SaveInboundRoute(ctx context.Context, tenantID string, r *models.InboundRoute) (*SyncOutcome, error) {
	return saveChild(ctx, c, tenantID, "inbound route", r, func(r *models.InboundRoute) {
		r.TenantID = tenantID
	}, c.store.UpsertInboundRoute)
}

func (c *Controller) DeleteInboundRoute(ctx context.Context, tenantID, id string) (*SyncOutcome, error) {
	return c.deleteChild(ctx, tenantID, id, "inbound route", c.store.DeleteInboundRoute)
}

func (c *Controller) ListOutboundRoutes(ctx context.Context, tenantID string) ([]models.OutboundRoute, error) {
	if _, err := c.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	return c.store.ListOutboundRoutes(ctx, tenantID)
}

func (c *Controller) SaveOutboundRoute(ctx context.Context, tenantID string, r *models.OutboundRoute) (*SyncOutcome, error) {
	return saveChild(ctx, c, tenantID, "outbound route", r, func(r *models.OutboundRoute) {
		r.TenantID = tenantID
	}, c.store.UpsertOutboundRoute)
}

func (c *Controller) DeleteOutboundRoute(ctx context.Context, tenantID, id string) (*SyncOutcome, error) {
	return c.deleteChild(ctx, tenantID, id, "outbound route", c.store.DeleteOutboundRoute)
}

func saveChild[T any](
	ctx context.Context,
	c *Controller,
	tenantID, kind string,
	rec *T,
	normalize func(*T),
	upsert func(context.Context, *T) error,
) (*SyncOutcome, error) {
	t, err := c.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	normalize(rec)
	if err := models.Validate(rec); err != nil {
		return nil, err
	}
	if err := upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("save %s: %w", kind, err)
	}
	return c.syncAndReload(ctx, t), nil
}

func (c *Controller) deleteChild(
	ctx context.Context,
	tenantID, id, kind string,
	del func(ctx context.Context, tenantID, id string) error,
) (*SyncOutcome, error) {
	t, err := c.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := del(ctx, tenantID, id); err != nil {
		return nil, fmt.Errorf("delete %s: %w", kind, err)
	}
	return c.syncAndReload(ctx, t), nil
}
