// Package tenant sequences record writes, FreeSWITCH file synchronization and
// switch reloads for tenant lifecycle events.
//
// The record store is the source of truth. Once a record is persisted, any
// failure to render, write or reload is reported as a warning on the outcome
// and never fails the parent operation.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"pbx-admin/internal/fsreload"
	"pbx-admin/internal/fssync"
	"pbx-admin/internal/fsxml"
	"pbx-admin/internal/metrics"
	"pbx-admin/internal/models"
	"pbx-admin/internal/store"
)

// Syncer writes and removes a tenant's configuration files.
type Syncer interface {
	// SyncTenantWith loads the tenant's records and writes its files under
	// one per-tenant lock.
	SyncTenantWith(ctx context.Context, t *models.Tenant, load fssync.Loader) (*fssync.Report, error)
	RemoveTenant(ctx context.Context, t *models.Tenant) error
	Inspect(t *models.Tenant) ([]fssync.FileStatus, error)
	Paths(t *models.Tenant) (fssync.Paths, error)
}

// Reloader applies written files to the running switch.
type Reloader interface {
	IsRunning(ctx context.Context) bool
	Reload(ctx context.Context) fsreload.Result
}

// ReferentialConflictError blocks a tenant delete while dependents exist.
type ReferentialConflictError struct {
	TenantID   string
	Kinds      []string
	Dependents store.Dependents
}

func (e *ReferentialConflictError) Error() string {
	return fmt.Sprintf("tenant %s still has %s", e.TenantID, strings.Join(e.Kinds, " and "))
}

// SyncOutcome reports what a best-effort sync did.
type SyncOutcome struct {
	Synced        bool            `json:"synced"`
	Files         []string        `json:"files,omitempty"`
	Pruned        []string        `json:"pruned,omitempty"`
	Reload        fsreload.Status `json:"reload,omitempty"`
	ReloadVariant string          `json:"reload_variant,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
}

func (s *SyncOutcome) warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// Outcome is the result of a tenant create or update. Sync is nil when the
// update did not touch anything FreeSWITCH renders.
type Outcome struct {
	Tenant *models.Tenant `json:"tenant"`
	Sync   *SyncOutcome   `json:"freeswitch,omitempty"`
}

// Diagnostic is a forced sync followed by a look at the files on disk.
type Diagnostic struct {
	TenantID  string              `json:"tenant_id"`
	SIPDomain string              `json:"sip_domain"`
	Context   string              `json:"context"`
	Profile   string              `json:"profile"`
	Running   bool                `json:"freeswitch_running"`
	Files     []fssync.FileStatus `json:"files"`
	Sync      *SyncOutcome        `json:"freeswitch"`
}

// SyncAllReport summarizes SyncAll.
type SyncAllReport struct {
	Tenants int             `json:"tenants"`
	Failed  []string        `json:"failed,omitempty"`
	Reload  fsreload.Status `json:"reload"`
}

type Controller struct {
	store    store.Store
	syncer   Syncer
	reloader Reloader
	newID    func() string
}

func NewController(st store.Store, syncer Syncer, reloader Reloader) *Controller {
	return &Controller{
		store:    st,
		syncer:   syncer,
		reloader: reloader,
		newID:    uuid.NewString,
	}
}

// Get returns one tenant.
func (c *Controller) Get(ctx context.Context, id string) (*models.Tenant, error) {
	t, err := c.store.GetTenant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (c *Controller) List(ctx context.Context) ([]models.Tenant, error) {
	ts, err := c.store.ListTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return ts, nil
}

// Create persists a new tenant and writes its configuration.
func (c *Controller) Create(ctx context.Context, in *models.Tenant) (*Outcome, error) {
	t := *in
	t.ID = c.newID()
	t.CreatedAt = time.Time{}
	if err := prepare(&t); err != nil {
		return nil, err
	}

	if err := c.store.UpsertTenant(ctx, &t); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	slog.Info("tenant created", "tenant_id", t.ID, "sip_domain", t.SIPDomain, "context", t.Context)

	return &Outcome{Tenant: &t, Sync: c.syncAndReload(ctx, &t)}, nil
}

// Update replaces the tenant's editable fields. Files are rewritten only when
// a rendered field changed; if the file paths moved, the old files are removed
// first.
func (c *Controller) Update(ctx context.Context, id string, in *models.Tenant) (*Outcome, error) {
	old, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	t := *in
	t.ID = old.ID
	t.CreatedAt = old.CreatedAt
	if err := prepare(&t); err != nil {
		return nil, err
	}

	if err := c.store.UpsertTenant(ctx, &t); err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	slog.Info("tenant updated", "tenant_id", t.ID)

	if !renderedFieldsChanged(old, &t) {
		return &Outcome{Tenant: &t}, nil
	}

	var stale []string
	if oldPaths, err := c.syncer.Paths(old); err == nil {
		if newPaths, err := c.syncer.Paths(&t); err != nil || oldPaths != newPaths {
			if err := c.syncer.RemoveTenant(ctx, old); err != nil {
				slog.Warn("failed to remove previous tenant config", "tenant_id", t.ID, "error", err)
				stale = append(stale, "previous config not removed: "+err.Error())
			}
		}
	}

	out := c.syncAndReload(ctx, &t)
	out.Warnings = append(stale, out.Warnings...)
	return &Outcome{Tenant: &t, Sync: out}, nil
}

// Delete removes a tenant that has no extensions or users left. Its files are
// removed and the switch reloaded before the record goes away.
func (c *Controller) Delete(ctx context.Context, id string) (*SyncOutcome, error) {
	t, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	deps, err := c.store.CountDependents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count dependents: %w", err)
	}
	if kinds := deps.Kinds(); len(kinds) > 0 {
		return nil, &ReferentialConflictError{TenantID: id, Kinds: kinds, Dependents: deps}
	}

	out := &SyncOutcome{}
	if err := c.syncer.RemoveTenant(ctx, t); err != nil {
		slog.Warn("failed to remove tenant config", "tenant_id", id, "error", err)
		out.warn("config not removed: " + err.Error())
	} else {
		c.reload(ctx, out)
	}

	if err := c.store.DeleteTenant(ctx, id); err != nil {
		return nil, fmt.Errorf("delete tenant: %w", err)
	}
	slog.Info("tenant deleted", "tenant_id", id)
	return out, nil
}

// Resync rewrites a tenant's files from the store and reloads.
func (c *Controller) Resync(ctx context.Context, id string) (*SyncOutcome, error) {
	t, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.syncAndReload(ctx, t), nil
}

// Diagnose forces a sync and reports on the resulting files.
func (c *Controller) Diagnose(ctx context.Context, id string) (*Diagnostic, error) {
	t, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &Diagnostic{
		TenantID:  t.ID,
		SIPDomain: t.SIPDomain,
		Context:   t.Context,
		Profile:   t.ProfileName(),
		Sync:      c.syncAndReload(ctx, t),
		Running:   c.reloader.IsRunning(ctx),
	}
	files, err := c.syncer.Inspect(t)
	if err != nil {
		d.Sync.warn("inspect failed: " + err.Error())
		return d, nil
	}
	d.Files = files
	return d, nil
}

// SyncAll rewrites every tenant's files and reloads once at the end.
func (c *Controller) SyncAll(ctx context.Context) (*SyncAllReport, error) {
	tenants, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	rep := &SyncAllReport{Tenants: len(tenants)}
	for i := range tenants {
		t := &tenants[i]
		out := &SyncOutcome{}
		if !c.sync(ctx, t, out) {
			rep.Failed = append(rep.Failed, t.ID)
		}
	}

	if len(tenants) > 0 {
		res := c.reloader.Reload(ctx)
		rep.Reload = res.Status
	} else {
		rep.Reload = fsreload.StatusSkipped
	}
	slog.Info("tenant configs synced", "tenants", rep.Tenants, "failed", len(rep.Failed), "reload", rep.Reload)
	return rep, nil
}

func (c *Controller) syncAndReload(ctx context.Context, t *models.Tenant) *SyncOutcome {
	out := &SyncOutcome{}
	if c.sync(ctx, t, out) {
		c.reload(ctx, out)
	}
	return out
}

func (c *Controller) sync(ctx context.Context, t *models.Tenant, out *SyncOutcome) bool {
	start := time.Now()

	var loadErr error
	rep, err := c.syncer.SyncTenantWith(ctx, t, func(ctx context.Context) (*fsxml.Bundle, error) {
		b, err := fsxml.LoadBundle(ctx, c.store, t)
		loadErr = err
		return b, err
	})
	metrics.ObserveSync(start, err)
	if rep != nil {
		out.Files = rep.Written
		out.Pruned = rep.Pruned
	}
	if err != nil {
		var werr *fssync.ConfigWriteError
		if loadErr != nil {
			slog.Warn("failed to load routing entities", "tenant_id", t.ID, "error", loadErr)
			out.warn("load routing entities: " + loadErr.Error())
			return false
		}
		if errors.As(err, &werr) {
			slog.Warn("failed to write tenant config", "tenant_id", t.ID, "path", werr.Path, "op", werr.Op, "error", werr.Err)
		} else {
			slog.Warn("failed to sync tenant config", "tenant_id", t.ID, "error", err)
		}
		out.warn("config sync failed: " + err.Error())
		return false
	}
	out.Synced = true
	return true
}

func (c *Controller) reload(ctx context.Context, out *SyncOutcome) {
	res := c.reloader.Reload(ctx)
	out.Reload = res.Status
	out.ReloadVariant = res.Variant
	if res.Status != fsreload.StatusOK {
		out.warn(res.Message())
	}
}

// prepare normalizes, derives and validates a tenant before it is stored.
func prepare(t *models.Tenant) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return models.NewValidationError("name", "name is required")
	}
	t.ApplyDerived()
	if err := models.ValidateTenant(t); err != nil {
		return err
	}
	if !models.IsPathElement(t.Context) || t.SIPDomain == "" {
		return models.NewValidationError("name", "name must contain at least one letter or digit")
	}
	return nil
}

func renderedFieldsChanged(old, next *models.Tenant) bool {
	return old.Name != next.Name ||
		old.SIPDomain != next.SIPDomain ||
		old.Context != next.Context ||
		!slices.Equal(old.Codecs(), next.Codecs()) ||
		old.ExtensionStart != next.ExtensionStart ||
		old.ExtensionEnd != next.ExtensionEnd ||
		old.SIPPort != next.SIPPort
}
