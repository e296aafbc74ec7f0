package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"pbx-admin/internal/models"
)

type row interface {
	Scan(dest ...any) error
}

type rows interface {
	row
	Next() bool
	Err() error
	Close()
}

// driver hides the difference between pgx and database/sql. Queries are
// written with ? placeholders; drivers rebind them as needed.
type driver interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rows, error)
	queryRow(ctx context.Context, query string, args ...any) row
	ping(ctx context.Context) error
	isNoRows(err error) bool
	isConstraint(err error) bool
}

// Repo implements Store over PostgreSQL or SQLite.
type Repo struct {
	drv   driver
	now   func() time.Time
	newID func() string
}

var _ Store = (*Repo)(nil)

func newRepo(drv driver) *Repo {
	return &Repo{
		drv:   drv,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.drv.ping(ctx)
}

// writeErr maps driver errors onto the package sentinels.
func (r *Repo) writeErr(op string, err error) error {
	if r.drv.isConstraint(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *Repo) readErr(op string, err error) error {
	if r.drv.isNoRows(err) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *Repo) stamp(id *string, created, updated *time.Time) {
	now := r.now()
	if *id == "" {
		*id = r.newID()
	}
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// loadCreatedAt replaces *created with the stored value, which an update
// never changes.
func (r *Repo) loadCreatedAt(ctx context.Context, op, table, id string, created *time.Time) error {
	if err := r.drv.queryRow(ctx, `SELECT created_at FROM `+table+` WHERE id = ?`, id).Scan(created); err != nil {
		return r.readErr(op, err)
	}
	return nil
}

func (r *Repo) deleteScoped(ctx context.Context, op, table, tenantID, id string) error {
	n, err := r.drv.exec(ctx, `DELETE FROM `+table+` WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return r.writeErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var v []string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// keepValid drops rows that no longer pass validation so one bad record
// cannot break rendering for the whole tenant.
func keepValid[T any](kind string, in []T, id func(*T) string) []T {
	out := in[:0]
	for i := range in {
		if err := models.Validate(&in[i]); err != nil {
			slog.Warn("skipping invalid stored record", "kind", kind, "id", id(&in[i]), "error", err)
			continue
		}
		out = append(out, in[i])
	}
	return out
}

// Tenants

const tenantColumns = `id, name, domain, contact_email, plan_id, status,
	sip_domain, sip_domain_explicit, context, context_explicit, codec_prefs,
	extension_start, extension_end, sip_port, created_at, updated_at`

func scanTenant(rw row) (*models.Tenant, error) {
	var (
		t      models.Tenant
		codecs string
	)
	err := rw.Scan(
		&t.ID, &t.Name, &t.Domain, &t.ContactEmail, &t.PlanID, &t.Status,
		&t.SIPDomain, &t.SIPDomainExplicit, &t.Context, &t.ContextExplicit, &codecs,
		&t.ExtensionStart, &t.ExtensionEnd, &t.SIPPort, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.CodecPrefs, err = decodeList(codecs); err != nil {
		return nil, fmt.Errorf("decode codec_prefs: %w", err)
	}
	return &t, nil
}

func (r *Repo) getTenantBy(ctx context.Context, column, value string) (*models.Tenant, error) {
	t, err := scanTenant(r.drv.queryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE `+column+` = ?`, value))
	if err != nil {
		return nil, r.readErr("get tenant by "+column, err)
	}
	return t, nil
}

func (r *Repo) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	return r.getTenantBy(ctx, "id", id)
}

func (r *Repo) GetTenantBySIPDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	return r.getTenantBy(ctx, "sip_domain", domain)
}

func (r *Repo) GetTenantByContext(ctx context.Context, name string) (*models.Tenant, error) {
	return r.getTenantBy(ctx, "context", name)
}

func (r *Repo) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rs, err := r.drv.query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rs.Close()

	out := []models.Tenant{}
	for rs.Next() {
		t, err := scanTenant(rs)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, *t)
	}
	return out, rs.Err()
}

func (r *Repo) CountTenants(ctx context.Context) (int, error) {
	var n int
	if err := r.drv.queryRow(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tenants: %w", err)
	}
	return n, nil
}

// UpsertTenant inserts t, or updates every column except created_at when the
// ID already exists. An empty ID gets a fresh UUID.
func (r *Repo) UpsertTenant(ctx context.Context, t *models.Tenant) error {
	r.stamp(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	codecs, err := encodeList(t.CodecPrefs)
	if err != nil {
		return fmt.Errorf("encode codec_prefs: %w", err)
	}

	_, err = r.drv.exec(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			domain = excluded.domain,
			contact_email = excluded.contact_email,
			plan_id = excluded.plan_id,
			status = excluded.status,
			sip_domain = excluded.sip_domain,
			sip_domain_explicit = excluded.sip_domain_explicit,
			context = excluded.context,
			context_explicit = excluded.context_explicit,
			codec_prefs = excluded.codec_prefs,
			extension_start = excluded.extension_start,
			extension_end = excluded.extension_end,
			sip_port = excluded.sip_port,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, t.Domain, t.ContactEmail, t.PlanID, string(t.Status),
		t.SIPDomain, t.SIPDomainExplicit, t.Context, t.ContextExplicit, codecs,
		t.ExtensionStart, t.ExtensionEnd, t.SIPPort, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return r.writeErr("upsert tenant", err)
	}
	return r.loadCreatedAt(ctx, "upsert tenant", "tenants", t.ID, &t.CreatedAt)
}

func (r *Repo) DeleteTenant(ctx context.Context, id string) error {
	n, err := r.drv.exec(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return r.writeErr("delete tenant", err)
	}
	if n == 0 {
		return fmt.Errorf("delete tenant: %w", ErrNotFound)
	}
	return nil
}

func (r *Repo) CountDependents(ctx context.Context, tenantID string) (Dependents, error) {
	var d Dependents
	err := r.drv.queryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM extensions WHERE tenant_id = ?),
			(SELECT COUNT(*) FROM users WHERE tenant_id = ?)`,
		tenantID, tenantID,
	).Scan(&d.Extensions, &d.Users)
	if err != nil {
		return Dependents{}, fmt.Errorf("count dependents: %w", err)
	}
	return d, nil
}

func (r *Repo) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = r.newID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	_, err := r.drv.exec(ctx,
		`INSERT INTO users (id, tenant_id, name, email, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Name, u.Email, u.CreatedAt)
	if err != nil {
		return r.writeErr("create user", err)
	}
	return nil
}

// Extensions

const extensionColumns = `id, tenant_id, number, display_name, secret,
	voicemail_pin, active, user_id, created_at, updated_at`

func scanExtension(rw row) (*models.Extension, error) {
	var e models.Extension
	err := rw.Scan(&e.ID, &e.TenantID, &e.Number, &e.DisplayName, &e.Secret,
		&e.VoicemailPIN, &e.Active, &e.UserID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repo) ListExtensions(ctx context.Context, tenantID string) ([]models.Extension, error) {
	rs, err := r.drv.query(ctx,
		`SELECT `+extensionColumns+` FROM extensions WHERE tenant_id = ? ORDER BY number, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}
	defer rs.Close()

	out := []models.Extension{}
	for rs.Next() {
		e, err := scanExtension(rs)
		if err != nil {
			return nil, fmt.Errorf("scan extension: %w", err)
		}
		out = append(out, *e)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}
	return keepValid("extension", out, func(e *models.Extension) string { return e.ID }), nil
}

func (r *Repo) GetExtension(ctx context.Context, tenantID, id string) (*models.Extension, error) {
	e, err := scanExtension(r.drv.queryRow(ctx,
		`SELECT `+extensionColumns+` FROM extensions WHERE tenant_id = ? AND id = ?`, tenantID, id))
	if err != nil {
		return nil, r.readErr("get extension", err)
	}
	return e, nil
}

// UpsertExtension never moves a record between tenants: an existing ID that
// belongs to another tenant is reported as ErrNotFound.
func (r *Repo) UpsertExtension(ctx context.Context, e *models.Extension) error {
	r.stamp(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	n, err := r.drv.exec(ctx, `
		INSERT INTO extensions (`+extensionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			number = excluded.number,
			display_name = excluded.display_name,
			secret = excluded.secret,
			voicemail_pin = excluded.voicemail_pin,
			active = excluded.active,
			user_id = excluded.user_id,
			updated_at = excluded.updated_at
		WHERE extensions.tenant_id = excluded.tenant_id`,
		e.ID, e.TenantID, e.Number, e.DisplayName, e.Secret,
		e.VoicemailPIN, e.Active, e.UserID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return r.writeErr("upsert extension", err)
	}
	if n == 0 {
		return fmt.Errorf("upsert extension: %w", ErrNotFound)
	}
	got, err := r.GetExtension(ctx, e.TenantID, e.ID)
	if err != nil {
		return fmt.Errorf("upsert extension: %w", err)
	}
	*e = *got
	return nil
}

func (r *Repo) DeleteExtension(ctx context.Context, tenantID, id string) error {
	return r.deleteScoped(ctx, "delete extension", "extensions", tenantID, id)
}

// Ring groups

const ringGroupColumns = `id, tenant_id, name, number, strategy, timeout,
	members, overflow_type, overflow_target, survey_id, created_at, updated_at`

func (r *Repo) ListRingGroups(ctx context.Context, tenantID string) ([]models.RingGroup, error) {
	rs, err := r.drv.query(ctx,
		`SELECT `+ringGroupColumns+` FROM ring_groups WHERE tenant_id = ? ORDER BY number, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list ring groups: %w", err)
	}
	defer rs.Close()

	out := []models.RingGroup{}
	for rs.Next() {
		var (
			g       models.RingGroup
			members string
		)
		if err := rs.Scan(&g.ID, &g.TenantID, &g.Name, &g.Number, &g.Strategy, &g.Timeout,
			&members, &g.OverflowType, &g.OverflowTarget, &g.SurveyID, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ring group: %w", err)
		}
		if g.Members, err = decodeList(members); err != nil {
			slog.Warn("skipping ring group with unreadable members", "id", g.ID, "error", err)
			continue
		}
		out = append(out, g)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("list ring groups: %w", err)
	}
	return keepValid("ring_group", out, func(g *models.RingGroup) string { return g.ID }), nil
}

func (r *Repo) UpsertRingGroup(ctx context.Context, g *models.RingGroup) error {
	r.stamp(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	members, err := encodeList(g.Members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}
	n, err := r.drv.exec(ctx, `
		INSERT INTO ring_groups (`+ringGroupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			number = excluded.number,
			strategy = excluded.strategy,
			timeout = excluded.timeout,
			members = excluded.members,
			overflow_type = excluded.overflow_type,
			overflow_target = excluded.overflow_target,
			survey_id = excluded.survey_id,
			updated_at = excluded.updated_at
		WHERE ring_groups.tenant_id = excluded.tenant_id`,
		g.ID, g.TenantID, g.Name, g.Number, string(g.Strategy), g.Timeout,
		members, string(g.OverflowType), g.OverflowTarget, g.SurveyID, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return r.writeErr("upsert ring group", err)
	}
	if n == 0 {
		return fmt.Errorf("upsert ring group: %w", ErrNotFound)
	}
	return r.loadCreatedAt(ctx, "upsert ring group", "ring_groups", g.ID, &g.CreatedAt)
}

func (r *Repo) DeleteRingGroup(ctx context.Context, tenantID, id string) error {
	return r.deleteScoped(ctx, "delete ring group", "ring_groups", tenantID, id)
}

// Inbound routes

const inboundColumns = `id, tenant_id, name, did, source_ip, destination_type,
	destination_target, caller_id_name, caller_id_number, active, created_at, updated_at`

func (r *Repo) ListInboundRoutes(ctx context.Context, tenantID string) ([]models.InboundRoute, error) {
	rs, err := r.drv.query(ctx,
		`SELECT `+inboundColumns+` FROM inbound_routes WHERE tenant_id = ? ORDER BY did, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list inbound routes: %w", err)
	}
	defer rs.Close()

	out := []models.InboundRoute{}
	for rs.Next() {
		var ir models.InboundRoute
		if err := rs.Scan(&ir.ID, &ir.TenantID, &ir.Name, &ir.DID, &ir.SourceIP,
			&ir.Destination.Type, &ir.Destination.Target, &ir.CallerIDName, &ir.CallerIDNumber,
			&ir.Active, &ir.CreatedAt, &ir.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inbound route: %w", err)
		}
		out = append(out, ir)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("list inbound routes: %w", err)
	}
	return keepValid("inbound_route", out, func(ir *models.InboundRoute) string { return ir.ID }), nil
}

func (r *Repo) UpsertInboundRoute(ctx context.Context, ir *models.InboundRoute) error {
	r.stamp(&ir.ID, &ir.CreatedAt, &ir.UpdatedAt)
	n, err := r.drv.exec(ctx, `
		INSERT INTO inbound_routes (`+inboundColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			did = excluded.did,
			source_ip = excluded.source_ip,
			destination_type = excluded.destination_type,
			destination_target = excluded.destination_target,
			caller_id_name = excluded.caller_id_name,
			caller_id_number = excluded.caller_id_number,
			active = excluded.active,
			updated_at = excluded.updated_at
		WHERE inbound_routes.tenant_id = excluded.tenant_id`,
		ir.ID, ir.TenantID, ir.Name, ir.DID, ir.SourceIP, string(ir.Destination.Type),
		ir.Destination.Target, ir.CallerIDName, ir.CallerIDNumber, ir.Active, ir.CreatedAt, ir.UpdatedAt,
	)
	if err != nil {
		return r.writeErr("upsert inbound route", err)
	}
	if n == 0 {
		return fmt.Errorf("upsert inbound route: %w", ErrNotFound)
	}
	return r.loadCreatedAt(ctx, "upsert inbound route", "inbound_routes", ir.ID, &ir.CreatedAt)
}

func (r *Repo) DeleteInboundRoute(ctx context.Context, tenantID, id string) error {
	return r.deleteScoped(ctx, "delete inbound route", "inbound_routes", tenantID, id)
}

// Outbound routes

const outboundColumns = `id, tenant_id, name, preset, pattern, tech_prefix,
	domain_suffix, trunk, fallback_trunk, caller_id_name, caller_id_number,
	priority, active, post_destination_type, post_destination_target,
	created_at, updated_at`

func (r *Repo) ListOutboundRoutes(ctx context.Context, tenantID string) ([]models.OutboundRoute, error) {
	rs, err := r.drv.query(ctx,
		`SELECT `+outboundColumns+` FROM outbound_routes WHERE tenant_id = ? ORDER BY priority, name, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list outbound routes: %w", err)
	}
	defer rs.Close()

	out := []models.OutboundRoute{}
	for rs.Next() {
		var or models.OutboundRoute
		if err := rs.Scan(&or.ID, &or.TenantID, &or.Name, &or.Preset, &or.Pattern, &or.TechPrefix,
			&or.DomainSuffix, &or.Trunk, &or.FallbackTrunk, &or.CallerIDName, &or.CallerIDNumber,
			&or.Priority, &or.Active, &or.PostDestination.Type, &or.PostDestination.Target,
			&or.CreatedAt, &or.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outbound route: %w", err)
		}
		out = append(out, or)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("list outbound routes: %w", err)
	}
	return keepValid("outbound_route", out, func(or *models.OutboundRoute) string { return or.ID }), nil
}

func (r *Repo) UpsertOutboundRoute(ctx context.Context, or *models.OutboundRoute) error {
	r.stamp(&or.ID, &or.CreatedAt, &or.UpdatedAt)
	n, err := r.drv.exec(ctx, `
		INSERT INTO outbound_routes (`+outboundColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			preset = excluded.preset,
			pattern = excluded.pattern,
			tech_prefix = excluded.tech_prefix,
			domain_suffix = excluded.domain_suffix,
			trunk = excluded.trunk,
			fallback_trunk = excluded.fallback_trunk,
			caller_id_name = excluded.caller_id_name,
			caller_id_number = excluded.caller_id_number,
			priority = excluded.priority,
			active = excluded.active,
			post_destination_type = excluded.post_destination_type,
			post_destination_target = excluded.post_destination_target,
			updated_at = excluded.updated_at
		WHERE outbound_routes.tenant_id = excluded.tenant_id`,
		or.ID, or.TenantID, or.Name, string(or.Preset), or.Pattern, or.TechPrefix,
		or.DomainSuffix, or.Trunk, or.FallbackTrunk, or.CallerIDName, or.CallerIDNumber,
		or.Priority, or.Active, string(or.PostDestination.Type), or.PostDestination.Target,
		or.CreatedAt, or.UpdatedAt,
	)
	if err != nil {
		return r.writeErr("upsert outbound route", err)
	}
	if n == 0 {
		return fmt.Errorf("upsert outbound route: %w", ErrNotFound)
	}
	return r.loadCreatedAt(ctx, "upsert outbound route", "outbound_routes", or.ID, &or.CreatedAt)
}

func (r *Repo) DeleteOutboundRoute(ctx context.Context, tenantID, id string) error {
	return r.deleteScoped(ctx, "delete outbound route", "outbound_routes", tenantID, id)
}
