package fsxml

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pbx-admin/internal/models"
)

// Bundle is everything the renderer needs for one tenant.
type Bundle struct {
	Tenant         *models.Tenant
	Extensions     []models.Extension
	RingGroups     []models.RingGroup
	InboundRoutes  []models.InboundRoute
	OutboundRoutes []models.OutboundRoute
}

// LoadBundle reads the routing entities of t from src.
func LoadBundle(ctx context.Context, src Source, t *models.Tenant) (*Bundle, error) {
	b := &Bundle{Tenant: t}
	var err error

	if b.Extensions, err = src.ListExtensions(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}
	if b.RingGroups, err = src.ListRingGroups(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("list ring groups: %w", err)
	}
	if b.InboundRoutes, err = src.ListInboundRoutes(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("list inbound routes: %w", err)
	}
	if b.OutboundRoutes, err = src.ListOutboundRoutes(ctx, t.ID); err != nil {
		return nil, fmt.Errorf("list outbound routes: %w", err)
	}
	return b, nil
}

const (
	metaAttendedTransfer = "1 b s execute_extension::att_xfer XML features"
	metaRecord           = "2 b s record_session::$${recordings_dir}/${caller_id_number}.${strftime(%Y-%m-%d-%H-%M-%S)}.wav"
	metaCallForward      = "3 b s execute_extension::cf XML features"

	featuresPattern = `^\*(\d+)$`
	featuresTone    = "tone_stream://%(200,100,440,480)"

	localCallTimeout = 30
)

// BuildDialplan assembles the context for a tenant. Rules come out in a fixed
// order: local extensions, ring groups, inbound routes, outbound routes by
// priority, features. References that do not resolve are skipped.
func BuildDialplan(b *Bundle) *ContextNode {
	t := b.Tenant
	domain := sipDomain(t)
	ctxName := dialplanContext(t)
	ix := newIndex(b.Extensions, b.RingGroups)

	node := &ContextNode{Name: ctxName}
	node.Extension = append(node.Extension, localExtensionsRule(t, domain))

	for _, g := range sortedRingGroups(b.RingGroups) {
		node.Extension = append(node.Extension, ringGroupRule(g, ix, domain, ctxName))
	}

	for _, r := range sortedInbound(b.InboundRoutes) {
		if rule, ok := inboundRule(r, ix, domain); ok {
			node.Extension = append(node.Extension, rule)
		}
	}

	for _, r := range sortedOutbound(b.OutboundRoutes) {
		if rule, ok := outboundRule(r, ix, ctxName); ok {
			node.Extension = append(node.Extension, rule)
		}
	}

	node.Extension = append(node.Extension, featuresRule())
	return node
}

// RenderDialplan renders dialplan/<context>.xml.
func RenderDialplan(t *models.Tenant, exts []models.Extension, groups []models.RingGroup,
	inbound []models.InboundRoute, outbound []models.OutboundRoute) ([]byte, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	return Marshal(&Include{Context: BuildDialplan(&Bundle{
		Tenant:         t,
		Extensions:     exts,
		RingGroups:     groups,
		InboundRoutes:  inbound,
		OutboundRoutes: outbound,
	})})
}

func localExtensionsRule(t *models.Tenant, domain string) ExtensionNode {
	start, end := t.ExtensionRange()
	return ExtensionNode{
		Name: "local_extensions",
		Condition: []ConditionNode{{
			Field: "destination_number",
			Expr:  ExtensionRangePattern(start, end),
			Action: []ActionNode{
				{App: "export", Data: "dialed_extension=$1"},
				{App: "bind_meta_app", Data: metaAttendedTransfer},
				{App: "bind_meta_app", Data: metaRecord},
				{App: "bind_meta_app", Data: metaCallForward},
				{App: "set", Data: "ringback=${us-ring}"},
				{App: "set", Data: "transfer_ringback=$${hold_music}"},
				{App: "set", Data: "call_timeout=" + strconv.Itoa(localCallTimeout)},
				{App: "set", Data: "hangup_after_bridge=true"},
				{App: "set", Data: "continue_on_fail=true"},
				{App: "bridge", Data: "user/$1@" + domain},
				{App: "answer"},
				{App: "sleep", Data: "1000"},
				{App: "voicemail", Data: "default " + domain + " $1"},
			},
		}},
	}
}

func ringGroupRule(g *models.RingGroup, ix *index, domain, ctxName string) ExtensionNode {
	timeout := g.RingTimeout()
	actions := []ActionNode{
		{App: "set", Data: "ringback=${us-ring}"},
		{App: "set", Data: "call_timeout=" + strconv.Itoa(timeout)},
		{App: "set", Data: "hangup_after_bridge=true"},
		{App: "set", Data: "continue_on_fail=true"},
	}
	if g.SurveyID != "" {
		actions = append(actions, ActionNode{App: "export", Data: "nolocal:survey_id=" + g.SurveyID})
	}
	if dial := ix.memberDialString(g, domain); dial != "" {
		actions = append(actions, ActionNode{App: "bridge", Data: dial})
	}

	switch g.OverflowType {
	case models.OverflowExtension:
		if ext, ok := ix.extension(g.OverflowTarget); ok {
			actions = append(actions, ActionNode{App: "transfer", Data: ext.Number + " XML " + ctxName})
		}
	case models.OverflowCustom:
		if g.OverflowTarget != "" {
			actions = append(actions, ActionNode{App: "bridge", Data: g.OverflowTarget})
		}
	}

	return ExtensionNode{
		Name: "ringgroup_" + g.Number,
		Condition: []ConditionNode{{
			Field:  "destination_number",
			Expr:   exactPattern(g.Number),
			Action: actions,
		}},
	}
}

func inboundRule(r *models.InboundRoute, ix *index, domain string) (ExtensionNode, bool) {
	var target string
	switch r.Destination.Type {
	case models.DestinationExtension:
		if ext, ok := ix.extension(r.Destination.Target); ok {
			target = userURI(ext.Number, domain)
		}
	case models.DestinationRingGroup:
		if g, ok := ix.ringGroup(r.Destination.Target); ok {
			target = ix.memberDialString(g, domain)
		}
	case models.DestinationCustom:
		target = r.Destination.Target
	}
	if target == "" {
		return ExtensionNode{}, false
	}

	var conds []ConditionNode
	if r.SourceIP != "" {
		conds = append(conds, ConditionNode{Field: "network_addr", Expr: exactPattern(r.SourceIP)})
	}

	var actions []ActionNode
	if r.CallerIDName != "" {
		actions = append(actions, ActionNode{App: "set", Data: "effective_caller_id_name=" + r.CallerIDName})
	}
	if r.CallerIDNumber != "" {
		actions = append(actions, ActionNode{App: "set", Data: "effective_caller_id_number=" + r.CallerIDNumber})
	}
	actions = append(actions,
		ActionNode{App: "set", Data: "hangup_after_bridge=true"},
		ActionNode{App: "bridge", Data: target},
	)

	conds = append(conds, ConditionNode{
		Field:  "destination_number",
		Expr:   exactPattern(r.DID),
		Action: actions,
	})

	return ExtensionNode{Name: "inbound_" + ruleSuffix(r.ID, r.DID), Condition: conds}, true
}

func outboundRule(r *models.OutboundRoute, ix *index, ctxName string) (ExtensionNode, bool) {
	if r.Trunk == "" {
		return ExtensionNode{}, false
	}

	expr := OutboundPattern(r)
	number := r.TechPrefix + dialedNumberRef(expr)
	if r.DomainSuffix != "" {
		number += "@" + r.DomainSuffix
	}

	post := ix.postDestination(r.PostDestination, ctxName)

	var actions []ActionNode
	if r.CallerIDNumber != "" {
		actions = append(actions, ActionNode{App: "set", Data: "effective_caller_id_number=" + r.CallerIDNumber})
	}
	if r.CallerIDName != "" {
		actions = append(actions, ActionNode{App: "set", Data: "effective_caller_id_name=" + r.CallerIDName})
	}
	actions = append(actions,
		ActionNode{App: "set", Data: "hangup_after_bridge=" + strconv.FormatBool(post == "")},
		ActionNode{App: "set", Data: "continue_on_fail=true"},
		ActionNode{App: "bridge", Data: gatewayURI(r.Trunk, number)},
	)
	if r.FallbackTrunk != "" {
		actions = append(actions, ActionNode{App: "bridge", Data: gatewayURI(r.FallbackTrunk, number)})
	}
	if post != "" {
		actions = append(actions,
			ActionNode{App: "transfer", Data: post},
			ActionNode{App: "hangup"},
		)
	}

	name := models.ContextSlug(r.Name)
	if name == "" {
		name = r.ID
	}
	return ExtensionNode{
		Name: fmt.Sprintf("outbound_%d_%s", r.Priority, name),
		Condition: []ConditionNode{{
			Field:  "destination_number",
			Expr:   expr,
			Action: actions,
		}},
	}, true
}

func featuresRule() ExtensionNode {
	return ExtensionNode{
		Name: "features",
		Condition: []ConditionNode{{
			Field: "destination_number",
			Expr:  featuresPattern,
			Action: []ActionNode{
				{App: "answer"},
				{App: "playback", Data: featuresTone},
				{App: "hangup"},
			},
		}},
	}
}

func userURI(number, domain string) string {
	return "user/" + number + "@" + domain
}

func gatewayURI(gateway, number string) string {
	return "sofia/gateway/" + gateway + "/" + number
}

func ruleSuffix(id, fallback string) string {
	if id != "" {
		return id
	}
	return models.DomainSlug(fallback)
}

func sortedRingGroups(in []models.RingGroup) []*models.RingGroup {
	out := make([]*models.RingGroup, len(in))
	for i := range in {
		out[i] = &in[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedInbound(in []models.InboundRoute) []*models.InboundRoute {
	out := make([]*models.InboundRoute, 0, len(in))
	for i := range in {
		if in[i].Active {
			out = append(out, &in[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DID != out[j].DID {
			return out[i].DID < out[j].DID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// sortedOutbound keeps active routes, lowest priority first.
func sortedOutbound(in []models.OutboundRoute) []*models.OutboundRoute {
	out := make([]*models.OutboundRoute, 0, len(in))
	for i := range in {
		if in[i].Active {
			out = append(out, &in[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

// index resolves references by ID first, then by number. Only active
// extensions are resolvable.
type index struct {
	extByID     map[string]*models.Extension
	extByNumber map[string]*models.Extension
	rgByID      map[string]*models.RingGroup
	rgByNumber  map[string]*models.RingGroup
}

func newIndex(exts []models.Extension, groups []models.RingGroup) *index {
	ix := &index{
		extByID:     make(map[string]*models.Extension, len(exts)),
		extByNumber: make(map[string]*models.Extension, len(exts)),
		rgByID:      make(map[string]*models.RingGroup, len(groups)),
		rgByNumber:  make(map[string]*models.RingGroup, len(groups)),
	}
	for i := range exts {
		e := &exts[i]
		if !e.Active || e.Number == "" {
			continue
		}
		if e.ID != "" {
			ix.extByID[e.ID] = e
		}
		if _, dup := ix.extByNumber[e.Number]; !dup {
			ix.extByNumber[e.Number] = e
		}
	}
	for i := range groups {
		g := &groups[i]
		if g.ID != "" {
			ix.rgByID[g.ID] = g
		}
		if _, dup := ix.rgByNumber[g.Number]; !dup {
			ix.rgByNumber[g.Number] = g
		}
	}
	return ix
}

func (ix *index) extension(ref string) (*models.Extension, bool) {
	if e, ok := ix.extByID[ref]; ok {
		return e, true
	}
	e, ok := ix.extByNumber[ref]
	return e, ok
}

func (ix *index) ringGroup(ref string) (*models.RingGroup, bool) {
	if g, ok := ix.rgByID[ref]; ok {
		return g, true
	}
	g, ok := ix.rgByNumber[ref]
	return g, ok
}

// memberDialString joins the resolvable members of g in list order. Comma
// rings everyone at once, pipe rings one after the other.
func (ix *index) memberDialString(g *models.RingGroup, domain string) string {
	sequential := g.Strategy == models.RingStrategySequence || g.Strategy == models.RingStrategyRoundRobin
	legPrefix := ""
	sep := ","
	if sequential {
		legPrefix = "[leg_timeout=" + strconv.Itoa(g.RingTimeout()) + "]"
		sep = "|"
	}

	seen := make(map[string]bool, len(g.Members))
	var legs []string
	for _, ref := range g.Members {
		ext, ok := ix.extension(ref)
		if !ok || seen[ext.Number] {
			continue
		}
		seen[ext.Number] = true
		legs = append(legs, legPrefix+userURI(ext.Number, domain))
	}
	return strings.Join(legs, sep)
}

// postDestination returns the transfer data for a post-trunk destination, or
// "" when it is unset or unresolvable.
func (ix *index) postDestination(d models.Destination, ctxName string) string {
	if d.IsZero() {
		return ""
	}
	switch d.Type {
	case models.DestinationExtension:
		if ext, ok := ix.extension(d.Target); ok {
			return ext.Number + " XML " + ctxName
		}
	case models.DestinationRingGroup:
		if g, ok := ix.ringGroup(d.Target); ok {
			return g.Number + " XML " + ctxName
		}
	case models.DestinationCustom:
		return d.Target
	}
	return ""
}

type DialplanService struct {
	Source Source
}

// BuildDialplan returns the complete dialplan context for an xml_curl request.
func (s *DialplanService) BuildDialplan(ctx context.Context, contextName string) (*Document, error) {
	if s.Source == nil {
		return nil, errors.New("dialplan source is nil")
	}

	t, err := s.Source.GetTenantByContext(ctx, contextName)
	if err != nil {
		return nil, fmt.Errorf("lookup context %q: %w", contextName, err)
	}

	b, err := LoadBundle(ctx, s.Source, t)
	if err != nil {
		return nil, err
	}

	return &Document{
		Type:    documentType,
		Section: []Section{{Name: "dialplan", Context: BuildDialplan(b)}},
	}, nil
}
