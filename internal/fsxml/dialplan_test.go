package fsxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
	"testing"

	"pbx-admin/internal/models"
)

func acmeTenant() *models.Tenant {
	t := &models.Tenant{ID: "t-1", Name: "Acme Corp"}
	t.ApplyDerived()
	return t
}

func decodeContext(t *testing.T, raw []byte) *ContextNode {
	t.Helper()
	var inc Include
	if err := xml.Unmarshal(raw, &inc); err != nil {
		t.Fatalf("output is not well-formed xml: %v\n%s", err, raw)
	}
	if inc.Context == nil {
		t.Fatalf("no context element in output:\n%s", raw)
	}
	return inc.Context
}

func findRule(ctx *ContextNode, name string) (ExtensionNode, bool) {
	for _, e := range ctx.Extension {
		if e.Name == name {
			return e, true
		}
	}
	return ExtensionNode{}, false
}

func actionData(cond ConditionNode, app string) []string {
	var out []string
	for _, a := range cond.Action {
		if a.App == app {
			out = append(out, a.Data)
		}
	}
	return out
}

func TestRenderDialplanEndToEnd(t *testing.T) {
	t.Parallel()

	tenant := acmeTenant()
	if tenant.SIPDomain != "acmecorp.local" || tenant.Context != "context_acme_corp" {
		t.Fatalf("derived identity = %q / %q", tenant.SIPDomain, tenant.Context)
	}

	exts := []models.Extension{{ID: "e-1", Number: "1001", Secret: "s3cret", Active: true}}
	groups := []models.RingGroup{{ID: "g-1", Name: "Sales", Number: "2000", Members: []string{"1001"}}}

	raw, err := RenderDialplan(tenant, exts, groups, nil, nil)
	if err != nil {
		t.Fatalf("RenderDialplan: %v", err)
	}

	ctx := decodeContext(t, raw)
	if ctx.Name != "context_acme_corp" {
		t.Fatalf("context name = %q", ctx.Name)
	}

	rule, ok := findRule(ctx, "ringgroup_2000")
	if !ok {
		t.Fatalf("ring group rule missing:\n%s", raw)
	}
	cond := rule.Condition[0]
	if cond.Field != "destination_number" || cond.Expr != "^2000$" {
		t.Fatalf("condition = %s %q", cond.Field, cond.Expr)
	}
	bridges := actionData(cond, "bridge")
	if len(bridges) != 1 || bridges[0] != "user/1001@acmecorp.local" {
		t.Fatalf("bridge = %v", bridges)
	}
}

func TestRenderDialplanLayout(t *testing.T) {
	t.Parallel()

	raw, err := RenderDialplan(acmeTenant(), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("RenderDialplan: %v", err)
	}
	ctx := decodeContext(t, raw)

	if len(ctx.Extension) != 2 {
		t.Fatalf("expected local + features rules, got %d", len(ctx.Extension))
	}

	local := ctx.Extension[0]
	if local.Name != "local_extensions" || local.Condition[0].Expr != `^(1\d{3})$` {
		t.Fatalf("local rule = %s %q", local.Name, local.Condition[0].Expr)
	}
	if got := actionData(local.Condition[0], "bind_meta_app"); len(got) != 3 {
		t.Fatalf("expected 3 meta app bindings, got %v", got)
	}
	if got := actionData(local.Condition[0], "bridge"); len(got) != 1 || got[0] != "user/$1@acmecorp.local" {
		t.Fatalf("local bridge = %v", got)
	}
	if got := actionData(local.Condition[0], "voicemail"); len(got) != 1 || got[0] != "default acmecorp.local $1" {
		t.Fatalf("voicemail fallback = %v", got)
	}

	if ctx.Extension[1].Name != "features" {
		t.Fatalf("last rule = %q, want features", ctx.Extension[1].Name)
	}
	if !bytes.HasPrefix(raw, []byte("<include>")) || !bytes.HasSuffix(raw, []byte("</include>\n")) {
		t.Fatalf("unexpected framing:\n%s", raw)
	}
}

func TestRenderDialplanDeterministic(t *testing.T) {
	t.Parallel()

	tenant := acmeTenant()
	exts := []models.Extension{
		{ID: "e-2", Number: "1002", Secret: "x", Active: true},
		{ID: "e-1", Number: "1001", Secret: "x", Active: true},
	}
	groups := []models.RingGroup{
		{ID: "g-2", Name: "B", Number: "2001", Members: []string{"e-2", "e-1"}, Strategy: models.RingStrategySequence},
		{ID: "g-1", Name: "A", Number: "2000", Members: []string{"1001"}},
	}
	inbound := []models.InboundRoute{
		{ID: "i-1", DID: "+551130001234", Destination: models.Destination{Type: models.DestinationRingGroup, Target: "2000"}, Active: true},
	}
	outbound := []models.OutboundRoute{
		{ID: "o-1", Name: "Mobile", Preset: models.PresetMovel, Trunk: "carrier1", Priority: 2, Active: true},
		{ID: "o-2", Name: "Local", Preset: models.PresetLocal, Trunk: "carrier1", Priority: 1, Active: true},
	}

	first, err := RenderDialplan(tenant, exts, groups, inbound, outbound)
	if err != nil {
		t.Fatalf("RenderDialplan: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := RenderDialplan(tenant, exts, groups, inbound, outbound)
		if err != nil {
			t.Fatalf("RenderDialplan: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("render %d differs:\n%s\n---\n%s", i, first, again)
		}
	}

	// Input order of the store must not leak into the output.
	reversed := []models.RingGroup{groups[1], groups[0]}
	shuffled, err := RenderDialplan(tenant, exts, reversed, inbound, outbound)
	if err != nil {
		t.Fatalf("RenderDialplan: %v", err)
	}
	if !bytes.Equal(first, shuffled) {
		t.Fatal("ring group input order changed the output")
	}
}

func TestRenderDialplanDropsUnresolvedMembers(t *testing.T) {
	t.Parallel()

	exts := []models.Extension{
		{ID: "e-1", Number: "1001", Secret: "x", Active: true},
		{ID: "e-3", Number: "1003", Secret: "x", Active: false},
	}
	groups := []models.RingGroup{
		{ID: "g-1", Name: "Support", Number: "2000", Members: []string{"e-1", "missing-id", "e-3", "1001"}},
		{ID: "g-2", Name: "Ghost", Number: "2001", Members: []string{"nobody"}},
	}

	raw, err := RenderDialplan(acmeTenant(), exts, groups, nil, nil)
	if err != nil {
		t.Fatalf("RenderDialplan: %v", err)
	}
	ctx := decodeContext(t, raw)

	rule, ok := findRule(ctx, "ringgroup_2000")
	if !ok {
		t.Fatal("ring group 2000 missing")
	}
	if got := actionData(rule.Condition[0], "bridge"); len(got) != 1 || got[0] != "user/1001@acmecorp.local" {
		t.Fatalf("bridge = %v, want only the resolvable member", got)
	}

	ghost, ok := findRule(ctx, "ringgroup_2001")
	if !ok {
		t.Fatal("ring group 2001 missing")
	}
	if got := actionData(ghost.Condition[0], "bridge"); len(got) != 0 {
		t.Fatalf("expected no bridge for a group without members, got %v", got)
	}
}

func TestRenderDialplanRingStrategyAndOverflow(t *testing.T) {
	t.Parallel()

	exts := []models.Extension{
		{ID: "e-1", Number: "1001", Secret: "x", Active: true},
		{ID: "e-2", Number: "1002", Secret: "x", Active: true},
	}
	groups := []models.RingGroup{
		{
			ID: "g-1", Name: "Seq", Number: "2000", Timeout: 15,
			Strategy: models.RingStrategySequence, Members: []string{"1002", "1001"},
			OverflowType: models.OverflowExtension, OverflowTarget: "1001",
			SurveyID: "nps",
		},
		{
			ID: "g-2", Name: "Custom", Number: "2001", Members: []string{"1001", "1002"},
			OverflowType: models.OverflowCustom, OverflowTarget: "sofia/gateway/backup/5511999999999",
		},
		{
			ID: "g-3", Name: "IVR", Number: "2002", Members: []string{"1001"},
			OverflowType: models.OverflowIVR, OverflowTarget: "main_menu",
		},
	}

	raw, err := RenderDialplan(acmeTenant(), exts, groups, nil, nil)
	if err != nil {
		t.Fatalf("RenderDialplan: %v", err)
	}
	ctx := decodeContext(t, raw)

	seq, _ := findRule(ctx, "ringgroup_2000")
	cond := seq.Condition[0]
	if got := actionData(cond, "bridge"); len(got) != 1 ||
		got[0] != "[leg_timeout=15]user/1002@acmecorp.local|[leg_timeout=15]user/1001@acmecorp.local" {
		t.Fatalf("sequence bridge = %v", got)
	}
	if got := actionData(cond, "transfer"); len(got) != 1 || got[0] != "1001 XML context_acme_corp" {
		t.Fatalf("overflow transfer = %v", got)
	}
	if got := actionData(cond, "export"); len(got) != 1 || got[0] != "nolocal:survey_id=nps" {
		t.Fatalf("survey export = %v", got)
	}
	if got := actionData(cond, "set"); got[1] != "call_timeout=15" {
		t.Fatalf("call timeout = %v", got)
	}

	custom, _ := findRule(ctx, "ringgroup_2001")
	bridges := actionData(custom.Condition[0], "bridge")
	if len(bridges) != 2 || bridges[0] != "user/1001@acmecorp.local,user/1002@acmecorp.local" ||
		bridges[1] != "sofia/gateway/backup/5511999999999" {
		t.Fatalf("custom overflow bridges = %v", bridges)
	}

	ivr, _ := findRule(ctx, "ringgroup_2002")
	if got := actionData(ivr.Condition[0], "transfer"); len(got) != 0 {
		t.Fatalf("unsupported overflow type rendered: %v", got)
	}
	if got := actionData(ivr.Condition[0], "bridge"); len(got) != 1 {
		t.Fatalf("expected only the member bridge, got %v", got)
	}
}

func TestRenderDialplanOutboundPriorityOrder(t *testing.T) {
	t.Parallel()

	outbound := []models.OutboundRoute{
		{ID: "o-3", Name: "p3", Trunk: "gw", Priority: 3, Active: true},
		{ID: "o-1", Name: "p1", Trunk: "gw", Priority: 1, Active: true},
		{ID: "o-2", Name: "p2", Trunk: "gw", Priority: 2, Active: true},
		{ID: "o-4", Name: "off", Trunk: "gw", Priority: 0, Active: false},
		{ID: "o-5", Name: "no trunk", Priority: 0, Active: true},
	}

	raw, err := RenderDialplan(acmeTenant(), nil, nil, nil, outbound)
	if err != nil {
		t.Fatalf("RenderDialplan: %v", err)
	}
	ctx := decodeContext(t, raw)

	var got []string
	for _, e := range ctx.Extension {
		if strings.HasPrefix(e.Name, "outbound_") {
			got = append(got, e.Name)
		}
	}
	want := []string{"outbound_1_p1", "outbound_2_p2", "outbound_3_p3"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("outbound order = %v, want %v", got, want)
	}
}

func TestRenderDialplanOutboundRule(t *testing.T) {
	t.Parallel()

	exts := []models.Extension{{ID: "e-1", Number: "1001", Secret: "x", Active: true}}
	outbound := []models.OutboundRoute{
		{
			ID: "o-1", Name: "Movel", Preset: models.PresetMovel,
			TechPrefix: "0015", DomainSuffix: "carrier.example.com",
			Trunk: "primary", FallbackTrunk: "secondary",
			CallerIDNumber: "551130000000", CallerIDName: "Acme",
			Priority: 1, Active: true,
			PostDestination: models.Destination{Type: models.DestinationExtension, Target: "e-1"},
		},
		{
			ID: "o-2", Name: "Both", Preset: models.PresetMovel, Pattern: `^(7\d{3})$`,
			Trunk: "primary", Priority: 2, Active: true,
		},
		{
			ID: "o-3", Name: "Nothing", Trunk: "primary", Priority: 3, Active: true,
		},
		{
			ID: "o-4", Name: "No group", Pattern: `^00\d+$`, Trunk: "primary", Priority: 4, Active: true,
		},
	}

	raw, err := RenderDialplan(acmeTenant(), exts, nil, nil, outbound)
	if err != nil {
		t.Fatalf("RenderDialplan: %v", err)
	}
	ctx := decodeContext(t, raw)

	movelRegex, _ := PresetPattern(models.PresetMovel)

	movel, ok := findRule(ctx, "outbound_1_movel")
	if !ok {
		t.Fatalf("movel rule missing:\n%s", raw)
	}
	cond := movel.Condition[0]
	if cond.Expr != movelRegex {
		t.Fatalf("movel expression = %q, want %q", cond.Expr, movelRegex)
	}
	bridges := actionData(cond, "bridge")
	if len(bridges) != 2 ||
		bridges[0] != "sofia/gateway/primary/0015$1@carrier.example.com" ||
		bridges[1] != "sofia/gateway/secondary/0015$1@carrier.example.com" {
		t.Fatalf("bridges = %v", bridges)
	}
	sets := actionData(cond, "set")
	if sets[0] != "effective_caller_id_number=551130000000" || sets[1] != "effective_caller_id_name=Acme" {
		t.Fatalf("caller id sets = %v", sets)
	}
	if sets[2] != "hangup_after_bridge=false" {
		t.Fatalf("expected hangup_after_bridge=false with a post destination, got %v", sets)
	}
	if got := actionData(cond, "transfer"); len(got) != 1 || got[0] != "1001 XML context_acme_corp" {
		t.Fatalf("post transfer = %v", got)
	}
	last := cond.Action[len(cond.Action)-1]
	if last.App != "hangup" {
		t.Fatalf("last action = %q, want hangup", last.App)
	}

	both, _ := findRule(ctx, "outbound_2_both")
	if both.Condition[0].Expr != `^(7\d{3})$` {
		t.Fatalf("explicit pattern must win over preset, got %q", both.Condition[0].Expr)
	}
	if got := actionData(both.Condition[0], "set"); got[0] != "hangup_after_bridge=true" {
		t.Fatalf("sets = %v", got)
	}

	nothing, _ := findRule(ctx, "outbound_3_nothing")
	if nothing.Condition[0].Expr != FallbackOutboundPattern {
		t.Fatalf("fallback expression = %q", nothing.Condition[0].Expr)
	}

	noGroup, _ := findRule(ctx, "outbound_4_no_group")
	if got := actionData(noGroup.Condition[0], "bridge"); got[0] != "sofia/gateway/primary/${destination_number}" {
		t.Fatalf("bridge without capture group = %v", got)
	}
}

func TestRenderDialplanInboundRoutes(t *testing.T) {
	t.Parallel()

	exts := []models.Extension{{ID: "e-1", Number: "1001", Secret: "x", Active: true}}
	groups := []models.RingGroup{{ID: "g-1", Name: "Sales", Number: "2000", Members: []string{"1001"}}}
	inbound := []models.InboundRoute{
		{
			ID: "i-1", DID: "+551130001234", SourceIP: "10.0.0.5",
			Destination:  models.Destination{Type: models.DestinationExtension, Target: "1001"},
			CallerIDName: `A&B <"VIP">`, Active: true,
		},
		{ID: "i-2", DID: "551130005678", Destination: models.Destination{Type: models.DestinationRingGroup, Target: "g-1"}, Active: true},
		{ID: "i-3", DID: `^5511\d{8}$`, Destination: models.Destination{Type: models.DestinationCustom, Target: "loopback/9999"}, Active: true},
		{ID: "i-4", DID: "551130009999", Destination: models.Destination{Type: models.DestinationExtension, Target: "4040"}, Active: true},
		{ID: "i-5", DID: "551130008888", Destination: models.Destination{Type: models.DestinationCustom, Target: "x"}, Active: false},
	}

	raw, err := RenderDialplan(acmeTenant(), exts, groups, inbound, nil)
	if err != nil {
		t.Fatalf("RenderDialplan: %v", err)
	}
	ctx := decodeContext(t, raw)

	first, ok := findRule(ctx, "inbound_i-1")
	if !ok {
		t.Fatalf("inbound i-1 missing:\n%s", raw)
	}
	if len(first.Condition) != 2 || first.Condition[0].Field != "network_addr" || first.Condition[0].Expr != `^10\.0\.0\.5$` {
		t.Fatalf("source ip condition = %+v", first.Condition)
	}
	if first.Condition[1].Expr != `^\+551130001234$` {
		t.Fatalf("did expression = %q", first.Condition[1].Expr)
	}
	sets := actionData(first.Condition[1], "set")
	if sets[0] != `effective_caller_id_name=A&B <"VIP">` {
		t.Fatalf("caller id name did not round-trip through escaping: %q", sets[0])
	}
	if got := actionData(first.Condition[1], "bridge"); got[0] != "user/1001@acmecorp.local" {
		t.Fatalf("bridge = %v", got)
	}

	second, _ := findRule(ctx, "inbound_i-2")
	if got := actionData(second.Condition[0], "bridge"); got[0] != "user/1001@acmecorp.local" {
		t.Fatalf("ring group destination bridge = %v", got)
	}

	third, _ := findRule(ctx, "inbound_i-3")
	if third.Condition[0].Expr != `^5511\d{8}$` {
		t.Fatalf("regex did must pass through, got %q", third.Condition[0].Expr)
	}
	if got := actionData(third.Condition[0], "bridge"); got[0] != "loopback/9999" {
		t.Fatalf("custom bridge = %v", got)
	}

	if _, ok := findRule(ctx, "inbound_i-4"); ok {
		t.Fatal("route with unresolvable destination must be dropped")
	}
	if _, ok := findRule(ctx, "inbound_i-5"); ok {
		t.Fatal("inactive route must be dropped")
	}
}

func TestRenderRequiresTenantName(t *testing.T) {
	t.Parallel()

	blank := &models.Tenant{ID: "t-1", Name: " "}

	if _, err := RenderDialplan(blank, nil, nil, nil, nil); !errors.Is(err, ErrMissingTenantName) {
		t.Fatalf("RenderDialplan error = %v", err)
	}
	if _, err := RenderSIPDomain(blank); !errors.Is(err, ErrMissingTenantName) {
		t.Fatalf("RenderSIPDomain error = %v", err)
	}
	if _, err := RenderSIPProfile(nil); !errors.Is(err, ErrMissingTenantName) {
		t.Fatalf("RenderSIPProfile error = %v", err)
	}
}

func TestExtensionRangePattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		start, end int
		want       string
	}{
		{1000, 1999, `^(1\d{3})$`},
		{2000, 2099, `^(20\d{2})$`},
		{100, 199, `^(1\d{2})$`},
		{1000, 9999, `^(\d{4})$`},
		{500, 5000, `^(\d{3,4})$`},
		{7000, 7000, `^(7000)$`},
	}
	for _, tc := range tests {
		if got := ExtensionRangePattern(tc.start, tc.end); got != tc.want {
			t.Errorf("ExtensionRangePattern(%d, %d) = %q, want %q", tc.start, tc.end, got, tc.want)
		}
	}
}
