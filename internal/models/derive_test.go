package models

import (
	"errors"
	"testing"
)

func TestDerivation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		in          string
		wantDomain  string
		wantContext string
		wantProfile string
	}{
		{"two words", "Acme Corp", "acmecorp.local", "context_acme_corp", "acme_corp"},
		{"accents", "São Paulo Telecom", "saopaulotelecom.local", "context_sao_paulo_telecom", "sao_paulo_telecom"},
		{"punctuation runs", "  Foo -- Bar!! Ltda.  ", "foobarltda.local", "context_foo_bar_ltda", "foo_bar_ltda"},
		{"digits", "Call 24x7", "call24x7.local", "context_call_24x7", "call_24x7"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tenant := &Tenant{Name: tc.in}
			tenant.ApplyDerived()

			if tenant.SIPDomain != tc.wantDomain {
				t.Errorf("SIPDomain = %q, want %q", tenant.SIPDomain, tc.wantDomain)
			}
			if tenant.Context != tc.wantContext {
				t.Errorf("Context = %q, want %q", tenant.Context, tc.wantContext)
			}
			if got := tenant.ProfileName(); got != tc.wantProfile {
				t.Errorf("ProfileName = %q, want %q", got, tc.wantProfile)
			}
			if tenant.Status != TenantStatusActive {
				t.Errorf("Status = %q, want active", tenant.Status)
			}
		})
	}
}

func TestApplyDerivedRecomputesOnRename(t *testing.T) {
	t.Parallel()

	tenant := &Tenant{Name: "Acme Corp"}
	tenant.ApplyDerived()

	tenant.Name = "Globex"
	tenant.ApplyDerived()

	if tenant.SIPDomain != "globex.local" {
		t.Fatalf("SIPDomain = %q, want globex.local", tenant.SIPDomain)
	}
	if tenant.Context != "context_globex" {
		t.Fatalf("Context = %q, want context_globex", tenant.Context)
	}
}

func TestApplyDerivedKeepsExplicitOverrides(t *testing.T) {
	t.Parallel()

	tenant := &Tenant{
		Name:              "Acme Corp",
		SIPDomain:         "pbx.acme.com",
		SIPDomainExplicit: true,
		Context:           "acme_custom",
		ContextExplicit:   true,
	}
	tenant.ApplyDerived()

	if tenant.SIPDomain != "pbx.acme.com" {
		t.Fatalf("SIPDomain = %q, want override kept", tenant.SIPDomain)
	}
	if tenant.Context != "acme_custom" {
		t.Fatalf("Context = %q, want override kept", tenant.Context)
	}
	if tenant.ProfileName() != "acme_custom" {
		t.Fatalf("ProfileName = %q, want acme_custom", tenant.ProfileName())
	}
}

func TestApplyDerivedFallsBackToID(t *testing.T) {
	t.Parallel()

	tenant := &Tenant{ID: "0F8FAD5B-D9CB-469F-A165-70867728950E", Name: "!!!"}
	tenant.ApplyDerived()

	if tenant.SIPDomain != "tenant0f8fad5b.local" {
		t.Fatalf("SIPDomain = %q", tenant.SIPDomain)
	}
	if tenant.Context != "context_tenant_0f8fad5b" {
		t.Fatalf("Context = %q", tenant.Context)
	}
}

func TestTenantDefaults(t *testing.T) {
	t.Parallel()

	tenant := &Tenant{Name: "x"}
	if got := tenant.Codecs(); len(got) != 3 || got[0] != "PCMU" || got[2] != "G729" {
		t.Fatalf("Codecs() = %v, want default list", got)
	}
	start, end := tenant.ExtensionRange()
	if start != 1000 || end != 1999 {
		t.Fatalf("ExtensionRange() = %d-%d, want 1000-1999", start, end)
	}

	tenant.ExtensionStart, tenant.ExtensionEnd = 2000, 2099
	start, end = tenant.ExtensionRange()
	if start != 2000 || end != 2099 {
		t.Fatalf("ExtensionRange() = %d-%d, want 2000-2099", start, end)
	}
}

func TestValidateTenant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		tenant    Tenant
		wantField string
	}{
		{"missing name", Tenant{Name: "   "}, "name"},
		{"bad email", Tenant{Name: "Acme", ContactEmail: "nope"}, "contact_email"},
		{"bad status", Tenant{Name: "Acme", Status: "deleted"}, "status"},
		{"traversal context", Tenant{Name: "Acme", Context: "../etc", ContextExplicit: true}, "context"},
		{"codec with comma", Tenant{Name: "Acme", CodecPrefs: []string{"PCMU,PCMA"}}, "codec_prefs[0]"},
		{"inverted range", Tenant{Name: "Acme", ExtensionStart: 2000, ExtensionEnd: 1000}, "extension_end"},
		{"valid", Tenant{Name: "Acme", ContactEmail: "ops@acme.com", SIPDomain: "acme.local"}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateTenant(&tc.tenant)
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			found := false
			for _, f := range verr.Fields {
				if f.Field == tc.wantField {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected field %q in %+v", tc.wantField, verr.Fields)
			}
		})
	}
}

func TestValidateOutboundRoutePattern(t *testing.T) {
	t.Parallel()

	r := OutboundRoute{Name: "bad", Trunk: "gw1", Pattern: "^(1[$"}
	var verr *ValidationError
	if err := Validate(&r); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for broken regex, got %v", err)
	}

	r.Pattern = `^(\d+)$`
	if err := Validate(&r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r.Trunk = "../gw"
	if err := Validate(&r); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for trunk with separators, got %v", err)
	}
}
