package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	contextPrefix   = "context_"
	sipDomainSuffix = ".local"
)

// ContextSlug lower-cases name, strips accents and collapses every run of
// non-alphanumeric characters into a single underscore: "Acme Corp" -> "acme_corp".
func ContextSlug(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range foldName(name) {
		if isSlugRune(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// DomainSlug is ContextSlug without separators: "Acme Corp" -> "acmecorp".
func DomainSlug(name string) string {
	var b strings.Builder
	for _, r := range foldName(name) {
		if isSlugRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DeriveSIPDomain returns "<slug>.local".
func DeriveSIPDomain(name string) string {
	slug := DomainSlug(name)
	if slug == "" {
		return ""
	}
	return slug + sipDomainSuffix
}

// DeriveContext returns "context_<slug>".
func DeriveContext(name string) string {
	slug := ContextSlug(name)
	if slug == "" {
		return ""
	}
	return contextPrefix + slug
}

// ApplyDerived fills SIPDomain and Context from Name unless they are explicit
// overrides, and applies the remaining defaults. Names that slug to nothing
// (e.g. only punctuation) fall back to an ID based slug.
func (t *Tenant) ApplyDerived() {
	if t.Status == "" {
		t.Status = TenantStatusActive
	}

	fallback := ""
	if id := strings.ReplaceAll(t.ID, "-", ""); id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		fallback = "tenant_" + strings.ToLower(id)
	}

	if !t.SIPDomainExplicit || t.SIPDomain == "" {
		t.SIPDomainExplicit = false
		t.SIPDomain = DeriveSIPDomain(t.Name)
		if t.SIPDomain == "" && fallback != "" {
			t.SIPDomain = strings.ReplaceAll(fallback, "_", "") + sipDomainSuffix
		}
	}
	if !t.ContextExplicit || t.Context == "" {
		t.ContextExplicit = false
		t.Context = DeriveContext(t.Name)
		if t.Context == "" && fallback != "" {
			t.Context = contextPrefix + fallback
		}
	}
	t.SIPDomain = strings.ToLower(t.SIPDomain)
}

func foldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(folded)
}

func isSlugRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
