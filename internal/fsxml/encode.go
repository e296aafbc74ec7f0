package fsxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"pbx-admin/internal/models"
)

var (
	// ErrMissingTenantName is returned when a render call gets a tenant without a name.
	ErrMissingTenantName = errors.New("tenant name is required")
	// ErrNotFound is returned by the xml_curl services when nothing matches the lookup.
	ErrNotFound = errors.New("not found")
)

const documentType = "freeswitch/xml"

// Marshal serializes v with two-space indentation and a trailing newline.
// Output depends only on v.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode xml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode xml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// MarshalDocument is Marshal prefixed with the XML declaration, as mod_xml_curl expects.
func MarshalDocument(doc *Document) ([]byte, error) {
	body, err := Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func checkTenant(t *models.Tenant) error {
	if t == nil || strings.TrimSpace(t.Name) == "" {
		return ErrMissingTenantName
	}
	return nil
}

// sipDomain and dialplanContext tolerate tenants that never went through
// ApplyDerived (e.g. built by hand in a test or a tool).
func sipDomain(t *models.Tenant) string {
	if t.SIPDomain != "" {
		return t.SIPDomain
	}
	return models.DeriveSIPDomain(t.Name)
}

func dialplanContext(t *models.Tenant) string {
	if t.Context != "" {
		return t.Context
	}
	return models.DeriveContext(t.Name)
}

func profileName(t *models.Tenant) string {
	if t.Context != "" {
		return t.ProfileName()
	}
	return models.ContextSlug(t.Name)
}
