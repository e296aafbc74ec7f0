package fsxml

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pbx-admin/internal/models"
)

const dialString = "{^^:sip_invite_domain=${dialed_domain}:presence_id=${dialed_user}@${dialed_domain}}${sofia_contact(*/${dialed_user}@${dialed_domain})}"

// BuildDomain returns the domain block for a tenant. Users are not embedded:
// the default group pulls in the per-extension documents written next to it.
func BuildDomain(t *models.Tenant) *DomainNode {
	domain := sipDomain(t)
	return &DomainNode{
		Name: domain,
		Params: []ParamNode{
			{Name: "dial-string", Value: dialString},
			{Name: "jsonrpc-allowed-methods", Value: "verto"},
			{Name: "jsonrpc-allowed-event-channels", Value: "demo,conference,presence"},
		},
		Vars: []VariableNode{
			{Name: "domain_name", Value: domain},
			{Name: "user_context", Value: dialplanContext(t)},
			{Name: "dialplan", Value: models.DefaultDialplan},
			{Name: "codec_prefs", Value: strings.Join(t.Codecs(), ",")},
			{Name: "default_language", Value: "en"},
			{Name: "record_stereo", Value: "true"},
		},
		Groups: []GroupNode{
			{
				Name: "default",
				Users: UsersNode{
					PreProcess: []PreProcessNode{
						{Cmd: "include", Data: domain + "/*.xml"},
					},
				},
			},
		},
	}
}

// BuildUser maps one extension to a directory user.
func BuildUser(t *models.Tenant, ext *models.Extension) UserNode {
	vmPassword := ext.VoicemailPIN
	if vmPassword == "" {
		vmPassword = ext.Number
	}
	callerName := ext.DisplayName
	if callerName == "" {
		callerName = ext.Number
	}

	return UserNode{
		ID: ext.Number,
		Params: []ParamNode{
			{Name: "password", Value: ext.Secret},
			{Name: "vm-password", Value: vmPassword},
		},
		Vars: []VariableNode{
			{Name: "toll_allow", Value: "domestic,international,local"},
			{Name: "accountcode", Value: ext.Number},
			{Name: "user_context", Value: dialplanContext(t)},
			{Name: "effective_caller_id_name", Value: callerName},
			{Name: "effective_caller_id_number", Value: ext.Number},
			{Name: "outbound_caller_id_number", Value: ext.Number},
			{Name: "callgroup", Value: profileName(t)},
		},
	}
}

// RenderSIPDomain renders directory/<sip_domain>.xml.
func RenderSIPDomain(t *models.Tenant) ([]byte, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	return Marshal(&Include{Domain: BuildDomain(t)})
}

// RenderUser renders directory/<sip_domain>/<number>.xml.
func RenderUser(t *models.Tenant, ext *models.Extension) ([]byte, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	if ext == nil || ext.Number == "" {
		return nil, errors.New("extension number is required")
	}
	user := BuildUser(t, ext)
	return Marshal(&Include{User: &user})
}

// Source is the read side of the record store needed to answer xml_curl lookups.
type Source interface {
	GetTenantBySIPDomain(ctx context.Context, domain string) (*models.Tenant, error)
	GetTenantByContext(ctx context.Context, name string) (*models.Tenant, error)
	ListExtensions(ctx context.Context, tenantID string) ([]models.Extension, error)
	ListRingGroups(ctx context.Context, tenantID string) ([]models.RingGroup, error)
	ListInboundRoutes(ctx context.Context, tenantID string) ([]models.InboundRoute, error)
	ListOutboundRoutes(ctx context.Context, tenantID string) ([]models.OutboundRoute, error)
}

type DirectoryService struct {
	Source Source
}

// BuildDirectory returns the directory document for one user of a SIP domain.
func (d *DirectoryService) BuildDirectory(ctx context.Context, user, domain string) (*Document, error) {
	if d.Source == nil {
		return nil, errors.New("directory source is nil")
	}

	t, err := d.Source.GetTenantBySIPDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("lookup domain %q: %w", domain, err)
	}

	exts, err := d.Source.ListExtensions(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}

	for i := range exts {
		ext := &exts[i]
		if !ext.Active || ext.Number != user {
			continue
		}
		node := BuildDomain(t)
		node.Groups = nil
		node.User = []UserNode{BuildUser(t, ext)}
		return &Document{
			Type:    documentType,
			Section: []Section{{Name: "directory", Domain: node}},
		}, nil
	}

	return nil, fmt.Errorf("user %s@%s: %w", user, domain, ErrNotFound)
}

// DebugString is only meant for logs.
func (d *Document) DebugString() string {
	return fmt.Sprintf("Document type=%s sections=%d", d.Type, len(d.Section))
}
