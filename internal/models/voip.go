package models

import (
	"strings"
	"time"
)

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusTrial     TenantStatus = "trial"
)

// Defaults substituted when a tenant leaves the corresponding field empty.
const (
	DefaultDialplan       = "XML"
	DefaultExtensionStart = 1000
	DefaultExtensionEnd   = 1999
)

var DefaultCodecPrefs = []string{"PCMU", "PCMA", "G729"}

// Tenant is one customer of the PBX. SIPDomain and Context are recomputed from
// Name by ApplyDerived unless the matching *Explicit flag is set.
type Tenant struct {
	ID                string       `db:"id" json:"id"`
	Name              string       `db:"name" json:"name" validate:"required,max=200"`
	Domain            string       `db:"domain" json:"domain,omitempty" validate:"omitempty,max=253"`
	ContactEmail      string       `db:"contact_email" json:"contact_email,omitempty" validate:"omitempty,email"`
	PlanID            string       `db:"plan_id" json:"plan_id,omitempty" validate:"omitempty,max=100"`
	Status            TenantStatus `db:"status" json:"status" validate:"omitempty,oneof=active suspended trial"`
	SIPDomain         string       `db:"sip_domain" json:"sip_domain" validate:"omitempty,hostname_rfc1123,max=253"`
	SIPDomainExplicit bool         `db:"sip_domain_explicit" json:"sip_domain_explicit"`
	Context           string       `db:"context" json:"context" validate:"omitempty,max=100,pathelem"`
	ContextExplicit   bool         `db:"context_explicit" json:"context_explicit"`
	CodecPrefs        []string     `db:"codec_prefs" json:"codec_prefs,omitempty" validate:"omitempty,dive,required,max=40,excludesall=0x2C"`
	ExtensionStart    int          `db:"extension_start" json:"extension_start" validate:"gte=0"`
	ExtensionEnd      int          `db:"extension_end" json:"extension_end" validate:"gte=0"`
	SIPPort           int          `db:"sip_port" json:"sip_port,omitempty" validate:"gte=0,lte=65535"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// ProfileName is the SIP profile name: the context without its "context_" prefix.
func (t *Tenant) ProfileName() string {
	return strings.TrimPrefix(t.Context, contextPrefix)
}

// Codecs returns the ordered codec preference list, or the default list.
func (t *Tenant) Codecs() []string {
	if len(t.CodecPrefs) == 0 {
		return DefaultCodecPrefs
	}
	return t.CodecPrefs
}

// ExtensionRange returns the numbering range, falling back to 1000-1999 when
// the stored range is unset or inverted.
func (t *Tenant) ExtensionRange() (start, end int) {
	if t.ExtensionStart <= 0 || t.ExtensionEnd <= 0 || t.ExtensionEnd < t.ExtensionStart {
		return DefaultExtensionStart, DefaultExtensionEnd
	}
	return t.ExtensionStart, t.ExtensionEnd
}

type Extension struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenant_id"`
	Number       string    `db:"number" json:"number" validate:"required,numeric,min=2,max=20"`
	DisplayName  string    `db:"display_name" json:"display_name,omitempty" validate:"omitempty,max=200"`
	Secret       string    `db:"secret" json:"secret,omitempty" validate:"required,min=4,max=128"`
	VoicemailPIN string    `db:"voicemail_pin" json:"voicemail_pin,omitempty" validate:"omitempty,numeric,min=4,max=20"`
	Active       bool      `db:"active" json:"active"`
	UserID       *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type User struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Name      string    `db:"name" json:"name" validate:"required,max=200"`
	Email     string    `db:"email" json:"email,omitempty" validate:"omitempty,email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type RingStrategy string

const (
	RingStrategySimultaneous RingStrategy = "simultaneous"
	RingStrategySequence     RingStrategy = "sequence"
	RingStrategyRoundRobin   RingStrategy = "round_robin"
)

type OverflowType string

const (
	OverflowExtension OverflowType = "extension"
	OverflowCustom    OverflowType = "custom"
	OverflowIVR       OverflowType = "ivr"
	OverflowTrunk     OverflowType = "trunk"
	OverflowAIAgent   OverflowType = "ai_agent"
)

const DefaultRingTimeout = 30

// RingGroup rings its Members under one dialable Number. Members reference
// extensions by ID or by number.
type RingGroup struct {
	ID             string       `db:"id" json:"id"`
	TenantID       string       `db:"tenant_id" json:"tenant_id"`
	Name           string       `db:"name" json:"name" validate:"required,max=200"`
	Number         string       `db:"number" json:"number" validate:"required,numeric,max=20"`
	Strategy       RingStrategy `db:"strategy" json:"strategy" validate:"omitempty,oneof=simultaneous sequence round_robin"`
	Timeout        int          `db:"timeout" json:"timeout" validate:"gte=0,lte=600"`
	Members        []string     `db:"members" json:"members" validate:"dive,required,max=64"`
	OverflowType   OverflowType `db:"overflow_type" json:"overflow_type,omitempty" validate:"omitempty,oneof=extension custom ivr trunk ai_agent"`
	OverflowTarget string       `db:"overflow_target" json:"overflow_target,omitempty" validate:"required_with=OverflowType,max=200"`
	SurveyID       string       `db:"survey_id" json:"survey_id,omitempty" validate:"omitempty,max=64"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at" json:"updated_at"`
}

func (g *RingGroup) RingTimeout() int {
	if g.Timeout <= 0 {
		return DefaultRingTimeout
	}
	return g.Timeout
}

type DestinationType string

const (
	DestinationExtension DestinationType = "extension"
	DestinationRingGroup DestinationType = "ringgroup"
	DestinationCustom    DestinationType = "custom"
)

type Destination struct {
	Type   DestinationType `json:"type,omitempty" validate:"omitempty,oneof=extension ringgroup custom"`
	Target string          `json:"target,omitempty" validate:"required_with=Type,max=200"`
}

func (d Destination) IsZero() bool {
	return d.Type == "" || d.Target == ""
}

type InboundRoute struct {
	ID             string      `db:"id" json:"id"`
	TenantID       string      `db:"tenant_id" json:"tenant_id"`
	Name           string      `db:"name" json:"name,omitempty" validate:"omitempty,max=200"`
	DID            string      `db:"did" json:"did" validate:"required,max=100"`
	SourceIP       string      `db:"source_ip" json:"source_ip,omitempty" validate:"omitempty,ip"`
	Destination    Destination `db:"-" json:"destination" validate:"required"`
	CallerIDName   string      `db:"caller_id_name" json:"caller_id_name,omitempty" validate:"omitempty,max=100"`
	CallerIDNumber string      `db:"caller_id_number" json:"caller_id_number,omitempty" validate:"omitempty,max=40"`
	Active         bool        `db:"active" json:"active"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

type OutboundPreset string

const (
	PresetLocal OutboundPreset = "local"
	PresetLDN   OutboundPreset = "ldn"
	PresetMovel OutboundPreset = "movel"
)

// OutboundRoute sends matching dialed numbers through Trunk, falling back to
// FallbackTrunk. Pattern, when set, takes precedence over Preset.
type OutboundRoute struct {
	ID              string         `db:"id" json:"id"`
	TenantID        string         `db:"tenant_id" json:"tenant_id"`
	Name            string         `db:"name" json:"name" validate:"required,max=200"`
	Preset          OutboundPreset `db:"preset" json:"preset,omitempty" validate:"omitempty,oneof=local ldn movel"`
	Pattern         string         `db:"pattern" json:"regex_pattern,omitempty" validate:"omitempty,max=200,regexp"`
	TechPrefix      string         `db:"tech_prefix" json:"tech_prefix,omitempty" validate:"omitempty,max=20"`
	DomainSuffix    string         `db:"domain_suffix" json:"domain_suffix,omitempty" validate:"omitempty,max=253"`
	Trunk           string         `db:"trunk" json:"trunk" validate:"required,max=100,pathelem"`
	FallbackTrunk   string         `db:"fallback_trunk" json:"fallback_trunk,omitempty" validate:"omitempty,max=100,pathelem"`
	CallerIDName    string         `db:"caller_id_name" json:"caller_id_name,omitempty" validate:"omitempty,max=100"`
	CallerIDNumber  string         `db:"caller_id_number" json:"caller_id_number,omitempty" validate:"omitempty,max=40"`
	Priority        int            `db:"priority" json:"priority" validate:"gte=0"`
	Active          bool           `db:"active" json:"active"`
	PostDestination Destination    `db:"-" json:"post_destination"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}
