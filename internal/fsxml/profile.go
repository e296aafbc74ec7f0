package fsxml

import (
	"strconv"
	"strings"

	"pbx-admin/internal/models"
)

// BuildProfile returns the SIP profile of a tenant. Gateways stay empty.
func BuildProfile(t *models.Tenant) *ProfileNode {
	domain := sipDomain(t)
	codecs := strings.Join(t.Codecs(), ",")

	sipPort := "$${internal_sip_port}"
	if t.SIPPort > 0 {
		sipPort = strconv.Itoa(t.SIPPort)
	}

	return &ProfileNode{
		Name:    profileName(t),
		Aliases: []AliasNode{{Name: domain}},
		Domains: []ProfileDomainNode{{Name: domain, Alias: "true", Parse: "false"}},
		Settings: []ParamNode{
			{Name: "debug", Value: "0"},
			{Name: "context", Value: dialplanContext(t)},
			{Name: "dialplan", Value: models.DefaultDialplan},
			{Name: "inbound-codec-prefs", Value: codecs},
			{Name: "outbound-codec-prefs", Value: codecs},
			{Name: "sip-ip", Value: "$${local_ip_v4}"},
			{Name: "rtp-ip", Value: "$${local_ip_v4}"},
			{Name: "sip-port", Value: sipPort},
			{Name: "ext-rtp-ip", Value: "auto-nat"},
			{Name: "ext-sip-ip", Value: "auto-nat"},
			{Name: "apply-nat-acl", Value: "nat.auto"},
			{Name: "apply-inbound-acl", Value: "domains"},
			{Name: "local-network-acl", Value: "localnet.auto"},
			{Name: "rtp-timer-name", Value: "soft"},
			{Name: "rtp-timeout-sec", Value: "300"},
			{Name: "rtp-hold-timeout-sec", Value: "1800"},
			{Name: "nonce-ttl", Value: "60"},
			{Name: "auth-calls", Value: "true"},
			{Name: "inbound-late-negotiation", Value: "true"},
			{Name: "manage-presence", Value: "true"},
			{Name: "force-register-domain", Value: domain},
			{Name: "force-subscription-domain", Value: domain},
			{Name: "force-register-db-domain", Value: domain},
		},
	}
}

// RenderSIPProfile renders sip_profiles/<profile_name>.xml.
func RenderSIPProfile(t *models.Tenant) ([]byte, error) {
	if err := checkTenant(t); err != nil {
		return nil, err
	}
	return Marshal(&Include{Profile: BuildProfile(t)})
}
