package fsxml

import "encoding/xml"

// Document is the mod_xml_curl response envelope.
type Document struct {
	XMLName xml.Name  `xml:"document"`
	Type    string    `xml:"type,attr"`
	Section []Section `xml:"section"`
}

type Section struct {
	Name        string       `xml:"name,attr"`
	Description string       `xml:"description,attr,omitempty"`
	Domain      *DomainNode  `xml:"domain,omitempty"`
	Context     *ContextNode `xml:"context,omitempty"`
}

// Include is the root element of every file written under the config root.
type Include struct {
	XMLName xml.Name     `xml:"include"`
	Domain  *DomainNode  `xml:"domain,omitempty"`
	User    *UserNode    `xml:"user,omitempty"`
	Context *ContextNode `xml:"context,omitempty"`
	Profile *ProfileNode `xml:"profile,omitempty"`
}

type DomainNode struct {
	Name   string         `xml:"name,attr"`
	Params []ParamNode    `xml:"params>param,omitempty"`
	Vars   []VariableNode `xml:"variables>variable,omitempty"`
	Groups []GroupNode    `xml:"groups>group,omitempty"`
	User   []UserNode     `xml:"user,omitempty"`
}

type GroupNode struct {
	Name  string    `xml:"name,attr"`
	Users UsersNode `xml:"users"`
}

type UsersNode struct {
	PreProcess []PreProcessNode `xml:"X-PRE-PROCESS,omitempty"`
	User       []UserNode       `xml:"user,omitempty"`
}

type PreProcessNode struct {
	Cmd  string `xml:"cmd,attr"`
	Data string `xml:"data,attr"`
}

type UserNode struct {
	ID     string         `xml:"id,attr"`
	Params []ParamNode    `xml:"params>param,omitempty"`
	Vars   []VariableNode `xml:"variables>variable,omitempty"`
}

type ParamNode struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type VariableNode struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type ContextNode struct {
	Name      string          `xml:"name,attr"`
	Extension []ExtensionNode `xml:"extension"`
}

type ExtensionNode struct {
	Name      string          `xml:"name,attr"`
	Condition []ConditionNode `xml:"condition"`
}

type ConditionNode struct {
	Field  string       `xml:"field,attr,omitempty"`
	Expr   string       `xml:"expression,attr,omitempty"`
	Action []ActionNode `xml:"action"`
}

type ActionNode struct {
	App  string `xml:"application,attr"`
	Data string `xml:"data,attr,omitempty"`
}

type ProfileNode struct {
	Name     string              `xml:"name,attr"`
	Aliases  []AliasNode         `xml:"aliases>alias"`
	Gateways GatewaysNode        `xml:"gateways"`
	Domains  []ProfileDomainNode `xml:"domains>domain"`
	Settings []ParamNode         `xml:"settings>param"`
}

type AliasNode struct {
	Name string `xml:"name,attr"`
}

// GatewaysNode is always empty; trunks are provisioned elsewhere.
type GatewaysNode struct{}

type ProfileDomainNode struct {
	Name  string `xml:"name,attr"`
	Alias string `xml:"alias,attr"`
	Parse string `xml:"parse,attr"`
}
