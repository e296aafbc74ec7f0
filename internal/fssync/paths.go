package fssync

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"pbx-admin/internal/models"
)

// Subdirectories of the FreeSWITCH configuration root.
const (
	DirectoryDir = "directory"
	DialplanDir  = "dialplan"
	ProfilesDir  = "sip_profiles"
)

// ErrUnsafePath is returned when a tenant field would produce a path outside
// the configuration root.
var ErrUnsafePath = errors.New("unsafe configuration path")

// Paths are the files owned by one tenant.
type Paths struct {
	Directory string // directory/<sip_domain>.xml
	UsersDir  string // directory/<sip_domain>/
	Dialplan  string // dialplan/<context>.xml
	Profile   string // sip_profiles/<profile_name>.xml
}

// Files lists the three top-level documents in write order.
func (p Paths) Files() []string {
	return []string{p.Directory, p.Dialplan, p.Profile}
}

// UserFile is the per-extension document for number.
func (p Paths) UserFile(number string) (string, error) {
	if !models.IsPathElement(number) {
		return "", fmt.Errorf("%w: extension number %q", ErrUnsafePath, number)
	}
	return filepath.Join(p.UsersDir, number+".xml"), nil
}

// PathsFor derives the artifact paths of t under root. Every component must be
// a single path element and the results must stay inside root.
func PathsFor(root string, t *models.Tenant) (Paths, error) {
	if root == "" {
		return Paths{}, fmt.Errorf("%w: empty config root", ErrUnsafePath)
	}
	if t == nil {
		return Paths{}, fmt.Errorf("%w: nil tenant", ErrUnsafePath)
	}
	root = filepath.Clean(root)

	domain := t.SIPDomain
	if domain == "" {
		domain = models.DeriveSIPDomain(t.Name)
	}
	ctxName := t.Context
	if ctxName == "" {
		ctxName = models.DeriveContext(t.Name)
	}
	profile := strings.TrimPrefix(ctxName, "context_")

	for _, c := range [...]struct{ field, value string }{
		{"sip_domain", domain},
		{"context", ctxName},
		{"profile", profile},
	} {
		if !models.IsPathElement(c.value) {
			return Paths{}, fmt.Errorf("%w: %s %q", ErrUnsafePath, c.field, c.value)
		}
	}

	p := Paths{
		Directory: filepath.Join(root, DirectoryDir, domain+".xml"),
		UsersDir:  filepath.Join(root, DirectoryDir, domain),
		Dialplan:  filepath.Join(root, DialplanDir, ctxName+".xml"),
		Profile:   filepath.Join(root, ProfilesDir, profile+".xml"),
	}
	for _, f := range []string{p.Directory, p.UsersDir, p.Dialplan, p.Profile} {
		if !within(root, f) {
			return Paths{}, fmt.Errorf("%w: %s", ErrUnsafePath, f)
		}
	}
	return p, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
