package fssync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"pbx-admin/internal/fsxml"
	"pbx-admin/internal/metrics"
	"pbx-admin/internal/models"
)

const (
	defaultFileMode os.FileMode = 0o644
	defaultDirMode  os.FileMode = 0o755
)

// ConfigWriteError reports a failed filesystem operation on a config file.
type ConfigWriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *ConfigWriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConfigWriteError) Unwrap() error { return e.Err }

// Report describes one completed sync.
type Report struct {
	TenantID string   `json:"tenant_id"`
	Paths    Paths    `json:"-"`
	Written  []string `json:"written"`
	Pruned   []string `json:"pruned,omitempty"`
}

// FileStatus is one row of Inspect.
type FileStatus struct {
	Kind   string `json:"kind"`
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	Size   int64  `json:"size"`
}

// Syncer writes rendered tenant configuration under Root.
type Syncer struct {
	root     string
	fs       FileSystem
	fileMode os.FileMode
	dirMode  os.FileMode
	locks    keyedMutex
}

type Option func(*Syncer)

// WithFileSystem swaps the filesystem implementation.
func WithFileSystem(fsys FileSystem) Option {
	return func(s *Syncer) { s.fs = fsys }
}

// WithModes overrides the file and directory permissions.
func WithModes(file, dir os.FileMode) Option {
	return func(s *Syncer) {
		if file != 0 {
			s.fileMode = file
		}
		if dir != 0 {
			s.dirMode = dir
		}
	}
}

func New(root string, opts ...Option) *Syncer {
	s := &Syncer{
		root:     root,
		fs:       OSFS{},
		fileMode: defaultFileMode,
		dirMode:  defaultDirMode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Syncer) Root() string { return s.root }

// Paths derives the artifact paths of t under the configured root.
func (s *Syncer) Paths(t *models.Tenant) (Paths, error) {
	return PathsFor(s.root, t)
}

type document struct {
	path string
	data []byte
}

// Loader returns the current routing entities of a tenant.
type Loader func(ctx context.Context) (*fsxml.Bundle, error)

// SyncTenant renders every document of the bundle's tenant and writes them.
// User documents of extensions that are gone or inactive are removed.
func (s *Syncer) SyncTenant(ctx context.Context, b *fsxml.Bundle) (*Report, error) {
	if b == nil || b.Tenant == nil {
		return nil, fsxml.ErrMissingTenantName
	}
	return s.SyncTenantWith(ctx, b.Tenant, func(context.Context) (*fsxml.Bundle, error) {
		return b, nil
	})
}

// SyncTenantWith is SyncTenant with the bundle fetched by load. Loading,
// rendering and writing all happen under t's lock, so calls for the same
// tenant see and write records in the order they acquire it.
func (s *Syncer) SyncTenantWith(ctx context.Context, t *models.Tenant, load Loader) (*Report, error) {
	if t == nil {
		return nil, fsxml.ErrMissingTenantName
	}
	paths, err := s.Paths(t)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lockKey(t))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if b == nil || b.Tenant == nil {
		return nil, fsxml.ErrMissingTenantName
	}
	docs, err := render(b, paths)
	if err != nil {
		return nil, err
	}

	rep := &Report{TenantID: t.ID, Paths: paths}
	for _, d := range docs {
		if err := s.write(d.path, d.data); err != nil {
			return rep, err
		}
		rep.Written = append(rep.Written, d.path)
		metrics.FilesWritten.Inc()
	}

	keep := make(map[string]bool, len(docs))
	for _, d := range docs {
		keep[d.path] = true
	}
	pruned, err := s.prune(paths.UsersDir, keep)
	rep.Pruned = pruned
	if err != nil {
		return rep, err
	}

	slog.Info("tenant config written",
		"tenant_id", t.ID, "files", len(rep.Written), "pruned", len(rep.Pruned))
	return rep, nil
}

func render(b *fsxml.Bundle, paths Paths) ([]document, error) {
	t := b.Tenant

	domain, err := fsxml.RenderSIPDomain(t)
	if err != nil {
		return nil, fmt.Errorf("render directory: %w", err)
	}
	dialplan, err := fsxml.RenderDialplan(t, b.Extensions, b.RingGroups, b.InboundRoutes, b.OutboundRoutes)
	if err != nil {
		return nil, fmt.Errorf("render dialplan: %w", err)
	}
	profile, err := fsxml.RenderSIPProfile(t)
	if err != nil {
		return nil, fmt.Errorf("render sip profile: %w", err)
	}

	docs := []document{
		{paths.Directory, domain},
		{paths.Dialplan, dialplan},
		{paths.Profile, profile},
	}

	exts := make([]*models.Extension, 0, len(b.Extensions))
	for i := range b.Extensions {
		if b.Extensions[i].Active {
			exts = append(exts, &b.Extensions[i])
		}
	}
	sort.SliceStable(exts, func(i, j int) bool { return exts[i].Number < exts[j].Number })

	seen := make(map[string]bool, len(exts))
	for _, ext := range exts {
		if seen[ext.Number] {
			continue
		}
		seen[ext.Number] = true

		path, err := paths.UserFile(ext.Number)
		if err != nil {
			slog.Warn("skipping extension with unusable number", "tenant_id", t.ID, "extension_id", ext.ID, "error", err)
			continue
		}
		data, err := fsxml.RenderUser(t, ext)
		if err != nil {
			return nil, fmt.Errorf("render user %s: %w", ext.Number, err)
		}
		docs = append(docs, document{path, data})
	}
	return docs, nil
}

func (s *Syncer) write(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), s.dirMode); err != nil {
		return &ConfigWriteError{Path: filepath.Dir(path), Op: "mkdir", Err: err}
	}
	if err := s.fs.WriteFile(path, data, s.fileMode); err != nil {
		return &ConfigWriteError{Path: path, Op: "write", Err: err}
	}
	return nil
}

func (s *Syncer) prune(dir string, keep map[string]bool) ([]string, error) {
	entries, err := s.fs.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &ConfigWriteError{Path: dir, Op: "readdir", Err: err}
	}

	var pruned []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".xml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if keep[path] {
			continue
		}
		if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return pruned, &ConfigWriteError{Path: path, Op: "remove", Err: err}
		}
		pruned = append(pruned, path)
		metrics.FilesPruned.Inc()
	}
	return pruned, nil
}

// RemoveTenant deletes every file owned by t. Missing files are not errors.
func (s *Syncer) RemoveTenant(ctx context.Context, t *models.Tenant) error {
	paths, err := s.Paths(t)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(lockKey(t))
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	for _, f := range paths.Files() {
		if err := s.fs.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &ConfigWriteError{Path: f, Op: "remove", Err: err}
		}
	}
	if err := s.fs.RemoveAll(paths.UsersDir); err != nil {
		return &ConfigWriteError{Path: paths.UsersDir, Op: "remove", Err: err}
	}

	slog.Info("tenant config removed", "tenant_id", t.ID)
	return nil
}

// Inspect reports existence and size of the three top-level documents.
func (s *Syncer) Inspect(t *models.Tenant) ([]FileStatus, error) {
	paths, err := s.Paths(t)
	if err != nil {
		return nil, err
	}

	files := []struct{ kind, path string }{
		{"directory", paths.Directory},
		{"dialplan", paths.Dialplan},
		{"sip_profile", paths.Profile},
	}
	out := make([]FileStatus, 0, len(files))
	for _, f := range files {
		st := FileStatus{Kind: f.kind, Path: f.path}
		info, err := s.fs.Stat(f.path)
		switch {
		case err == nil:
			st.Exists = true
			st.Size = info.Size()
		case !errors.Is(err, fs.ErrNotExist):
			return nil, &ConfigWriteError{Path: f.path, Op: "stat", Err: err}
		}
		out = append(out, st)
	}
	return out, nil
}

func lockKey(t *models.Tenant) string {
	if t.ID != "" {
		return t.ID
	}
	return "name:" + t.Name
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
