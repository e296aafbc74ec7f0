package fssync

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pbx-admin/internal/fsxml"
	"pbx-admin/internal/models"
)

func acme() *models.Tenant {
	t := &models.Tenant{ID: "t-1", Name: "Acme Corp"}
	t.ApplyDerived()
	return t
}

func acmeBundle() *fsxml.Bundle {
	return &fsxml.Bundle{
		Tenant: acme(),
		Extensions: []models.Extension{
			{ID: "e-1", Number: "1001", Secret: "pw1", Active: true},
			{ID: "e-2", Number: "1002", Secret: "pw2", Active: true},
			{ID: "e-3", Number: "1003", Secret: "pw3", Active: false},
		},
		RingGroups: []models.RingGroup{
			{ID: "g-1", Name: "Sales", Number: "2000", Members: []string{"1001"}},
		},
	}
}

func TestPathsFor(t *testing.T) {
	t.Parallel()

	root := filepath.FromSlash("/etc/freeswitch")

	p, err := PathsFor(root, acme())
	if err != nil {
		t.Fatalf("PathsFor: %v", err)
	}
	want := Paths{
		Directory: filepath.Join(root, "directory", "acmecorp.local.xml"),
		UsersDir:  filepath.Join(root, "directory", "acmecorp.local"),
		Dialplan:  filepath.Join(root, "dialplan", "context_acme_corp.xml"),
		Profile:   filepath.Join(root, "sip_profiles", "acme_corp.xml"),
	}
	if p != want {
		t.Fatalf("paths = %+v, want %+v", p, want)
	}

	bad := []struct {
		name   string
		tenant *models.Tenant
		root   string
	}{
		{"traversal in context", &models.Tenant{Name: "x", SIPDomain: "x.local", Context: "../../etc/passwd"}, root},
		{"dot-dot context", &models.Tenant{Name: "x", SIPDomain: "x.local", Context: ".."}, root},
		{"separator in domain", &models.Tenant{Name: "x", SIPDomain: "a/b", Context: "context_x"}, root},
		{"unsluggable name", &models.Tenant{Name: "!!!"}, root},
		{"empty root", acme(), ""},
		{"nil tenant", nil, root},
	}
	for _, tc := range bad {
		if _, err := PathsFor(tc.root, tc.tenant); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("%s: error = %v, want ErrUnsafePath", tc.name, err)
		}
	}

	if _, err := p.UserFile("../1001"); !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("UserFile traversal error = %v", err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

func assertNoTempFiles(t *testing.T, root string) {
	t.Helper()
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.Contains(d.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}

func TestSyncTenantWritesAllDocuments(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root)
	b := acmeBundle()

	rep, err := s.SyncTenant(context.Background(), b)
	if err != nil {
		t.Fatalf("SyncTenant: %v", err)
	}
	// three documents plus two active users
	if len(rep.Written) != 5 {
		t.Fatalf("written = %v", rep.Written)
	}

	dialplan, _ := fsxml.RenderDialplan(b.Tenant, b.Extensions, b.RingGroups, nil, nil)
	if got := readFile(t, rep.Paths.Dialplan); !bytes.Equal(got, dialplan) {
		t.Fatalf("dialplan on disk differs from renderer output")
	}
	if !bytes.Contains(readFile(t, rep.Paths.Directory), []byte(`<domain name="acmecorp.local">`)) {
		t.Fatal("directory document missing domain element")
	}
	if !bytes.Contains(readFile(t, rep.Paths.Profile), []byte(`<profile name="acme_corp">`)) {
		t.Fatal("profile document missing profile element")
	}

	user, _ := rep.Paths.UserFile("1001")
	if !bytes.Contains(readFile(t, user), []byte(`<user id="1001">`)) {
		t.Fatal("user document missing")
	}
	inactive, _ := rep.Paths.UserFile("1003")
	if _, err := os.Stat(inactive); !os.IsNotExist(err) {
		t.Fatalf("inactive extension written: %v", err)
	}

	assertNoTempFiles(t, root)
}

func TestSyncTenantIdempotent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root)
	b := acmeBundle()

	first, err := s.SyncTenant(context.Background(), b)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	snapshot := map[string][]byte{}
	for _, p := range first.Written {
		snapshot[p] = readFile(t, p)
	}

	second, err := s.SyncTenant(context.Background(), b)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(second.Pruned) != 0 {
		t.Fatalf("second sync pruned %v", second.Pruned)
	}
	for p, want := range snapshot {
		if got := readFile(t, p); !bytes.Equal(got, want) {
			t.Fatalf("%s changed between identical syncs", p)
		}
	}
	assertNoTempFiles(t, root)
}

func TestSyncTenantPrunesStaleUsers(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root)
	b := acmeBundle()

	if _, err := s.SyncTenant(context.Background(), b); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// 1002 deleted, 1001 deactivated.
	b.Extensions = []models.Extension{
		{ID: "e-1", Number: "1001", Secret: "pw1", Active: false},
	}
	rep, err := s.SyncTenant(context.Background(), b)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(rep.Pruned) != 2 {
		t.Fatalf("pruned = %v, want two user documents", rep.Pruned)
	}

	entries, err := os.ReadDir(rep.Paths.UsersDir)
	if err != nil {
		t.Fatalf("read users dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("users dir not empty: %v", entries)
	}
}

func TestSyncTenantConcurrent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SyncTenant(context.Background(), acmeBundle()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent sync: %v", err)
	}

	p, _ := PathsFor(root, acme())
	want, _ := fsxml.RenderSIPDomain(acme())
	if got := readFile(t, p.Directory); !bytes.Equal(got, want) {
		t.Fatal("directory document corrupted by concurrent writers")
	}
	assertNoTempFiles(t, root)

	s.locks.mu.Lock()
	defer s.locks.mu.Unlock()
	if len(s.locks.locks) != 0 {
		t.Fatalf("lock table not released: %d entries", len(s.locks.locks))
	}
}

func TestSyncTenantMissingName(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	b := &fsxml.Bundle{Tenant: &models.Tenant{ID: "t-1", Name: "", SIPDomain: "x.local", Context: "context_x"}}
	if _, err := s.SyncTenant(context.Background(), b); !errors.Is(err, fsxml.ErrMissingTenantName) {
		t.Fatalf("error = %v, want ErrMissingTenantName", err)
	}
}

type failingFS struct {
	OSFS
	failWrite string
}

func (f failingFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	if strings.HasSuffix(path, f.failWrite) {
		return os.ErrPermission
	}
	return f.OSFS.WriteFile(path, data, perm)
}

func TestSyncTenantWriteFailure(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir(), WithFileSystem(failingFS{failWrite: "context_acme_corp.xml"}))

	rep, err := s.SyncTenant(context.Background(), acmeBundle())
	var werr *ConfigWriteError
	if !errors.As(err, &werr) {
		t.Fatalf("error = %v, want *ConfigWriteError", err)
	}
	if werr.Op != "write" || !strings.HasSuffix(werr.Path, "context_acme_corp.xml") {
		t.Fatalf("write error = %+v", werr)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if len(rep.Written) != 1 {
		t.Fatalf("written before failure = %v", rep.Written)
	}
}

func TestRemoveTenantAndInspect(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root)
	tenant := acme()

	status, err := s.Inspect(tenant)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	for _, st := range status {
		if st.Exists {
			t.Fatalf("%s exists before sync", st.Kind)
		}
	}

	if _, err := s.SyncTenant(context.Background(), acmeBundle()); err != nil {
		t.Fatalf("SyncTenant: %v", err)
	}

	status, err = s.Inspect(tenant)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(status) != 3 {
		t.Fatalf("status = %+v", status)
	}
	for _, st := range status {
		if !st.Exists || st.Size == 0 {
			t.Fatalf("%s not reported as written: %+v", st.Kind, st)
		}
	}

	if err := s.RemoveTenant(context.Background(), tenant); err != nil {
		t.Fatalf("RemoveTenant: %v", err)
	}
	if err := s.RemoveTenant(context.Background(), tenant); err != nil {
		t.Fatalf("second RemoveTenant: %v", err)
	}

	p, _ := s.Paths(tenant)
	for _, f := range append(p.Files(), p.UsersDir) {
		if _, err := os.Stat(f); !os.IsNotExist(err) {
			t.Fatalf("%s still present: %v", f, err)
		}
	}
}

func TestSyncTenantCanceledContext(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.SyncTenant(ctx, acmeBundle()); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("files written despite canceled context: %v", entries)
	}
}

func TestSyncTenantWithLoadsUnderLock(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	entered := make(chan struct{})
	release := make(chan struct{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.SyncTenantWith(context.Background(), acme(), func(context.Context) (*fsxml.Bundle, error) {
			close(entered)
			<-release
			return acmeBundle(), nil
		})
		firstDone <- err
	}()
	<-entered

	secondDone := make(chan error, 1)
	go func() {
		_, err := s.SyncTenant(context.Background(), acmeBundle())
		secondDone <- err
	}()

	select {
	case <-secondDone:
		t.Fatal("second sync finished while the first was still loading")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if err := <-secondDone; err != nil {
		t.Fatalf("second sync: %v", err)
	}
}

func TestSyncTenantWithLoadError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	s := New(root)
	boom := errors.New("db down")

	rep, err := s.SyncTenantWith(context.Background(), acme(), func(context.Context) (*fsxml.Bundle, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) || rep != nil {
		t.Fatalf("SyncTenantWith = %v, %v", rep, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("files written after load error: %v", entries)
	}
}
