package resource

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// memIndex is an in-memory ShareIndex.
type memIndex struct {
	mu    sync.Mutex
	links map[string]ShareLink
}

func newMemIndex() *memIndex {
	return &memIndex{links: make(map[string]ShareLink)}
}

func (m *memIndex) CreateShare(s *ShareLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[s.Token] = *s
	return nil
}

func (m *memIndex) ListSharesForResource(resourceID string) ([]ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ShareLink
	for _, l := range m.links {
		if l.ResourceID == resourceID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memIndex) ListSharesForPath(path string) ([]ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ShareLink
	for _, l := range m.links {
		if l.Path == path {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memIndex) IncrementDownloads(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[token]
	if !ok {
		return errors.New("not found")
	}
	l.Downloads++
	m.links[token] = l
	return nil
}

func (m *memIndex) DeleteShare(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.links, token)
	return nil
}

func shareEngine(t *testing.T, index ShareIndex) *Engine {
	t.Helper()
	root := t.TempDir()
	return testEngine(t, Options{Root: root, ShareDir: filepath.Join(root, "share"), Index: index})
}

func TestAdd_ShareResolves(t *testing.T) {
	e := shareEngine(t, nil)
	id := testResource(t, e)

	res, err := e.Add(id, "photo.jpg", []byte("jpeg"), true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !WellFormed(res.ShareID) {
		t.Fatalf("share id %q is not well formed", res.ShareID)
	}

	shared, err := e.ResolveShare(res.ShareID)
	if err != nil {
		t.Fatalf("ResolveShare: %v", err)
	}
	if string(shared.Data) != "jpeg" || shared.Name != "photo.jpg" {
		t.Fatalf("shared = %q %q", shared.Name, shared.Data)
	}

	// Multi-use.
	if _, err := e.ResolveShare(res.ShareID); err != nil {
		t.Fatalf("second ResolveShare: %v", err)
	}

	stored, err := os.ReadFile(filepath.Join(e.shareDir, res.ShareID))
	if err != nil {
		t.Fatalf("read token file: %v", err)
	}
	if !filepath.IsAbs(string(stored)) {
		t.Errorf("token file holds %q, want an absolute path", stored)
	}
}

func TestAdd_ShareIgnoredWithoutShareDir(t *testing.T) {
	e := testEngine(t, Options{})
	id := testResource(t, e)

	res, err := e.Add(id, "a.txt", []byte("x"), true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res.ShareID != "" {
		t.Fatalf("ShareID = %q, want empty", res.ShareID)
	}
	if _, err := e.ResolveShare("0123456789abcdef0123456789abcdef"); !errors.Is(err, ErrSharingDisabled) {
		t.Fatalf("ResolveShare: err = %v, want ErrSharingDisabled", err)
	}
}

func TestResolveShare_Errors(t *testing.T) {
	e := shareEngine(t, nil)
	id := testResource(t, e)

	if _, err := e.ResolveShare("../../etc/passwd"); !errors.Is(err, ErrInvalidResourceID) {
		t.Errorf("malformed token: err = %v", err)
	}
	if _, err := e.ResolveShare("0123456789abcdef0123456789abcdef"); !errors.Is(err, ErrInvalidResourceID) {
		t.Errorf("unknown token: err = %v", err)
	}

	res, err := e.Add(id, "gone.txt", []byte("x"), true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := os.Remove(filepath.Join(e.Layout().DataPath(id), "gone.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := e.ResolveShare(res.ShareID); !errors.Is(err, ErrInvalidResourceName) {
		t.Errorf("missing target: err = %v, want ErrInvalidResourceName", err)
	}

	// A token file pointing outside the data root is refused.
	forged := "fedcba9876543210fedcba9876543210"
	outside := filepath.Join(t.TempDir(), "outside.txt")
	os.WriteFile(outside, []byte("nope"), 0644)
	if err := os.WriteFile(filepath.Join(e.shareDir, forged), []byte(outside), 0644); err != nil {
		t.Fatalf("write forged token: %v", err)
	}
	if _, err := e.ResolveShare(forged); !errors.Is(err, ErrInvalidResourceID) {
		t.Errorf("forged token: err = %v, want ErrInvalidResourceID", err)
	}
}

func TestShares_IndexedListedAndRevoked(t *testing.T) {
	index := newMemIndex()
	e := shareEngine(t, index)
	id := testResource(t, e)
	other := testResource(t, e)

	res, err := e.Add(id, "a.txt", []byte("x"), true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := e.ResolveShare(res.ShareID); err != nil {
		t.Fatalf("ResolveShare: %v", err)
	}

	links, err := e.ListShares(id)
	if err != nil {
		t.Fatalf("ListShares: %v", err)
	}
	if len(links) != 1 || links[0].Token != res.ShareID || links[0].Downloads != 1 {
		t.Fatalf("links = %+v", links)
	}

	if err := e.RevokeShare(other, res.ShareID); !errors.Is(err, ErrInvalidResourceID) {
		t.Fatalf("revoke from other resource: err = %v", err)
	}
	if err := e.RevokeShare(id, res.ShareID); err != nil {
		t.Fatalf("RevokeShare: %v", err)
	}
	if _, err := e.ResolveShare(res.ShareID); !errors.Is(err, ErrInvalidResourceID) {
		t.Fatalf("revoked token: err = %v", err)
	}
	if links, _ := e.ListShares(id); len(links) != 0 {
		t.Fatalf("links after revoke = %+v", links)
	}
}

func TestShares_DroppedWithFile(t *testing.T) {
	index := newMemIndex()
	e := shareEngine(t, index)
	id := testResource(t, e)

	res, err := e.Add(id, "a.txt", []byte("x"), true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := e.Delete(id, "a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.shareDir, res.ShareID)); !os.IsNotExist(err) {
		t.Fatalf("token file should be removed with its file, stat err = %v", err)
	}
	if links, _ := e.ListShares(id); len(links) != 0 {
		t.Fatalf("links after delete = %+v", links)
	}
}

func TestShares_DroppedOnEviction(t *testing.T) {
	index := newMemIndex()
	root := t.TempDir()
	e := testEngine(t, Options{
		Root:                 root,
		ShareDir:             filepath.Join(root, "share"),
		Index:                index,
		MaxResource:          1,
		AutoCleanOldResource: true,
	})
	id := testResource(t, e)

	res, err := e.Add(id, "old.txt", []byte("x"), true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	path := filepath.Join(e.Layout().DataPath(id), "old.txt")
	past := time.Now().Add(-time.Hour)
	os.Chtimes(path, past, past)

	if _, err := e.Add(id, "new.txt", []byte("y"), false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := e.ResolveShare(res.ShareID); !errors.Is(err, ErrInvalidResourceID) {
		t.Fatalf("share of evicted file: err = %v, want ErrInvalidResourceID", err)
	}
}

func TestListShares_RequiresIndex(t *testing.T) {
	e := shareEngine(t, nil)
	id := testResource(t, e)

	if _, err := e.ListShares(id); !errors.Is(err, ErrSharingDisabled) {
		t.Fatalf("ListShares without index: err = %v", err)
	}
}

func TestAdd_ShareFailureRollsBack(t *testing.T) {
	e := shareEngine(t, newMemIndex())
	id := testResource(t, e)

	// Token files can no longer be written.
	if err := os.RemoveAll(e.shareDir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if _, err := e.Add(id, "doc.txt", []byte("doc"), true); err == nil {
		t.Fatal("expected error when the share cannot be written")
	}

	if _, err := os.Stat(filepath.Join(e.Layout().DataPath(id), "doc.txt")); !os.IsNotExist(err) {
		t.Errorf("file should be removed after failed share, stat err = %v", err)
	}
	if n := count(t, e, id); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestShare_NameWithSpaces(t *testing.T) {
	e := shareEngine(t, nil)
	id := testResource(t, e)

	if _, err := e.Add(id, "plain", []byte("plain"), false); err != nil {
		t.Fatalf("Add: %v", err)
	}
	res, err := e.Add(id, " plain ", []byte("padded"), true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	data, err := e.Get(id, " plain ")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "padded" {
		t.Fatalf("Get = %q, want padded", data)
	}

	shared, err := e.ResolveShare(res.ShareID)
	if err != nil {
		t.Fatalf("ResolveShare: %v", err)
	}
	if shared.Name != " plain " || string(shared.Data) != "padded" {
		t.Fatalf("shared = %q %q", shared.Name, shared.Data)
	}
}

func TestResolveShare_TrailingNewlineInTokenFile(t *testing.T) {
	e := shareEngine(t, nil)
	id := testResource(t, e)

	res, err := e.Add(id, "notes.txt", []byte("notes"), true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	tokenFile := filepath.Join(e.shareDir, res.ShareID)
	stored, err := os.ReadFile(tokenFile)
	if err != nil {
		t.Fatalf("read token file: %v", err)
	}
	if err := os.WriteFile(tokenFile, append(stored, '\r', '\n'), 0644); err != nil {
		t.Fatalf("rewrite token file: %v", err)
	}

	shared, err := e.ResolveShare(res.ShareID)
	if err != nil {
		t.Fatalf("ResolveShare: %v", err)
	}
	if string(shared.Data) != "notes" {
		t.Fatalf("shared data = %q", shared.Data)
	}
}
