package resource

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewID_Format(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if len(id) != IDLength {
		t.Fatalf("len = %d, want %d", len(id), IDLength)
	}
	if !WellFormed(strings.ToLower(id)) {
		t.Fatalf("id %q is not well formed", id)
	}
}

func TestNewID_NoDuplicates(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID: %v", err)
		}
		if !WellFormed(id) {
			t.Fatalf("id %q is not well formed", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d ids", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestWellFormed(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"0123456789abcdef0123456789abcdef", true},
		{"0123456789abcdef0123456789abcde", false},
		{"0123456789abcdef0123456789abcdef0", false},
		{"0123456789ABCDEF0123456789abcdef", false},
		{"0123456789abcdef0123456789abcd/.", false},
		{"", false},
	}
	for _, c := range cases {
		if got := WellFormed(c.id); got != c.want {
			t.Errorf("WellFormed(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestLayout_Paths(t *testing.T) {
	l := Layout{Root: "/srv/owss", ConfigDir: "conf", DataDir: "data"}
	id := "ab23456789abcdef0123456789abcdef"

	if got, want := l.ConfigFile(id), filepath.Join("/srv/owss", "conf", "a", id+".json"); got != want {
		t.Errorf("ConfigFile = %q, want %q", got, want)
	}
	if got, want := l.DataPath(id), filepath.Join("/srv/owss", "data", "a", id); got != want {
		t.Errorf("DataPath = %q, want %q", got, want)
	}
}

func TestLayout_IsValid(t *testing.T) {
	l := Layout{Root: t.TempDir(), ConfigDir: "conf", DataDir: "data"}
	id := "0123456789abcdef0123456789abcdef"

	if l.IsValid(id) {
		t.Fatal("well-formed id without data dir should be invalid")
	}
	if err := os.MkdirAll(l.DataPath(id), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if !l.IsValid(id) {
		t.Fatal("id with data dir should be valid")
	}
	if l.IsValid("not-an-id") {
		t.Fatal("malformed id should be invalid")
	}
}

func TestLayout_Resolve(t *testing.T) {
	l := Layout{Root: "/srv/owss", ConfigDir: "conf", DataDir: "data"}
	id := "0123456789abcdef0123456789abcdef"
	base := l.DataPath(id)

	ok := map[string]string{
		"a.txt":        filepath.Join(base, "a.txt"),
		"dir/b.txt":    filepath.Join(base, "dir", "b.txt"),
		"dir/../c.txt": filepath.Join(base, "c.txt"),
		"/abs.txt":     filepath.Join(base, "abs.txt"),
		"":             base,
	}
	for rel, want := range ok {
		got, err := l.Resolve(id, rel)
		if err != nil {
			t.Errorf("Resolve(%q): %v", rel, err)
			continue
		}
		if got != want {
			t.Errorf("Resolve(%q) = %q, want %q", rel, got, want)
		}
	}

	for _, rel := range []string{"..", "../x", "../../etc/passwd", "a/../../b"} {
		if _, err := l.Resolve(id, rel); err != ErrInvalidResourcePath {
			t.Errorf("Resolve(%q): err = %v, want ErrInvalidResourcePath", rel, err)
		}
	}
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.lock("a")
	if k.size() != 1 {
		t.Fatalf("size = %d, want 1", k.size())
	}
	unlock()
	if k.size() != 0 {
		t.Fatalf("size = %d, want 0", k.size())
	}
}
