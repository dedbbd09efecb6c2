package vdb

import (
	"path/filepath"
	"testing"

	"github.com/mgorny/pkgcore/atom"
	"github.com/mgorny/pkgcore/version"
)

func mustVer(t *testing.T, s string) version.Version {
	t.Helper()
	v, err := version.Parse(s)
	if err != nil {
		t.Fatalf("version.Parse(%q): %v", s, err)
	}
	return v
}

func TestAddMatchRemove(t *testing.T) {
	v := New()
	v.Add(&Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10"), Slot: "3"})

	a, err := atom.Parse(">=dev-lang/python-3.9", "7")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(v.Match(a)) != 1 {
		t.Fatalf("expected one match")
	}

	if !v.Remove("dev-lang", "python", mustVer(t, "3.10")) {
		t.Fatalf("Remove returned false")
	}
	if len(v.Match(a)) != 0 {
		t.Fatalf("expected no matches after Remove")
	}
}

func TestProvidesAndCollect(t *testing.T) {
	v := New()
	v.Add(&Pkg{
		Category: "dev-lang", Package: "python-exec", Version: mustVer(t, "2"),
		Use: map[string]bool{"provides:python": true},
	})
	virts := Collect(v)
	if len(virts.Providers["python"]) != 1 {
		t.Fatalf("Providers[python] = %+v", virts.Providers["python"])
	}
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := NewCacheFile(filepath.Join(dir, "virtuals.cache"))

	virts := &Virtuals{Providers: map[string][]Provider{
		"python": {{Category: "dev-lang", Package: "python-exec", Version: "2"}},
	}}
	if err := cache.WriteCache(virts, 1000); err != nil {
		t.Fatalf("WriteCache: %v", err)
	}
	got, err := cache.ReadCache()
	if err != nil {
		t.Fatalf("ReadCache: %v", err)
	}
	if len(got.Providers["python"]) != 1 || got.Providers["python"][0].Package != "python-exec" {
		t.Fatalf("ReadCache round trip = %+v", got.Providers)
	}
}

func TestCacheMissing(t *testing.T) {
	cache := NewCacheFile(filepath.Join(t.TempDir(), "missing.cache"))
	got, err := cache.ReadCache()
	if err != nil {
		t.Fatalf("ReadCache: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing cache, got %+v", got)
	}
}

func TestAliasAtomsOverridesWinOverInstalled(t *testing.T) {
	profileAtom, _ := atom.Parse("=dev-lang/cpython-3.10", "7")
	installed := &Virtuals{Providers: map[string][]Provider{
		"python": {{Category: "dev-lang", Package: "python-exec", Version: "2"}},
		"editor": {{Category: "app-editors", Package: "nano", Version: "7"}},
	}}
	got := AliasAtoms(map[string]*atom.Atom{"python": profileAtom}, installed)
	if len(got["python"]) != 1 || got["python"][0] != profileAtom {
		t.Fatalf("expected profile override to win, got %+v", got["python"])
	}
	if len(got["editor"]) != 1 {
		t.Fatalf("expected installed-derived fallback for editor, got %+v", got["editor"])
	}
}
