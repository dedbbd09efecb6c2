package repo

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/mgorny/pkgcore/atom"
	"github.com/mgorny/pkgcore/profile"
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

func TestUnconfiguredTreeMatch(t *testing.T) {
	tree := NewUnconfiguredTree("gentoo")
	tree.Add(&Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10"), Slot: "3"})

	a, _ := atom.Parse(">=dev-lang/python-3.9", "7")
	got, err := tree.Match(context.Background(), a)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 1 || got[0].RepoID != "gentoo" {
		t.Fatalf("Match = %+v", got)
	}
}

func buildProfile(t *testing.T) *profile.OnDiskProfile {
	t.Helper()
	fsys := fstest.MapFS{
		"profiles":              &fstest.MapFile{Mode: fs.ModeDir},
		"default/make.defaults": &fstest.MapFile{Data: []byte("USE=\"sqlite\"\n")},
		"default/package.mask":  &fstest.MapFile{Data: []byte("dev-lang/broken\n")},
		"default/use.mask":      &fstest.MapFile{Data: []byte("tk\n")},
	}
	leaf, err := profile.NewProfileNode(fsys, "default")
	if err != nil {
		t.Fatalf("NewProfileNode: %v", err)
	}
	p, err := profile.NewOnDiskProfile(leaf, "profiles")
	if err != nil {
		t.Fatalf("NewOnDiskProfile: %v", err)
	}
	return p
}

func TestConfiguredTreeMasksAndUse(t *testing.T) {
	tree := NewUnconfiguredTree("gentoo")
	tree.Add(&Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10"), Slot: "3", IUSE: []string{"sqlite", "-tk"}})
	tree.Add(&Pkg{Category: "dev-lang", Package: "broken", Version: mustVer(t, "1"), Slot: "0"})

	prof := buildProfile(t)
	ct, err := NewConfiguredTree(tree, prof)
	if err != nil {
		t.Fatalf("NewConfiguredTree: %v", err)
	}

	allPython, _ := atom.Parse("dev-lang/python", "7")
	got, err := ct.Match(context.Background(), allPython)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Match = %+v", got)
	}
	use, err := ct.UseState(got[0])
	if err != nil {
		t.Fatalf("UseState: %v", err)
	}
	if !use["sqlite"] {
		t.Fatalf("expected sqlite enabled via make.defaults, got %v", use)
	}
	if use["tk"] {
		t.Fatalf("expected tk masked off by use.mask, got %v", use)
	}

	allBroken, _ := atom.Parse("dev-lang/broken", "7")
	gotBroken, err := ct.Match(context.Background(), allBroken)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(gotBroken) != 0 {
		t.Fatalf("expected masked package to be filtered out, got %+v", gotBroken)
	}
}

func TestProvidesRepoEmptyShortCircuit(t *testing.T) {
	r := NewProvidesRepo(nil)
	a, _ := atom.Parse("dev-lang/python", "7")
	got, err := r.Match(context.Background(), a)
	if err != nil || got != nil {
		t.Fatalf("Match on empty ProvidesRepo = %v, %v, want nil, nil", got, err)
	}
}

func TestProvidesRepoMatch(t *testing.T) {
	r := NewProvidesRepo(map[profile.CPKey][]string{
		{Category: "dev-lang", Package: "python"}: {"3.10"},
	})
	a, _ := atom.Parse(">=dev-lang/python-3", "7")
	got, err := r.Match(context.Background(), a)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Match = %+v", got)
	}
}

func TestAliasedVirtualsMatchesThroughAliasedRepo(t *testing.T) {
	concrete := NewUnconfiguredTree("gentoo")
	concrete.Add(&Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10"), Slot: "3"})
	concrete.Add(&Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "2.7"), Slot: "2"})

	providerAtom, err := atom.Parse("dev-lang/python", "7")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	virt := NewAliasedVirtuals("virtuals", concrete, map[string]*atom.Atom{"python": providerAtom})

	q, _ := atom.Parse(">=virtual/python-3", "7")
	got, err := virt.Match(context.Background(), q)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 1 || got[0].Version.String() != "3.10" {
		t.Fatalf("Match = %+v, want the 3.10 provider", got)
	}

	all, err := virt.Versions(context.Background(), CPKey{"virtual", "python"})
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Versions = %+v, want both slots synthesized", all)
	}
}

func TestAliasedVirtualsOverrideIntersectsNotReplaces(t *testing.T) {
	concrete := NewUnconfiguredTree("gentoo")
	concrete.Add(&Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10"), Slot: "3"})
	concrete.Add(&Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "2.7"), Slot: "2"})

	base, _ := atom.Parse("dev-lang/python", "7")
	override, _ := atom.Parse(">=dev-lang/python-3", "7")
	virt := NewAliasedVirtuals("virtuals", concrete,
		map[string]*atom.Atom{"python": base},
		map[string]*atom.Atom{"python": override})

	all, err := virt.Versions(context.Background(), CPKey{"virtual", "python"})
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(all) != 1 || all[0].Version.String() != "3.10" {
		t.Fatalf("Versions = %+v, want only the slot-3 provider surviving the AND of base and override", all)
	}
}

func TestAliasedVirtualsIgnoresNonVirtualCategory(t *testing.T) {
	concrete := NewUnconfiguredTree("gentoo")
	base, _ := atom.Parse("dev-lang/python", "7")
	virt := NewAliasedVirtuals("virtuals", concrete, map[string]*atom.Atom{"python": base})

	a, _ := atom.Parse("dev-lang/python", "7")
	got, err := virt.Match(context.Background(), a)
	if err != nil || got != nil {
		t.Fatalf("Match on non-virtual category = %v, %v, want nil, nil", got, err)
	}
}

func TestPathRestrictResolvesExactAtom(t *testing.T) {
	tree := NewUnconfiguredTreeAt("gentoo", "/repo")
	a, err := tree.PathRestrict("/repo/dev-lang/python/python-3.10.ebuild", "7")
	if err != nil {
		t.Fatalf("PathRestrict: %v", err)
	}
	if a.Category != "dev-lang" || a.Package != "python" || a.Version.String() != "3.10" || a.RepoID != "gentoo" {
		t.Fatalf("PathRestrict = %+v", a)
	}

	pkg := &Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10"), RepoID: "gentoo"}
	if !a.Match(pkg.View()) {
		t.Fatalf("expected path-derived atom to match the exact package it names")
	}
	other := &Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.11"), RepoID: "gentoo"}
	if a.Match(other.View()) {
		t.Fatalf("expected path-derived atom NOT to match a different version")
	}
}

func TestPathRestrictRelativePath(t *testing.T) {
	tree := NewUnconfiguredTreeAt("gentoo", "/repo")
	a, err := tree.PathRestrict("dev-lang/python/python-3.10.ebuild", "7")
	if err != nil {
		t.Fatalf("PathRestrict: %v", err)
	}
	if a.Package != "python" {
		t.Fatalf("PathRestrict = %+v", a)
	}
}

func TestPathRestrictOutsideRepo(t *testing.T) {
	tree := NewUnconfiguredTreeAt("gentoo", "/repo")
	_, err := tree.PathRestrict("/elsewhere/dev-lang/python/python-3.10.ebuild", "7")
	pe, ok := err.(*PathError)
	if !ok || pe.Kind != PathOutsideRepo {
		t.Fatalf("PathRestrict err = %v, want *PathError{Kind: PathOutsideRepo}", err)
	}
}

func TestPathRestrictNotAnEbuild(t *testing.T) {
	tree := NewUnconfiguredTreeAt("gentoo", "/repo")
	if _, err := tree.PathRestrict("/repo/dev-lang/python/Manifest", "7"); err == nil {
		t.Fatalf("expected error for a non-ebuild file")
	} else if pe, ok := err.(*PathError); !ok || pe.Kind != PathNotEbuild {
		t.Fatalf("PathRestrict err = %v, want *PathError{Kind: PathNotEbuild}", err)
	}

	if _, err := tree.PathRestrict("/repo/profiles/base/make.defaults", "7"); err == nil {
		t.Fatalf("expected error for a path under a reserved directory")
	} else if pe, ok := err.(*PathError); !ok || pe.Kind != PathNotEbuild {
		t.Fatalf("PathRestrict err = %v, want *PathError{Kind: PathNotEbuild}", err)
	}
}

func TestPathRestrictNoFilesystemRoot(t *testing.T) {
	tree := NewUnconfiguredTree("gentoo")
	_, err := tree.PathRestrict("/repo/dev-lang/python/python-3.10.ebuild", "7")
	pe, ok := err.(*PathError)
	if !ok || pe.Kind != PathOutsideRepo {
		t.Fatalf("PathRestrict err = %v, want *PathError{Kind: PathOutsideRepo}", err)
	}
}

func TestMultiplexTreePrefersEarlier(t *testing.T) {
	gentoo := NewUnconfiguredTree("gentoo")
	gentoo.Add(&Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10")})
	overlay := NewUnconfiguredTree("overlay")
	overlay.Add(&Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.11")})

	m := NewMultiplexTree("combined", gentoo, overlay)
	all, err := m.Versions(context.Background(), CPKey{"dev-lang", "python"})
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(all) != 2 || all[0].RepoID != "gentoo" {
		t.Fatalf("Versions = %+v", all)
	}
}
