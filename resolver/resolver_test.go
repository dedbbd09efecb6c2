package resolver

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/mgorny/pkgcore/atom"
	"github.com/mgorny/pkgcore/repo"
	"github.com/mgorny/pkgcore/updates"
	"github.com/mgorny/pkgcore/vdb"
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

func mustAtom(t *testing.T, s string) *atom.Atom {
	t.Helper()
	a, err := atom.Parse(s, "7")
	if err != nil {
		t.Fatalf("atom.Parse(%q): %v", s, err)
	}
	return a
}

func TestResolveSimpleDependency(t *testing.T) {
	tree := repo.NewUnconfiguredTree("gentoo")
	tree.Add(&repo.Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10"), Slot: "3", EAPI: "7"})
	tree.Add(&repo.Pkg{Category: "app-misc", Package: "tool", Version: mustVer(t, "1.0"), Slot: "0", EAPI: "7",
		RDepend: "dev-lang/python"})

	r := NewResolver("7", vdb.New(), []repo.Repository{tree})
	g, err := r.Resolve(context.Background(), []*atom.Atom{mustAtom(t, "app-misc/tool")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("Nodes = %+v", g.Nodes)
	}
	if len(g.Edges) != 1 {
		t.Fatalf("Edges = %+v", g.Edges)
	}
	if g.ID == uuid.Nil {
		t.Fatal("expected Resolve to assign a non-nil graph ID")
	}

	ops, err := r.Plan(g)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(ops) != 2 || ops[0].Kind != OpAdd || ops[0].Node.Pkg.Package != "python" {
		t.Fatalf("ops = %+v, want python emitted before tool", ops)
	}
	if ops[1].Node.Pkg.Package != "tool" {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestResolveUnsatisfiedAtom(t *testing.T) {
	tree := repo.NewUnconfiguredTree("gentoo")
	r := NewResolver("7", vdb.New(), []repo.Repository{tree})
	_, err := r.Resolve(context.Background(), []*atom.Atom{mustAtom(t, "dev-lang/nonexistent")})
	if err == nil {
		t.Fatal("expected unsatisfied error")
	}
	if _, ok := err.(*UnsatisfiedError); !ok {
		t.Fatalf("err = %T, want *UnsatisfiedError", err)
	}
}

func TestResolveConflictingSlotRequirement(t *testing.T) {
	tree := repo.NewUnconfiguredTree("gentoo")
	tree.Add(&repo.Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "2.7"), Slot: "2", EAPI: "7"})
	tree.Add(&repo.Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10"), Slot: "3", EAPI: "7"})
	tree.Add(&repo.Pkg{Category: "app-misc", Package: "a", Version: mustVer(t, "1"), Slot: "0", EAPI: "7",
		RDepend: "dev-lang/python:2"})
	tree.Add(&repo.Pkg{Category: "app-misc", Package: "b", Version: mustVer(t, "1"), Slot: "0", EAPI: "7",
		RDepend: "app-misc/a dev-lang/python:3"})

	r := NewResolver("7", vdb.New(), []repo.Repository{tree})
	g, err := r.Resolve(context.Background(), []*atom.Atom{mustAtom(t, "app-misc/b")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// python:2 and python:3 are different NodeKeys (different slots), so
	// both nodes coexist without conflict.
	var pythonNodes int
	for _, n := range g.Nodes {
		if n.Pkg.Package == "python" {
			pythonNodes++
		}
	}
	if pythonNodes != 2 {
		t.Fatalf("expected both python slots present, got %d python nodes", pythonNodes)
	}
}

func TestResolveBreakableCycle(t *testing.T) {
	tree := repo.NewUnconfiguredTree("gentoo")
	tree.Add(&repo.Pkg{Category: "app-misc", Package: "a", Version: mustVer(t, "1"), Slot: "0", EAPI: "7",
		RDepend: "app-misc/b"})
	tree.Add(&repo.Pkg{Category: "app-misc", Package: "b", Version: mustVer(t, "1"), Slot: "0", EAPI: "7",
		RDepend: "app-misc/a"})

	r := NewResolver("7", vdb.New(), []repo.Repository{tree})
	g, err := r.Resolve(context.Background(), []*atom.Atom{mustAtom(t, "app-misc/a")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := r.Plan(g); err != nil {
		t.Fatalf("Plan on breakable cycle: %v", err)
	}
}

func TestResolveUnbreakableCycleFails(t *testing.T) {
	tree := repo.NewUnconfiguredTree("gentoo")
	tree.Add(&repo.Pkg{Category: "app-misc", Package: "a", Version: mustVer(t, "1"), Slot: "0", EAPI: "7",
		Depend: "app-misc/b"})
	tree.Add(&repo.Pkg{Category: "app-misc", Package: "b", Version: mustVer(t, "1"), Slot: "0", EAPI: "7",
		RDepend: "app-misc/a"})

	r := NewResolver("7", vdb.New(), []repo.Repository{tree})
	_, err := r.Resolve(context.Background(), []*atom.Atom{mustAtom(t, "app-misc/a")})
	if err == nil {
		t.Fatal("expected cycle error for a build-time edge inside the cycle")
	}
	if _, ok := err.(*CycleError); !ok {
		t.Fatalf("Resolve error = %T (%v), want *CycleError", err, err)
	}
}

func TestResolveThroughAliasedVirtuals(t *testing.T) {
	concrete := repo.NewUnconfiguredTree("gentoo")
	concrete.Add(&repo.Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10"), Slot: "3", EAPI: "7"})
	concrete.Add(&repo.Pkg{Category: "app-misc", Package: "tool", Version: mustVer(t, "1.0"), Slot: "0", EAPI: "7",
		RDepend: "virtual/python"})

	providerAtom := mustAtom(t, "dev-lang/python")
	virt := repo.NewAliasedVirtuals("virtuals", concrete, map[string]*atom.Atom{"python": providerAtom})
	combined := repo.NewMultiplexTree("combined", concrete, virt)

	r := NewResolver("7", vdb.New(), []repo.Repository{combined})
	g, err := r.Resolve(context.Background(), []*atom.Atom{mustAtom(t, "app-misc/tool")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var sawPython bool
	for _, n := range g.Nodes {
		if n.Pkg.Category == "dev-lang" && n.Pkg.Package == "python" {
			sawPython = true
		}
	}
	if !sawPython {
		t.Fatalf("expected virtual/python to resolve through AliasedVirtuals to the concrete provider, nodes = %+v", g.Nodes)
	}
}

func TestResolveTreatsInstalledPreMoveIdentityAsSatisfying(t *testing.T) {
	tree := repo.NewUnconfiguredTree("gentoo")
	tree.Add(&repo.Pkg{Category: "cat2", Package: "a", Version: mustVer(t, "1"), Slot: "0", EAPI: "7"})

	v := vdb.New()
	v.Add(&vdb.Pkg{Category: "cat1", Package: "a", Version: mustVer(t, "1"), Slot: "0"})

	moveFrom := mustAtom(t, "cat1/a")
	moveTo := mustAtom(t, "cat2/a")
	r := NewResolver("7", v, []repo.Repository{tree})
	r.Updates = []updates.Update{{Kind: updates.Move, From: moveFrom, To: moveTo}}

	g, err := r.Resolve(context.Background(), []*atom.Atom{mustAtom(t, "cat2/a")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(g.Nodes) != 1 {
		t.Fatalf("Nodes = %+v, want exactly one node", g.Nodes)
	}
	n := g.Nodes[0]
	if n.Pkg.Category != "cat2" || n.Pkg.Package != "a" {
		t.Fatalf("node = %+v, want cat2/a", n.Pkg)
	}
	if n.Installed == nil {
		t.Fatalf("expected the pre-move installed cat1/a-1 to be recognized as already satisfying cat2/a")
	}
}

func TestResolveRewritesPreMoveDependencyAtom(t *testing.T) {
	tree := repo.NewUnconfiguredTree("gentoo")
	tree.Add(&repo.Pkg{Category: "cat2", Package: "a", Version: mustVer(t, "1"), Slot: "0", EAPI: "7"})
	tree.Add(&repo.Pkg{Category: "app-misc", Package: "tool", Version: mustVer(t, "1"), Slot: "0", EAPI: "7",
		RDepend: "cat1/a"})

	r := NewResolver("7", vdb.New(), []repo.Repository{tree})
	r.Updates = []updates.Update{{Kind: updates.Move, From: mustAtom(t, "cat1/a"), To: mustAtom(t, "cat2/a")}}

	g, err := r.Resolve(context.Background(), []*atom.Atom{mustAtom(t, "app-misc/tool")})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var sawNewName bool
	for _, n := range g.Nodes {
		if n.Pkg.Category == "cat1" {
			t.Fatalf("expected the pre-move cat1/a to never appear as a node, got %+v", n.Pkg)
		}
		if n.Pkg.Category == "cat2" && n.Pkg.Package == "a" {
			sawNewName = true
		}
	}
	if !sawNewName {
		t.Fatalf("expected the RDEPEND on cat1/a to resolve through the move to cat2/a, nodes = %+v", g.Nodes)
	}
}

func TestUnmergeSingleCategory(t *testing.T) {
	v := vdb.New()
	v.Add(&vdb.Pkg{Category: "dev-lang", Package: "python", Version: mustVer(t, "3.10"), Slot: "3"})
	ops, err := Unmerge(v, "dev-lang/python", "7")
	if err != nil {
		t.Fatalf("Unmerge: %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != OpRemove {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestUnmergeAmbiguousCategory(t *testing.T) {
	v := vdb.New()
	v.Add(&vdb.Pkg{Category: "dev-lang", Package: "tool", Version: mustVer(t, "1"), Slot: "0"})
	v.Add(&vdb.Pkg{Category: "app-misc", Package: "tool", Version: mustVer(t, "1"), Slot: "0"})
	_, err := Unmerge(v, "tool", "7")
	if err == nil {
		t.Fatal("expected ambiguous query error")
	}
	if _, ok := err.(*AmbiguousQueryError); !ok {
		t.Fatalf("err = %T, want *AmbiguousQueryError", err)
	}
}

func TestUnmergeNoMatches(t *testing.T) {
	v := vdb.New()
	_, err := Unmerge(v, "dev-lang/nope", "7")
	if _, ok := err.(*NoMatchesError); !ok {
		t.Fatalf("err = %T, want *NoMatchesError", err)
	}
}
