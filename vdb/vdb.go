/*
Package vdb models the installed-package database: the set of packages
currently merged onto a system, queried the way a repository is, plus
the installed "virtuals" cache layered on top of it.

The in-memory store shape follows resolve.LocalClient (a map-backed
stand-in for a real package index); the mtime-gated virtuals cache is a
direct port of original_source's pkgcore.vdb.virtuals module, including
the row-flattening fix recorded in DESIGN.md's Open Question
resolution: each virtual now contributes one row per (provider,
version) pair instead of silently concatenating every version's text
into one malformed cache line.
*/
package vdb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mgorny/pkgcore/atom"
	"github.com/mgorny/pkgcore/updates"
	"github.com/mgorny/pkgcore/version"
)

// Pkg is one installed package record.
type Pkg struct {
	Category string
	Package  string
	Version  version.Version
	Slot     string
	SubSlot  string
	Repo     string
	Use      map[string]bool
	Keywords []string
}

// CPKey is a bare category/package identity.
type CPKey struct{ Category, Package string }

// VDB is an in-memory installed-package index, grounded on
// resolve.LocalClient's "map of versions per package" shape.
type VDB struct {
	mu   sync.RWMutex
	pkgs map[CPKey][]*Pkg
}

// New returns an empty VDB.
func New() *VDB { return &VDB{pkgs: map[CPKey][]*Pkg{}} }

// Add records pkg as installed.
func (v *VDB) Add(pkg *Pkg) {
	v.mu.Lock()
	defer v.mu.Unlock()
	k := CPKey{pkg.Category, pkg.Package}
	v.pkgs[k] = append(v.pkgs[k], pkg)
}

// Remove deletes pkg (matched by category/package/version) from the
// index, reporting whether an entry was removed. resolver.Unmerge only
// plans remove ops and does not call it.
func (v *VDB) Remove(cat, pkg string, ver version.Version) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	k := CPKey{cat, pkg}
	list := v.pkgs[k]
	for i, p := range list {
		if p.Version.Compare(ver) == 0 {
			v.pkgs[k] = append(list[:i], list[i+1:]...)
			if len(v.pkgs[k]) == 0 {
				delete(v.pkgs, k)
			}
			return true
		}
	}
	return false
}

// Match returns every installed package the atom matches.
func (v *VDB) Match(a *atom.Atom) []*Pkg {
	v.mu.RLock()
	defer v.mu.RUnlock()
	k := CPKey{a.Category, a.Package}
	var out []*Pkg
	for _, p := range v.pkgs[k] {
		if a.Match(pkgView{p}) {
			out = append(out, p)
		}
	}
	return out
}

// ResolveIdentity walks p's category/package/slot forward through ups
// (the same chaining updates.ApplyToAtom applies to a dependency atom)
// and returns the identity p would carry under the current package
// tree, so a package installed under a name or slot that has since
// been renamed can still be recognized as satisfying a request for its
// new identity.
func ResolveIdentity(p *Pkg, ups []updates.Update) (category, pkg, slot string) {
	category, pkg, slot = p.Category, p.Package, p.Slot
	for _, u := range ups {
		switch u.Kind {
		case updates.Move:
			if category == u.From.Category && pkg == u.From.Package {
				category, pkg = u.To.Category, u.To.Package
			}
		case updates.SlotMove:
			if category == u.From.Category && pkg == u.From.Package && slot == u.OldSlot {
				slot = u.NewSlot
			}
		}
	}
	return category, pkg, slot
}

// MatchWithUpdates returns every installed package the atom matches,
// either directly or once its own identity (category/package/slot) is
// walked forward through ups — so an atom for a package's new name or
// slot is satisfied by a package still recorded under its pre-move
// identity, matching §8's move-aware resolution scenario.
func (v *VDB) MatchWithUpdates(a *atom.Atom, ups []updates.Update) []*Pkg {
	v.mu.RLock()
	defer v.mu.RUnlock()
	k := CPKey{a.Category, a.Package}
	var out []*Pkg
	for _, p := range v.pkgs[k] {
		if a.Match(pkgView{p}) {
			out = append(out, p)
		}
	}
	if len(ups) == 0 {
		return out
	}
	for key, list := range v.pkgs {
		if key == k {
			continue // already checked directly above
		}
		for _, p := range list {
			cat, pkg, slot := ResolveIdentity(p, ups)
			if cat != a.Category || pkg != a.Package {
				continue
			}
			moved := &Pkg{Category: cat, Package: pkg, Version: p.Version, Slot: slot, SubSlot: p.SubSlot, Repo: p.Repo, Use: p.Use, Keywords: p.Keywords}
			if a.Match(pkgView{moved}) {
				out = append(out, p)
			}
		}
	}
	return out
}

// All returns every installed package, category/package/version sorted.
func (v *VDB) All() []*Pkg {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []*Pkg
	for _, list := range v.pkgs {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		return a.Version.Less(b.Version)
	})
	return out
}

// pkgView adapts *Pkg (whose fields already occupy the names
// Category/Package/Version/Slot/...) to the method-based
// restrict.Package / atom-matching interface.
type pkgView struct{ p *Pkg }

func (w pkgView) Category() string           { return w.p.Category }
func (w pkgView) PackageName() string        { return w.p.Package }
func (w pkgView) PkgVersion() version.Version { return w.p.Version }
func (w pkgView) Slot() string               { return w.p.Slot }
func (w pkgView) SubSlot() string            { return w.p.SubSlot }
func (w pkgView) RepoID() string             { return w.p.Repo }
func (w pkgView) UseEnabled(f string) bool   { return w.p.Use[f] }
func (w pkgView) Keywords() []string         { return w.p.Keywords }

// View adapts pkg for use anywhere a restrict.Package or atom.Match
// target is required.
func View(pkg *Pkg) pkgView { return pkgView{pkg} }

// String renders a package as "category/package-version".
func (p *Pkg) String() string {
	return fmt.Sprintf("%s/%s-%s", p.Category, p.Package, p.Version.String())
}
