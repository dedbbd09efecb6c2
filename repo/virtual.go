package repo

import (
	"context"
	"fmt"

	"github.com/mgorny/pkgcore/atom"
)

// AliasedVirtuals is a synthetic repository exposing "virtual/foo"
// package names whose versions are synthesized from whatever packages
// in an aliased concrete repository satisfy the virtual's provider
// atom(s).
//
// Grounded on original_source's pkgcore/ebuild/profiles.py
// (_delay_apply_overrides): when more than one source declares a
// default_providers atom for the same virtual, the sources AND
// together rather than one replacing the other — an override profile
// narrows the base set of acceptable providers, it never discards it.
type AliasedVirtuals struct {
	name      string
	aliased   Repository
	providers map[string][]*atom.Atom
}

// NewAliasedVirtuals builds the virtuals repository from base (e.g. a
// profile stack's collapsed virtuals file) layered under overrides in
// priority order; each override's atom for a virtual is ANDed onto
// whatever base (or an earlier override) already declared for it,
// rather than replacing it. Every candidate provider is resolved
// against aliased.
func NewAliasedVirtuals(name string, aliased Repository, base map[string]*atom.Atom, overrides ...map[string]*atom.Atom) *AliasedVirtuals {
	providers := make(map[string][]*atom.Atom, len(base))
	for virt, a := range base {
		providers[virt] = append(providers[virt], a)
	}
	for _, ov := range overrides {
		for virt, a := range ov {
			providers[virt] = append(providers[virt], a)
		}
	}
	return &AliasedVirtuals{name: name, aliased: aliased, providers: providers}
}

func (v *AliasedVirtuals) Name() string { return v.name }

// virtualName strips the "virtual" category off a category/package
// pair, reporting ok=false for anything outside it.
func virtualName(category, pkg string) (string, bool) {
	if category != "virtual" {
		return "", false
	}
	return pkg, true
}

func (v *AliasedVirtuals) Match(ctx context.Context, a *atom.Atom) ([]*Pkg, error) {
	name, ok := virtualName(a.Category, a.Package)
	if !ok {
		return nil, nil
	}
	providers, err := v.providerPkgs(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []*Pkg
	for _, p := range providers {
		synth := v.synthesize(name, p)
		if a.Match(synth.View()) {
			out = append(out, synth)
		}
	}
	return out, nil
}

func (v *AliasedVirtuals) Versions(ctx context.Context, key CPKey) ([]*Pkg, error) {
	name, ok := virtualName(key.Category, key.Package)
	if !ok {
		return nil, nil
	}
	providers, err := v.providerPkgs(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]*Pkg, 0, len(providers))
	for _, p := range providers {
		out = append(out, v.synthesize(name, p))
	}
	return out, nil
}

// providerPkgs returns every concrete package in the aliased repo that
// satisfies every constraint atom registered for the virtual name (the
// AND-of-sources layering NewAliasedVirtuals builds).
func (v *AliasedVirtuals) providerPkgs(ctx context.Context, name string) ([]*Pkg, error) {
	atoms := v.providers[name]
	if len(atoms) == 0 {
		return nil, nil
	}
	candidates, err := v.aliased.Match(ctx, atoms[0])
	if err != nil {
		return nil, err
	}
	for _, extra := range atoms[1:] {
		candidates = filterByAtom(candidates, extra)
	}
	return candidates, nil
}

func filterByAtom(pkgs []*Pkg, a *atom.Atom) []*Pkg {
	out := pkgs[:0:0]
	for _, p := range pkgs {
		if a.Match(p.View()) {
			out = append(out, p)
		}
	}
	return out
}

// synthesize builds the virtual/name package standing in for provider,
// at provider's own version, slot and sub-slot, with an RDEPEND pinned
// to that exact provider so resolving the virtual pulls the concrete
// package into the graph rather than terminating at the synthetic leaf.
func (v *AliasedVirtuals) synthesize(name string, provider *Pkg) *Pkg {
	pin := fmt.Sprintf("=%s/%s-%s", provider.Category, provider.Package, provider.Version.String())
	if provider.Slot != "" {
		pin += ":" + provider.Slot
	}
	return &Pkg{
		Category: "virtual",
		Package:  name,
		Version:  provider.Version,
		Slot:     provider.Slot,
		SubSlot:  provider.SubSlot,
		RepoID:   v.name,
		EAPI:     provider.EAPI,
		RDepend:  pin,
	}
}

var _ Repository = (*AliasedVirtuals)(nil)
