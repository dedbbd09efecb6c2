/*
Package repo models a package repository: an unconfigured tree of raw
ebuilds, a configured view of that tree with one profile's USE state
and masks applied, a multiplexed view over several repositories, and a
synthetic repository standing in for profile package.provided entries.

The Repository/Client split mirrors resolve.Client: a narrow interface
(Match/Versions) that every concrete backing store implements, so the
resolver can be handed any of UnconfiguredTree, ConfiguredTree,
MultiplexTree or ProvidesRepo without caring which. The in-memory
UnconfiguredTree itself is grounded on resolve.LocalClient's map-backed
approach.
*/
package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mgorny/pkgcore/atom"
	"github.com/mgorny/pkgcore/profile"
	"github.com/mgorny/pkgcore/restrict"
	"github.com/mgorny/pkgcore/toggle"
	"github.com/mgorny/pkgcore/version"
)

// CPKey is a bare category/package identity.
type CPKey struct{ Category, Package string }

// Pkg is a raw (unconfigured) ebuild's metadata as read from a
// repository, before profile-driven masking or USE collapsing.
type Pkg struct {
	Category string
	Package  string
	Version  version.Version
	Slot     string
	SubSlot  string
	RepoID   string
	EAPI     string

	IUSE     []string // flag names this ebuild declares, with optional "+"/"-" default
	Keywords []string

	Depend, RDepend, PDepend, BDepend string // raw, unexpanded dependency strings
}

// iuseDefault reports the declared default for a flag (true if
// "+flag", false if "-flag" or bare "flag").
func (p *Pkg) iuseDefault(flag string) bool {
	for _, f := range p.IUSE {
		name := f
		def := false
		if len(f) > 0 && (f[0] == '+' || f[0] == '-') {
			name = f[1:]
			def = f[0] == '+'
		}
		if name == flag {
			return def
		}
	}
	return false
}

// DefaultUse returns pkg's IUSE-declared default flag state, with no
// profile applied — the fallback a caller uses when it has only a raw
// Repository (not a ConfiguredTree) to compute an enabled-USE map for
// dependency expansion from.
func (p *Pkg) DefaultUse() map[string]bool {
	out := make(map[string]bool, len(p.IUSE))
	for _, f := range p.iuseFlags() {
		out[f] = p.iuseDefault(f)
	}
	return out
}

func (p *Pkg) iuseFlags() []string {
	out := make([]string, len(p.IUSE))
	for i, f := range p.IUSE {
		if len(f) > 0 && (f[0] == '+' || f[0] == '-') {
			out[i] = f[1:]
		} else {
			out[i] = f
		}
	}
	return out
}

// View adapts *Pkg to restrict.Package/atom matching, reporting USE
// flags at their IUSE declared defaults (no profile applied); use
// ConfiguredPkg.View for the profile-aware version.
func (p *Pkg) View() pkgView { return pkgView{pkg: p, use: nil} }

type pkgView struct {
	pkg *Pkg
	use map[string]bool
}

func (w pkgView) Category() string           { return w.pkg.Category }
func (w pkgView) PackageName() string        { return w.pkg.Package }
func (w pkgView) PkgVersion() version.Version { return w.pkg.Version }
func (w pkgView) Slot() string               { return w.pkg.Slot }
func (w pkgView) SubSlot() string            { return w.pkg.SubSlot }
func (w pkgView) RepoID() string             { return w.pkg.RepoID }
func (w pkgView) Keywords() []string         { return w.pkg.Keywords }
func (w pkgView) UseEnabled(flag string) bool {
	if w.use != nil {
		if v, ok := w.use[flag]; ok {
			return v
		}
	}
	return w.pkg.iuseDefault(flag)
}

func (p *Pkg) String() string {
	return fmt.Sprintf("%s/%s-%s::%s", p.Category, p.Package, p.Version.String(), p.RepoID)
}

// Repository is the narrow interface the resolver and other consumers
// need from any backing package store.
type Repository interface {
	Name() string
	Match(ctx context.Context, a *atom.Atom) ([]*Pkg, error)
	Versions(ctx context.Context, key CPKey) ([]*Pkg, error)
}

// UnconfiguredTree is an in-memory repository of raw ebuild metadata,
// grounded on resolve.LocalClient's map-of-versions shape.
type UnconfiguredTree struct {
	name string
	root string // filesystem root for PathRestrict; "" if this tree has no on-disk backing

	mu   sync.RWMutex
	pkgs map[CPKey][]*Pkg
}

// NewUnconfiguredTree returns an empty repository named name, with no
// filesystem root (PathRestrict will always fail with PathOutsideRepo).
func NewUnconfiguredTree(name string) *UnconfiguredTree {
	return &UnconfiguredTree{name: name, pkgs: map[CPKey][]*Pkg{}}
}

// NewUnconfiguredTreeAt returns an empty repository named name, rooted
// at root on disk so PathRestrict can resolve paths against it.
func NewUnconfiguredTreeAt(name, root string) *UnconfiguredTree {
	return &UnconfiguredTree{name: name, root: root, pkgs: map[CPKey][]*Pkg{}}
}

func (t *UnconfiguredTree) Name() string { return t.name }

// Add registers pkg in the tree, setting its RepoID to t.Name() if
// unset.
func (t *UnconfiguredTree) Add(pkg *Pkg) {
	if pkg.RepoID == "" {
		pkg.RepoID = t.name
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k := CPKey{pkg.Category, pkg.Package}
	t.pkgs[k] = append(t.pkgs[k], pkg)
}

func (t *UnconfiguredTree) Match(_ context.Context, a *atom.Atom) ([]*Pkg, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	k := CPKey{a.Category, a.Package}
	var out []*Pkg
	for _, p := range t.pkgs[k] {
		if a.Match(p.View()) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *UnconfiguredTree) Versions(_ context.Context, key CPKey) ([]*Pkg, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := append([]*Pkg(nil), t.pkgs[key]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version.Less(out[j].Version) })
	return out, nil
}

// AllCPs returns every category/package key the tree holds, sorted.
func (t *UnconfiguredTree) AllCPs() []CPKey {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]CPKey, 0, len(t.pkgs))
	for k := range t.pkgs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Package < out[j].Package
	})
	return out
}

// ConfiguredTree wraps an UnconfiguredTree with one collapsed profile:
// masked packages disappear, and USE flags reported through its
// pkgView come from the profile's forced/masked/per-package toggles
// layered over the ebuild's own IUSE defaults.
type ConfiguredTree struct {
	base    *UnconfiguredTree
	prof    *profile.OnDiskProfile
	masks   []*atom.Atom
	forced  *toggle.ChunkedDataDict
	pkgMask *toggle.ChunkedDataDict
	pkgUse  *toggle.ChunkedDataDict
}

// NewConfiguredTree builds the configured view of base under prof.
func NewConfiguredTree(base *UnconfiguredTree, prof *profile.OnDiskProfile) (*ConfiguredTree, error) {
	masks, err := prof.Masks()
	if err != nil {
		return nil, err
	}
	forced, err := prof.ForcedUse()
	if err != nil {
		return nil, err
	}
	pkgMask, err := prof.MaskedUse()
	if err != nil {
		return nil, err
	}
	pkgUse, err := prof.PkgUse()
	if err != nil {
		return nil, err
	}
	return &ConfiguredTree{base: base, prof: prof, masks: masks, forced: forced, pkgMask: pkgMask, pkgUse: pkgUse}, nil
}

func (t *ConfiguredTree) Name() string { return t.base.Name() }

func (t *ConfiguredTree) isMasked(pkg *Pkg) bool {
	for _, m := range t.masks {
		if m.Match(pkg.View()) {
			return true
		}
	}
	return false
}

// UseState computes the final enabled-flag set for pkg: start from its
// IUSE defaults, apply make.defaults-derived USE, then package.use,
// then use.force/package.use.force (which always win), then
// use.mask/package.use.mask (which always lose, even against force —
// matching original_source's layering where masked_use is consulted
// after forced_use when building the final visible flag set).
func (t *ConfiguredTree) UseState(pkg *Pkg) (map[string]bool, error) {
	out := map[string]bool{}
	for _, f := range pkg.iuseFlags() {
		out[f] = pkg.iuseDefault(f)
	}
	env, err := t.prof.DefaultEnv()
	if err != nil {
		return nil, err
	}
	for _, tok := range splitFields(env["USE"]) {
		applyToken(out, tok)
	}
	for flag, v := range toggle.Render(t.pkgUse, pkg.View()) {
		out[flag] = v
	}
	for flag, v := range toggle.Render(t.forced, pkg.View()) {
		if v {
			out[flag] = true
		}
	}
	for flag, v := range toggle.Render(t.pkgMask, pkg.View()) {
		if v {
			out[flag] = false
		}
	}
	return out, nil
}

func splitFields(s string) []string {
	var out []string
	field := ""
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if field != "" {
				out = append(out, field)
				field = ""
			}
			continue
		}
		field += string(r)
	}
	if field != "" {
		out = append(out, field)
	}
	return out
}

func applyToken(m map[string]bool, tok string) {
	if tok == "-*" {
		for k := range m {
			delete(m, k)
		}
		return
	}
	if len(tok) > 0 && tok[0] == '-' {
		m[tok[1:]] = false
		return
	}
	m[tok] = true
}

func (t *ConfiguredTree) Match(ctx context.Context, a *atom.Atom) ([]*Pkg, error) {
	raw, err := t.base.Match(ctx, a)
	if err != nil {
		return nil, err
	}
	out := raw[:0:0]
	for _, p := range raw {
		if t.isMasked(p) {
			continue
		}
		use, err := t.UseState(p)
		if err != nil {
			return nil, err
		}
		if !a.Match(pkgView{pkg: p, use: use}) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *ConfiguredTree) Versions(ctx context.Context, key CPKey) ([]*Pkg, error) {
	raw, err := t.base.Versions(ctx, key)
	if err != nil {
		return nil, err
	}
	out := raw[:0:0]
	for _, p := range raw {
		if !t.isMasked(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// MultiplexTree presents several repositories as one, preferring
// earlier repositories' results first (mirroring how Portage's
// repository priority ordering determines which tree "wins" when more
// than one carries the same category/package).
type MultiplexTree struct {
	name  string
	trees []Repository
}

// NewMultiplexTree combines trees, highest priority first.
func NewMultiplexTree(name string, trees ...Repository) *MultiplexTree {
	return &MultiplexTree{name: name, trees: trees}
}

func (m *MultiplexTree) Name() string { return m.name }

func (m *MultiplexTree) Match(ctx context.Context, a *atom.Atom) ([]*Pkg, error) {
	var out []*Pkg
	for _, t := range m.trees {
		got, err := t.Match(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

func (m *MultiplexTree) Versions(ctx context.Context, key CPKey) ([]*Pkg, error) {
	var out []*Pkg
	for _, t := range m.trees {
		got, err := t.Versions(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

// ProvidesRepo stands in for a profile's package.provided entries: a
// synthetic repository whose mere presence satisfies any atom matching
// one of its entries, without the package actually needing to be
// built. Per original_source's _collapse_pkg_provided, an empty
// provides set short-circuits Match/Versions to always return nothing,
// skipping the (pointless) walk over an empty map.
type ProvidesRepo struct {
	entries map[CPKey][]string // category/package -> versions
}

// NewProvidesRepo builds a ProvidesRepo from a collapsed profile's
// ProvidesRepo() data.
func NewProvidesRepo(entries map[profile.CPKey][]string) *ProvidesRepo {
	d := make(map[CPKey][]string, len(entries))
	for k, v := range entries {
		d[CPKey{Category: k.Category, Package: k.Package}] = v
	}
	return &ProvidesRepo{entries: d}
}

func (r *ProvidesRepo) Name() string { return "provided" }

func (r *ProvidesRepo) Match(_ context.Context, a *atom.Atom) ([]*Pkg, error) {
	if len(r.entries) == 0 {
		return nil, nil
	}
	key := CPKey{a.Category, a.Package}
	vers, ok := r.entries[key]
	if !ok {
		return nil, nil
	}
	var out []*Pkg
	for _, vs := range vers {
		v, err := version.Parse(vs)
		if err != nil {
			continue
		}
		pkg := &Pkg{Category: a.Category, Package: a.Package, Version: v, RepoID: r.Name()}
		if a.Match(pkg.View()) {
			out = append(out, pkg)
		}
	}
	return out, nil
}

func (r *ProvidesRepo) Versions(_ context.Context, key CPKey) ([]*Pkg, error) {
	if len(r.entries) == 0 {
		return nil, nil
	}
	var out []*Pkg
	for _, vs := range r.entries[key] {
		v, err := version.Parse(vs)
		if err != nil {
			continue
		}
		out = append(out, &Pkg{Category: key.Category, Package: key.Package, Version: v, RepoID: r.Name()})
	}
	return out, nil
}

var _ restrict.Package = pkgView{}
