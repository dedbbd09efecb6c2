package resolver

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mgorny/pkgcore/atom"
	"github.com/mgorny/pkgcore/repo"
	"github.com/mgorny/pkgcore/updates"
	"github.com/mgorny/pkgcore/vdb"
)

// Strategy selects which plan-class a Resolver follows when more than
// one visible candidate satisfies a constraint.
type Strategy int

const (
	// MinInstall prefers an already-installed version that still
	// satisfies every constraint.
	MinInstall Strategy = iota
	// Upgrade prefers the highest acceptable version per (key, slot).
	Upgrade
	// EmptyTree ignores the installed view when choosing a version, but
	// still emits replace ops relative to it.
	EmptyTree
)

func (s Strategy) String() string {
	switch s {
	case Upgrade:
		return "upgrade"
	case EmptyTree:
		return "empty_tree"
	default:
		return "min_install"
	}
}

// Flags mirrors pmerge's resolve-affecting options.
type Flags struct {
	Deep             bool
	Upgrade          bool
	NoDeps           bool
	DropCycles       bool
	ForceReplacement bool
	EmptyTree        bool
	IgnoreFailures   bool
}

// useStater is implemented by repo.ConfiguredTree; a Resolver uses it
// when available to compute a candidate's profile-collapsed USE state,
// falling back to repo.Pkg.DefaultUse otherwise.
type useStater interface {
	UseState(*repo.Pkg) (map[string]bool, error)
}

// Resolver builds a Graph from a set of target atoms against one or
// more repositories (highest priority first) and an installed-package
// view.
type Resolver struct {
	Installed *vdb.VDB
	Trees     []repo.Repository
	Strategy  Strategy
	Flags     Flags

	// AcceptKeywords lists the keywords a package is visible under
	// (e.g. "amd64", "~amd64"); empty disables keyword filtering.
	AcceptKeywords []string

	// SupportedEAPIs lists EAPI values this resolver can evaluate. Empty
	// disables EAPI filtering.
	SupportedEAPIs []string

	// Updates, when set, is consulted before every atom match: the atom
	// is walked forward through any move/slotmove chain it names so it
	// matches a tree's current package identity, and installed packages
	// recorded under a pre-move identity are still recognized as
	// satisfying it (§8's move-aware resolution).
	Updates []updates.Update

	eapi string // EAPI used to parse dependency atoms; set via NewResolver
}

// NewResolver returns a Resolver that parses dependency atoms under
// eapi.
func NewResolver(eapi string, installed *vdb.VDB, trees []repo.Repository) *Resolver {
	return &Resolver{Installed: installed, Trees: trees, eapi: eapi}
}

// UnsatisfiedError reports that no visible candidate could satisfy an
// atom at all.
type UnsatisfiedError struct {
	Atom    string
	Reasons []string
}

func (e *UnsatisfiedError) Error() string {
	return fmt.Sprintf("resolver: unsatisfied %s: %v", e.Atom, e.Reasons)
}

// ConflictError reports that two requirements on the same (key, slot)
// could not be reconciled.
type ConflictError struct {
	Key        NodeKey
	Candidates []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resolver: conflict at %+v among %v", e.Key, e.Candidates)
}

// CycleError reports an unbreakable dependency cycle.
type CycleError struct {
	Nodes []NodeKey
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("resolver: unbreakable cycle: %v", e.Nodes)
}

// MaskedError reports that the only matching candidates were masked.
type MaskedError struct {
	Atom   string
	Masker string
}

func (e *MaskedError) Error() string {
	return fmt.Sprintf("resolver: %s masked by %s", e.Atom, e.Masker)
}

// UnsupportedEAPIError reports a candidate using an EAPI this resolver
// cannot evaluate.
type UnsupportedEAPIError struct {
	Pkg  string
	EAPI string
}

func (e *UnsupportedEAPIError) Error() string {
	return fmt.Sprintf("resolver: %s uses unsupported EAPI %q", e.Pkg, e.EAPI)
}

type resolveState struct {
	g        *Graph
	chosen   map[NodeKey]NodeID
	visiting map[NodeKey]bool // for build-time cycle detection during recursion
}

// Resolve builds a Graph satisfying targets. It returns the first
// structured failure encountered unless Flags.IgnoreFailures is set.
// With IgnoreFailures, a failing target is skipped (it is not added to
// g.Targets), a cycle error from cycle breaking is ignored, and the
// returned error is nil: the skipped targets' errors are not reported.
func (r *Resolver) Resolve(ctx context.Context, targets []*atom.Atom) (*Graph, error) {
	st := &resolveState{
		g:        &Graph{ID: uuid.New()},
		chosen:   map[NodeKey]NodeID{},
		visiting: map[NodeKey]bool{},
	}

	var errs []error
	for _, a := range targets {
		id, err := r.resolveAtom(ctx, st, a, RuntimeDep)
		if err != nil {
			if r.Flags.IgnoreFailures {
				errs = append(errs, err)
				continue
			}
			return nil, err
		}
		st.g.Targets = append(st.g.Targets, id)
	}

	if err := r.breakCycles(st.g); err != nil {
		if !r.Flags.IgnoreFailures {
			return nil, err
		}
	}

	if len(errs) > 0 && !r.Flags.IgnoreFailures {
		return st.g, errs[0]
	}
	return st.g, nil
}

// candidate is one visible match for an atom, paired with whether it
// is already installed under the same NodeKey.
type candidate struct {
	pkg       *repo.Pkg
	tree      repo.Repository
	treeIndex int
	installed *repo.Pkg
}

func (r *Resolver) nodeKey(p *repo.Pkg) NodeKey {
	return NodeKey{Category: p.Category, Package: p.Package, Slot: p.Slot}
}

func (r *Resolver) eapiSupported(eapi string) bool {
	if len(r.SupportedEAPIs) == 0 {
		return true
	}
	for _, e := range r.SupportedEAPIs {
		if e == eapi {
			return true
		}
	}
	return false
}

func (r *Resolver) keywordVisible(pkg *repo.Pkg) bool {
	if len(r.AcceptKeywords) == 0 {
		return true
	}
	for _, k := range pkg.Keywords {
		for _, want := range r.AcceptKeywords {
			if k == want {
				return true
			}
		}
	}
	return false
}

// gatherCandidates collects every candidate visible to atom a across
// r.Trees, in tree-priority order, applying keyword and EAPI
// visibility. a is assumed already canonicalized through r.Updates by
// the caller.
func (r *Resolver) gatherCandidates(ctx context.Context, a *atom.Atom) ([]candidate, error) {
	var out []candidate
	installedByKey := map[NodeKey]*repo.Pkg{}
	for _, ip := range r.Installed.MatchWithUpdates(a, r.Updates) {
		cat, pkg, slot := vdb.ResolveIdentity(ip, r.Updates)
		k := NodeKey{Category: cat, Package: pkg, Slot: slot}
		installedByKey[k] = &repo.Pkg{Category: cat, Package: pkg, Version: ip.Version, Slot: slot, SubSlot: ip.SubSlot}
	}

	for i, t := range r.Trees {
		pkgs, err := t.Match(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("resolver: matching %s against %s: %w", a, t.Name(), err)
		}
		for _, p := range pkgs {
			if !r.eapiSupported(p.EAPI) {
				return nil, &UnsupportedEAPIError{Pkg: p.String(), EAPI: p.EAPI}
			}
			if !r.keywordVisible(p) {
				continue
			}
			k := r.nodeKey(p)
			out = append(out, candidate{pkg: p, tree: t, treeIndex: i, installed: installedByKey[k]})
		}
	}
	return out, nil
}

// order sorts candidates according to r.Strategy: min_install prefers
// already-installed versions, upgrade prefers the highest version,
// both break ties by tree priority then by version.
func (r *Resolver) order(cands []candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if r.Strategy == MinInstall {
			ai := a.installed != nil && a.installed.Version.Compare(a.pkg.Version) == 0
			bi := b.installed != nil && b.installed.Version.Compare(b.pkg.Version) == 0
			if ai != bi {
				return ai
			}
		}
		if r.Strategy == Upgrade {
			if c := a.pkg.Version.Compare(b.pkg.Version); c != 0 {
				return c > 0
			}
		}
		if a.treeIndex != b.treeIndex {
			return a.treeIndex < b.treeIndex
		}
		return b.pkg.Version.Less(a.pkg.Version)
	})
}

func useStateFor(tree repo.Repository, pkg *repo.Pkg) (map[string]bool, error) {
	if us, ok := tree.(useStater); ok {
		return us.UseState(pkg)
	}
	return pkg.DefaultUse(), nil
}

// resolveAtom selects a candidate for a, recording it (and its
// dependency closure) in st.g, and returns the NodeID chosen. If a
// node for the same NodeKey already exists, it attempts to reuse it
// (tightening) rather than adding a second node.
func (r *Resolver) resolveAtom(ctx context.Context, st *resolveState, a *atom.Atom, kind DepKind) (NodeID, error) {
	a = updates.ApplyToAtom(a, r.Updates)
	cands, err := r.gatherCandidates(ctx, a)
	if err != nil {
		return 0, err
	}
	if len(cands) == 0 {
		return 0, &UnsatisfiedError{Atom: a.String(), Reasons: []string{"no visible candidate matched"}}
	}
	r.order(cands)

	key := r.nodeKey(cands[0].pkg)
	if existingID, ok := st.chosen[key]; ok {
		existing := &st.g.Nodes[existingID]
		if a.Match(existing.Pkg.View()) {
			return existingID, nil
		}
		// Tighten: look for a candidate matching both the new atom and
		// whatever already uses this key.
		for _, c := range cands {
			if a.Match(c.pkg.View()) && c.pkg.Version.Compare(existing.Pkg.Version) == 0 {
				return existingID, nil
			}
		}
		return 0, &ConflictError{Key: key, Candidates: []string{existing.Pkg.String(), cands[0].pkg.String()}}
	}

	return r.selectAndExpand(ctx, st, cands, key)
}

// selectAndExpand tries each candidate in order until one's
// dependency closure can be satisfied, matching §4.8 step 3.
func (r *Resolver) selectAndExpand(ctx context.Context, st *resolveState, cands []candidate, key NodeKey) (NodeID, error) {
	var lastErr error
	for _, c := range cands {
		if st.visiting[key] {
			// Already mid-expansion for this key on the current recursion
			// path: a direct cycle. No node is added here; resolveAtom
			// reuses the node in st.chosen, and cycle breaking classifies
			// the edge that closes the cycle.
			continue
		}
		use, err := useStateFor(c.tree, c.pkg)
		if err != nil {
			lastErr = err
			continue
		}
		id := st.g.AddNode(Node{Key: key, Pkg: c.pkg, Installed: c.installed, Use: use})
		st.chosen[key] = id
		st.visiting[key] = true

		if !r.Flags.NoDeps {
			if err := r.expand(ctx, st, id, c.pkg, use); err != nil {
				// Rollback before trying the next candidate: drop this node,
				// every node its expansion appended after it, the st.chosen
				// entries pointing at them and every edge touching them.
				lastErr = err
				st.visiting[key] = false
				for k, v := range st.chosen {
					if v >= id {
						delete(st.chosen, k)
					}
				}
				st.g.Nodes = st.g.Nodes[:id]
				kept := st.g.Edges[:0]
				for _, e := range st.g.Edges {
					if e.From < id && e.To < id {
						kept = append(kept, e)
					}
				}
				st.g.Edges = kept
				continue
			}
		}
		st.visiting[key] = false
		return id, nil
	}
	if lastErr != nil {
		return 0, lastErr
	}
	return 0, &UnsatisfiedError{Atom: key.Category + "/" + key.Package, Reasons: []string{"every candidate's dependency closure failed"}}
}

func (r *Resolver) expand(ctx context.Context, st *resolveState, id NodeID, pkg *repo.Pkg, use map[string]bool) error {
	useEnabled := func(f string) bool { return use[f] }

	sets := []struct {
		raw  string
		kind DepKind
	}{
		{pkg.Depend, BuildDep},
		{pkg.BDepend, HostBuildDep},
		{pkg.RDepend, RuntimeDep},
		{pkg.PDepend, PostDep},
	}
	for _, s := range sets {
		if s.raw == "" {
			continue
		}
		nodes, err := parseDepSet(s.raw, pkg.EAPI)
		if err != nil {
			return fmt.Errorf("resolver: parsing %s of %s: %w", s.kind, pkg.String(), err)
		}
		for _, fd := range flattenDepSet(nodes, useEnabled) {
			if fd.atom != nil {
				if fd.atom.Blocker {
					continue // blockers are a visibility constraint, not an edge; not modeled further here
				}
				toID, err := r.resolveAtom(ctx, st, fd.atom, s.kind)
				if err != nil {
					return err
				}
				if err := st.g.AddEdge(id, toID, fd.atom.String(), s.kind); err != nil {
					return err
				}
				continue
			}
			// any-of: try alternatives until one resolves.
			var any error
			satisfied := false
			for _, alt := range fd.anyOf {
				toID, err := r.resolveAtom(ctx, st, alt, s.kind)
				if err != nil {
					any = err
					continue
				}
				if err := st.g.AddEdge(id, toID, alt.String(), s.kind); err != nil {
					return err
				}
				satisfied = true
				break
			}
			if !satisfied {
				if any == nil {
					any = fmt.Errorf("resolver: empty any-of group")
				}
				return any
			}
		}
	}
	return nil
}
