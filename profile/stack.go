package profile

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/mgorny/pkgcore/atom"
	"github.com/mgorny/pkgcore/toggle"
)

// DefaultIncrementals lists the make.defaults variables that accumulate
// across the profile stack instead of being overwritten outright, e.g.
// USE="${USE} foo" style layering.
var DefaultIncrementals = []string{
	"USE", "USE_EXPAND", "USE_EXPAND_HIDDEN", "FEATURES",
	"ACCEPT_KEYWORDS", "ACCEPT_LICENSE", "CONFIG_PROTECT",
	"CONFIG_PROTECT_MASK", "IUSE_IMPLICIT", "USE_EXPAND_IMPLICIT",
	"USE_EXPAND_UNPREFIXED", "ENV_UNSET",
}

// DefaultIncrementalsUnfinalized lists incrementals that accumulate as
// an ordered list rather than being deduplicated into a set.
var DefaultIncrementalsUnfinalized = []string{"ENV_UNSET"}

// OnDiskProfile is the flattened, collapsed view of a profile's parent
// DAG: the stack of ProfileNodes from the most general ancestor down to
// the named leaf profile, with every per-node attribute merged into one
// effective value.
type OnDiskProfile struct {
	node *ProfileNode

	incrementals            map[string]bool
	incrementalsUnfinalized map[string]bool
	loadBase                bool
	baseNode                *ProfileNode

	stack       lazy[[]*ProfileNode]
	forcedUse   lazy[*toggle.ChunkedDataDict]
	maskedUse   lazy[*toggle.ChunkedDataDict]
	pkgUse      lazy[*toggle.ChunkedDataDict]
	system      lazy[[]*atom.Atom]
	masks       lazy[[]*atom.Atom]
	defaultEnv  lazy[map[string]string]
	virtuals    lazy[map[string]*atom.Atom]
	bashrc      lazy[[]string]
	provides    lazy[map[CPKey][]string]
}

// CPKey is a bare category/package pair, used to key provided-package
// and virtual lookups once version information has been stripped.
type CPKey struct {
	Category, Package string
}

// Option configures NewOnDiskProfile.
type Option func(*OnDiskProfile)

// WithIncrementals overrides the default incremental variable set.
func WithIncrementals(names []string) Option {
	return func(p *OnDiskProfile) {
		p.incrementals = toSet(names)
	}
}

// WithoutBaseNode disables seeding the stack with a synthetic root node
// at basePath (load_profile_base=False in original_source).
func WithoutBaseNode() Option {
	return func(p *OnDiskProfile) { p.loadBase = false }
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// NewOnDiskProfile builds a profile whose leaf is node. Unless
// WithoutBaseNode is given, basePath is also loaded as a parentless
// base node that is stacked before every other node.
func NewOnDiskProfile(node *ProfileNode, basePath string, opts ...Option) (*OnDiskProfile, error) {
	p := &OnDiskProfile{
		node:                    node,
		incrementals:            toSet(DefaultIncrementals),
		incrementalsUnfinalized: toSet(DefaultIncrementalsUnfinalized),
		loadBase:                true,
	}
	for _, o := range opts {
		o(p)
	}
	if p.loadBase {
		base, err := NewProfileNode(node.fsys, basePath)
		if err != nil {
			return nil, err
		}
		base.noParentFile = true
		base.parentOverride = nil
		p.baseNode = base
	}
	return p, nil
}

// Stack returns the flattened parent-first node list: every ancestor
// before the node that names it as a parent, then the leaf node itself.
// A cycle in the parent DAG is reported as an error rather than looping
// forever, per spec.md §9's note on the cyclic-parent-DAG design hazard.
func (p *OnDiskProfile) Stack() ([]*ProfileNode, error) {
	return p.stack.get(func() ([]*ProfileNode, error) {
		var out []*ProfileNode
		visiting := map[string]bool{}
		var visit func(n *ProfileNode) error
		visit = func(n *ProfileNode) error {
			if visiting[n.path] {
				return fmt.Errorf("profile %s: cyclic parent reference", n.path)
			}
			visiting[n.path] = true
			parents, err := n.Parents()
			if err != nil {
				return err
			}
			for _, parent := range parents {
				if err := visit(parent); err != nil {
					return err
				}
			}
			visiting[n.path] = false
			out = append(out, n)
			return nil
		}
		if p.loadBase {
			if err := visit(p.baseNode); err != nil {
				return nil, err
			}
		}
		if err := visit(p.node); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (p *OnDiskProfile) collapseUse(get func(*ProfileNode) (*toggle.ChunkedDataDict, error)) (*toggle.ChunkedDataDict, error) {
	stack, err := p.Stack()
	if err != nil {
		return nil, err
	}
	var d toggle.ChunkedDataDict
	for _, n := range stack {
		nd, err := get(n)
		if err != nil {
			return nil, err
		}
		d.Merge(nd)
	}
	return &d, nil
}

// ForcedUse is the stack-wide collapse of every node's ForcedUse.
func (p *OnDiskProfile) ForcedUse() (*toggle.ChunkedDataDict, error) {
	return p.forcedUse.get(func() (*toggle.ChunkedDataDict, error) {
		return p.collapseUse((*ProfileNode).ForcedUse)
	})
}

// MaskedUse is the stack-wide collapse of every node's MaskedUse and
// PkgUseMask.
func (p *OnDiskProfile) MaskedUse() (*toggle.ChunkedDataDict, error) {
	return p.maskedUse.get(func() (*toggle.ChunkedDataDict, error) {
		stack, err := p.Stack()
		if err != nil {
			return nil, err
		}
		var d toggle.ChunkedDataDict
		for _, n := range stack {
			mu, err := n.MaskedUse()
			if err != nil {
				return nil, err
			}
			d.Merge(mu)
			pum, err := n.PkgUseMask()
			if err != nil {
				return nil, err
			}
			d.Merge(pum)
		}
		return &d, nil
	})
}

// PkgUse is the stack-wide collapse of every node's PkgUse and
// PkgUseForce.
func (p *OnDiskProfile) PkgUse() (*toggle.ChunkedDataDict, error) {
	return p.pkgUse.get(func() (*toggle.ChunkedDataDict, error) {
		stack, err := p.Stack()
		if err != nil {
			return nil, err
		}
		var d toggle.ChunkedDataDict
		for _, n := range stack {
			pu, err := n.PkgUse()
			if err != nil {
				return nil, err
			}
			d.Merge(pu)
			puf, err := n.PkgUseForce()
			if err != nil {
				return nil, err
			}
			d.Merge(puf)
		}
		return &d, nil
	})
}

// atomSetKey renders an atom to a string usable as a dedup key in the
// generic collapse routines below.
func atomSetKey(a *atom.Atom) string { return a.String() }

func collapseAtoms(stack []*ProfileNode, get func(*ProfileNode) (AtomSet, error)) ([]*atom.Atom, error) {
	present := map[string]*atom.Atom{}
	for _, n := range stack {
		set, err := get(n)
		if err != nil {
			return nil, err
		}
		for _, a := range set.Neg {
			delete(present, atomSetKey(a))
		}
		for _, a := range set.Pos {
			present[atomSetKey(a)] = a
		}
	}
	out := make([]*atom.Atom, 0, len(present))
	for _, a := range present {
		out = append(out, a)
	}
	return out, nil
}

// System is the stack-wide collapse of every node's system-set atoms.
func (p *OnDiskProfile) System() ([]*atom.Atom, error) {
	return p.system.get(func() ([]*atom.Atom, error) {
		stack, err := p.Stack()
		if err != nil {
			return nil, err
		}
		return collapseAtoms(stack, func(n *ProfileNode) (AtomSet, error) {
			sys, _, err := n.Packages()
			return sys, err
		})
	})
}

// Masks is the stack-wide collapse of every node's package.mask entries
// together with its "packages" visibility entries (both hide a package
// from being installed; original_source's _collapse_masks unions the
// two for the same reason).
func (p *OnDiskProfile) Masks() ([]*atom.Atom, error) {
	return p.masks.get(func() ([]*atom.Atom, error) {
		stack, err := p.Stack()
		if err != nil {
			return nil, err
		}
		masks, err := collapseAtoms(stack, func(n *ProfileNode) (AtomSet, error) { return n.Masks() })
		if err != nil {
			return nil, err
		}
		vis, err := collapseAtoms(stack, func(n *ProfileNode) (AtomSet, error) {
			_, v, err := n.Packages()
			return v, err
		})
		if err != nil {
			return nil, err
		}
		return append(masks, vis...), nil
	})
}

// DefaultEnv is the stack-wide collapse of every node's make.defaults,
// with incremental variables accumulated (and, unless listed in
// IncrementalsUnfinalized, deduplicated into a set) instead of
// overwritten.
func (p *OnDiskProfile) DefaultEnv() (map[string]string, error) {
	return p.defaultEnv.get(func() (map[string]string, error) {
		stack, err := p.Stack()
		if err != nil {
			return nil, err
		}
		accum := map[string][]string{}
		plain := map[string]string{}
		for _, n := range stack {
			env, err := n.DefaultEnv()
			if err != nil {
				return nil, err
			}
			for k, v := range env {
				if p.incrementals[k] {
					accum[k] = append(accum[k], strings.Fields(v)...)
				} else {
					plain[k] = v
					delete(accum, k)
				}
			}
		}
		out := make(map[string]string, len(plain)+len(accum))
		for k, v := range plain {
			out[k] = v
		}
		for k, toks := range accum {
			if len(toks) == 0 {
				continue
			}
			if p.incrementalsUnfinalized[k] {
				out[k] = strings.Join(toks, " ")
				continue
			}
			set := incrementalExpansion(toks)
			if len(set) > 0 {
				out[k] = strings.Join(set, " ")
			}
		}
		return out, nil
	})
}

// incrementalExpansion applies "-flag"/"-*" removal semantics over a
// token stream, the generic rule make.defaults incrementals (USE,
// ACCEPT_KEYWORDS, ...) and toggle.Render share.
func incrementalExpansion(tokens []string) []string {
	set := map[string]bool{}
	var order []string
	for _, tok := range tokens {
		if tok == "-*" {
			set = map[string]bool{}
			order = nil
			continue
		}
		if strings.HasPrefix(tok, "-") {
			delete(set, tok[1:])
			continue
		}
		if !set[tok] {
			order = append(order, tok)
		}
		set[tok] = true
	}
	out := order[:0:0]
	for _, t := range order {
		if set[t] {
			out = append(out, t)
		}
	}
	return out
}

// Arch returns DefaultEnv()["ARCH"].
func (p *OnDiskProfile) Arch() (string, error) {
	env, err := p.DefaultEnv()
	if err != nil {
		return "", err
	}
	return env["ARCH"], nil
}

// UseExpand returns the USE_EXPAND variable names, from DefaultEnv.
func (p *OnDiskProfile) UseExpand() ([]string, error) {
	env, err := p.DefaultEnv()
	if err != nil {
		return nil, err
	}
	return strings.Fields(env["USE_EXPAND"]), nil
}

// Virtuals is the stack-wide collapse of every node's virtuals file,
// child overriding parent.
func (p *OnDiskProfile) Virtuals() (map[string]*atom.Atom, error) {
	return p.virtuals.get(func() (map[string]*atom.Atom, error) {
		stack, err := p.Stack()
		if err != nil {
			return nil, err
		}
		d := map[string]*atom.Atom{}
		for _, n := range stack {
			v, err := n.Virtuals()
			if err != nil {
				return nil, err
			}
			for k, a := range v {
				d[k] = a
			}
		}
		return d, nil
	})
}

// ProvidesRepo is the stack-wide collapse of every node's
// package.provided entries, grouped by category/package into a version
// list — the shape repo.ProvidesRepo consumes to build an in-memory
// "this is already satisfied" repository.
func (p *OnDiskProfile) ProvidesRepo() (map[CPKey][]string, error) {
	return p.provides.get(func() (map[CPKey][]string, error) {
		stack, err := p.Stack()
		if err != nil {
			return nil, err
		}
		present := map[string]CPV{}
		for _, n := range stack {
			neg, pos, err := n.PkgProvided()
			if err != nil {
				return nil, err
			}
			for _, c := range neg {
				delete(present, c.String())
			}
			for _, c := range pos {
				present[c.String()] = c
			}
		}
		out := map[CPKey][]string{}
		for _, c := range present {
			k := CPKey{Category: c.Category, Package: c.Package}
			out[k] = append(out[k], c.Version)
		}
		return out, nil
	})
}

// Bashrc returns every stack node's profile.bashrc path, in stack
// order, skipping nodes without one.
func (p *OnDiskProfile) Bashrc() ([]string, error) {
	return p.bashrc.get(func() ([]string, error) {
		stack, err := p.Stack()
		if err != nil {
			return nil, err
		}
		var out []string
		for _, n := range stack {
			b, err := n.Bashrc()
			if err != nil {
				return nil, err
			}
			if b != "" {
				out = append(out, b)
			}
		}
		return out, nil
	})
}

// Deprecated reports the leaf profile's own deprecation marker, not the
// whole stack's — matching original_source's OnDiskProfile.deprecated
// property, which reads only self.node.deprecated.
func (p *OnDiskProfile) Deprecated() (*Deprecation, error) {
	return p.node.Deprecated()
}

// DeprecatedChain walks the full stack and returns every node (in stack
// order) that carries its own deprecation marker. Unlike Deprecated,
// which matches the original's leaf-only semantics exactly, this is a
// supplemented feature: pkgcore's higher-level tooling warns about any
// deprecated profile in the inheritance chain, not just the leaf, and
// this method gives callers that full chain to warn about.
func (p *OnDiskProfile) DeprecatedChain() ([]struct {
	Node *ProfileNode
	Dep  *Deprecation
}, error) {
	stack, err := p.Stack()
	if err != nil {
		return nil, err
	}
	var out []struct {
		Node *ProfileNode
		Dep  *Deprecation
	}
	for _, n := range stack {
		d, err := n.Deprecated()
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, struct {
				Node *ProfileNode
				Dep  *Deprecation
			}{n, d})
		}
	}
	return out, nil
}

// NewUserProfileNode builds a ProfileNode whose parent is fixed to
// parent rather than read from a "parent" file — the node
// /etc/portage/profile uses to layer local overrides onto the system
// profile.
func NewUserProfileNode(fsys fs.FS, path string, parent *ProfileNode) (*ProfileNode, error) {
	n, err := NewProfileNode(fsys, path)
	if err != nil {
		return nil, err
	}
	n.noParentFile = true
	if parent != nil {
		n.parentOverride = []*ProfileNode{parent}
	}
	return n, nil
}

// NewUserProfile builds the OnDiskProfile for a user profile: a node at
// userPath layered directly on top of the already-collapsed system
// profile's leaf node, matching original_source's UserProfile/
// UserProfileNode pairing.
func NewUserProfile(fsys fs.FS, userPath string, systemProfile *OnDiskProfile, opts ...Option) (*OnDiskProfile, error) {
	userNode, err := NewUserProfileNode(fsys, userPath, systemProfile.node)
	if err != nil {
		return nil, err
	}
	p := &OnDiskProfile{
		node:                    userNode,
		incrementals:            systemProfile.incrementals,
		incrementalsUnfinalized: systemProfile.incrementalsUnfinalized,
		loadBase:                false,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}
