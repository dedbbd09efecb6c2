/*
Package restrict implements the boolean restriction algebra used to
decide whether a package is visible, masked, or matched by an atom.

Per spec.md §9's redesign note, this uses a tagged sum type (a small
closed set of concrete Restriction implementations) rather than the
ad-hoc class hierarchy with runtime type tags that the Python original
uses. The shape of Restriction — pure function of a Package, no hidden
state, an explicit Finalize step that freezes structural sharing — keeps
the contract spec.md §4.1 describes.
*/
package restrict

import (
	"fmt"
	"strings"

	"github.com/mgorny/pkgcore/version"
)

// Package is anything a Restriction can be evaluated against. repo.Pkg
// implements this; so, for test purposes, does any small stand-in
// struct.
type Package interface {
	Category() string
	PackageName() string
	PkgVersion() version.Version
	Slot() string
	SubSlot() string
	RepoID() string
	UseEnabled(flag string) bool
	Keywords() []string
}

// Restriction is a boolean predicate over a Package.
//
// Match must be a pure function of pkg: evaluating the same Restriction
// against the same Package twice must give the same answer, and Match
// must never panic on a Package missing some attribute it looks at —
// per spec.md §4.1 that case returns false.
type Restriction interface {
	// Match reports whether pkg satisfies the restriction.
	Match(pkg Package) bool

	// Intersects conservatively reports whether there could exist a
	// package matched by both r and other. It may return true when the
	// two restrictions are in fact disjoint (a false positive) but must
	// never return false when they do intersect (no false negatives) —
	// see spec.md §8 property 4.
	Intersects(other Restriction) bool

	String() string
}

// AlwaysTrue matches every package.
type AlwaysTrue struct{}

func (AlwaysTrue) Match(Package) bool                { return true }
func (AlwaysTrue) Intersects(Restriction) bool       { return true }
func (AlwaysTrue) String() string                    { return "always-true" }

// AlwaysFalse matches no package.
type AlwaysFalse struct{}

func (AlwaysFalse) Match(Package) bool          { return false }
func (AlwaysFalse) Intersects(Restriction) bool { return false }
func (AlwaysFalse) String() string              { return "always-false" }

// And matches when every child matches. Children are evaluated in order
// and evaluation short-circuits on the first false, which matters for
// deterministic error reporting when a child logs on a missing
// attribute.
type And struct {
	Children   []Restriction
	finalized  bool
}

// NewAnd constructs an unfinalized And.
func NewAnd(children ...Restriction) *And { return &And{Children: children} }

// Finalize freezes the node, marking it immutable. Finalizing an
// already-finalized node is a programmer error (fatal), matching
// spec.md §4.1's "duplicate finalize markers" failure mode.
func (a *And) Finalize() *And {
	if a.finalized {
		panic("restrict: And already finalized")
	}
	a.finalized = true
	return a
}

func (a *And) Match(pkg Package) bool {
	for _, c := range a.Children {
		if !c.Match(pkg) {
			return false
		}
	}
	return true
}

func (a *And) Intersects(other Restriction) bool {
	for _, c := range a.Children {
		if !c.Intersects(other) {
			return false
		}
	}
	return true
}

func (a *And) String() string { return joinChildren("AND", a.Children) }

// Or matches when at least one child matches.
type Or struct {
	Children  []Restriction
	finalized bool
}

func NewOr(children ...Restriction) *Or { return &Or{Children: children} }

func (o *Or) Finalize() *Or {
	if o.finalized {
		panic("restrict: Or already finalized")
	}
	o.finalized = true
	return o
}

func (o *Or) Match(pkg Package) bool {
	for _, c := range o.Children {
		if c.Match(pkg) {
			return true
		}
	}
	return false
}

func (o *Or) Intersects(other Restriction) bool {
	for _, c := range o.Children {
		if c.Intersects(other) {
			return true
		}
	}
	return false
}

func (o *Or) String() string { return joinChildren("OR", o.Children) }

func joinChildren(op string, children []Restriction) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}

// Not inverts a single child.
//
// Not does not commute with De Morgan's laws automatically: nothing in
// this package pushes a Not down through an And/Or.
type Not struct {
	Child Restriction
}

func (n Not) Match(pkg Package) bool { return !n.Child.Match(pkg) }

// Intersects for Not is necessarily conservative: without enumerating
// the package space we cannot tell whether "not A" and other overlap
// in the general case, so it always reports true rather than risk the
// false negative the Intersects contract forbids.
func (n Not) Intersects(other Restriction) bool {
	return true
}

func (n Not) String() string { return "NOT(" + n.Child.String() + ")" }

// AtomMatcher is the part of atom.Atom's method set a Restriction needs.
// It is declared here, rather than importing the atom package directly,
// so that atom (which needs restrict.Package to implement Match) is not
// forced into an import cycle with restrict.
type AtomMatcher interface {
	Match(pkg Package) bool
	String() string
}

// AtomRestriction adapts an atom.Atom (or anything satisfying
// AtomMatcher) into a Restriction, the way profile package.use/
// package.mask entries key a ChunkedDataDict chunk by the atom that
// introduced it.
type AtomRestriction struct {
	AtomMatcher
}

func (a AtomRestriction) Intersects(other Restriction) bool { return true }

// StringMatch matches the value of some string-valued package attribute.
type StringMatch interface {
	MatchString(s string) bool
	String() string
}

// StrExactMatch matches an attribute for exact string equality.
type StrExactMatch struct {
	Value string
}

func (m StrExactMatch) MatchString(s string) bool { return s == m.Value }
func (m StrExactMatch) String() string            { return "=" + m.Value }

// StrGlobMatch matches a "prefix*" or "*suffix" glob, the only two glob
// shapes atoms and package.mask entries use.
type StrGlobMatch struct {
	Prefix, Suffix string // exactly one is set
}

func (m StrGlobMatch) MatchString(s string) bool {
	if m.Prefix != "" {
		return strings.HasPrefix(s, m.Prefix)
	}
	return strings.HasSuffix(s, m.Suffix)
}

func (m StrGlobMatch) String() string {
	if m.Prefix != "" {
		return m.Prefix + "*"
	}
	return "*" + m.Suffix
}

// ContainmentMatch matches when an attribute (read as a list, e.g.
// KEYWORDS) contains one (or, if MatchAll, every one) of Values.
type ContainmentMatch struct {
	Values   []string
	MatchAll bool
}

func (m ContainmentMatch) matchList(have []string) bool {
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	if m.MatchAll {
		for _, v := range m.Values {
			if !set[v] {
				return false
			}
		}
		return len(m.Values) > 0
	}
	for _, v := range m.Values {
		if set[v] {
			return true
		}
	}
	return false
}

// MatchString applies the match to a single value, read as a
// one-element list.
func (m ContainmentMatch) MatchString(s string) bool { return m.matchList([]string{s}) }

func (m ContainmentMatch) String() string {
	return "contains(" + strings.Join(m.Values, ",") + ")"
}

// PackageAttr identifies which Package attribute a PackageRestriction
// reads.
type PackageAttr int

const (
	AttrCategory PackageAttr = iota
	AttrPackage
	AttrSlot
	AttrSubSlot
	AttrRepo
	AttrKeywords
)

// PackageRestriction matches a single string-valued (or string-list, for
// AttrKeywords) Package attribute against a StringMatch.
type PackageRestriction struct {
	Attr   PackageAttr
	Match_ StringMatch // named with trailing underscore to avoid clashing with the Match method
	Negate bool
}

func (p PackageRestriction) attrValue(pkg Package) (single string, list []string, isList bool) {
	switch p.Attr {
	case AttrCategory:
		return pkg.Category(), nil, false
	case AttrPackage:
		return pkg.PackageName(), nil, false
	case AttrSlot:
		return pkg.Slot(), nil, false
	case AttrSubSlot:
		return pkg.SubSlot(), nil, false
	case AttrRepo:
		return pkg.RepoID(), nil, false
	case AttrKeywords:
		return "", pkg.Keywords(), true
	}
	return "", nil, false
}

func (p PackageRestriction) Match(pkg Package) bool {
	single, list, isList := p.attrValue(pkg)
	var got bool
	if isList {
		if cm, ok := p.Match_.(ContainmentMatch); ok {
			got = cm.matchList(list)
		} else {
			// A non-containment matcher applied to a list attribute
			// matches if any element matches (e.g. StrExactMatch
			// against KEYWORDS for a single keyword).
			for _, v := range list {
				if p.Match_.MatchString(v) {
					got = true
					break
				}
			}
		}
	} else {
		got = p.Match_.MatchString(single)
	}
	if p.Negate {
		return !got
	}
	return got
}

func (p PackageRestriction) Intersects(other Restriction) bool {
	op, ok := other.(PackageRestriction)
	if !ok {
		return true
	}
	if op.Attr != p.Attr {
		// Different attributes: always satisfiable together unless one
		// side is an impossible restriction, which we don't attempt to
		// prove here (conservative true, no false negative).
		return true
	}
	// Same attribute: only claim disjointness for the common case of
	// two exact matches on different literal values.
	pe, pok := p.Match_.(StrExactMatch)
	oe, ook := op.Match_.(StrExactMatch)
	if pok && ook && !p.Negate && !op.Negate {
		return pe.Value == oe.Value
	}
	return true
}

func (p PackageRestriction) String() string {
	s := fmt.Sprintf("attr[%d]%s", p.Attr, p.Match_)
	if p.Negate {
		return "!" + s
	}
	return s
}

// VersionOp is the comparison operator of a VersionMatch.
type VersionOp int

const (
	OpEQ VersionOp = iota
	OpGE
	OpGT
	OpLE
	OpLT
	// OpEQStar is "=*", a version-glob prefix match ignoring revision.
	OpEQStar
	// OpApprox is "~", matching any revision of exactly this version.
	OpApprox
)

// VersionMatch matches a Package's version against Version using Op.
type VersionMatch struct {
	Op      VersionOp
	Version version.Version
	Negate  bool
}

func (vm VersionMatch) Match(pkg Package) bool {
	got := vm.matches(pkg.PkgVersion())
	if vm.Negate {
		return !got
	}
	return got
}

func (vm VersionMatch) matches(v version.Version) bool {
	switch vm.Op {
	case OpEQ:
		return v.Compare(vm.Version) == 0
	case OpGE:
		return v.Compare(vm.Version) >= 0
	case OpGT:
		return v.Compare(vm.Version) > 0
	case OpLE:
		return v.Compare(vm.Version) <= 0
	case OpLT:
		return v.Compare(vm.Version) < 0
	case OpApprox:
		// ~ ignores revision: compare everything but the -rN suffix.
		return v.Compare(vm.Version) == 0 || versionEqualIgnoringRevision(v, vm.Version)
	case OpEQStar:
		return strings.HasPrefix(v.String(), versionGlobPrefix(vm.Version))
	}
	return false
}

func versionEqualIgnoringRevision(a, b version.Version) bool {
	// Re-parse without the revision by stripping any "-rN" suffix
	// textually; Compare already treats missing revision as r0, so this
	// reduces to comparing a's base against b's base.
	ab := stripRevision(a.String())
	bb := stripRevision(b.String())
	return ab == bb
}

func stripRevision(s string) string {
	if i := strings.LastIndex(s, "-r"); i >= 0 {
		if isAllDigits(s[i+2:]) {
			return s[:i]
		}
	}
	return s
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func versionGlobPrefix(v version.Version) string {
	return stripRevision(v.String())
}

func (vm VersionMatch) Intersects(other Restriction) bool {
	ov, ok := other.(VersionMatch)
	if !ok {
		return true
	}
	if vm.Op == OpEQ && ov.Op == OpEQ && !vm.Negate && !ov.Negate {
		return vm.Version.Compare(ov.Version) == 0
	}
	return true
}

func (vm VersionMatch) String() string {
	ops := map[VersionOp]string{OpEQ: "=", OpGE: ">=", OpGT: ">", OpLE: "<=", OpLT: "<", OpEQStar: "=*", OpApprox: "~"}
	s := ops[vm.Op] + vm.Version.String()
	if vm.Negate {
		return "!" + s
	}
	return s
}
