package resolver

import (
	"fmt"
	"strings"

	"github.com/mgorny/pkgcore/atom"
)

// depNode is one element of a parsed dependency string: either a leaf
// atom, a USE-conditional group ("flag? ( ... )" / "!flag? ( ... )"),
// or an any-of group ("|| ( ... )").
type depNode struct {
	atom *atom.Atom // set for a leaf

	condFlag    string // set for a USE-conditional group
	condNegate  bool
	anyOf       bool // "|| ( ... )"
	children    []depNode
}

// parseDepSet tokenizes and parses a DEPEND/RDEPEND/PDEPEND/BDEPEND
// string under eapi, the recursive-descent shape PMS's dependency
// grammar describes: a flat list of atoms, USE-conditional groups, and
// any-of groups, freely nestable.
func parseDepSet(s, eapi string) ([]depNode, error) {
	toks := strings.Fields(s)
	nodes, rest, err := parseDepNodes(toks, eapi)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("resolver: unexpected trailing tokens in depset: %v", rest)
	}
	return nodes, nil
}

func parseDepNodes(toks []string, eapi string) (nodes []depNode, rest []string, err error) {
	for len(toks) > 0 {
		tok := toks[0]
		switch {
		case tok == ")":
			return nodes, toks, nil
		case tok == "||":
			if len(toks) < 2 || toks[1] != "(" {
				return nil, nil, fmt.Errorf("resolver: %q not followed by group", tok)
			}
			children, remaining, err := parseDepNodes(toks[2:], eapi)
			if err != nil {
				return nil, nil, err
			}
			remaining, err = expectClose(remaining)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, depNode{anyOf: true, children: children})
			toks = remaining
		case tok == "(":
			children, remaining, err := parseDepNodes(toks[1:], eapi)
			if err != nil {
				return nil, nil, err
			}
			remaining, err = expectClose(remaining)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, children...)
			toks = remaining
		case strings.HasSuffix(tok, "?"):
			flag := strings.TrimSuffix(tok, "?")
			negate := strings.HasPrefix(flag, "!")
			if negate {
				flag = flag[1:]
			}
			if len(toks) < 2 || toks[1] != "(" {
				return nil, nil, fmt.Errorf("resolver: conditional %q not followed by group", tok)
			}
			children, remaining, err := parseDepNodes(toks[2:], eapi)
			if err != nil {
				return nil, nil, err
			}
			remaining, err = expectClose(remaining)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, depNode{condFlag: flag, condNegate: negate, children: children})
			toks = remaining
		default:
			a, err := atom.Parse(tok, eapi)
			if err != nil {
				return nil, nil, fmt.Errorf("resolver: parsing atom %q: %w", tok, err)
			}
			nodes = append(nodes, depNode{atom: a})
			toks = toks[1:]
		}
	}
	return nodes, nil, nil
}

func expectClose(toks []string) ([]string, error) {
	if len(toks) == 0 || toks[0] != ")" {
		return nil, fmt.Errorf("resolver: unterminated group")
	}
	return toks[1:], nil
}

// flatDep is one entry of flattenDepSet's result. flattenDepSet reduces
// a parsed depset against an enabled-USE predicate,
// descending into any-of groups by returning every branch's atoms
// (the resolver tries each alternative in turn), matching
// use_reduce(..., flat=False)'s conditional collapsing but keeping
// || groups intact for the caller to choose among.
type flatDep struct {
	atom  *atom.Atom
	anyOf []*atom.Atom // set instead of atom when this entry is an || group
}

func flattenDepSet(nodes []depNode, useEnabled func(string) bool) []flatDep {
	var out []flatDep
	for _, n := range nodes {
		switch {
		case n.atom != nil:
			out = append(out, flatDep{atom: n.atom})
		case n.anyOf:
			var alts []*atom.Atom
			for _, fd := range flattenDepSet(n.children, useEnabled) {
				if fd.atom != nil {
					alts = append(alts, fd.atom)
				}
			}
			if len(alts) > 0 {
				out = append(out, flatDep{anyOf: alts})
			}
		default:
			on := useEnabled(n.condFlag)
			if n.condNegate {
				on = !on
			}
			if on {
				out = append(out, flattenDepSet(n.children, useEnabled)...)
			}
		}
	}
	return out
}
