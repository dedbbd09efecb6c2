package resolver

import (
	"fmt"
	"strings"

	"github.com/mgorny/pkgcore/atom"
	"github.com/mgorny/pkgcore/repo"
	"github.com/mgorny/pkgcore/vdb"
)

// AmbiguousQueryError reports that an unmerge token matched packages in
// more than one category, which pmerge's single-category rule treats
// as a user error rather than guessing.
type AmbiguousQueryError struct {
	Token      string
	Categories []string
}

func (e *AmbiguousQueryError) Error() string {
	return fmt.Sprintf("resolver: %q matches multiple categories: %v", e.Token, e.Categories)
}

// NoMatchesError reports that an unmerge token matched nothing
// installed.
type NoMatchesError struct {
	Token string
}

func (e *NoMatchesError) Error() string {
	return fmt.Sprintf("resolver: %q: no installed packages matched", e.Token)
}

// Unmerge operates outside the resolver proper: it matches token
// against the installed-package view, enforces that every match shares
// one category, and returns the matches as remove ops in reverse order:
// for an atom token that is the reverse of the order the VDB recorded
// them under that key (vdb.VDB.Match), for a bare name the reverse of
// the category/package/version sort vdb.VDB.All performs.
//
// A token may be a full atom ("cat/pkg", "=cat/pkg-1.0", ...) or a
// bare package name with no category, matching parse_atom's handling
// of an ambiguous token: a bare name is matched against every
// installed package's name, and AmbiguousQueryError fires if that
// matches more than one category, the same user error pmerge -C
// reports rather than guessing which category was meant.
func Unmerge(v *vdb.VDB, token string, eapi string) ([]Op, error) {
	var matches []*vdb.Pkg
	if strings.Contains(token, "/") {
		a, err := atom.Parse(token, eapi)
		if err != nil {
			return nil, fmt.Errorf("resolver: parsing unmerge token %q: %w", token, err)
		}
		matches = v.Match(a)
	} else {
		for _, p := range v.All() {
			if p.Package == token {
				matches = append(matches, p)
			}
		}
	}
	if len(matches) == 0 {
		return nil, &NoMatchesError{Token: token}
	}

	cats := map[string]bool{}
	for _, p := range matches {
		cats[p.Category] = true
	}
	if len(cats) > 1 {
		var list []string
		for c := range cats {
			list = append(list, c)
		}
		return nil, &AmbiguousQueryError{Token: token, Categories: list}
	}

	ops := make([]Op, len(matches))
	for i, p := range matches {
		ops[len(matches)-1-i] = Op{
			Kind: OpRemove,
			Node: Node{
				Key: NodeKey{Category: p.Category, Package: p.Package, Slot: p.Slot},
				Pkg: pkgFromInstalled(p),
			},
		}
	}
	return ops, nil
}

// pkgFromInstalled adapts a vdb.Pkg record to the repo.Pkg shape Op
// rendering expects, carrying only the identity fields an unmerge
// operation needs to print.
func pkgFromInstalled(p *vdb.Pkg) *repo.Pkg {
	return &repo.Pkg{
		Category: p.Category,
		Package:  p.Package,
		Version:  p.Version,
		Slot:     p.Slot,
		SubSlot:  p.SubSlot,
		RepoID:   p.Repo,
	}
}
