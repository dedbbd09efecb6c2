/*
Package toggle implements ChunkedDataDict: an ordered accumulation of
USE-flag (or package-list) toggles contributed by a stack of profile
nodes, collapsed on demand into the flags that apply to one package.

Each profile node in a stack (see the profile package) contributes one
chunk of toggle data — parsed from its own use.mask, package.use, etc.
Chunks are kept in parent-to-child order and never eagerly merged;
collapsing happens per query, which is what lets a child profile's
"-flag" override a parent's "flag" without the two nodes knowing about
each other. This mirrors original_source's ChunkedDataDict and the
"accumulate now, render later" discipline resolve.match.go uses for
sorting/matching dependency lists.
*/
package toggle

import (
	"strings"

	"github.com/mgorny/pkgcore/restrict"
)

// Chunk is one contribution to a ChunkedDataDict: a restriction
// selecting which packages it applies to (nil means every package) and
// an ordered list of tokens, each either a bare flag name (enable) or a
// "-flag" (disable). The token "-*" resets every flag seen so far for
// matching packages back to unset, the same way profile package.use
// files use it to clear an inherited default before re-adding flags.
type Chunk struct {
	Restriction restrict.Restriction // nil == applies to every package
	Tokens      []string
}

// ChunkedDataDict is an ordered list of Chunks, built up by appending
// one chunk per profile node as the stack is walked parent-first.
type ChunkedDataDict struct {
	chunks []Chunk
}

// Add appends a new chunk. Profiles must be added in parent-to-child
// order so later Adds correctly override earlier ones.
func (d *ChunkedDataDict) Add(restriction restrict.Restriction, tokens []string) {
	d.chunks = append(d.chunks, Chunk{Restriction: restriction, Tokens: tokens})
}

// Empty reports whether no chunks have been added.
func (d *ChunkedDataDict) Empty() bool { return len(d.chunks) == 0 }

// Render collapses every chunk that applies to pkg into a final
// enabled-flag set, in chunk order, honoring "-flag" removals and "-*"
// resets. The result is a fresh map safe for the caller to mutate.
func Render(d *ChunkedDataDict, pkg restrict.Package) map[string]bool {
	out := make(map[string]bool)
	for _, c := range d.chunks {
		if c.Restriction != nil && !c.Restriction.Match(pkg) {
			continue
		}
		for _, tok := range c.Tokens {
			if tok == "-*" {
				for k := range out {
					delete(out, k)
				}
				continue
			}
			if strings.HasPrefix(tok, "-") {
				flag := tok[1:]
				out[flag] = false
			} else {
				out[flag(tok)] = true
			}
		}
	}
	return out
}

func flag(tok string) string { return tok }

// RenderList is Render, but returns only the enabled flags, sorted.
func RenderList(d *ChunkedDataDict, pkg restrict.Package) []string {
	m := Render(d, pkg)
	var out []string
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	sortStrings(out)
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Merge appends every chunk of other onto d, as if other's node had
// been stacked as d's child. It is how OnDiskProfile folds a
// ChunkedDataDict collected from one node into the stack-wide
// accumulation while walking the parent DAG.
func (d *ChunkedDataDict) Merge(other *ChunkedDataDict) {
	d.chunks = append(d.chunks, other.chunks...)
}

// SplitNegations splits a raw token list (as read from a profile file)
// into enabled and disabled flag names, stripping the "-" marker. It
// mirrors original_source's split_negations helper, used while loading
// use.mask/use.force files that don't need full
// ChunkedDataDict machinery (no per-package restriction, just one flat
// list).
func SplitNegations(tokens []string) (enabled, disabled []string) {
	for _, tok := range tokens {
		if tok == "-*" {
			disabled = append(disabled, "*")
			continue
		}
		if strings.HasPrefix(tok, "-") {
			disabled = append(disabled, tok[1:])
		} else {
			enabled = append(enabled, tok)
		}
	}
	return enabled, disabled
}
