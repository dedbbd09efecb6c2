/*
Package version parses and compares ebuild version strings.

An ebuild version is a dot-separated list of numeric components,
optionally followed by a letter suffix, zero or more of the release-type
suffixes "_alpha", "_beta", "_pre", "_rc" and "_p" (each optionally
followed by a number), and optionally a revision "-rN".

The shape of this package — an immutable parsed value with a Compare
method returning -1/0/1, plus a String method that round-trips the
original text — follows deps.dev/util/semver.Version; the grammar and
ordering rules themselves are ebuild-specific and are not shared with
any semver variant.
*/
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// releaseType orders the "_alpha|_beta|_pre|_rc|(none)|_p" suffix family.
// rtNone (no suffix) sorts between rc and p, matching PMS.
type releaseType int8

const (
	rtAlpha releaseType = iota
	rtBeta
	rtPre
	rtRC
	rtNone
	rtP
)

var releaseNames = map[string]releaseType{
	"_alpha": rtAlpha,
	"_beta":  rtBeta,
	"_pre":   rtPre,
	"_rc":    rtRC,
	"_p":     rtP,
}

// suffix is one "_tag[N]" component of a version string.
type suffix struct {
	typ releaseType
	num int64 // 0 if absent
}

// Version is a parsed ebuild version.
//
// The zero Version is not meaningful; use Parse.
type Version struct {
	raw string

	// components holds the dot-separated numeric components. Each is
	// kept as the original decimal text (to preserve leading zeros,
	// which are significant: components compare numerically unless a
	// leading zero is present, in which case the compare is string-wise
	// with trailing zeros ignored, so "1.010" == "1.01" < "1.02").
	// intVal/hasLeadingZero are cached per component.
	components []component

	// letter is the optional single trailing letter on the last
	// numeric component (e.g. the "a" in "1.2a").
	letter byte // 0 if absent

	suffixes []suffix

	revision int64 // 0 if no -rN suffix (equivalent to -r0)
}

type component struct {
	text           string
	intVal         uint64
	hasLeadingZero bool
}

// Parse parses an ebuild version string, not including any leading
// package name or category.
func Parse(s string) (Version, error) {
	orig := s
	v := Version{raw: orig}

	rest := s

	// Revision suffix, "-rN", stripped first since it's unambiguous.
	if i := strings.LastIndex(rest, "-r"); i >= 0 {
		numPart := rest[i+2:]
		if numPart != "" && isDigits(numPart) {
			n, err := strconv.ParseInt(numPart, 10, 63)
			if err != nil {
				return Version{}, fmt.Errorf("version %q: bad revision: %w", orig, err)
			}
			v.revision = n
			rest = rest[:i]
		}
	}

	// Release-type suffixes, e.g. "_alpha3", "_p", may repeat (PMS
	// technically allows only the documented ones, in any order and
	// count; we record them all and compare lexicographically by
	// (releaseType, num) tuples in order, which matches practice).
	for {
		idx, typ, numStart := findSuffix(rest)
		if idx < 0 {
			break
		}
		numText := rest[numStart:]
		var num int64
		if numText != "" {
			if !isDigits(numText) {
				break
			}
			n, err := strconv.ParseInt(numText, 10, 63)
			if err != nil {
				return Version{}, fmt.Errorf("version %q: bad suffix number: %w", orig, err)
			}
			num = n
		}
		v.suffixes = append([]suffix{{typ: typ, num: num}}, v.suffixes...)
		rest = rest[:idx]
	}

	// Optional trailing letter on the numeric part, e.g. "2.4b".
	if n := len(rest); n > 0 {
		c := rest[n-1]
		if c >= 'a' && c <= 'z' && n >= 2 && (rest[n-2] == '.' || isDigitByte(rest[n-2])) {
			// Only treat as a letter suffix if what precedes is a
			// digit (so "1.2b" but not a malformed "1.2.b").
			if isDigitByte(rest[n-2]) {
				v.letter = c
				rest = rest[:n-1]
			}
		}
	}

	if rest == "" {
		return Version{}, fmt.Errorf("version %q: empty numeric component", orig)
	}
	parts := strings.Split(rest, ".")
	for _, p := range parts {
		if p == "" || !isDigits(p) {
			return Version{}, fmt.Errorf("version %q: malformed numeric component %q", orig, p)
		}
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("version %q: %w", orig, err)
		}
		v.components = append(v.components, component{
			text:           p,
			intVal:         n,
			hasLeadingZero: len(p) > 1 && p[0] == '0',
		})
	}

	return v, nil
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigitByte(s[i]) {
			return false
		}
	}
	return true
}

// findSuffix finds the right-most release-type suffix in s, returning
// the index at which it begins, its type, and the index at which any
// trailing digits begin (== len(s) if none). Returns idx < 0 if none
// found at the end of s.
func findSuffix(s string) (idx int, typ releaseType, numStart int) {
	// Strip trailing digits first, then check for a known tag
	// immediately before them.
	end := len(s)
	numStart = end
	for numStart > 0 && isDigitByte(s[numStart-1]) {
		numStart--
	}
	tagEnd := numStart
	for tag, rt := range releaseNames {
		if tagEnd >= len(tag) && s[tagEnd-len(tag):tagEnd] == tag {
			return tagEnd - len(tag), rt, numStart
		}
	}
	return -1, 0, 0
}

// String returns the original text Parse was given.
func (v Version) String() string { return v.raw }

// Revision returns the -rN revision, 0 if unspecified (equivalent to
// -r0 per PMS).
func (v Version) Revision() int64 { return v.revision }

// Compare returns -1, 0 or 1 depending on whether v sorts before, equal
// to, or after w.
func (v Version) Compare(w Version) int {
	n := len(v.components)
	if m := len(w.components); m < n {
		n = m
	}
	for i := 0; i < n; i++ {
		if c := compareComponent(v.components[i], w.components[i]); c != 0 {
			return c
		}
	}
	if len(v.components) != len(w.components) {
		// Shorter is padded with an implicit ".0": PMS compares the
		// extra component against zero.
		longer, shorterLonger := v.components, false
		if len(w.components) > len(v.components) {
			longer = w.components
			shorterLonger = true
		}
		for _, c := range longer[n:] {
			if c.intVal != 0 {
				if shorterLonger {
					return -1
				}
				return 1
			}
		}
	}

	if v.letter != w.letter {
		if v.letter < w.letter {
			return -1
		}
		return 1
	}

	ns := len(v.suffixes)
	if len(w.suffixes) < ns {
		ns = len(w.suffixes)
	}
	for i := 0; i < ns; i++ {
		if c := compareSuffix(v.suffixes[i], w.suffixes[i]); c != 0 {
			return c
		}
	}
	if len(v.suffixes) != len(w.suffixes) {
		// The version with fewer suffixes is "plain" at that position,
		// equivalent to release type rtNone with num 0.
		var extra []suffix
		sign := 1
		if len(v.suffixes) > len(w.suffixes) {
			extra = v.suffixes[ns:]
		} else {
			extra = w.suffixes[ns:]
			sign = -1
		}
		for _, s := range extra {
			if c := compareSuffix(s, suffix{typ: rtNone}); c != 0 {
				return c * sign
			}
		}
	}

	if v.revision != w.revision {
		if v.revision < w.revision {
			return -1
		}
		return 1
	}
	return 0
}

func compareComponent(a, b component) int {
	if !a.hasLeadingZero && !b.hasLeadingZero {
		if a.intVal != b.intVal {
			if a.intVal < b.intVal {
				return -1
			}
			return 1
		}
		return 0
	}
	// Leading-zero components compare as strings after removing
	// trailing zeros: "1.010" vs "1.02" compares "01" with "02".
	at := strings.TrimRight(a.text, "0")
	bt := strings.TrimRight(b.text, "0")
	if at == bt {
		return 0
	}
	if at < bt {
		return -1
	}
	return 1
}

func compareSuffix(a, b suffix) int {
	if a.typ != b.typ {
		if a.typ < b.typ {
			return -1
		}
		return 1
	}
	if a.num != b.num {
		if a.num < b.num {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether v sorts before w. It exists for use with
// sort.Slice and mirrors resolve.VersionKey.Less in the teacher library.
func (v Version) Less(w Version) bool { return v.Compare(w) < 0 }

// List implements sort.Interface for a slice of Version, ascending.
type List []Version

func (l List) Len() int           { return len(l) }
func (l List) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }
func (l List) Less(i, j int) bool { return l[i].Less(l[j]) }
