/*
Package updates applies profiles/updates move/slotmove directives: the
per-quarter files (e.g. "3Q-2024") that record a package having been
renamed or having changed slot, so consumers referring to the old
identity keep resolving correctly.

The directory-scanning and deque-splicing algorithm is a direct port of
original_source's pkg_updates.py: files are named "<1-4>Q-<year>" and
applied in (year, quarter) order. A later move can rename an earlier
move's destination, so Apply follows each move's destination forward
through the moves after it, making a chain of renames resolve to the
final name.
*/
package updates

import (
	"bufio"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mgorny/pkgcore/atom"
)

// Kind distinguishes a package rename from a slot change.
type Kind int

const (
	Move Kind = iota
	SlotMove
)

// Update is one move or slotmove directive.
type Update struct {
	Kind Kind

	// Move: From/To are category/package atoms (no version).
	// SlotMove: From is a category/package atom, OldSlot/NewSlot apply.
	From *atom.Atom
	To   *atom.Atom

	OldSlot, NewSlot string

	// Source file and line, kept for diagnostics.
	File string
	Line int
}

var updateFileRE = regexp.MustCompile(`^([1-4])Q-(\d{4})$`)

// ScanDirectory lists the update file names present in dir (within
// fsys), sorted chronologically by (year, quarter) — oldest first —
// matching original_source's _scan_directory.
func ScanDirectory(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("updates: reading %s: %w", dir, err)
	}
	type file struct {
		name          string
		year, quarter int
	}
	var files []file
	for _, e := range entries {
		m := updateFileRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		q, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		files = append(files, file{e.Name(), y, q})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].year != files[j].year {
			return files[i].year < files[j].year
		}
		return files[i].quarter < files[j].quarter
	})
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.name
	}
	return out, nil
}

// ReadUpdates reads and parses every update file in dir, in
// chronological order, under the given EAPI (update files use a fixed,
// simple atom grammar and do not declare their own EAPI; callers pass
// whatever EAPI their repository's profile declares).
func ReadUpdates(fsys fs.FS, dir string, eapi string) ([]Update, error) {
	names, err := ScanDirectory(fsys, dir)
	if err != nil {
		return nil, err
	}
	var all []Update
	for _, name := range names {
		data, err := fs.ReadFile(fsys, joinPath(dir, name))
		if err != nil {
			return nil, fmt.Errorf("updates: reading %s: %w", name, err)
		}
		ups, err := parseUpdateFile(name, string(data), eapi)
		if err != nil {
			return nil, err
		}
		all = append(all, ups...)
	}
	return all, nil
}

func joinPath(a, b string) string {
	if a == "" || a == "." {
		return b
	}
	return strings.TrimRight(a, "/") + "/" + b
}

func parseUpdateFile(name, data, eapi string) ([]Update, error) {
	var out []Update
	sc := bufio.NewScanner(strings.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		u, err := parseUpdateLine(fields, eapi)
		if err != nil {
			return nil, fmt.Errorf("updates: %s:%d: %w", name, lineNo, err)
		}
		u.File = name
		u.Line = lineNo
		out = append(out, u)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseUpdateLine(fields []string, eapi string) (Update, error) {
	if len(fields) == 0 {
		return Update{}, fmt.Errorf("empty directive")
	}
	switch fields[0] {
	case "move":
		if len(fields) != 3 {
			return Update{}, fmt.Errorf("move requires exactly 2 arguments, got %d", len(fields)-1)
		}
		from, err := atom.Parse(fields[1], eapi)
		if err != nil {
			return Update{}, fmt.Errorf("bad move source: %w", err)
		}
		to, err := atom.Parse(fields[2], eapi)
		if err != nil {
			return Update{}, fmt.Errorf("bad move target: %w", err)
		}
		return Update{Kind: Move, From: from, To: to}, nil
	case "slotmove":
		if len(fields) != 4 {
			return Update{}, fmt.Errorf("slotmove requires exactly 3 arguments, got %d", len(fields)-1)
		}
		from, err := atom.Parse(fields[1], eapi)
		if err != nil {
			return Update{}, fmt.Errorf("bad slotmove atom: %w", err)
		}
		return Update{Kind: SlotMove, From: from, OldSlot: fields[2], NewSlot: fields[3]}, nil
	default:
		return Update{}, fmt.Errorf("unrecognized directive %q", fields[0])
	}
}

// Apply walks updates in file order, resolving each atom's target
// through any later move so that "A moved to B, B moved to C" chains to
// an atom matching against C — the splice original_source performs by
// re-inserting a produced move back into the remaining queue.
//
// It returns one entry per input update, in input order: each move's
// To is replaced by its final resolved identity and every From is left
// as written. No directive is dropped, and redundant or cyclic moves
// are not detected.
func Apply(ups []Update) []Update {
	// work on a mutable copy so chaining doesn't mutate caller data
	work := make([]Update, len(ups))
	copy(work, ups)

	for i := range work {
		if work[i].Kind != Move {
			continue
		}
		for j := i + 1; j < len(work); j++ {
			if work[j].Kind != Move {
				continue
			}
			if sameKey(work[j].From, work[i].To) {
				work[i].To = work[j].To
			}
		}
	}
	return work
}

func sameKey(a, b *atom.Atom) bool {
	return a.Key() == b.Key()
}

// ApplyToAtom rewrites a single dependency atom through the full update
// chain, producing a new atom whose category/package reflect any move
// applied to it, and preserving every other constraint (version
// operator, slot, use-deps) unchanged. It returns the original atom,
// unmodified, if no update applies.
func ApplyToAtom(a *atom.Atom, ups []Update) *atom.Atom {
	cur := a
	for _, u := range ups {
		switch u.Kind {
		case Move:
			if cur.Category == u.From.Category && cur.Package == u.From.Package {
				rewritten := *cur
				rewritten.Category = u.To.Category
				rewritten.Package = u.To.Package
				cur = &rewritten
			}
		case SlotMove:
			if cur.Category == u.From.Category && cur.Package == u.From.Package && cur.Slot == u.OldSlot {
				rewritten := *cur
				rewritten.Slot = u.NewSlot
				cur = &rewritten
			}
		}
	}
	return cur
}
