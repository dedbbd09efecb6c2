package repo

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mgorny/pkgcore/atom"
)

// reservedDirs are the top-level directory names a category listing
// must filter out; they hold repo metadata, not packages.
var reservedDirs = map[string]bool{
	"eclass":   true,
	"profiles": true,
	"metadata": true,
	"licenses": true,
	"scripts":  true,
	"CVS":      true,
	".svn":     true,
}

// IsReservedDir reports whether name is a reserved top-level directory
// that a category/package listing must skip.
func IsReservedDir(name string) bool { return reservedDirs[name] }

// PathErrorKind classifies why PathRestrict rejected a path.
type PathErrorKind int

const (
	// PathOutsideRepo means path does not resolve under the repo root.
	PathOutsideRepo PathErrorKind = iota
	// PathNotEbuild means path is inside the repo but does not name an
	// ebuild file (wrong depth, extension, or reserved directory).
	PathNotEbuild
)

// PathError is the typed error PathRestrict returns.
type PathError struct {
	Path   string
	Kind   PathErrorKind
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("repo: %s: %s", e.Path, e.Reason)
}

// Root returns the filesystem root this tree was opened at, or "" for
// an in-memory tree with no on-disk backing.
func (t *UnconfiguredTree) Root() string { return t.root }

// PathRestrict converts path (absolute, or relative to t's root) into
// the most-specific atom matching exactly the ebuild it names:
// repo-id, category, package, and an exact "=version". It fails with a
// *PathError if path falls outside the repo root or does not name an
// ebuild file.
func (t *UnconfiguredTree) PathRestrict(path, eapi string) (*atom.Atom, error) {
	if t.root == "" {
		return nil, &PathError{Path: path, Kind: PathOutsideRepo, Reason: "repository has no filesystem root"}
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(t.root, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(filepath.Clean(t.root), abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, &PathError{Path: path, Kind: PathOutsideRepo, Reason: "path is outside the repository root"}
	}

	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) != 3 {
		return nil, &PathError{Path: path, Kind: PathNotEbuild, Reason: "not a category/package/file.ebuild path"}
	}
	category, pkgDir, filename := parts[0], parts[1], parts[2]
	if IsReservedDir(category) {
		return nil, &PathError{Path: path, Kind: PathNotEbuild, Reason: fmt.Sprintf("%q is a reserved directory, not a category", category)}
	}
	const suffix = ".ebuild"
	if !strings.HasSuffix(filename, suffix) {
		return nil, &PathError{Path: path, Kind: PathNotEbuild, Reason: "file does not have an .ebuild extension"}
	}
	base := strings.TrimSuffix(filename, suffix)
	prefix := pkgDir + "-"
	if !strings.HasPrefix(base, prefix) {
		return nil, &PathError{Path: path, Kind: PathNotEbuild, Reason: fmt.Sprintf("filename %q does not match package directory %q", filename, pkgDir)}
	}
	verString := strings.TrimPrefix(base, prefix)

	atomStr := fmt.Sprintf("=%s/%s-%s::%s", category, pkgDir, verString, t.name)
	a, err := atom.Parse(atomStr, eapi)
	if err != nil {
		return nil, &PathError{Path: path, Kind: PathNotEbuild, Reason: fmt.Sprintf("bad version %q: %v", verString, err)}
	}
	return a, nil
}
