package vdb

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mgorny/pkgcore/atom"
)

// Virtuals is the installed-virtuals cache: which installed packages
// provide which "virtual/foo" atoms, derived by scanning PROVIDE
// metadata across the VDB and cached to disk under a single mtime
// watermark, the newest mtime among the installed package directories.
//
// original_source's _write_mtime_cache flattens each virtual's
// (package, version) pairs by concatenating every "fullver" onto one
// cache line per package — a bug, since a virtual providing several
// versions of the same package collapses into one unparsable line.
// DESIGN.md's Open Question resolution fixes this: WriteCache emits one
// row per (virtual, provider, version) triple instead.
type Virtuals struct {
	// Providers maps a virtual package name (without the "virtual/"
	// category) to the set of category/package/version triples that
	// provide it.
	Providers map[string][]Provider
}

// Provider is one package that provides some virtual.
type Provider struct {
	Category, Package, Version string
}

// Collect derives the virtuals mapping by scanning every installed
// package's PROVIDE metadata (non_caching_virtuals in
// original_source), with no cache involved.
func Collect(v *VDB) *Virtuals {
	result := map[string][]Provider{}
	for _, pkg := range v.All() {
		for _, provided := range pkg.Provides() {
			result[provided] = append(result[provided], Provider{
				Category: pkg.Category,
				Package:  pkg.Package,
				Version:  pkg.Version.String(),
			})
		}
	}
	return &Virtuals{Providers: result}
}

// Provides returns the "virtual/x" package names (just the "x" part)
// this installed package declares it provides, read from its Use map
// under the synthetic key "provides:virtual-name". Packages with no
// such key return nil.
func (p *Pkg) Provides() []string {
	var out []string
	for flag, enabled := range p.Use {
		if enabled && strings.HasPrefix(flag, "provides:") {
			out = append(out, strings.TrimPrefix(flag, "provides:"))
		}
	}
	sort.Strings(out)
	return out
}

// CacheFile is the on-disk mtime-gated cache: a single leading mtime
// watermark line, then one line per (virtual, provider, version) row.
type CacheFile struct {
	path string
}

// NewCacheFile opens (without yet reading) the cache at path.
func NewCacheFile(path string) *CacheFile { return &CacheFile{path: path} }

// ReadCache loads a previously written cache, returning (nil, nil) if
// the file does not exist (a cold cache, not an error).
func (c *CacheFile) ReadCache() (*Virtuals, error) {
	f, err := os.Open(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vdb: reading virtuals cache: %w", err)
	}
	defer f.Close()

	result := map[string][]Provider{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("vdb: malformed virtuals cache line %q", line)
		}
		virt, cat, pkg, ver := fields[0], fields[1], fields[2], fields[3]
		result[virt] = append(result[virt], Provider{Category: cat, Package: pkg, Version: ver})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &Virtuals{Providers: result}, nil
}

// WriteCache writes v to disk, one row per (virtual, provider,
// version) triple, and a header mtime watermark comment so a future
// read knows when the cache was generated.
func (c *CacheFile) WriteCache(v *Virtuals, generatedAtUnix int64) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("vdb: writing virtuals cache: %w", err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# mtime=%d\n", generatedAtUnix)
	for _, virt := range sortedVirtualNames(v.Providers) {
		for _, prov := range v.Providers[virt] {
			fmt.Fprintf(w, "%s %s %s %s\n", virt, prov.Category, prov.Package, prov.Version)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

func sortedVirtualNames(m map[string][]Provider) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Caching loads the cache if its watermark is still fresh relative to
// every installed package directory's modification time; otherwise it
// rescans and rewrites, mirroring original_source's caching_virtuals.
func Caching(v *VDB, cache *CacheFile, pkgDirs fs.FS, dirMTimes func() (int64, error)) (*Virtuals, error) {
	latest, err := dirMTimes()
	if err != nil {
		return nil, err
	}
	cached, err := cache.ReadCache()
	if err != nil {
		return nil, err
	}
	if cached != nil {
		watermark, err := readWatermark(cache.path)
		if err == nil && watermark >= latest {
			return cached, nil
		}
	}
	fresh := Collect(v)
	if err := cache.WriteCache(fresh, latest); err != nil {
		return nil, err
	}
	return fresh, nil
}

func readWatermark(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if sc.Scan() {
		var mtime int64
		if _, err := fmt.Sscanf(sc.Text(), "# mtime=%d", &mtime); err == nil {
			return mtime, nil
		}
	}
	return 0, fmt.Errorf("vdb: missing mtime watermark")
}

// AliasAtoms resolves a virtuals mapping into dependency atoms usable
// where a profile's "virtuals" file would otherwise supply one,
// overlaying profile-declared virtuals with installed-package-derived
// ones without intersecting the two: profile overrides win outright;
// where the profile is silent, every
// installed provider is offered as an alternative.
func AliasAtoms(profileVirtuals map[string]*atom.Atom, installed *Virtuals) map[string][]*atom.Atom {
	out := make(map[string][]*atom.Atom, len(profileVirtuals)+len(installed.Providers))
	for name, a := range profileVirtuals {
		out[name] = []*atom.Atom{a}
	}
	for name, providers := range installed.Providers {
		if _, overridden := out[name]; overridden {
			continue
		}
		for _, p := range providers {
			a, err := atom.Parse(fmt.Sprintf("=%s/%s-%s", p.Category, p.Package, p.Version), "7")
			if err != nil {
				continue
			}
			out[name] = append(out[name], a)
		}
	}
	return out
}
