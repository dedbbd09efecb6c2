package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/mgorny/pkgcore/repo"
	"github.com/mgorny/pkgcore/updates"
	"github.com/mgorny/pkgcore/vdb"
	"github.com/mgorny/pkgcore/version"
)

// packageRecord is one TOML-encoded package entry, the normalized
// shape a metadata oracle round trip (see the metadata package) would
// already have reduced an ebuild to. Driving the resolver from a
// build-daemon round trip for every invocation of this CLI is out of
// scope here; packageFile lets a caller hand the resolver pre-fetched
// metadata directly.
type packageRecord struct {
	Category string   `toml:"category"`
	Package  string   `toml:"package"`
	Version  string   `toml:"version"`
	Slot     string   `toml:"slot"`
	SubSlot  string   `toml:"sub_slot"`
	EAPI     string   `toml:"eapi"`
	IUSE     []string `toml:"iuse"`
	Keywords []string `toml:"keywords"`
	Depend   string   `toml:"depend"`
	RDepend  string   `toml:"rdepend"`
	PDepend  string   `toml:"pdepend"`
	BDepend  string   `toml:"bdepend"`
}

type packageFile struct {
	Package []packageRecord `toml:"package"`
}

func loadRepo(path string) (*repo.UnconfiguredTree, error) {
	tree := repo.NewUnconfiguredTree("presolve")
	if path == "" {
		return tree, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("presolve: reading repo file %s: %w", path, err)
	}
	var pf packageFile
	if err := toml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("presolve: parsing repo file %s: %w", path, err)
	}
	for _, rec := range pf.Package {
		v, err := version.Parse(rec.Version)
		if err != nil {
			return nil, fmt.Errorf("presolve: %s/%s: bad version %q: %w", rec.Category, rec.Package, rec.Version, err)
		}
		tree.Add(&repo.Pkg{
			Category: rec.Category, Package: rec.Package, Version: v,
			Slot: rec.Slot, SubSlot: rec.SubSlot, EAPI: rec.EAPI,
			IUSE: rec.IUSE, Keywords: rec.Keywords,
			Depend: rec.Depend, RDepend: rec.RDepend, PDepend: rec.PDepend, BDepend: rec.BDepend,
		})
	}
	return tree, nil
}

// loadUpdates reads and chains every move/slotmove directive under
// dir/updates, returning nil (no error) when dir is unset.
func loadUpdates(dir, eapi string) ([]updates.Update, error) {
	if dir == "" {
		return nil, nil
	}
	updatesDir := filepath.Join(dir, "updates")
	fsys := os.DirFS(filepath.Dir(updatesDir))
	ups, err := updates.ReadUpdates(fsys, filepath.Base(updatesDir), eapi)
	if err != nil {
		return nil, fmt.Errorf("presolve: reading updates under %s: %w", updatesDir, err)
	}
	return updates.Apply(ups), nil
}

type installedRecord struct {
	Category string `toml:"category"`
	Package  string `toml:"package"`
	Version  string `toml:"version"`
	Slot     string `toml:"slot"`
	SubSlot  string `toml:"sub_slot"`
}

type installedFile struct {
	Installed []installedRecord `toml:"installed"`
}

func loadVDB(path string) (*vdb.VDB, error) {
	v := vdb.New()
	if path == "" {
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("presolve: reading vdb file %s: %w", path, err)
	}
	var f installedFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("presolve: parsing vdb file %s: %w", path, err)
	}
	for _, rec := range f.Installed {
		ver, err := version.Parse(rec.Version)
		if err != nil {
			return nil, fmt.Errorf("presolve: installed %s/%s: bad version %q: %w", rec.Category, rec.Package, rec.Version, err)
		}
		v.Add(&vdb.Pkg{Category: rec.Category, Package: rec.Package, Version: ver, Slot: rec.Slot, SubSlot: rec.SubSlot})
	}
	return v, nil
}
