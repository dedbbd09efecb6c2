// Command presolve resolves a set of package atoms against one or more
// repositories and an installed-package database, emitting a merge
// plan, the same role pmerge.py plays for the Python implementation.
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:]))
}
