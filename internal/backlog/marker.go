package backlog

import (
	"os"
	"path/filepath"
)

// MarkerPath returns the editor swap file whose presence pauses dispatch from
// the backlog at path: ".<name>.swp" in the same directory.
func MarkerPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".swp")
}

// Locked reports whether the lock marker for path exists. The marker is
// advisory and never held by qrun.
func Locked(path string) bool {
	_, err := os.Lstat(MarkerPath(path))
	return err == nil
}
