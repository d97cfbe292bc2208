package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestCheckLocalAllowsLocalFS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".qrun.lock")
	err := checkLocalWith(path, func(string) (string, error) { return "apfs", nil })
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestCheckLocalRejectsNetworkFS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")
	err := checkLocalWith(path, func(string) (string, error) { return "nfs", nil })

	var nfsErr *NetworkFSError
	if !errors.As(err, &nfsErr) {
		t.Fatalf("expected NetworkFSError, got %v", err)
	}
	if nfsErr.FSType != "nfs" || nfsErr.Path != path {
		t.Fatalf("unexpected error fields: %+v", nfsErr)
	}
}

func TestCheckLocalInspectsNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "nested", "dir", "ledger.db")

	var inspected string
	err := checkLocalWith(path, func(p string) (string, error) {
		inspected = p
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inspected != root {
		t.Fatalf("expected detector to inspect %q, got %q", root, inspected)
	}
}

func TestCheckLocalUnsupportedPlatformPasses(t *testing.T) {
	t.Parallel()

	err := checkLocalWith(t.TempDir(), func(string) (string, error) { return "", errUnsupportedPlatform })
	if err != nil {
		t.Fatalf("expected unsupported detection to pass, got %v", err)
	}
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"nfs":    true,
		"SMBFS":  true,
		" cifs ": true,
		"apfs":   false,
		"0x6969": false,
	}
	for fs, want := range cases {
		if got := isNetworkFilesystem(fs); got != want {
			t.Errorf("isNetworkFilesystem(%q)=%v, want %v", fs, got, want)
		}
	}
}
