//go:build !unix

package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// linkFile hardlinks oldDir/oldName to newDir/newName. The non-unix
// build has no directory-fd primitives, so it falls back to os.Link on
// the joined paths; the promotion is still atomic at the filesystem
// level, just not immune to a concurrent rename of either directory.
func linkFile(oldDir, oldName, newDir, newName string) error {
	if err := os.Link(filepath.Join(oldDir, oldName), filepath.Join(newDir, newName)); err != nil {
		return fmt.Errorf("workspace: link %s to %s: %w", oldName, newName, err)
	}
	return nil
}

func unlinkFile(dir, name string) error {
	if err := os.Remove(filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("workspace: unlink %s/%s: %w", dir, name, err)
	}
	return nil
}

func diskUsage(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return total, fmt.Errorf("workspace: walk %s: %w", dir, err)
	}
	return total, nil
}
