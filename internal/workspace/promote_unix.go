//go:build unix

package workspace

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openDirFlags is O_DIRECTORY|O_PATH on platforms where O_PATH exists
// (a descriptor usable only for *at syscalls, never readable); elsewhere
// it is plain O_DIRECTORY, because the build-tagged dirflags_other.go
// sets dirOpenExtraFlag to 0.
const openDirFlags = unix.O_DIRECTORY | dirOpenExtraFlag

// linkFile hardlinks oldName (in oldDir) to newName (in newDir), using
// directory file descriptors so the two names are resolved relative to
// their own directories without building an intermediate absolute path
// that a concurrent rename could invalidate.
func linkFile(oldDir, oldName, newDir, newName string) error {
	oldFd, err := unix.Open(oldDir, openDirFlags, 0)
	if err != nil {
		return fmt.Errorf("workspace: open %s: %w", oldDir, err)
	}
	defer unix.Close(oldFd)

	newFd, err := unix.Open(newDir, openDirFlags, 0)
	if err != nil {
		return fmt.Errorf("workspace: open %s: %w", newDir, err)
	}
	defer unix.Close(newFd)

	if err := unix.Linkat(oldFd, oldName, newFd, newName, 0); err != nil {
		return fmt.Errorf("workspace: link %s/%s to %s/%s: %w", oldDir, oldName, newDir, newName, err)
	}
	return nil
}

// unlinkFile removes name from dir via a directory file descriptor.
func unlinkFile(dir, name string) error {
	fd, err := unix.Open(dir, openDirFlags, 0)
	if err != nil {
		return fmt.Errorf("workspace: open %s: %w", dir, err)
	}
	defer unix.Close(fd)

	if err := unix.Unlinkat(fd, name, 0); err != nil {
		return fmt.Errorf("workspace: unlink %s/%s: %w", dir, name, err)
	}
	return nil
}

// diskUsage sums st_blocks*512 for every file under dir, descending
// into subdirectories, used for the daemon's queue storage accounting.
func diskUsage(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("workspace: read %s: %w", dir, err)
	}
	var total int64
	var st unix.Stat_t
	for _, e := range entries {
		if e.IsDir() {
			sub, err := diskUsage(dir + "/" + e.Name())
			if err != nil {
				return total, err
			}
			total += sub
			continue
		}
		if err := unix.Stat(dir+"/"+e.Name(), &st); err != nil {
			continue
		}
		total += st.Blocks * 512
	}
	return total, nil
}
