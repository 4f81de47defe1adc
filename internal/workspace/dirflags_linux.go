//go:build linux

package workspace

import "golang.org/x/sys/unix"

// dirOpenExtraFlag adds O_PATH on Linux: the descriptor is only ever
// used as the dirfd argument to *at syscalls, never read from directly.
const dirOpenExtraFlag = unix.O_PATH
