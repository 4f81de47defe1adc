//go:build unix && !linux

package workspace

// dirOpenExtraFlag is 0 on non-Linux unix platforms, which lack O_PATH.
const dirOpenExtraFlag = 0
