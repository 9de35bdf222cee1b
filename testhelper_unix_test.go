//go:build linux || darwin

package xlevent

import (
	"syscall"
)

// osPipeFDs returns raw descriptors, for tests that close them early.
func osPipeFDs() (r, w int, err error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}
	return fds[0], fds[1], nil
}
