//go:build linux

package wakefd

import (
	"golang.org/x/sys/unix"
)

func create() (int, int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	return fd, fd, err
}
