// Package goroutineid reports the id of the calling goroutine, for
// asserting that loop-owned state is only touched from the loop goroutine.
package goroutineid

import (
	"bytes"
	"runtime"
	"strconv"
)

var prefix = []byte("goroutine ")

// Get parses the id out of the "goroutine N [...]" stack header, returning
// zero if the header is not in the expected form.
func Get() uint64 {
	var buf [64]byte
	rest, ok := bytes.CutPrefix(buf[:runtime.Stack(buf[:], false)], prefix)
	if !ok {
		return 0
	}
	if i := bytes.IndexByte(rest, ' '); i >= 0 {
		rest = rest[:i]
	}
	id, err := strconv.ParseUint(string(rest), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
