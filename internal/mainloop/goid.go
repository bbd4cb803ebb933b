package mainloop

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutineHeader = []byte("goroutine ")

// goid returns the id of the calling goroutine, parsed from the header line
// of its stack trace ("goroutine 42 [running]:"). Returns 0 if the header
// cannot be parsed.
func goid() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, goroutineHeader)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
