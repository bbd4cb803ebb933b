package fault

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// captureStack returns up to limit frames of the caller's stack, skipping the
// innermost skip frames above captureStack itself. It never panics; any
// failure yields an empty result.
func captureStack(skip, limit int) (frames []string) {
	defer func() {
		if recover() != nil {
			frames = nil
		}
	}()

	pcs := make([]uintptr, limit)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}

	iter := runtime.CallersFrames(pcs[:n])
	for {
		f, more := iter.Next()
		frames = append(frames, fmt.Sprintf("%s (%s:%d)", f.Function, filepath.Base(f.File), f.Line))
		if !more {
			break
		}
	}
	return frames
}
