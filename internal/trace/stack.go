package trace

import (
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	maxStackDepth = 64
	libraryPrefix = "github.com/GriffinCanCode/tracekit/internal/"
)

// Frame is one entry of a captured stack, as reported in the stack tag
type Frame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// CaptureStack returns the calling goroutine's stack with runtime frames and
// this library's own frames removed. Files matching any doublestar pattern in
// ignore are dropped as well. skip counts frames above CaptureStack's caller.
func CaptureStack(skip int, ignore []string) []Frame {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]Frame, 0, n)
	for {
		f, more := frames.Next()
		if f.Function != "" && keepFrame(f, ignore) {
			out = append(out, Frame{Function: f.Function, File: f.File, Line: f.Line})
		}
		if !more {
			break
		}
	}
	return out
}

func keepFrame(f runtime.Frame, ignore []string) bool {
	if strings.HasPrefix(f.Function, "runtime.") {
		return false
	}
	// library frames are noise, except in our own tests
	if strings.HasPrefix(f.Function, libraryPrefix) && !strings.HasSuffix(f.File, "_test.go") {
		return false
	}
	rel := strings.TrimPrefix(f.File, "/")
	for _, pattern := range ignore {
		if ok, _ := doublestar.Match(pattern, f.File); ok {
			return false
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	return true
}
