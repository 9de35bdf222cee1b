package xlevent

import (
	"os"
	"testing"
)

// testPipe returns a pipe, closed on cleanup.
func testPipe(t *testing.T) (r, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, w
}

func fdOf(f *os.File) int { return int(f.Fd()) }
