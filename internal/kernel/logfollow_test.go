package kernel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func appendText(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatal(err)
	}
}

func expectLine(t *testing.T, lines <-chan string, want string) {
	t.Helper()
	select {
	case got := <-lines:
		if got != want {
			t.Fatalf("line = %q, want %q", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestLogFollower(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	appendText(t, path, "existing line\n")

	f := NewLogFollower(path)
	f.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- f.Follow(ctx, func(line string) { lines <- line })
	}()

	appendText(t, path, "first\r\nsecond\npart")
	expectLine(t, lines, "first")
	expectLine(t, lines, "second")

	select {
	case got := <-lines:
		t.Fatalf("incomplete line emitted: %q", got)
	case <-time.After(100 * time.Millisecond):
	}

	appendText(t, path, "ial\n")
	expectLine(t, lines, "partial")

	if err := os.WriteFile(path, []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	expectLine(t, lines, "x")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("follow did not return after cancel")
	}
}
