package youtube_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/nanobot-edge/nanobot/internal/tools/youtube"
)

// writeAged creates name with size bytes, last modified age ago.
func writeAged(t *testing.T, dir, name string, size int, age time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	mod := time.Now().Add(-age)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func remaining(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPrune(t *testing.T) {
	tests := []struct {
		name    string
		limits  youtube.CacheLimits
		removed int
		left    []string
	}{
		{"under trigger", youtube.CacheLimits{Trigger: 400, Target: 100}, 0, []string{"new.webm", "old.webm", "older.webm", "oldest.webm"}},
		{"down to target", youtube.CacheLimits{Trigger: 300, Target: 200}, 2, []string{"new.webm", "old.webm"}},
		{"target between files", youtube.CacheLimits{Trigger: 300, Target: 250}, 2, []string{"new.webm", "old.webm"}},
		{"zero target empties", youtube.CacheLimits{Trigger: 0, Target: 0}, 4, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeAged(t, dir, "oldest.webm", 100, 4*time.Hour)
			writeAged(t, dir, "older.webm", 100, 3*time.Hour)
			writeAged(t, dir, "old.webm", 100, 2*time.Hour)
			writeAged(t, dir, "new.webm", 100, time.Hour)

			n, err := youtube.Prune(dir, tt.limits)
			if err != nil {
				t.Fatalf("Prune: %v", err)
			}
			if n != tt.removed {
				t.Errorf("removed = %d, want %d", n, tt.removed)
			}
			if got := remaining(t, dir); !slices.Equal(got, tt.left) {
				t.Errorf("left = %v, want %v", got, tt.left)
			}
		})
	}
}

func TestPrune_MissingDir(t *testing.T) {
	n, err := youtube.Prune(filepath.Join(t.TempDir(), "gone"), youtube.CacheLimits{})
	if err != nil || n != 0 {
		t.Errorf("Prune = %d, %v, want 0, nil", n, err)
	}
}

func TestRunCleanup_PrunesImmediatelyAndStops(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, dir, "a.webm", 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- youtube.RunCleanup(ctx, dir, youtube.CacheLimits{}, time.Hour) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(remaining(t, dir)) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("cache not pruned on start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunCleanup = %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}

func TestExecPlayer(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	p := youtube.NewExecPlayer([]string{sh, "-c", "sleep 30", "player"})
	t.Cleanup(func() { _ = p.Close() })

	if err := p.Play("/cache/a.webm"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !p.Playing() {
		t.Fatal("Playing = false after Play")
	}
	p.Stop()
	if p.Playing() {
		t.Error("Playing = true after Stop")
	}

	short := youtube.NewExecPlayer([]string{sh, "-c", "exit 0", "player"})
	if err := short.Play("/cache/a.webm"); err != nil {
		t.Fatalf("Play: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for short.Playing() {
		if time.Now().After(deadline) {
			t.Fatal("Playing still true after the player exited")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := youtube.NewExecPlayer([]string{"/no/such/player"}).Play("/x"); err == nil {
		t.Error("missing player command accepted")
	}
}
