// Package onnxrt manages the process-wide ONNX Runtime environment shared by
// the Silero VAD scorer and the openWakeWord spotter.
//
// The runtime is a C shared library loaded once per process. Acquire loads
// it on first use and Release tears it down when the last user is gone.
package onnxrt

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	mu   sync.Mutex
	refs int
)

// Acquire initialises the ONNX Runtime environment if needed. libPath
// overrides the shared library location; when empty, [ResolveLibrary] is
// consulted and the onnxruntime_go default is used if nothing is found.
func Acquire(libPath string) error {
	mu.Lock()
	defer mu.Unlock()
	if refs == 0 && !ort.IsInitialized() {
		if libPath == "" {
			libPath = ResolveLibrary()
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnxrt: initialize environment (lib %q): %w", libPath, err)
		}
	}
	refs++
	return nil
}

// Release drops one reference and destroys the environment when none remain.
func Release() error {
	mu.Lock()
	defer mu.Unlock()
	if refs == 0 {
		return nil
	}
	refs--
	if refs == 0 && ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			return fmt.Errorf("onnxrt: destroy environment: %w", err)
		}
	}
	return nil
}

// ResolveLibrary searches the working directory and the executable's
// directory for a bundled runtime: first lib/<GOOS>_<GOARCH>/<name>, then
// models/<name>. It returns "" when nothing is found.
func ResolveLibrary() string {
	var bases []string
	if cwd, err := os.Getwd(); err == nil {
		bases = append(bases, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		if dir := filepath.Dir(exe); len(bases) == 0 || dir != bases[0] {
			bases = append(bases, dir)
		}
	}
	platform := runtime.GOOS + "_" + runtime.GOARCH
	for _, base := range bases {
		for _, name := range libraryNames() {
			for _, p := range []string{
				filepath.Join(base, "lib", platform, name),
				filepath.Join(base, "models", name),
			} {
				if _, err := os.Stat(p); err == nil {
					return p
				}
			}
		}
	}
	return ""
}

func libraryNames() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libonnxruntime.dylib"}
	case "windows":
		return []string{"onnxruntime.dll"}
	default:
		return []string{"libonnxruntime.so"}
	}
}
