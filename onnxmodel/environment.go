package onnxmodel

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sys/cpu"
)

// InitEnvironment loads the onnxruntime shared library and initializes the
// runtime. libraryPath may be a file or a directory holding the platform's
// default library name; empty means the loader's default search.
func InitEnvironment(libraryPath string) error {
	if libraryPath != "" {
		resolved, err := resolveLibrary(libraryPath)
		if err != nil {
			return err
		}
		ort.SetSharedLibraryPath(resolved)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	log.Info().
		Strs("cpu_features", cpuFeatures()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Msg("onnxruntime initialized")
	return nil
}

func DestroyEnvironment() {
	if !ort.IsInitialized() {
		return
	}
	if err := ort.DestroyEnvironment(); err != nil {
		log.Warn().Err(err).Msg("destroy onnxruntime environment")
	}
}

// libraryName is the onnxruntime shared library name for goos.
func libraryName(goos string) string {
	switch goos {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

func resolveLibrary(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("onnxruntime library not found: %w", err)
	}
	if !info.IsDir() {
		return path, nil
	}

	libPath := filepath.Join(path, libraryName(runtime.GOOS))
	if _, err := os.Stat(libPath); err != nil {
		return "", fmt.Errorf("onnxruntime library not found in %s: %w", path, err)
	}
	return libPath, nil
}

func cpuFeatures() []string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			features = append(features, "sse4.1")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasAVX512 {
			features = append(features, "avx512")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "neon")
		}
		if cpu.ARM64.HasSVE {
			features = append(features, "sve")
		}
	}
	if len(features) == 0 {
		features = append(features, "generic")
	}
	return features
}

// DefaultIntraOpThreads splits the usable CPUs across poolSize sessions.
func DefaultIntraOpThreads(poolSize int) int {
	if poolSize <= 0 {
		poolSize = 1
	}
	threads := runtime.GOMAXPROCS(0) / poolSize
	if threads < 1 {
		threads = 1
	}
	return threads
}

func describeShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		if d <= 0 {
			parts[i] = "?"
			continue
		}
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
