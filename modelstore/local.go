package modelstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalFileSource reads the artifact from a filesystem path.
type LocalFileSource struct {
	path string
}

func NewLocalFileSource(path string) (*LocalFileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("resolve model path: %w", err)
	}
	return &LocalFileSource{path: abs}, nil
}

func (s *LocalFileSource) Path() string {
	return s.path
}

// FetchBytes satisfies Source for callers that only see the Source side of a
// LocalFileSource. Materialize loads a LocalFileSource in place via Path.
func (s *LocalFileSource) FetchBytes(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, notFoundOr(err, fmt.Errorf("read %s: %w", s, err))
	}
	return data, nil
}

func (s *LocalFileSource) String() string {
	return "file:" + filepath.Base(s.path)
}
