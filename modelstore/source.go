package modelstore

import (
	"context"
	"fmt"
	"os"

	"github.com/Tutortoise/image-classification-service/models"
)

// Source supplies raw model artifact bytes.
type Source interface {
	FetchBytes(ctx context.Context) ([]byte, error)
	// String describes the source for logs. It never includes credentials.
	String() string
}

// PathSource is a Source that already lives on the local filesystem and can be
// handed to the runtime without staging.
type PathSource interface {
	Source
	Path() string
}

// Materialize makes the artifact from src available as a file and calls load
// with its path. Fetched bytes are staged under scratchDir and the staged file
// is removed before Materialize returns, whatever load does.
func Materialize(ctx context.Context, src Source, scratchDir string, load func(path string) error) error {
	if ps, ok := src.(PathSource); ok {
		if _, err := os.Stat(ps.Path()); err != nil {
			return notFoundOr(err, fmt.Errorf("stat %s: %w", ps, err))
		}
		return load(ps.Path())
	}

	data, err := src.FetchBytes(ctx)
	if err != nil {
		return err
	}

	path, err := stage(scratchDir, data)
	if err != nil {
		return models.ModelUnavailableError(models.StageModelLoad, models.ErrTransientFetch, err)
	}
	defer os.Remove(path)

	return load(path)
}

func notFoundOr(err, wrapped error) error {
	if os.IsNotExist(err) {
		return models.ModelUnavailableError(models.StageModelLoad, models.ErrNotFound, wrapped)
	}
	return models.ModelUnavailableError(models.StageModelLoad, models.ErrTransientFetch, wrapped)
}

const (
	KindLocal = "local"
	KindS3    = "s3"
	KindGCS   = "gcs"
)

// Options selects and configures one Source.
type Options struct {
	Kind               string
	Path               string
	Bucket             string
	Key                string
	S3                 S3Config
	GCSCredentialsFile string
}

func New(ctx context.Context, opts Options) (Source, error) {
	switch opts.Kind {
	case KindLocal:
		return NewLocalFileSource(opts.Path)
	case KindS3:
		return NewS3Source(ctx, opts.S3, opts.Bucket, opts.Key)
	case KindGCS:
		return NewGCSSource(ctx, opts.GCSCredentialsFile, opts.Bucket, opts.Key)
	default:
		return nil, fmt.Errorf("unknown model source %q", opts.Kind)
	}
}
