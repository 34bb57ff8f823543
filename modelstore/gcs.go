package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Tutortoise/image-classification-service/models"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type objectOpener func(ctx context.Context, bucket, key string) (io.ReadCloser, error)

// GCSSource fetches the artifact from a Google Cloud Storage bucket.
type GCSSource struct {
	open   objectOpener
	client *storage.Client
	bucket string
	key    string
}

// NewGCSSource uses credentialsFile when set, Application Default Credentials
// otherwise.
func NewGCSSource(ctx context.Context, credentialsFile, bucket, key string) (*GCSSource, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("bucket and key cannot be empty")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSSource{
		open: func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
			return client.Bucket(bucket).Object(key).NewReader(ctx)
		},
		client: client,
		bucket: bucket,
		key:    key,
	}, nil
}

func (g *GCSSource) FetchBytes(ctx context.Context) ([]byte, error) {
	reader, err := g.open(ctx, g.bucket, g.key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrNotFound,
				fmt.Errorf("open %s: %w", g, err))
		}
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrTransientFetch,
			fmt.Errorf("open %s: %w", g, err))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, models.ModelUnavailableError(models.StageModelLoad, models.ErrTransientFetch,
			fmt.Errorf("read %s: %w", g, err))
	}
	return data, nil
}

// Close closes the GCS client
func (g *GCSSource) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GCSSource) String() string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, g.key)
}
