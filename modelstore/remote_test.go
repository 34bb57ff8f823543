package modelstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/Tutortoise/image-classification-service/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	err     error
	calls   int
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Source_FetchBytes(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{"models/TL_DN201_M4.onnx": []byte("weights")}}
	src := NewS3SourceWithClient(client, "models", "TL_DN201_M4.onnx")

	data, err := src.FetchBytes(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	assert.Equal(t, "s3://models/TL_DN201_M4.onnx", src.String())
}

func TestS3Source_MissingKey(t *testing.T) {
	src := NewS3SourceWithClient(&fakeS3{objects: map[string][]byte{}}, "models", "absent.onnx")

	_, err := src.FetchBytes(context.Background())

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, models.CategoryModelUnavailable, models.CategoryOf(err))
}

func TestS3Source_ServiceError(t *testing.T) {
	src := NewS3SourceWithClient(&fakeS3{err: errors.New("503 slow down")}, "models", "m.onnx")

	_, err := src.FetchBytes(context.Background())

	assert.ErrorIs(t, err, models.ErrTransientFetch)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func (failingReader) Close() error { return nil }

func TestGCSSource_FetchBytes(t *testing.T) {
	src := &GCSSource{
		open: func(_ context.Context, bucket, key string) (io.ReadCloser, error) {
			assert.Equal(t, "models", bucket)
			assert.Equal(t, "vgg16_model.onnx", key)
			return io.NopCloser(bytes.NewReader([]byte("weights"))), nil
		},
		bucket: "models",
		key:    "vgg16_model.onnx",
	}

	data, err := src.FetchBytes(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	assert.Equal(t, "gs://models/vgg16_model.onnx", src.String())
	assert.NoError(t, src.Close())
}

func TestGCSSource_MissingObject(t *testing.T) {
	src := &GCSSource{
		open: func(context.Context, string, string) (io.ReadCloser, error) {
			return nil, storage.ErrObjectNotExist
		},
		bucket: "models",
		key:    "absent.onnx",
	}

	_, err := src.FetchBytes(context.Background())

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGCSSource_ReadFailure(t *testing.T) {
	src := &GCSSource{
		open: func(context.Context, string, string) (io.ReadCloser, error) {
			return failingReader{}, nil
		},
		bucket: "models",
		key:    "m.onnx",
	}

	_, err := src.FetchBytes(context.Background())

	assert.ErrorIs(t, err, models.ErrTransientFetch)
}
