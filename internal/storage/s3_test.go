package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fruitbox/internal/config"
	"fruitbox/internal/types"
)

type stubS3 struct {
	putInput  *s3.PutObjectInput
	putErr    error
	delInput  *s3.DeleteObjectInput
	delErr    error
	putCalled bool
}

func (s *stubS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.putCalled = true
	s.putInput = params
	if s.putErr != nil {
		return nil, s.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (s *stubS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	s.delInput = params
	if s.delErr != nil {
		return nil, s.delErr
	}
	return &s3.DeleteObjectOutput{}, nil
}

func newTestImageStore(client S3API) *ImageStore {
	return NewImageStore(client, config.AWSConfig{ImageBucket: "fruitbox-images"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestImageStore_UploadProductImage(t *testing.T) {
	stub := &stubS3{}
	store := newTestImageStore(stub)

	key, err := store.UploadProductImage(context.Background(), "prod_1", "image/jpeg", strings.NewReader("jpegbytes"), 9)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "products/prod_1/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	require.NotNil(t, stub.putInput)
	assert.Equal(t, "fruitbox-images", *stub.putInput.Bucket)
	assert.Equal(t, key, *stub.putInput.Key)
	assert.Equal(t, "image/jpeg", *stub.putInput.ContentType)
	assert.Equal(t, int64(9), *stub.putInput.ContentLength)
}

func TestImageStore_UploadProductImage_KeysAreUnique(t *testing.T) {
	stub := &stubS3{}
	store := newTestImageStore(stub)

	key1, err := store.UploadProductImage(context.Background(), "prod_1", "image/png", strings.NewReader("a"), 1)
	require.NoError(t, err)
	key2, err := store.UploadProductImage(context.Background(), "prod_1", "image/png", strings.NewReader("b"), 1)
	require.NoError(t, err)

	assert.NotEqual(t, key1, key2)
}

func TestImageStore_UploadProductImage_UnsupportedContentType(t *testing.T) {
	stub := &stubS3{}
	store := newTestImageStore(stub)

	_, err := store.UploadProductImage(context.Background(), "prod_1", "application/pdf", strings.NewReader("x"), 1)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidImage, appErr.Code)
	assert.False(t, stub.putCalled)
}

func TestImageStore_UploadProductImage_S3Failure(t *testing.T) {
	stub := &stubS3{putErr: errors.New("connection reset")}
	store := newTestImageStore(stub)

	_, err := store.UploadProductImage(context.Background(), "prod_1", "image/webp", strings.NewReader("x"), 1)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamStorage, appErr.Code)
}

func TestImageStore_DeleteImage(t *testing.T) {
	stub := &stubS3{}
	store := newTestImageStore(stub)

	err := store.DeleteImage(context.Background(), "products/prod_1/abc.jpg")

	require.NoError(t, err)
	require.NotNil(t, stub.delInput)
	assert.Equal(t, "fruitbox-images", *stub.delInput.Bucket)
	assert.Equal(t, "products/prod_1/abc.jpg", *stub.delInput.Key)
}

func TestImageStore_DeleteImage_S3Failure(t *testing.T) {
	stub := &stubS3{delErr: errors.New("access denied")}
	store := newTestImageStore(stub)

	err := store.DeleteImage(context.Background(), "products/prod_1/abc.jpg")

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamStorage, appErr.Code)
}
