// Package storage persists product imagery in S3. Keys are returned to
// callers and stored on the product row; serving is handled by a CDN in
// front of the bucket, so nothing here generates signed URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"fruitbox/internal/config"
	"fruitbox/internal/types"
)

// S3API abstracts the S3 operations ImageStore uses for testability.
// Production code uses the *s3.Client from aws-sdk-go-v2.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// imageExtensions maps the accepted upload content types to the file
// extension used in the object key. Anything else is rejected before we
// touch S3.
var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ImageStore uploads and deletes product images in the configured bucket.
type ImageStore struct {
	client S3API
	bucket string
	logger *slog.Logger
}

// NewImageStore creates an ImageStore writing to cfg.ImageBucket.
func NewImageStore(client S3API, awsCfg config.AWSConfig, logger *slog.Logger) *ImageStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageStore{
		client: client,
		bucket: awsCfg.ImageBucket,
		logger: logger,
	}
}

// UploadProductImage streams an image body to S3 and returns the object key.
// Keys follow products/<productID>/<uuid>.<ext> so re-uploads never clobber
// an image still referenced by cached pages.
func (s *ImageStore) UploadProductImage(ctx context.Context, productID, contentType string, body io.Reader, size int64) (string, error) {
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidImage,
			fmt.Sprintf("unsupported image content type %q", contentType),
			nil,
		)
	}

	key := fmt.Sprintf("products/%s/%s.%s", productID, uuid.NewString(), ext)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
		CacheControl:  aws.String("public, max-age=86400"),
	})
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamStorage,
			fmt.Sprintf("failed to upload image for product %s", productID),
			err,
		)
	}

	s.logger.InfoContext(ctx, "product image uploaded",
		"product_id", productID,
		"bucket", s.bucket,
		"key", key,
	)
	return key, nil
}

// DeleteImage removes a previously uploaded object. S3 DeleteObject is
// idempotent, so deleting an already-removed key succeeds.
func (s *ImageStore) DeleteImage(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStorage,
			fmt.Sprintf("failed to delete image %s", key),
			err,
		)
	}

	s.logger.InfoContext(ctx, "product image deleted",
		"bucket", s.bucket,
		"key", key,
	)
	return nil
}
