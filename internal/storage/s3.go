package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/lukezje16/pdfmerger/internal/logging"
	"github.com/lukezje16/pdfmerger/internal/security"
)

// S3API is the subset of *s3.Client the backend calls.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Backend struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
}

func NewS3Backend(client S3API, bucket string) *S3Backend {
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		// 5MB parts; a merged output rarely needs more than a few.
		u.PartSize = 5 * 1024 * 1024
		u.Concurrency = 3
	})

	return &S3Backend{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
	}
}

// Put streams through the multipart uploader. S3 objects only become
// visible once the upload completes, so there is no partial state.
func (s3b *S3Backend) Put(ctx context.Context, key string, data io.Reader) error {
	if err := security.ValidateStorageKey(key); err != nil {
		return fmt.Errorf("invalid storage key %s: %w", key, err)
	}
	result, err := s3b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s3b.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	logging.Debugf("[STORAGE] S3 Put: s3://%s/%s (ETag: %s)", s3b.bucket, key, aws.ToString(result.ETag))
	return nil
}

func (s3b *S3Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s3b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return result.Body, nil
}

func (s3b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := s3b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s3b.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s3b *S3Backend) List(ctx context.Context, prefix string) ([]string, error) {
	infos, err := s3b.ListWithInfo(ctx, prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(infos))
	for _, info := range infos {
		keys = append(keys, info.Key)
	}
	return keys, nil
}

func (s3b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s3b.GetInfo(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s3b *S3Backend) ListWithInfo(ctx context.Context, prefix string) ([]StorageInfo, error) {
	var infos []StorageInfo

	paginator := s3.NewListObjectsV2Paginator(s3b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s3b.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		result, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects with prefix %s: %w", prefix, err)
		}

		for _, obj := range result.Contents {
			if obj.Key == nil {
				continue
			}
			info := StorageInfo{
				Key:  *obj.Key,
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}

	return infos, nil
}

func (s3b *S3Backend) GetInfo(ctx context.Context, key string) (*StorageInfo, error) {
	result, err := s3b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s3b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get info for %s: %w", key, err)
	}

	info := &StorageInfo{
		Key:  key,
		Size: aws.ToInt64(result.ContentLength),
	}
	if result.LastModified != nil {
		info.LastModified = *result.LastModified
	}
	return info, nil
}

// HeadObject reports a missing key as types.NotFound, GetObject as NoSuchKey.
func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
