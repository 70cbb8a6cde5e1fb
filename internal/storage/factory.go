package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	internalConfig "github.com/lukezje16/pdfmerger/internal/config"
	"github.com/lukezje16/pdfmerger/internal/logging"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend string
	DataDir string

	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3AccessKeyID    string
	S3SecretKey      string
	S3ForcePathStyle bool
}

// LoadConfig reads the storage settings from the environment.
func LoadConfig() Config {
	return Config{
		Backend:          strings.ToLower(internalConfig.Get("STORAGE_BACKEND", "filesystem")),
		DataDir:          internalConfig.Get("DATA_DIR", "/data"),
		S3Bucket:         internalConfig.Get("S3_BUCKET", ""),
		S3Region:         internalConfig.Get("S3_REGION", "us-east-1"),
		S3Endpoint:       internalConfig.Get("S3_ENDPOINT", ""),
		S3AccessKeyID:    internalConfig.Get("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:      internalConfig.Get("S3_SECRET_ACCESS_KEY", ""),
		S3ForcePathStyle: internalConfig.GetBool("S3_FORCE_PATH_STYLE", false),
	}
}

// Validate checks the settings without touching the network.
func (cfg Config) Validate() error {
	switch cfg.Backend {
	case "filesystem":
		if cfg.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required for filesystem backend")
		}
		return nil
	case "s3":
		if cfg.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for S3 backend")
		}
		if cfg.S3Region == "" {
			return fmt.Errorf("S3_REGION is required for S3 backend")
		}
		if cfg.S3Endpoint != "" {
			if _, err := url.Parse(cfg.S3Endpoint); err != nil {
				return fmt.Errorf("invalid S3_ENDPOINT: %w", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown storage backend: %s (valid options: filesystem, s3)", cfg.Backend)
	}
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config) (StorageBackendWithInfo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "s3":
		backend, err := createS3Backend(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 backend: %w", err)
		}
		logging.Logf("[STORAGE] Initialized S3 backend: s3://%s (endpoint: %s)", cfg.S3Bucket, cfg.S3Endpoint)
		return backend, nil
	default:
		backend := NewFilesystemBackend(cfg.DataDir)
		logging.Logf("[STORAGE] Initialized filesystem backend: %s", backend.BasePath())
		return backend, nil
	}
}

func createS3Backend(ctx context.Context, cfg Config) (StorageBackendWithInfo, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3ForcePathStyle
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.S3Bucket),
	}); err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket %s: %w", cfg.S3Bucket, err)
	}

	return NewS3Backend(client, cfg.S3Bucket), nil
}
