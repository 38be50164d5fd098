package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"dkronbackup/internal/storage"
)

// Config holds the configuration for an S3-compatible archive bucket.
type Config struct {
	Bucket          string
	KeyPrefix       string // optional object key prefix, no prefix by default
	Region          string
	Endpoint        string // custom endpoint for MinIO/R2/B2/Wasabi
	AccessKeyID     string // optional, falls back to AWS credential chain
	SecretAccessKey string
	StorageClass    string // e.g. "STANDARD", "STANDARD_IA", "GLACIER"
	ForcePathStyle  bool   // required for MinIO and some S3-compatible stores
}

// putObjectAPI is the slice of the S3 client the uploader needs.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader archives snapshot files to an S3 bucket.
type Uploader struct {
	client       putObjectAPI
	bucket       string
	prefix       string
	storageClass s3types.StorageClass
	logger       *slog.Logger
}

// New creates an uploader from the given config.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	// Build AWS config options
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	// Build S3 client options. An upload is tried exactly once.
	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Retryer = aws.NopRetryer{}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for most S3-compatible stores
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg, logger), nil
}

func newWithClient(client putObjectAPI, cfg Config, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	sc := s3types.StorageClassStandard
	if cfg.StorageClass != "" {
		sc = s3types.StorageClass(cfg.StorageClass)
	}
	return &Uploader{
		client:       client,
		bucket:       cfg.Bucket,
		prefix:       strings.Trim(cfg.KeyPrefix, "/"),
		storageClass: sc,
		logger:       logger,
	}
}

// ObjectKey returns the full object key for name. An empty name defaults
// to the base name of localPath.
func (u *Uploader) ObjectKey(localPath, name string) string {
	if name == "" {
		name = filepath.Base(localPath)
	}
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// UploadFile stores the file at localPath under objectKey.
func (u *Uploader) UploadFile(ctx context.Context, localPath, objectKey string) (*storage.BackupMetadata, error) {
	key := u.ObjectKey(localPath, objectKey)

	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("s3: failed to stat %s: %w", localPath, err)
	}

	input := &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         file,
		ContentType:  aws.String("application/json"),
		StorageClass: u.storageClass,
	}
	if info.Size() > 0 {
		input.ContentLength = aws.Int64(info.Size())
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("s3: failed to upload %s: %w", key, err)
	}

	return &storage.BackupMetadata{
		Key:       key,
		FileName:  path.Base(key),
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}, nil
}

// Upload is UploadFile as a best-effort step: failures are logged and
// reported as false, never returned.
func (u *Uploader) Upload(ctx context.Context, localPath, objectKey string) bool {
	meta, err := u.UploadFile(ctx, localPath, objectKey)
	if err != nil {
		attrs := []any{"bucket", u.bucket, "file", localPath, "error", err}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			attrs = append(attrs, "code", apiErr.ErrorCode())
		}
		u.logger.Error("archive upload failed", attrs...)
		return false
	}
	u.logger.Info("archive uploaded", "bucket", u.bucket, "key", meta.Key, "size", meta.Size)
	return true
}
