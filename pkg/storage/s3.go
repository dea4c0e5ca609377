package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config contains configuration for the S3 backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3API is the subset of the S3 client used by S3Backend.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend implements Backend over an S3 bucket. File IDs are object keys;
// the first key segment is the managed container. Moves are a server-side
// copy followed by a delete of the source object.
type S3Backend struct {
	client S3API
	bucket string
	logger *slog.Logger
}

// NewS3Backend creates a backend with a static-credential S3 client.
func NewS3Backend(config S3Config) (*S3Backend, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if config.AccessKeyID == "" || config.SecretAccessKey == "" {
		return nil, fmt.Errorf("s3 access key id and secret access key are required")
	}

	opts := s3.Options{
		Region: config.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		)),
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
		UsePathStyle:     config.UsePathStyle,
	}
	if config.Endpoint != "" {
		opts.BaseEndpoint = aws.String(config.Endpoint)
	}

	return NewS3BackendWithClient(s3.New(opts), config.Bucket), nil
}

// NewS3BackendWithClient creates a backend over an existing client.
func NewS3BackendWithClient(client S3API, bucket string) *S3Backend {
	return &S3Backend{
		client: client,
		bucket: bucket,
		logger: slog.Default().With("component", "storage.s3"),
	}
}

// ResolveFile heads the object and derives its container and extension.
func (b *S3Backend) ResolveFile(ctx context.Context, fileID string) (*FileInfo, error) {
	logical, ok := CleanPath(fileID)
	if !ok {
		return nil, opError("resolve", fileID, ErrNotFound)
	}
	key := strings.TrimPrefix(logical, "/")

	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, opError("resolve", fileID, mapS3Error(err))
	}

	return &FileInfo{
		FileID:      key,
		ContainerID: containerOf(logical),
		Path:        logical,
		Extension:   Extension(logical),
		Size:        aws.ToInt64(out.ContentLength),
	}, nil
}

// MoveFile copies the object under targetDir and deletes the source.
func (b *S3Backend) MoveFile(ctx context.Context, fileID, targetDir string) (string, error) {
	src, ok := CleanPath(fileID)
	if !ok {
		return "", opError("move", fileID, ErrNotFound)
	}
	dir, ok := CleanPath(targetDir)
	if !ok {
		return "", opError("move", fileID, ErrInvalidTarget)
	}
	dst := path.Join(dir, path.Base(src))
	srcKey := strings.TrimPrefix(src, "/")
	dstKey := strings.TrimPrefix(dst, "/")

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(dstKey),
	})
	if err == nil {
		return "", opError("move", fileID, fmt.Errorf("%w: %s already exists", ErrInvalidTarget, dst))
	}
	if !errors.Is(mapS3Error(err), ErrNotFound) {
		return "", opError("move", fileID, mapS3Error(err))
	}

	_, err = b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(b.bucket + "/" + escapeKey(srcKey)),
	})
	if err != nil {
		return "", opError("move", fileID, mapS3Error(err))
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(srcKey),
	})
	if err != nil {
		// The copy exists; leave it and report so the caller retries.
		return "", opError("move", fileID, fmt.Errorf("copied to %s but failed to remove source: %w", dst, mapS3Error(err)))
	}

	b.logger.Debug("object moved", "file_id", fileID, "target", dst)
	return dst, nil
}

// DeleteFile removes the object. S3 deletes are idempotent, so the object is
// headed first to report missing files.
func (b *S3Backend) DeleteFile(ctx context.Context, fileID string) error {
	logical, ok := CleanPath(fileID)
	if !ok {
		return opError("delete", fileID, ErrNotFound)
	}
	key := strings.TrimPrefix(logical, "/")

	if _, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return opError("delete", fileID, mapS3Error(err))
	}

	if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return opError("delete", fileID, mapS3Error(err))
	}

	b.logger.Debug("object deleted", "file_id", fileID)
	return nil
}

// ListContainers returns the bucket's top-level prefixes.
func (b *S3Backend) ListContainers(ctx context.Context) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Delimiter: aws.String("/"),
	})

	var out []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, opError("list", "", mapS3Error(err))
		}
		for _, cp := range page.CommonPrefixes {
			if name := strings.TrimSuffix(aws.ToString(cp.Prefix), "/"); name != "" {
				out = append(out, name)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func escapeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func mapS3Error(err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %v", ErrPermission, err)
		case "NoSuchBucket", "InvalidObjectState":
			return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}
	}
	return err
}
