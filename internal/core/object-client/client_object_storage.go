package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	cfg "github.com/markdave123-py/talktrack/internal/config"
	"github.com/markdave123-py/talktrack/internal/core"
)

const (
	defaultGetTimeout    = 30 * time.Second
	defaultUploadTimeout = 2 * time.Minute
)

var _ core.BlobStore = (*S3Client)(nil)

// S3Client stores uploads in a single bucket. It also speaks to
// S3-compatible endpoints such as Supabase Storage or MinIO.
type S3Client struct {
	client     *s3.Client
	bucket     string
	getTimeout time.Duration
}

func NewS3Client(ctx context.Context, cfg *cfg.Config) (*S3Client, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfg.AwsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.S3Endpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3ClientFromAPI(client, cfg.BucketName, cfg.BlobTimeout), nil
}

// NewS3ClientFromAPI wraps an already configured SDK client.
func NewS3ClientFromAPI(client *s3.Client, bucket string, getTimeout time.Duration) *S3Client {
	if getTimeout <= 0 {
		getTimeout = defaultGetTimeout
	}
	return &S3Client{client: client, bucket: bucket, getTimeout: getTimeout}
}

// Put uploads data under path.
func (c *S3Client) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	uploader := manager.NewUploader(c.client)

	ctxUpload, cancel := context.WithTimeout(ctx, defaultUploadTimeout)
	defer cancel()

	_, err := uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

// Get downloads the object at path.
func (c *S3Client) Get(ctx context.Context, path string) ([]byte, error) {
	ctxGet, cancel := context.WithTimeout(ctx, c.getTimeout)
	defer cancel()

	resp, err := c.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3 object %q: %w", path, core.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *S3Client) Delete(ctx context.Context, path string) error {
	ctxDel, cancel := context.WithTimeout(ctx, c.getTimeout)
	defer cancel()

	_, err := c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}
