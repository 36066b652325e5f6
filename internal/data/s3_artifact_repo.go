package data

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/target/mmk-reports-api/internal/core"
)

// Artifact store failures, matched with errors.Is on the error returned by Put.
var (
	ErrArtifactBucketNotFound = errors.New("artifact bucket not found")
	ErrArtifactAccessDenied   = errors.New("artifact store access denied")
	ErrArtifactThrottled      = errors.New("artifact store throttled")
	ErrArtifactUnavailable    = errors.New("artifact store unavailable")
)

// S3Config configures the S3 (or S3-compatible) artifact store.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Validate checks the minimum required configuration.
func (c S3Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("s3 bucket is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("s3 access key id and secret access key must be set together")
	}
	return nil
}

// s3API is the subset of the S3 client used by the artifact store.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3ArtifactRepo writes report artifacts to an S3 bucket.
type S3ArtifactRepo struct {
	client s3API
	bucket string
}

var _ core.ArtifactStore = (*S3ArtifactRepo)(nil)

// NewS3ArtifactRepo builds an S3 client from cfg using the SDK default credential chain
// unless static credentials are configured.
func NewS3ArtifactRepo(ctx context.Context, cfg S3Config) (*S3ArtifactRepo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3ArtifactRepo{client: client, bucket: cfg.Bucket}, nil
}

func loadAWSConfig(ctx context.Context, cfg S3Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	// S3-compatible stores generally ignore region but the signer still needs one.
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	return awsCfg, nil
}

// Put uploads the artifact and returns its s3:// location.
func (r *S3ArtifactRepo) Put(ctx context.Context, params core.PutArtifactParams) (string, error) {
	key := strings.TrimLeft(strings.TrimSpace(params.Key), "/")
	if key == "" {
		return "", ErrArtifactKeyRequired
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(params.Body),
		ContentLength: aws.Int64(int64(len(params.Body))),
		Metadata:      params.Metadata,
	}
	if params.ContentType != "" {
		input.ContentType = aws.String(params.ContentType)
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		return "", r.wrapError("put", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", r.bucket, key), nil
}

// Health verifies the bucket is reachable with the configured credentials.
func (r *S3ArtifactRepo) Health(ctx context.Context) error {
	if _, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(r.bucket)}); err != nil {
		return r.wrapError("head bucket", "", err)
	}
	return nil
}

// wrapError classifies SDK errors into the artifact sentinels while keeping the original cause.
func (r *S3ArtifactRepo) wrapError(op, key string, err error) error {
	target := classifyS3Error(err)
	where := r.bucket
	if key != "" {
		where += "/" + key
	}
	if target == nil {
		return fmt.Errorf("s3 %s %s: %w", op, where, err)
	}
	return fmt.Errorf("s3 %s %s: %w: %w", op, where, target, err)
}

func classifyS3Error(err error) error {
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return ErrArtifactBucketNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound":
			return ErrArtifactBucketNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return ErrArtifactAccessDenied
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			return ErrArtifactThrottled
		case "ServiceUnavailable", "InternalError":
			return ErrArtifactUnavailable
		}
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return ErrArtifactUnavailable
}
