// Package s3blob provides an S3 compatible blob backend for cellar.
package s3blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sagarc03/cellar"
)

// Config options for the S3 backend.
type Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	// UsePathStyle addresses buckets as host/bucket/key, which MinIO and
	// most self hosted services need.
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style"`
	// Prefix is prepended to every key.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	// CreateBucket creates the bucket when it does not exist yet.
	CreateBucket bool `mapstructure:"create_bucket" yaml:"create_bucket"`
}

// Store keeps blobs as objects in a single bucket.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	region   string
}

var _ cellar.BlobStore = (*Store)(nil)

// New creates a Store from cfg. Static credentials are used when both keys are
// set, otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	s := &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		region:   cfg.Region,
	}

	if cfg.CreateBucket {
		if err := s.createBucketIfNotExists(ctx); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *Store) createBucketIfNotExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	if !isNotFound(err) {
		return fmt.Errorf("s3blob: check bucket: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("s3blob: create bucket: %w", err)
	}

	return nil
}

// Get opens the object stored under key.
// Returns cellar.ErrNotFound if the object does not exist.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, cellar.ErrNotFound
		}
		return nil, fmt.Errorf("s3blob: get object: %w", err)
	}

	return out.Body, nil
}

// isNotFound matches the typed S3 errors and, for responses without an error
// body such as HEAD, a bare 404.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) || errors.As(err, &notFound) {
		return true
	}

	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

type hashingReader struct {
	r    io.Reader
	h    hash.Hash
	size int64
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.size += int64(n)
	}
	return n, err
}

// Write uploads content under key. Large payloads are sent as multipart
// uploads. The etag is the SHA256 of the content, matching the filesystem
// backend rather than the S3 ETag.
func (s *Store) Write(ctx context.Context, key string, content io.Reader) (cellar.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return cellar.SaveResult{}, err
	}

	hr := &hashingReader{r: content, h: sha256.New()}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   hr,
	})
	if err != nil {
		return cellar.SaveResult{}, fmt.Errorf("s3blob: upload: %w", err)
	}

	return cellar.SaveResult{BytesWritten: hr.size, Etag: hex.EncodeToString(hr.h.Sum(nil))}, nil
}

// Delete removes the object stored under key. Deleting a missing object is
// not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3blob: delete object: %w", err)
	}

	return nil
}
