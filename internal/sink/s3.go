package sink

import (
	"bytes"
	"context"
	"path"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/docbridge/docbridge/pkg/errors"
	"github.com/docbridge/docbridge/pkg/retry"
	"github.com/docbridge/docbridge/pkg/types"
	"github.com/docbridge/docbridge/pkg/utils"
)

// S3Config configures the S3 sink.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	UseCargoShip    bool
	// Concurrency is the cargoship part concurrency; 0 means 4.
	Concurrency int
	// MaxAttempts bounds PutObject attempts per document; 0 means the
	// retry package default.
	MaxAttempts int
}

// putObjectAPI is the subset of *s3.Client the sink calls.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type uploadFunc func(ctx context.Context, archive cargoships3.Archive) error

// S3 uploads documents to a bucket under a key prefix.
type S3 struct {
	client   putObjectAPI
	upload   uploadFunc
	bucket   string
	prefix   string
	retryer  *retry.Retryer
	logger   *utils.StructuredLogger
	uploaded atomic.Int64
}

// NewS3 builds the S3 client from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg S3Config, logger *utils.StructuredLogger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.NewError(errors.ErrCodeStorageConfig, "bucket name cannot be empty").
			WithComponent("sink").
			WithOperation("open")
	}
	if logger == nil {
		logger = utils.NopLogger()
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeStorageConfig, "failed to load AWS config").
			WithComponent("sink").
			WithOperation("open").
			WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	var upload uploadFunc
	if cfg.UseCargoShip {
		concurrency := cfg.Concurrency
		if concurrency <= 0 {
			concurrency = 4
		}
		transporter := cargoships3.NewTransporter(client, awsconfig.S3Config{
			Bucket:             cfg.Bucket,
			StorageClass:       awsconfig.StorageClassStandard,
			MultipartThreshold: 32 * 1024 * 1024,
			MultipartChunkSize: 16 * 1024 * 1024,
			Concurrency:        concurrency,
		})
		upload = func(ctx context.Context, archive cargoships3.Archive) error {
			result, err := transporter.Upload(ctx, archive)
			if err != nil {
				return err
			}
			logger.Debug("cargoship upload completed", map[string]interface{}{
				"key":        archive.Key,
				"throughput": result.Throughput,
				"duration":   result.Duration,
			})
			return nil
		}
	}

	return newS3(client, cfg, upload, logger), nil
}

func newS3(client putObjectAPI, cfg S3Config, upload uploadFunc, logger *utils.StructuredLogger) *S3 {
	s := &S3{
		client: client,
		upload: upload,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.WithComponent("sink").WithField("bucket", cfg.Bucket),
	}

	policy := retry.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.WithError(err).Warn("upload failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		})
	}
	s.retryer = retry.New(policy)
	return s
}

// UsesCargoShip reports whether uploads go through the cargoship transporter.
func (s *S3) UsesCargoShip() bool { return s.upload != nil }

// Uploaded returns the number of documents stored so far.
func (s *S3) Uploaded() int64 { return s.uploaded.Load() }

// Key returns the object key a document is stored under.
func (s *S3) Key(index int, doc types.EmbeddedDocument) string {
	name := FileName(index, doc)
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func objectMetadata(index int, doc types.EmbeddedDocument) map[string]string {
	md := map[string]string{
		"docbridge-index": strconv.Itoa(index),
	}
	if doc.ResourceName != "" {
		md["resource-name"] = doc.ResourceName
	}
	if id := doc.RelationshipID(); id != "" {
		md["relationship-id"] = id
	}
	return md
}

func contentType(doc types.EmbeddedDocument) string {
	if doc.ContentType == "" {
		return "application/octet-stream"
	}
	return doc.ContentType
}

// Store implements types.DocumentSink. A failed cargoship upload falls back
// to PutObject, which is retried with backoff.
func (s *S3) Store(ctx context.Context, index int, doc types.EmbeddedDocument) error {
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}

	key := s.Key(index, doc)
	metadata := objectMetadata(index, doc)

	if s.upload != nil {
		err := s.upload(ctx, cargoships3.Archive{
			Key:          key,
			Reader:       bytes.NewReader(doc.Content),
			Size:         int64(doc.Size()),
			StorageClass: awsconfig.StorageClassStandard,
			Metadata:     metadata,
		})
		if err == nil {
			s.uploaded.Add(1)
			return nil
		}
		s.logger.WithError(err).Warn("cargoship upload failed, falling back to PutObject", map[string]interface{}{
			"key": key,
		})
	}

	err := s.retryer.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(doc.Content),
			ContentLength: aws.Int64(int64(doc.Size())),
			ContentType:   aws.String(contentType(doc)),
			Metadata:      metadata,
		})
		if err != nil {
			return errors.NewError(errors.ErrCodeStorageWrite, "failed to upload document").
				WithComponent("sink").
				WithOperation("store").
				WithContext("bucket", s.bucket).
				WithContext("key", key).
				WithCause(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.uploaded.Add(1)
	s.logger.Debug("document uploaded", map[string]interface{}{
		"index": index,
		"key":   key,
		"bytes": doc.Size(),
	})
	return nil
}

// Close implements types.DocumentSink.
func (s *S3) Close() error { return nil }
