package archive

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/config"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

// S3 uploads artifacts to an S3 compatible bucket.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
	log    *zap.Logger
}

func NewS3(ctx context.Context, cfg config.S3Config, log *zap.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, apperrors.ErrConfigInvalid.Withf("s3 bucket is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.ErrConfigInvalid.With(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, log: log}, nil
}

func (s *S3) Name() string { return "s3" }

func (s *S3) Export(ctx context.Context, key string, artifact []byte) error {
	objectKey := path.Join(s.prefix, key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(artifact),
		ContentType:   aws.String("application/pdf"),
		ContentLength: aws.Int64(int64(len(artifact))),
	})
	if err != nil {
		s.log.Error("Failed to upload artifact to S3",
			zap.String("key", objectKey),
			zap.Error(err))
		return err
	}

	s.log.Info("Artifact uploaded to S3",
		zap.String("key", objectKey),
		zap.Int("size", len(artifact)))
	return nil
}
