package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/vainnor/painel/config"
	"github.com/vainnor/painel/models"
)

// ObjectAPI is the subset of the S3 client used by the store.
type ObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 stores datasets as CSV objects in a single bucket. Writes are
// conditional on the ETag read just before, mirroring the GitHub SHA check.
type S3 struct {
	api    ObjectAPI
	bucket string
	paths  Paths
	logger *zap.Logger
}

// NewS3 builds a client from the default AWS chain, overridden by any
// explicit credentials and endpoint in cfg.
func NewS3(ctx context.Context, cfg config.S3, paths Paths, logger *zap.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithAPI(client, cfg.Bucket, paths, logger), nil
}

func NewS3WithAPI(api ObjectAPI, bucket string, paths Paths, logger *zap.Logger) *S3 {
	return &S3{
		api:    api,
		bucket: bucket,
		paths:  paths,
		logger: logger.With(zap.String("remote", config.DriverS3), zap.String("bucket", bucket)),
	}
}

func (s *S3) Name() string { return config.DriverS3 }

func (s *S3) ResolvePath(key string) string { return s.paths.Resolve(key) }

func (s *S3) Load(ctx context.Context, key string) (models.Table, bool) {
	path := s.ResolvePath(key)
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &path})
	if err != nil {
		s.logger.Warn("remote load failed", zap.String("path", path), zap.Error(err))
		return models.Table{}, false
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		s.logger.Warn("remote load failed", zap.String("path", path), zap.Error(err))
		return models.Table{}, false
	}
	t, err := DecodeCSV(raw)
	if err != nil {
		s.logger.Warn("remote file unreadable", zap.String("path", path), zap.Error(err))
		return models.Table{}, false
	}
	return t, true
}

func (s *S3) Save(ctx context.Context, t models.Table, path, message string) bool {
	log := s.logger.With(zap.String("path", path))
	in := &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &path,
		Body:        bytes.NewReader(EncodeCSV(t)),
		ContentType: aws.String("text/csv; charset=utf-8"),
	}

	head, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &path})
	switch {
	case err == nil:
		in.IfMatch = head.ETag
	case isNotFound(err):
		in.IfNoneMatch = aws.String("*")
		message = "Criando: " + message
	default:
		log.Warn("remote save failed", zap.Error(err))
		return false
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		log.Warn("remote save failed", zap.Error(err))
		return false
	}
	log.Info("remote file saved", zap.String("message", message), zap.Int("rows", t.Len()))
	return true
}

func (s *S3) Check(ctx context.Context) (Status, error) {
	st := Status{Driver: s.Name(), Location: s.bucket}
	out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    &s.bucket,
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return st, err
	}
	for _, p := range out.CommonPrefixes {
		st.Entries = append(st.Entries, aws.ToString(p.Prefix))
	}
	for _, obj := range out.Contents {
		st.Entries = append(st.Entries, aws.ToString(obj.Key))
	}
	sort.Strings(st.Entries)
	return st, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
