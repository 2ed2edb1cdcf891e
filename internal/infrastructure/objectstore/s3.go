package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"backoffice/internal/core/apperror"
)

// S3 stores objects in one bucket under an optional key prefix.
type S3 struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

var _ Store = (*S3)(nil)

// NewS3 loads AWS credentials from the default chain.
func NewS3(ctx context.Context, bucket, region, keyPrefix string) (*S3, error) {
	opts := []func(*awsConfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsConfig.WithRegion(region))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3{client: s3.NewFromConfig(awsCfg), bucket: bucket, keyPrefix: keyPrefix}, nil
}

func (s *S3) objectKey(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if s.keyPrefix != "" {
		return s.keyPrefix + "/" + key, nil
	}
	return key, nil
}

// WriteFile implements Store.
func (s *S3) WriteFile(ctx context.Context, key string, data []byte, contentType string) error {
	k, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(k),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperror.NewUnavailable("object store", fmt.Errorf("put %s/%s: %w", s.bucket, k, err))
	}
	return nil
}

// ReadFile implements Store.
func (s *S3) ReadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return nil, s.classify(key, err)
	}
	return out.Body, nil
}

// Stat implements Store.
func (s *S3) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	k, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return nil, s.classify(key, err)
	}

	info := &ObjectInfo{Key: key, ContentType: aws.ToString(out.ContentType)}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	return info, nil
}

// Delete implements Store. S3 deletes are idempotent, so a missing key is
// checked first to keep NotFound semantics aligned with Local.
func (s *S3) Delete(ctx context.Context, key string) error {
	if _, err := s.Stat(ctx, key); err != nil {
		return err
	}
	k, _ := s.objectKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return s.classify(key, err)
	}
	return nil
}

func (s *S3) classify(key string, err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return notFound(key)
	}
	return apperror.NewUnavailable("object store", fmt.Errorf("%s/%s: %w", s.bucket, key, err))
}
