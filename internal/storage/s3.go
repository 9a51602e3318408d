package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/xerrors"
)

type s3Storage struct {
	client *s3.Client
	config S3Config
}

type S3Config struct {
	Bucket string
	// Prefix is prepended to every key.
	Prefix string
}

func NewS3Storage(ctx context.Context, s S3Config) (Storage, error) {
	if s.Bucket == "" {
		return nil, xerrors.New("bucket is required")
	}

	c, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to load AWS config: %w", err)
	}
	// S3_ENDPOINT_URL points at S3 compatible stores such as MinIO.
	endpoint, hasEndpoint := os.LookupEnv("S3_ENDPOINT_URL")
	client := s3.NewFromConfig(c, func(o *s3.Options) {
		o.UsePathStyle = true
		if hasEndpoint {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &s3Storage{
		client: client,
		config: s,
	}, nil
}

func (s *s3Storage) key(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.config.Prefix, "/") + "/" + key
}

func (s *s3Storage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key = s.key(key)
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}); err != nil {
		return "", xerrors.Errorf("failed to upload to S3: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", s.config.Bucket, key), nil
}

func (s *s3Storage) Get(ctx context.Context, location string) ([]byte, error) {
	key, ok := strings.CutPrefix(location, fmt.Sprintf("s3://%s/", s.config.Bucket))
	if !ok {
		return nil, xerrors.Errorf("%s is not in bucket %s", location, s.config.Bucket)
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to download from S3: %w", err)
	}
	defer result.Body.Close()

	var buffer bytes.Buffer
	if _, err := buffer.ReadFrom(result.Body); err != nil {
		return nil, xerrors.Errorf("failed to read S3 object: %w", err)
	}

	return buffer.Bytes(), nil
}
