package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client wraps the AWS S3 client for S3/R2/MinIO compatible storage
type S3Client struct {
	client   *s3.Client
	bucket   string
	cdnURL   string // optional CDN base URL
	basePath string // prefix for all objects (e.g. "exports/")
	endpoint string
}

// S3Config holds S3-compatible storage configuration
type S3Config struct {
	Endpoint        string // e.g. https://xxx.r2.cloudflarestorage.com
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	CDNURL          string
	BasePath        string
	ForcePathStyle  bool // true for MinIO/R2
}

// NewS3Client creates a new S3-compatible storage client
func NewS3Client(cfg S3Config) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}

	opts := func(o *s3.Options) {
		o.Region = cfg.Region
		o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}

	client := s3.New(s3.Options{}, opts)

	return &S3Client{
		client:   client,
		bucket:   cfg.Bucket,
		cdnURL:   strings.TrimSuffix(cfg.CDNURL, "/"),
		basePath: strings.Trim(cfg.BasePath, "/"),
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
	}, nil
}

// Put uploads an object and returns its public URL
func (c *S3Client) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	fullKey := c.objectKey(key)

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("storage put %s: %w", fullKey, err)
	}

	return c.URL(key), nil
}

// Get downloads an object
func (c *S3Client) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := c.objectKey(key)

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return nil, fmt.Errorf("storage get %s: %w", fullKey, err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// URL returns the public URL for an object key
func (c *S3Client) URL(key string) string {
	fullKey := c.objectKey(key)
	if c.cdnURL != "" {
		return c.cdnURL + "/" + fullKey
	}
	if c.endpoint != "" {
		return c.endpoint + "/" + c.bucket + "/" + fullKey
	}
	return (&url.URL{Scheme: "https", Host: c.bucket + ".s3.amazonaws.com", Path: "/" + fullKey}).String()
}

func (c *S3Client) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if c.basePath == "" {
		return key
	}
	return path.Join(c.basePath, key)
}
