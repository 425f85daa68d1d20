package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/talentforge/platform/internal/core/ports"
)

// Storage stores blobs in an S3-compatible bucket (AWS S3, Cloudflare R2,
// MinIO). Objects are publicly fetchable through the configured base URL.
type Storage struct {
	client  *awss3.Client
	bucket  string
	baseURL string
}

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicBaseURL is prefixed to pathnames to form the fetchable URL,
	// e.g. a CDN or bucket website endpoint.
	PublicBaseURL string
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Storage{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (s *Storage) Put(ctx context.Context, pathname, contentType string, data io.Reader) (ports.StoredObject, error) {
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(pathname),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return ports.StoredObject{}, fmt.Errorf("s3 put object %s: %w", pathname, err)
	}
	return ports.StoredObject{
		URL:      s.baseURL + "/" + pathname,
		Pathname: pathname,
	}, nil
}

func (s *Storage) Open(ctx context.Context, pathname string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(pathname),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object %s: %w", pathname, err)
	}
	return out.Body, nil
}
