// Package s3blob archives position history to an S3 bucket or an
// S3-compatible store such as MinIO or R2.
package s3blob

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultPrefix = "archive"

// ClientConfig locates the archive: a bucket, a key prefix inside it and the
// endpoint serving it.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint, e.g. "minio:9000". Empty means AWS.
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

// Layout maps archive objects to keys under a prefix.
type Layout struct {
	Prefix string
}

// MonthKey is the key of one month of kind, e.g.
// archive/position_events/2026-01.jsonl.
func (l Layout) MonthKey(kind string, month time.Time) string {
	return path.Join(l.prefix(), kind, month.Format("2006-01")+".jsonl")
}

// HealthKey is the marker object rewritten by health checks.
func (l Layout) HealthKey() string {
	return path.Join(l.prefix(), ".health")
}

func (l Layout) prefix() string {
	p := strings.Trim(l.Prefix, "/")
	if p == "" {
		return defaultPrefix
	}
	return p
}

// Client is the archive's handle on one bucket.
type Client struct {
	api    manager.UploadAPIClient
	bucket string
	layout Layout
}

// New builds the SDK client. Static credentials are used when an access key
// is configured; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{
		api:    api,
		bucket: cfg.Bucket,
		layout: Layout{Prefix: cfg.Prefix},
	}, nil
}

// Layout returns the key layout of the archive.
func (c *Client) Layout() Layout {
	return c.layout
}

// Health rewrites the marker object under the archive prefix, so it fails
// when the bucket is missing or the credentials cannot write archives.
func (c *Client) Health(ctx context.Context) error {
	key := c.layout.HealthKey()
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(time.Now().UTC().Format(time.RFC3339)),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: archive prefix not writable (s3://%s/%s): %w", c.bucket, key, err)
	}
	return nil
}

// normaliseEndpoint adds a scheme to endpoints given as host:port.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" && parsed.Host != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
