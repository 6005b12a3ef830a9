// Package r2 archives documents to a Cloudflare R2 bucket through its S3
// compatible API.
package r2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/moonwalker/verdict/pkg/env"
	"github.com/moonwalker/verdict/pkg/mime"
)

const (
	endpointFmt  = "https://%s.r2.cloudflarestorage.com"
	configRegion = "auto"
)

const (
	ArchiveKeyFmt = "rulesets/%s/%s.%s"
	archiveTime   = "20060102T150405Z"
)

var ErrNoBucket = errors.New("r2 bucket is not configured")

type Config struct {
	AccountID       string
	Bucket          string
	Domain          string
	AccessKeyID     string
	AccessKeySecret string

	// Endpoint replaces the account endpoint, path style addressing is used
	// with it.
	Endpoint string
}

// ConfigFromEnv reads the CFL_* variables. An unset CFL_R2_BUCKET_NAME
// leaves archiving disabled.
func ConfigFromEnv() Config {
	return Config{
		AccountID:       env.Get("CFL_ACCOUNT_ID", ""),
		Bucket:          env.Get("CFL_R2_BUCKET_NAME", ""),
		Domain:          env.Get("CFL_R2_DOMAIN_NAME", ""),
		AccessKeyID:     env.Get("CFL_R2_ACCESS_KEY_ID", ""),
		AccessKeySecret: env.Get("CFL_R2_ACCESS_KEY_SECRET", ""),
		Endpoint:        env.Get("CFL_R2_ENDPOINT", ""),
	}
}

func (c Config) Enabled() bool {
	return c.Bucket != ""
}

type Client struct {
	cfg      Config
	uploader *manager.Uploader
}

func New(ctx context.Context, c Config) (*Client, error) {
	if !c.Enabled() {
		return nil, ErrNoBucket
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(configRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.AccessKeySecret, "")),
	)
	if err != nil {
		return nil, err
	}

	endpoint := c.Endpoint
	pathStyle := endpoint != ""
	if endpoint == "" {
		endpoint = fmt.Sprintf(endpointFmt, c.AccountID)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = pathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.Concurrency = 1
		u.MaxUploadParts = 1
	})

	return &Client{cfg: c, uploader: uploader}, nil
}

// Upload stores body under key with its sniffed content type and returns
// the public url of the object.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader) (string, error) {
	mtype, body, err := mime.DetectReader(body)
	if err != nil {
		return "", err
	}

	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(mtype),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return c.FmtURL(key), nil
}

// ArchiveRuleSet uploads an exported rule-set document under a key unique to
// name and at.
func (c *Client) ArchiveRuleSet(ctx context.Context, name, format string, data []byte, at time.Time) (string, error) {
	return c.Upload(ctx, ArchiveKey(name, format, at), bytes.NewReader(data))
}

func ArchiveKey(name, format string, at time.Time) string {
	if format == "" {
		format = mime.FormatJSON
	}
	return fmt.Sprintf(ArchiveKeyFmt, name, at.UTC().Format(archiveTime), format)
}

func (c *Client) FmtURL(key string) string {
	if c.cfg.Domain == "" {
		u, err := url.Parse(c.cfg.Endpoint)
		if err != nil || c.cfg.Endpoint == "" {
			return path.Join(c.cfg.Bucket, key)
		}
		u.Path = path.Join(u.Path, c.cfg.Bucket, key)
		return u.String()
	}
	u := &url.URL{
		Scheme: "https",
		Host:   c.cfg.Bucket + "." + c.cfg.Domain,
		Path:   key,
	}
	return u.String()
}
