// Package s3 fetches content from S3 or an S3-compatible store. Content ids
// look like "s3$bucket/path/to/track.ogg".
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/marmos91/dittocache/pkg/downloader"
)

// Kind is the content id prefix of S3 objects.
const Kind = "s3"

// DefaultRegion is used when no region is configured.
const DefaultRegion = "us-east-1"

// Object metadata keys read by Probe (x-amz-meta-*).
const (
	MetaDuration  = "duration"
	MetaTitle     = "title"
	MetaArtist    = "artist"
	MetaLink      = "link"
	MetaThumbnail = "thumbnail"
)

// ErrObjectNotFound is returned when the object does not exist.
var ErrObjectNotFound = errors.New("s3 object not found")

// Config configures the S3 client.
type Config struct {
	// Region is the AWS region. Default: us-east-1
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the S3 endpoint (MinIO, Localstack).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey select static credentials. When
	// empty the SDK default chain applies.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// API is the subset of the S3 client used by sources.
type API interface {
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

// Client builds Sources sharing one S3 client.
type Client struct {
	api API
}

// New wraps an existing client.
func New(api API) *Client {
	return &Client{api: api}
}

// NewFromConfig creates the S3 client from config.
func NewFromConfig(ctx context.Context, config Config) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	region := config.Region
	if region == "" {
		region = DefaultRegion
	}
	opts = append(opts, awsconfig.WithRegion(region))

	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(awss3.NewFromConfig(awsCfg, s3Opts...)), nil
}

// Factory builds the Source of a "bucket/key" reference.
func (c *Client) Factory(ref string) (downloader.Source, error) {
	bucket, key, ok := strings.Cut(ref, "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 reference must be bucket/key, got %q", ref)
	}
	return &Source{api: c.api, bucket: bucket, key: key}, nil
}

// Register binds the s3 kind in r.
func (c *Client) Register(r *downloader.Registry) {
	r.Register(Kind, c.Factory)
}

// Source is one S3 object.
type Source struct {
	api    API
	bucket string
	key    string
}

// Probe reads the object headers and its user metadata.
func (s *Source) Probe(ctx context.Context) (downloader.SourceInfo, error) {
	out, err := s.api.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return downloader.SourceInfo{}, s.wrap("head object", err)
	}

	base := path.Base(s.key)
	info := downloader.SourceInfo{
		Title: strings.TrimSuffix(base, path.Ext(base)),
		Link:  "s3://" + s.bucket + "/" + s.key,
	}
	if out.ContentLength != nil {
		info.SizeBytes = *out.ContentLength
	}
	if ext := strings.ToLower(path.Ext(s.key)); ext == ".pcm" || ext == ".raw" {
		info.PCM = true
		info.Duration = info.SizeBytes / downloader.BytesPerSecond
	}

	meta := out.Metadata
	if d, err := strconv.ParseFloat(meta[MetaDuration], 64); err == nil && d > 0 {
		info.Duration = int64(d + 0.5)
	}
	if v := meta[MetaTitle]; v != "" {
		info.Title = v
	}
	info.Artist = meta[MetaArtist]
	if v := meta[MetaLink]; v != "" {
		info.Link = v
	}
	info.ThumbnailURL = meta[MetaThumbnail]
	return info, nil
}

// Open streams the object body.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, s.wrap("get object", err)
	}
	return out.Body, nil
}

func (s *Source) wrap(op string, err error) error {
	if isNotFoundError(err) {
		return fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, s.bucket, s.key)
	}
	return fmt.Errorf("s3 %s: %w", op, err)
}

// isNotFoundError reports NoSuchKey and the bare 404 HeadObject returns.
func isNotFoundError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return true
		}
	}
	return false
}

var _ downloader.Source = (*Source)(nil)
