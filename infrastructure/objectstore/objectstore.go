// Package objectstore is the artifact store the site build pipeline
// publishes immutable SiteVersion snapshots into: one S3-compatible bucket,
// keyed by the SiteVersion's artifact prefix. Every object written under a
// version's prefix is write-once — activation never mutates an object, it
// only flips which prefix the Site Resolver reads from.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
)

// Config holds the connection settings for an S3-compatible endpoint —
// AWS S3 itself, or any compatible provider reachable via a custom endpoint
// (MinIO, Hetzner, etc.) addressed with path-style URLs.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// UsePathStyle must be true for most non-AWS S3-compatible endpoints.
	UsePathStyle bool
}

// Store wraps an S3 client and uploader scoped to one bucket.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// New builds a Store from cfg. A custom Endpoint selects a non-AWS
// S3-compatible provider; leaving it empty uses AWS's regional endpoints.
func New(ctx context.Context, cfg Config) (*Store, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	}
	if cfg.Endpoint != "" {
		optFns = append(optFns, config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: cfg.Endpoint, SigningRegion: region, HostnameImmutable: true}, nil
			})))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

// HealthCheck confirms the configured bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return svcerrors.Wrap(svcerrors.CodeInternal, "objectstore: bucket unreachable", err)
	}
	return nil
}

// Put uploads content at key, using the multipart-aware uploader so large
// artifacts (pages, bundled assets) don't need to fit in memory at once.
func (s *Store) Put(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return svcerrors.Wrap(svcerrors.CodeInternal, "objectstore: put "+key, err)
	}
	return nil
}

// Get downloads an object's full content.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, svcerrors.NotFound("artifact", key)
		}
		return nil, svcerrors.Wrap(svcerrors.CodeInternal, "objectstore: get "+key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.CodeInternal, "objectstore: read "+key, err)
	}
	return data, nil
}

// Delete removes every object under prefix — used to reclaim storage for a
// SiteVersion that has rolled out of a tenant's retention window. Never
// called on an active version's prefix.
func (s *Store) Delete(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return svcerrors.Wrap(svcerrors.CodeInternal, "objectstore: delete "+key, err)
		}
	}
	return nil
}

// List enumerates every object key under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, svcerrors.Wrap(svcerrors.CodeInternal, "objectstore: list "+prefix, err)
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key != nil {
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}

// JoinKey joins an artifact prefix and a relative file path into a full
// object key, normalizing path separators to the forward slashes S3 keys
// require.
func JoinKey(prefix, relPath string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	relPath = strings.TrimPrefix(relPath, "/")
	return prefix + "/" + relPath
}
