// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package media stores profile images in S3-compatible object storage.
package media

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/samber/oops"

	"github.com/hemasrilatha/cms/internal/auth"
)

// S3Config configures an S3Store.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL is the base under which stored objects are served. When
	// empty, Endpoint + "/" + Bucket is used.
	PublicURL string
}

// objectAPI is the subset of *s3.Client used by S3Store.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store implements auth.ImageStore.
type S3Store struct {
	client objectAPI
	bucket string
	base   string
}

var _ auth.ImageStore = (*S3Store)(nil)

var loadDefaultConfig = config.LoadDefaultConfig

// NewS3Store builds an S3 client from cfg. Static credentials are used when
// an access key is given, otherwise the default AWS chain applies.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, oops.Code("MEDIA_CONFIG_INVALID").Errorf("bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := loadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, oops.Code("MEDIA_CONFIG_INVALID").With("bucket", cfg.Bucket).Wrap(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg)
}

func newS3Store(client objectAPI, cfg S3Config) (*S3Store, error) {
	base := cfg.PublicURL
	if base == "" {
		if cfg.Endpoint == "" {
			return nil, oops.Code("MEDIA_CONFIG_INVALID").
				With("bucket", cfg.Bucket).
				Errorf("public url or endpoint is required")
		}
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Store{client: client, bucket: cfg.Bucket, base: strings.TrimRight(base, "/")}, nil
}

// Put implements auth.ImageStore.
func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", oops.Code("MEDIA_PUT_FAILED").With("key", key).Wrap(err)
	}
	return s.base + "/" + key, nil
}

// Delete implements auth.ImageStore. URLs outside this store are rejected.
func (s *S3Store) Delete(ctx context.Context, rawURL string) error {
	key, err := s.keyOf(rawURL)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return oops.Code("MEDIA_DELETE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

func (s *S3Store) keyOf(rawURL string) (string, error) {
	rest, ok := strings.CutPrefix(rawURL, s.base+"/")
	if !ok || rest == "" {
		return "", oops.Code("MEDIA_FOREIGN_URL").With("url", rawURL).Errorf("url is not served by this store")
	}
	key, err := url.PathUnescape(rest)
	if err != nil {
		return "", oops.Code("MEDIA_FOREIGN_URL").With("url", rawURL).Wrap(err)
	}
	return key, nil
}
