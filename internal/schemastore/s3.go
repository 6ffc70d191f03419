package schemastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var errObjectNotFound = errors.New("object not found")

// S3Config configures an S3 or MinIO bucket for schema dumps
type S3Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type objectClient interface {
	Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	LastModified(ctx context.Context, bucket, key string) (time.Time, error)
	Delete(ctx context.Context, bucket, key string) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket, region string) error
}

// S3Store keeps dumps as objects. Expiry runs in-process like FileStore and
// Load also rejects objects older than the TTL.
type S3Store struct {
	client objectClient
	bucket string
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	expiry *expiry
	now    func() time.Time
}

func NewS3Store(ctx context.Context, cfg S3Config, ttl time.Duration, logger *slog.Logger) (*S3Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	store, err := newS3StoreWithClient(cfg.Bucket, cfg.Prefix, ttl, logger, mc)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newS3StoreWithClient(bucket, prefix string, ttl time.Duration, logger *slog.Logger, c objectClient) (*S3Store, error) {
	if c == nil {
		return nil, fmt.Errorf("client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{
		client: c,
		bucket: strings.TrimSpace(bucket),
		prefix: cleanPrefix(prefix),
		ttl:    ttl,
		logger: logger,
		expiry: newExpiry(),
		now:    time.Now,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	return path.Join(s.prefix, key)
}

func (s *S3Store) Save(ctx context.Context, name, content string) (string, error) {
	key := newKey(name)
	objectKey := s.objectKey(key)
	if err := s.client.Put(ctx, s.bucket, objectKey, strings.NewReader(content), int64(len(content)), "application/sql"); err != nil {
		return "", fmt.Errorf("put schema dump %q: %w", objectKey, err)
	}

	s.expiry.schedule(key, s.ttl, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.client.Delete(ctx, s.bucket, objectKey); err != nil && !errors.Is(err, errObjectNotFound) {
			s.logger.Warn("remove expired schema dump", "key", objectKey, "error", err)
			return
		}
		s.logger.Info("schema dump expired", "key", objectKey)
	})
	return key, nil
}

func (s *S3Store) Load(ctx context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	objectKey := s.objectKey(key)

	modified, err := s.client.LastModified(ctx, s.bucket, objectKey)
	if err != nil {
		if errors.Is(err, errObjectNotFound) {
			return "", ErrExpired
		}
		return "", fmt.Errorf("stat schema dump %q: %w", objectKey, err)
	}
	if s.ttl > 0 && s.now().Sub(modified) > s.ttl {
		_ = s.client.Delete(ctx, s.bucket, objectKey)
		return "", ErrExpired
	}

	reader, err := s.client.Get(ctx, s.bucket, objectKey)
	if err != nil {
		if errors.Is(err, errObjectNotFound) {
			return "", ErrExpired
		}
		return "", fmt.Errorf("get schema dump %q: %w", objectKey, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read schema dump %q: %w", objectKey, err)
	}
	return string(data), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	s.expiry.cancel(key)
	objectKey := s.objectKey(key)
	if err := s.client.Delete(ctx, s.bucket, objectKey); err != nil && !errors.Is(err, errObjectNotFound) {
		return fmt.Errorf("delete schema dump %q: %w", objectKey, err)
	}
	return nil
}

// Close stops pending expiry timers
func (s *S3Store) Close() error {
	s.expiry.stop()
	return nil
}

func (s *S3Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.CreateBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func cleanPrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.TrimPrefix(prefix, "/"))
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}
	return prefix
}

func newMinioClient(cfg S3Config) (*minioClient, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	clientImpl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioClient{client: clientImpl}, nil
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint host is required")
	}
	return parsed.Host, parsed.Scheme == "https" || useSSL, nil
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	return mapMinioErr(err)
}

func (m *minioClient) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapMinioErr(err)
	}
	return obj, nil
}

func (m *minioClient) LastModified(ctx context.Context, bucket, key string) (time.Time, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return time.Time{}, mapMinioErr(err)
	}
	return info.LastModified, nil
}

func (m *minioClient) Delete(ctx context.Context, bucket, key string) error {
	return mapMinioErr(m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (m *minioClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := m.client.BucketExists(ctx, bucket)
	return exists, mapMinioErr(err)
}

func (m *minioClient) CreateBucket(ctx context.Context, bucket, region string) error {
	return mapMinioErr(m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}))
}

func mapMinioErr(err error) error {
	if err == nil {
		return nil
	}
	var response minio.ErrorResponse
	if errors.As(err, &response) {
		switch response.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return errObjectNotFound
		}
	}
	return err
}
