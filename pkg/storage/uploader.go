package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

var (
	errEndpointRequired = errors.New("oss endpoint is required")
	errBucketRequired   = errors.New("oss bucket is required")
)

// Uploader stores validated upload payloads and returns a public URL.
type Uploader interface {
	Upload(ctx context.Context, prefix, contentType string, data []byte) (string, error)
}

// OSSUploader writes objects to an Alibaba Cloud OSS bucket.
type OSSUploader struct {
	bucket        *oss.Bucket
	bucketName    string
	endpoint      string
	publicBaseURL string
	logger        *logger.Logger
}

// NewOSSUploader validates the storage config and opens the bucket handle.
func NewOSSUploader(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger) (*OSSUploader, error) {
	endpoint := strings.TrimSpace(cfg.OSSEndpoint)
	if endpoint == "" {
		return nil, errEndpointRequired
	}
	bucketName := strings.TrimSpace(cfg.OSSBucket)
	if bucketName == "" {
		return nil, errBucketRequired
	}

	client, err := oss.New(endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("oss client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("oss bucket %q: %w", bucketName, err)
	}

	u := &OSSUploader{
		bucket:        bucket,
		bucketName:    bucketName,
		endpoint:      endpoint,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        logg,
	}
	if logg != nil {
		logg.Info(ctx, "oss uploader initialized")
	}
	return u, nil
}

func (u *OSSUploader) Upload(ctx context.Context, prefix, contentType string, data []byte) (string, error) {
	key := objectKey(prefix, contentType)

	if err := u.bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(contentType)); err != nil {
		if u.logger != nil {
			u.logger.Error(ctx, "oss upload failed", err)
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "oss upload failed")
	}

	return u.publicURL(key), nil
}

func (u *OSSUploader) publicURL(key string) string {
	if u.publicBaseURL != "" {
		return u.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.%s/%s", u.bucketName, u.endpoint, key)
}

// objectKey builds "<prefix>/YYYYMMDD/<uuid>.<ext>" from the detected type.
func objectKey(prefix, contentType string) string {
	ext := extensionFor(contentType)
	name := uuid.NewString() + ext
	day := time.Now().UTC().Format("20060102")
	if prefix == "" {
		return path.Join(day, name)
	}
	return path.Join(prefix, day, name)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}

// MemoryUploader keeps uploads in memory for development and tests.
type MemoryUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
}

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{
		objects: map[string][]byte{},
		baseURL: "https://uploads.invalid",
	}
}

func (m *MemoryUploader) Upload(_ context.Context, prefix, contentType string, data []byte) (string, error) {
	key := objectKey(prefix, contentType)

	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[key] = buf

	return m.baseURL + "/" + key, nil
}

// Object returns a stored payload by key.
func (m *MemoryUploader) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return b, ok
}

// Len reports the number of stored objects.
func (m *MemoryUploader) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// NewUploader returns the OSS uploader when configured, or the in-memory
// uploader outside production.
func NewUploader(ctx context.Context, appCfg config.AppConfig, cfg config.StorageConfig, logg *logger.Logger) (Uploader, error) {
	if strings.TrimSpace(cfg.OSSEndpoint) != "" {
		return NewOSSUploader(ctx, cfg, logg)
	}
	if appCfg.IsProd() {
		return nil, errEndpointRequired
	}
	if logg != nil {
		logg.Warn(ctx, "oss endpoint absent, using in-memory uploader")
	}
	return NewMemoryUploader(), nil
}
