// Package media stores professional portfolio media in S3.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

// MaxObjectBytes caps a single upload.
const MaxObjectBytes = 10 << 20

var (
	ErrInvalidPath     = errors.New("media: invalid object path")
	ErrTooLarge        = errors.New("media: object too large")
	ErrUnsupportedType = errors.New("media: unsupported content type")
	ErrNotConfigured   = errors.New("media: bucket not configured")
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"video/mp4":  true,
}

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store writes media objects under a key prefix and renders public URLs.
type Store struct {
	bucket  string
	prefix  string
	baseURL string
	client  S3API
	logger  *logging.Logger
}

// NewStore creates a media store. baseURL, when set, replaces the default
// virtual-hosted S3 URL (for a CDN or LocalStack).
func NewStore(client S3API, bucket, baseURL string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:  bucket,
		prefix:  "media",
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// Enabled reports whether a bucket and client are configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.client != nil
}

// Put uploads data at objectPath and returns the reference to pass to URL.
// An empty contentType is sniffed from the data.
func (s *Store) Put(ctx context.Context, objectPath, contentType string, data []byte) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}
	key, err := s.objectKey(objectPath)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrInvalidPath)
	}
	if len(data) > MaxObjectBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	contentType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if !allowedTypes[contentType] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=86400"),
	})
	if err != nil {
		return "", fmt.Errorf("media: s3 put %s: %w", key, err)
	}
	s.logger.Info("media stored", "key", key, "content_type", contentType, "bytes", len(data))
	return key, nil
}

// URL renders the public address of a stored object.
func (s *Store) URL(ref string) string {
	escaped := (&url.URL{Path: ref}).EscapedPath()
	if s.baseURL != "" {
		return s.baseURL + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, escaped)
}

func (s *Store) objectKey(objectPath string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(objectPath), "/")
	if trimmed == "" {
		return "", ErrInvalidPath
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
		}
	}
	return path.Join(s.prefix, trimmed), nil
}
