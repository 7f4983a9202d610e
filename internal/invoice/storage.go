package invoice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/codelits/invoice-manager/internal/clock"
)

var ErrObjectNotFound = errors.New("invoice: archived object not found")

// ObjectMeta describes an archived PDF.
type ObjectMeta struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Storage archives printed invoices and hands out time-limited links.
type Storage interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	GetSignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Head(ctx context.Context, key string) (ObjectMeta, error)
}

// ArchiveKey is the object key of the PDF for invoice id.
func ArchiveKey(inv Invoice) string {
	return fmt.Sprintf("invoices/%s/%s.pdf", inv.ID, url.PathEscape(inv.InvoiceNumber))
}

// MemoryStorage keeps objects in memory, for local runs and tests.
type MemoryStorage struct {
	mu    sync.RWMutex
	clock clock.Clock
	data  map[string][]byte
	meta  map[string]ObjectMeta
}

func NewMemoryStorage(clk clock.Clock) *MemoryStorage {
	return &MemoryStorage{
		clock: clock.OrReal(clk),
		data:  map[string][]byte{},
		meta:  map[string]ObjectMeta{},
	}
}

func (s *MemoryStorage) PutObject(ctx context.Context, key string, body []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), body...)
	s.meta[key] = ObjectMeta{Key: key, Size: int64(len(body)), UpdatedAt: s.clock.Now().UTC()}
	return nil
}

func (s *MemoryStorage) GetSignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data[key]; !ok {
		return "", ErrObjectNotFound
	}
	exp := s.clock.Now().UTC().Add(ttl).Format(time.RFC3339)
	u := url.URL{
		Scheme:   "https",
		Host:     "storage.local",
		Path:     "/" + key,
		RawQuery: "exp=" + url.QueryEscape(exp),
	}
	return u.String(), nil
}

func (s *MemoryStorage) Head(_ context.Context, key string) (ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.meta[key]
	if !ok {
		return ObjectMeta{}, ErrObjectNotFound
	}
	return meta, nil
}

// Object returns the stored bytes of key.
func (s *MemoryStorage) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[key]
	return b, ok
}

// S3Storage archives objects in an S3 bucket. Credentials come from the
// default AWS chain.
type S3Storage struct {
	client *s3.S3
	bucket string
}

// NewS3Storage connects to cfg.S3Bucket. A non-empty cfg.S3Endpoint selects
// an S3-compatible service with path-style addressing.
func NewS3Storage(cfg Config) (*S3Storage, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("invoice: S3_BUCKET is required for S3 storage")
	}
	awsCfg := &aws.Config{Region: aws.String(cfg.S3Region)}
	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3Storage{client: s3.New(sess), bucket: cfg.S3Bucket}, nil
}

func (s *S3Storage) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) GetSignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	u, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return u, nil
}

func (s *S3Storage) Head(ctx context.Context, key string) (ObjectMeta, error) {
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var aerr awserr.RequestFailure
		if errors.As(err, &aerr) && aerr.StatusCode() == 404 {
			return ObjectMeta{}, ErrObjectNotFound
		}
		return ObjectMeta{}, fmt.Errorf("s3 head %s: %w", key, err)
	}
	return ObjectMeta{
		Key:       key,
		Size:      aws.Int64Value(out.ContentLength),
		UpdatedAt: aws.TimeValue(out.LastModified),
	}, nil
}
