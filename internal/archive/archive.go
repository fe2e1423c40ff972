package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"nbpress/internal/publish"
)

const contentType = "application/x-ipynb+json"

// Config describes an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region skips the bucket location lookup when set.
	Region string
	Logger *slog.Logger
}

// Bucket stores a copy of every encoded payload in object storage, keyed by
// strategy, document and publish time.
type Bucket struct {
	client *minio.Client
	bucket string
	now    func() time.Time
	logger *slog.Logger
}

func New(cfg Config) (*Bucket, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bucket{client: client, bucket: cfg.Bucket, now: time.Now, logger: logger}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (b *Bucket) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", b.bucket, err)
	}
	b.logger.Info("created archive bucket", "bucket", b.bucket)
	return nil
}

// Archive implements publish.Archiver.
func (b *Bucket) Archive(ctx context.Context, plan publish.Plan, payload []byte) error {
	key := objectKey(plan.Strategy, plan.DocumentID, b.now())
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"title":  plan.Title,
			"target": plan.Target.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", key, err)
	}
	b.logger.Debug("archived payload", "key", key, "bytes", len(payload))
	return nil
}

// List returns the archived keys for a document, oldest first.
func (b *Bucket) List(ctx context.Context, strategy, documentID string) ([]string, error) {
	prefix := path.Join(strategy, documentID) + "/"
	// Cancelling on return releases the listing goroutine after an early exit.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func objectKey(strategy, documentID string, at time.Time) string {
	return path.Join(strategy, documentID, at.UTC().Format("20060102T150405.000Z")+".ipynb")
}
