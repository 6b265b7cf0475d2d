package s3blob

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/journal"
)

// Uploader is the part of manager.Uploader the publisher uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Publisher uploads run directories under <prefix>/<run_id>/.
type Publisher struct {
	up     Uploader
	bucket string
	prefix string
	log    *zap.Logger
}

// NewPublisher wraps an S3 client in a multipart upload manager.
func NewPublisher(client *s3.Client, bucket, prefix string, log *zap.Logger) *Publisher {
	return NewPublisherWithUploader(manager.NewUploader(client), bucket, prefix, log)
}

func NewPublisherWithUploader(up Uploader, bucket, prefix string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{up: up, bucket: bucket, prefix: strings.Trim(prefix, "/"), log: log}
}

// Key is the object key of a run artifact.
func (p *Publisher) Key(runID, name string) string {
	return path.Join(p.prefix, runID, name)
}

// Publish verifies the manifest of dir and uploads every listed artifact,
// then the manifest itself. A reader that finds the manifest can rely on
// every file it lists being present.
func (p *Publisher) Publish(ctx context.Context, dir string) ([]string, error) {
	m, err := journal.VerifyManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("s3blob: %s: %w", dir, err)
	}
	names := make([]string, 0, len(m.Files)+1)
	for _, f := range m.Files {
		names = append(names, f.Path)
	}
	names = append(names, journal.FileManifest)

	keys := make([]string, 0, len(names))
	for _, name := range names {
		key := p.Key(m.RunID, name)
		if err := p.upload(ctx, filepath.Join(dir, name), key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	p.log.Info("run published",
		zap.String("run_id", m.RunID),
		zap.String("bucket", p.bucket),
		zap.Int("objects", len(keys)),
	)
	return keys, nil
}

func (p *Publisher) upload(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = p.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(file)),
	})
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", key, err)
	}
	return nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html"
	case ".org":
		return "text/plain"
	}
	return "application/octet-stream"
}
