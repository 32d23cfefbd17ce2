package upload

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/storage"
)

const preflightKey = ".chbench-write-test"

// objectPutter is the subset of the S3 client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Uploader implements Uploader for S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	cfg    *config.S3Config
	client objectPutter
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates a new S3 uploader from the given configuration.
func NewS3Uploader(log logrus.FieldLogger, cfg *config.S3Config) (Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		cfg:    cfg,
		client: storage.NewS3Client(cfg),
	}, nil
}

// Preflight verifies S3 connectivity by writing a small test object.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("chbench write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(u.key(preflightKey)),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", u.cfg.Bucket, err)
	}

	return nil
}

type fileEntry struct {
	path string
	key  string
	size int64
}

// Upload walks runDir and uploads its files in parallel. The first failure
// cancels the remaining uploads.
func (u *s3Uploader) Upload(ctx context.Context, runDir string) (*Summary, error) {
	prefix := u.resolvePrefix(filepath.Base(filepath.Clean(runDir)))

	var files []fileEntry

	err := filepath.WalkDir(runDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(runDir, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		files = append(files, fileEntry{
			path: path,
			key:  prefix + "/" + filepath.ToSlash(relPath),
			size: info.Size(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory %s: %w", runDir, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(u.cfg.Concurrency, 1))

	var uploaded atomic.Int64

	for _, f := range files {
		g.Go(func() error {
			if err := u.uploadFile(gctx, f.path, f.key); err != nil {
				return fmt.Errorf("uploading %s: %w", f.key, err)
			}

			uploaded.Add(f.size)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{Prefix: prefix, Files: len(files), Bytes: uploaded.Load()}

	u.log.WithFields(logrus.Fields{
		"files":  summary.Files,
		"bytes":  summary.Bytes,
		"bucket": u.cfg.Bucket,
		"prefix": prefix,
	}).Info("Upload completed")

	return summary, nil
}

// uploadFile uploads a single file to S3.
func (u *s3Uploader) uploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	u.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": u.cfg.Bucket,
	}).Debug("Uploading file")

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(detectContentType(localPath)),
	})
	if err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	return nil
}

func (u *s3Uploader) key(name string) string {
	return storage.ResolveS3Prefix(u.cfg.Prefix) + "/" + name
}

// resolvePrefix builds the S3 key prefix for a run directory.
func (u *s3Uploader) resolvePrefix(baseName string) string {
	return u.key("runs/" + baseName)
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(path string) string {
	switch filepath.Ext(path) {
	case "":
		return "application/octet-stream"
	case ".prom":
		return "text/plain; version=0.0.4"
	case ".tex", ".md":
		return "text/plain; charset=utf-8"
	}

	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}
