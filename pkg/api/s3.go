package api

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/splidsboel/assignment3/pkg/config"
	"github.com/splidsboel/assignment3/pkg/storage"
)

const defaultPresignExpiry = 15 * time.Minute

type presignCacheEntry struct {
	url       string
	expiresAt time.Time
}

// s3Presigner generates presigned GET URLs for uploaded run files.
type s3Presigner struct {
	log           logrus.FieldLogger
	bucket        string
	prefix        string
	presignClient *s3.PresignClient
	expiry        time.Duration
	cacheTTL      time.Duration
	mu            sync.RWMutex
	cache         map[string]presignCacheEntry
}

func newS3Presigner(log logrus.FieldLogger, cfg *config.S3Config, expiry time.Duration) *s3Presigner {
	return &s3Presigner{
		log:           log.WithField("component", "s3-presigner"),
		bucket:        cfg.Bucket,
		prefix:        storage.ResolveS3Prefix(cfg.Prefix),
		presignClient: s3.NewPresignClient(storage.NewS3Client(cfg)),
		expiry:        expiry,
		cacheTTL:      expiry / 2,
		cache:         make(map[string]presignCacheEntry),
	}
}

// Key maps a request path relative to the results directory onto its
// object key.
func (p *s3Presigner) Key(filePath string) string {
	return p.prefix + "/" + filePath
}

// GeneratePresignedURL returns a presigned GET URL for filePath. URLs are
// cached for half their validity.
func (p *s3Presigner) GeneratePresignedURL(ctx context.Context, filePath string) (string, error) {
	if !isAllowedPath(filePath) || !strings.HasPrefix(filePath, "runs/") {
		return "", fmt.Errorf("path %q is not a run file", filePath)
	}

	key := p.Key(filePath)
	now := time.Now()

	p.mu.RLock()
	if entry, ok := p.cache[key]; ok && now.Before(entry.expiresAt) {
		p.mu.RUnlock()

		return entry.url, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.cache[key]; ok && now.Before(entry.expiresAt) {
		return entry.url, nil
	}

	result, err := p.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(p.expiry))
	if err != nil {
		return "", fmt.Errorf("presigning URL for %q: %w", key, err)
	}

	p.cache[key] = presignCacheEntry{url: result.URL, expiresAt: now.Add(p.cacheTTL)}

	return result.URL, nil
}
