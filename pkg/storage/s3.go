package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/splidsboel/assignment3/pkg/config"
)

// DefaultS3Prefix is the key prefix used when none is configured.
const DefaultS3Prefix = "chbench"

// s3API is the subset of the S3 client used by the reader.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Compile-time interface check.
var _ Reader = (*s3Reader)(nil)

type s3Reader struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Reader creates a Reader over {prefix}/runs/ in the configured bucket.
func NewS3Reader(cfg *config.S3Config) Reader {
	return &s3Reader{
		client: NewS3Client(cfg),
		bucket: cfg.Bucket,
		prefix: ResolveS3Prefix(cfg.Prefix),
	}
}

// ResolveS3Prefix trims slashes and applies DefaultS3Prefix.
func ResolveS3Prefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return DefaultS3Prefix
	}

	return prefix
}

func (r *s3Reader) Source() string {
	return "s3://" + r.bucket + "/" + r.prefix
}

// ListRunIDs lists run IDs (common prefixes) under {prefix}/runs/.
func (r *s3Reader) ListRunIDs(ctx context.Context) ([]string, error) {
	prefix := r.prefix + "/" + runsDir + "/"

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var ids []string

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing run prefixes under %q: %w", prefix, err)
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				// "prefix/runs/abc123/" -> "abc123"
				ids = append(ids, path.Base(strings.TrimRight(*cp.Prefix, "/")))
			}
		}
	}

	sort.Strings(ids)

	return ids, nil
}

// GetRunFile reads {prefix}/runs/{runID}/{filename} from S3.
// Returns (nil, nil) when the key does not exist.
func (r *s3Reader) GetRunFile(ctx context.Context, runID, filename string) ([]byte, error) {
	key := r.prefix + "/" + runsDir + "/" + runID + "/" + filename

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}

	return data, nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	return strings.Contains(err.Error(), "NoSuchKey")
}

// NewS3Client builds a client for an S3-compatible endpoint.
func NewS3Client(cfg *config.S3Config) *s3.Client {
	return s3.New(s3.Options{}, func(o *s3.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		} else {
			o.Region = "us-east-1"
		}

		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}

		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}

		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
		}
	})
}
