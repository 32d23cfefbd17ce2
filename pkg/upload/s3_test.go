package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splidsboel/assignment3/pkg/config"
)

type fakePutter struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	failKey string
}

func newFakePutter() *fakePutter {
	return &fakePutter{objects: make(map[string]string), types: make(map[string]string)}
}

func (f *fakePutter) PutObject(
	_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if key == f.failKey {
		return nil, errors.New("access denied")
	}

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.objects[key] = string(body)
	f.types[key] = aws.ToString(in.ContentType)

	return &s3.PutObjectOutput{}, nil
}

func (f *fakePutter) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func newTestUploader(cfg *config.S3Config, client objectPutter) *s3Uploader {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return &s3Uploader{log: log, cfg: cfg, client: client}
}

func writeRunDir(t *testing.T) string {
	t.Helper()

	runDir := filepath.Join(t.TempDir(), "1769791126_8cec1fab")
	files := map[string]string{
		"run.json":                            `{"id":"1769791126_8cec1fab"}`,
		"regular/dijkstra_results.csv":        "source,target,distance,time_ns,relaxed\n",
		"augmented/bidirectional_results.csv": "source,target,distance,time_ns,relaxed\n",
		"metrics.prom":                        "# HELP x\n",
	}

	for name, content := range files {
		path := filepath.Join(runDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return runDir
}

func TestResolvePrefix(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		baseName string
		want     string
	}{
		{
			name:     "default prefix",
			prefix:   "",
			baseName: "1769791126_8cec1fab",
			want:     "chbench/runs/1769791126_8cec1fab",
		},
		{
			name:     "custom prefix",
			prefix:   "my-project/experiments",
			baseName: "1769791126_8cec1fab",
			want:     "my-project/experiments/runs/1769791126_8cec1fab",
		},
		{
			name:     "surrounding slashes stripped",
			prefix:   "/my-prefix/",
			baseName: "run123",
			want:     "my-prefix/runs/run123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{
				cfg: &config.S3Config{Prefix: tt.prefix},
			}
			assert.Equal(t, tt.want, u.resolvePrefix(tt.baseName))
		})
	}
}

func TestUpload(t *testing.T) {
	runDir := writeRunDir(t)
	client := newFakePutter()
	u := newTestUploader(&config.S3Config{Bucket: "b", Prefix: "exp", Concurrency: 2}, client)

	summary, err := u.Upload(context.Background(), runDir)
	require.NoError(t, err)

	assert.Equal(t, "exp/runs/1769791126_8cec1fab", summary.Prefix)
	assert.Equal(t, 4, summary.Files)
	assert.Positive(t, summary.Bytes)

	assert.Equal(t, []string{
		"exp/runs/1769791126_8cec1fab/augmented/bidirectional_results.csv",
		"exp/runs/1769791126_8cec1fab/metrics.prom",
		"exp/runs/1769791126_8cec1fab/regular/dijkstra_results.csv",
		"exp/runs/1769791126_8cec1fab/run.json",
	}, client.keys())

	assert.Equal(t, `{"id":"1769791126_8cec1fab"}`, client.objects["exp/runs/1769791126_8cec1fab/run.json"])
	assert.Contains(t, client.types["exp/runs/1769791126_8cec1fab/run.json"], "application/json")
}

func TestUpload_Failure(t *testing.T) {
	runDir := writeRunDir(t)
	client := newFakePutter()
	client.failKey = "chbench/runs/1769791126_8cec1fab/metrics.prom"

	u := newTestUploader(&config.S3Config{Bucket: "b", Concurrency: 1}, client)

	_, err := u.Upload(context.Background(), runDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics.prom")
	assert.Contains(t, err.Error(), "access denied")
}

func TestUpload_MissingDir(t *testing.T) {
	u := newTestUploader(&config.S3Config{Bucket: "b"}, newFakePutter())

	_, err := u.Upload(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "walking directory")
}

func TestPreflight(t *testing.T) {
	client := newFakePutter()
	u := newTestUploader(&config.S3Config{Bucket: "b"}, client)

	require.NoError(t, u.Preflight(context.Background()))
	assert.Equal(t, []string{"chbench/.chbench-write-test"}, client.keys())

	client.failKey = "chbench/.chbench-write-test"
	err := u.Preflight(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b")
}

func TestNewS3Uploader_RequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(logrus.New(), &config.S3Config{})
	require.Error(t, err)
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{name: "json file", path: "run/run.json", wantPrefix: "application/json"},
		{name: "no extension", path: "run/Makefile", wantPrefix: "application/octet-stream"},
		{name: "png file", path: "run/runtime_comparison.png", wantPrefix: "image/png"},
		{name: "metrics file", path: "run/metrics.prom", wantPrefix: "text/plain"},
		{name: "latex file", path: "run/comparison_table.tex", wantPrefix: "text/plain"},
		{name: "txt file", path: "run/pairs_original.txt", wantPrefix: "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, detectContentType(tt.path), tt.wantPrefix)
		})
	}
}
