package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalReader_ListRunIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("returns run directory names", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		runs := filepath.Join(dir, "runs")
		require.NoError(t, os.MkdirAll(filepath.Join(runs, "200_bbb"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(runs, "100_aaa"), 0o755))

		// Regular files are not runs.
		require.NoError(t, os.WriteFile(filepath.Join(runs, "notes.txt"), []byte("skip"), 0o644))

		ids, err := NewLocalReader(dir).ListRunIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"100_aaa", "200_bbb"}, ids)
	})

	t.Run("missing runs directory is empty", func(t *testing.T) {
		t.Parallel()

		ids, err := NewLocalReader(t.TempDir()).ListRunIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestLocalReader_GetRunFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	runDir := filepath.Join(dir, "runs", "100_aaa")
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "regular"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "run.json"), []byte(`{"id":"100_aaa"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "regular", "d.csv"), []byte("x"), 0o644))

	r := NewLocalReader(dir)
	assert.Equal(t, LocalSource, r.Source())

	data, err := r.GetRunFile(ctx, "100_aaa", "run.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"100_aaa"}`, string(data))

	data, err = r.GetRunFile(ctx, "100_aaa", "regular/d.csv")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	data, err = r.GetRunFile(ctx, "100_aaa", "summaries.json")
	require.NoError(t, err)
	assert.Nil(t, data)

	for _, bad := range []string{"", "..", "../100_aaa", "a/b"} {
		_, err := r.GetRunFile(ctx, bad, "run.json")
		assert.Error(t, err, bad)
	}
}

type fakeS3 struct {
	objects map[string]string
}

func (f *fakeS3) ListObjectsV2(
	_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	seen := make(map[string]bool)
	out := &s3.ListObjectsV2Output{}

	for key := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		rest := strings.TrimPrefix(key, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			cp := prefix + rest[:i+1]
			if !seen[cp] {
				seen[cp] = true
				out.CommonPrefixes = append(out.CommonPrefixes, s3types.CommonPrefix{Prefix: aws.String(cp)})
			}
		}
	}

	return out, nil
}

func (f *fakeS3) GetObject(
	_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(body)))}, nil
}

func TestS3Reader(t *testing.T) {
	ctx := context.Background()
	r := &s3Reader{
		client: &fakeS3{objects: map[string]string{
			"exp/runs/100_aaa/run.json":     `{"id":"100_aaa"}`,
			"exp/runs/100_aaa/metrics.prom": "#",
			"exp/runs/200_bbb/run.json":     `{"id":"200_bbb"}`,
			"other/runs/300_ccc/run.json":   `{}`,
			"exp/.chbench-write-test":       "x",
		}},
		bucket: "bucket",
		prefix: "exp",
	}

	assert.Equal(t, "s3://bucket/exp", r.Source())

	ids, err := r.ListRunIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"100_aaa", "200_bbb"}, ids)

	data, err := r.GetRunFile(ctx, "200_bbb", "run.json")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"200_bbb"}`, string(data))

	data, err = r.GetRunFile(ctx, "200_bbb", "summaries.json")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestResolveS3Prefix(t *testing.T) {
	assert.Equal(t, DefaultS3Prefix, ResolveS3Prefix(""))
	assert.Equal(t, DefaultS3Prefix, ResolveS3Prefix("/"))
	assert.Equal(t, "a/b", ResolveS3Prefix("/a/b/"))
}
