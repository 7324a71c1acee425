package snapshot

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type memBucket struct {
	objects map[string][]byte
}

func (m *memBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestPublishAndRestore(t *testing.T) {
	ctx := context.Background()
	bucket := &memBucket{objects: map[string][]byte{}}
	store := newStore(bucket, "docs", "/team/index/")

	src := t.TempDir()
	indexPath := filepath.Join(src, "index.bin")
	metaPath := filepath.Join(src, "meta.jsonl")
	require.NoError(t, os.WriteFile(indexPath, []byte("vectors"), 0o644))
	require.NoError(t, os.WriteFile(metaPath, []byte("{}\n"), 0o644))

	require.NoError(t, store.Publish(ctx, indexPath, metaPath))
	require.Contains(t, bucket.objects, "docs/team/index/index.bin")
	require.Contains(t, bucket.objects, "docs/team/index/meta.jsonl")

	dst := filepath.Join(t.TempDir(), "store")
	ok, err := store.Restore(ctx, filepath.Join(dst, "index.bin"), filepath.Join(dst, "meta.jsonl"))
	require.NoError(t, err)
	require.True(t, ok)
	data, err := os.ReadFile(filepath.Join(dst, "index.bin"))
	require.NoError(t, err)
	require.Equal(t, "vectors", string(data))
}

func TestRestoreMissingSnapshot(t *testing.T) {
	store := newStore(&memBucket{objects: map[string][]byte{}}, "docs", "")
	dst := t.TempDir()
	ok, err := store.Restore(context.Background(), filepath.Join(dst, "index.bin"), filepath.Join(dst, "meta.jsonl"))
	require.NoError(t, err)
	require.False(t, ok)
	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	require.Empty(t, entries)
}
