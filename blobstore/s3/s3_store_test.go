package s3

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popgene/popstore/blobstore"
)

// fakeS3 is an in-memory Client supporting ranged GETs and single-part
// uploads.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	if params.Range != nil {
		var start, end int64
		if _, err := fmt.Sscanf(*params.Range, "bytes=%d-%d", &start, &end); err != nil {
			return nil, fmt.Errorf("bad range %q: %w", *params.Range, err)
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[start : end+1]
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var contents []types.Object
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(params.Prefix)) {
			contents = append(contents, types.Object{Key: aws.String(key)})
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents}, nil
}

// Multipart calls never fire: snapshots stream through the uploader as a
// single part in these tests.
func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, fmt.Errorf("fakeS3: multipart not supported")
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, fmt.Errorf("fakeS3: multipart not supported")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, fmt.Errorf("fakeS3: multipart not supported")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, fmt.Errorf("fakeS3: multipart not supported")
}

func TestStore_PutOpenRead(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeS3(), "bucket", "runs/42")

	data := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, store.Put(ctx, "gen0.snap", data))

	r, err := store.Open(ctx, "gen0.snap")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(len(data)), r.Size())

	buf := make([]byte, 9)
	n, err := r.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, "the quick", string(buf))

	n, err = r.ReadAt(ctx, buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "quick bro", string(buf[:n]))

	rc, err := r.ReadRange(ctx, 4, 5)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "quick", string(got))
}

func TestStore_ReadAtTail(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeS3(), "bucket", "")
	require.NoError(t, store.Put(ctx, "blob", []byte("0123456789")))

	r, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer r.Close()

	// A read spanning the tail delivers the bytes that exist.
	buf := make([]byte, 4)
	n, err := r.ReadAt(ctx, buf, 8)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "89", string(buf[:2]))

	_, err = r.ReadAt(ctx, buf, 10)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStore_OpenNotFound(t *testing.T) {
	store := NewStore(newFakeS3(), "bucket", "runs/42")

	_, err := store.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_CreateStreams(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := NewStore(client, "bucket", "runs/42")

	w, err := store.Create(ctx, "gen1.snap")
	require.NoError(t, err)

	_, err = w.Write([]byte("first "))
	require.NoError(t, err)
	_, err = w.Write([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	assert.Equal(t, []byte("first second"), client.objects["runs/42/gen1.snap"])

	// Write and Close after Close fail.
	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.ErrorIs(t, w.Close(), io.ErrClosedPipe)
}

func TestStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeS3(), "bucket", "runs/42")

	require.NoError(t, store.Put(ctx, "snapshots/gen0", []byte("a")))
	require.NoError(t, store.Put(ctx, "snapshots/gen1", []byte("b")))
	require.NoError(t, store.Put(ctx, "catalog", []byte("c")))

	names, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/gen0", "snapshots/gen1"}, names)

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog", "snapshots/gen0", "snapshots/gen1"}, names)

	require.NoError(t, store.Delete(ctx, "snapshots/gen0"))
	names, err = store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/gen1"}, names)
}

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("test-popstore-%d/", time.Now().UnixNano())
	store, err := NewStoreFromEnv(ctx, bucket, prefix)
	require.NoError(t, err)

	name := "test.blob"
	data := make([]byte, 1024*1024)
	_, _ = rand.Read(data)

	w, err := store.Create(ctx, name)
	require.NoError(t, err)
	n, err := w.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	require.NoError(t, w.Close())

	blobs, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, blobs, name)

	r, err := store.Open(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), r.Size())

	buf := make([]byte, 100)
	n2, err := r.ReadAt(ctx, buf, 1024)
	require.NoError(t, err)
	assert.Equal(t, 100, n2)
	assert.Equal(t, data[1024:1124], buf)

	require.NoError(t, store.Delete(ctx, name))
	require.NoError(t, r.Close())
}
