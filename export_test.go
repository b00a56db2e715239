package popstore

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/popgene/popstore/blobstore"
	"github.com/popgene/popstore/persistence"
	"github.com/popgene/popstore/schema"
)

func snapshotPop(t *testing.T) *Population {
	t.Helper()
	p := newTestPop(t, []int{2, 3})
	stamp(t, p)
	v, err := p.Ind(1)
	require.NoError(t, err)
	v.SetSex(Female)
	v.SetAffected(true)
	return p
}

func TestSnapshotRoundTrip(t *testing.T) {
	p := snapshotPop(t)

	var buf bytes.Buffer
	require.NoError(t, p.WriteSnapshot(&buf))

	q, err := ReadSnapshot(&buf, schema.NewRegistry())
	require.NoError(t, err)
	assert.True(t, p.Equal(q))
	assert.True(t, p.Schema().Descriptor.Equal(q.Schema().Descriptor))

	v, err := q.Ind(1)
	require.NoError(t, err)
	assert.Equal(t, Female, v.Sex())
	assert.True(t, v.Affected())
}

func TestSnapshotRoundTrip_Compressed(t *testing.T) {
	p := snapshotPop(t)

	for _, ct := range []persistence.CompressionType{persistence.CompressionLZ4, persistence.CompressionZSTD} {
		var buf bytes.Buffer
		require.NoError(t, p.WriteSnapshot(&buf, persistence.WithCompression(ct)))
		q, err := ReadSnapshot(&buf, schema.NewRegistry())
		require.NoError(t, err)
		assert.True(t, p.Equal(q), "compression %d", ct)
	}
}

func TestWriteSnapshot_SortsFirst(t *testing.T) {
	p := snapshotPop(t)
	require.NoError(t, p.RestructureByTag([]int{1, 1, 0, 0, 0}))
	require.False(t, p.Ordered())

	var buf bytes.Buffer
	require.NoError(t, p.WriteSnapshot(&buf))
	assert.True(t, p.Ordered())

	q, err := ReadSnapshot(&buf, schema.NewRegistry())
	require.NoError(t, err)
	assert.True(t, p.Equal(q))
}

func TestWriteSnapshot_Guards(t *testing.T) {
	p := snapshotPop(t)
	p.SetVirtualSplitter(SexSplitter{})
	require.NoError(t, p.ActivateVirtualSubPop(0, 0, VisibleOnly))
	var buf bytes.Buffer
	assert.ErrorIs(t, p.WriteSnapshot(&buf), ErrActivatedVSP)
	p.DeactivateVirtualSubPop()

	// Only the live generation is ever persisted.
	q := newTestPop(t, []int{2, 3}, WithAncestralDepth(1))
	next, err := NewPopulation(q.Registry(), []int{1}, testDescriptor())
	require.NoError(t, err)
	require.NoError(t, q.PushAndDiscard(next))
	require.NoError(t, q.UseAncestralGen(1))
	assert.ErrorIs(t, q.WriteSnapshot(&buf), ErrViewingAncestral)
}

// recordingBlob tracks whether the export path finalized or discarded the
// upload.
type recordingBlob struct {
	blobstore.WritableBlob
	closed  bool
	aborted bool
}

func (b *recordingBlob) Close() error {
	b.closed = true
	return b.WritableBlob.Close()
}

func (b *recordingBlob) Abort() error {
	b.aborted = true
	return b.WritableBlob.Abort()
}

type recordingStore struct {
	*blobstore.MemoryStore
	last *recordingBlob
}

func (s *recordingStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	w, err := s.MemoryStore.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	s.last = &recordingBlob{WritableBlob: w}
	return s.last, nil
}

func TestExport_AbortsOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	p := snapshotPop(t)
	p.SetVirtualSplitter(SexSplitter{})
	require.NoError(t, p.ActivateVirtualSubPop(0, 0, VisibleOnly))

	store := &recordingStore{MemoryStore: blobstore.NewMemoryStore()}
	assert.ErrorIs(t, p.Export(ctx, store, "snapshots/gen0"), ErrActivatedVSP)

	// The upload was discarded, not finalized, and nothing got published.
	require.NotNil(t, store.last)
	assert.True(t, store.last.aborted)
	assert.False(t, store.last.closed)
	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestReadSnapshot_Corrupt(t *testing.T) {
	p := snapshotPop(t)
	var buf bytes.Buffer
	require.NoError(t, p.WriteSnapshot(&buf))

	data := buf.Bytes()
	data[len(data)-1] ^= 0xFF
	_, err := ReadSnapshot(bytes.NewReader(data), schema.NewRegistry())
	require.Error(t, err)
	assert.True(t, persistence.IsChecksumMismatch(err))
}

func TestSaveLoadSnapshot(t *testing.T) {
	p := snapshotPop(t)
	path := filepath.Join(t.TempDir(), "gen0.pop")

	require.NoError(t, p.SaveSnapshot(path, persistence.WithCompression(persistence.CompressionZSTD)))
	q, err := LoadSnapshot(path, schema.NewRegistry())
	require.NoError(t, err)
	assert.True(t, p.Equal(q))
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	p := snapshotPop(t)

	require.NoError(t, p.Export(ctx, store, "snapshots/gen0"))

	names, err := store.List(ctx, "snapshots/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshots/gen0"}, names)

	q, err := Import(ctx, store, "snapshots/gen0", schema.NewRegistry())
	require.NoError(t, err)
	assert.True(t, p.Equal(q))

	_, err = Import(ctx, store, "snapshots/missing", schema.NewRegistry())
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
