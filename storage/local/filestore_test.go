package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediarun/runtime/storage"
	"github.com/mediarun/runtime/storage/local"
	"github.com/mediarun/runtime/wire"
)

func testBuffer(payload string) wire.Buffer {
	return wire.NewJSONBuffer(wire.JSON{Payload: []byte(payload)})
}

func TestNewFileStore(t *testing.T) {
	t.Run("creates with valid config", func(t *testing.T) {
		tempDir := t.TempDir()
		config := local.FileStoreConfig{
			BaseDir:             tempDir,
			Organization:        storage.OrganizationByRun,
			EnableDeduplication: true,
		}

		fs, err := local.NewFileStore(config)
		require.NoError(t, err)
		require.NotNil(t, fs)

		assert.DirExists(t, tempDir)
	})

	t.Run("fails without base directory", func(t *testing.T) {
		config := local.FileStoreConfig{}

		fs, err := local.NewFileStore(config)
		assert.Error(t, err)
		assert.Nil(t, fs)
		assert.Contains(t, err.Error(), "base directory is required")
	})
}

func TestFileStore_StoreAndRetrieveMedia(t *testing.T) {
	ctx := context.Background()

	t.Run("round-trips a stored buffer", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByRun,
		})
		require.NoError(t, err)

		buf := testBuffer(`{"hello":"world"}`)
		metadata := storage.MediaMetadata{
			RunID:      "test-run",
			MessageIdx: 0,
			PartIdx:    0,
			MIMEType:   "application/json",
			SizeBytes:  18,
			Timestamp:  time.Now(),
		}

		ref, err := fs.StoreMedia(ctx, &buf, &metadata)
		require.NoError(t, err)
		assert.NotEmpty(t, ref)
		assert.FileExists(t, string(ref))

		retrieved, err := fs.RetrieveMedia(ctx, ref)
		require.NoError(t, err)
		require.NotNil(t, retrieved.JSON)
		assert.Equal(t, buf.JSON.Payload, retrieved.JSON.Payload)
	})

	t.Run("rejects a nil buffer", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByRun,
		})
		require.NoError(t, err)

		metadata := storage.MediaMetadata{RunID: "run-1", Timestamp: time.Now()}
		ref, err := fs.StoreMedia(ctx, nil, &metadata)
		assert.Error(t, err)
		assert.Empty(t, ref)
	})

	t.Run("deduplicates identical content", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:             tempDir,
			Organization:        storage.OrganizationByRun,
			EnableDeduplication: true,
		})
		require.NoError(t, err)

		buf := testBuffer(`{"a":1}`)
		ts := time.Now()

		metadata1 := storage.MediaMetadata{RunID: "test-run-1", Timestamp: ts}
		ref1, err := fs.StoreMedia(ctx, &buf, &metadata1)
		require.NoError(t, err)

		metadata2 := storage.MediaMetadata{RunID: "test-run-1", Timestamp: ts}
		ref2, err := fs.StoreMedia(ctx, &buf, &metadata2)
		require.NoError(t, err)

		assert.Equal(t, ref1, ref2)
	})
}

func TestFileStore_DeleteMedia(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes media", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByRun,
		})
		require.NoError(t, err)

		buf := testBuffer(`{"a":1}`)
		metadata := storage.MediaMetadata{RunID: "test-run", Timestamp: time.Now()}

		ref, err := fs.StoreMedia(ctx, &buf, &metadata)
		require.NoError(t, err)
		assert.FileExists(t, string(ref))

		err = fs.DeleteMedia(ctx, ref)
		assert.NoError(t, err)
		assert.NoFileExists(t, string(ref))
	})

	t.Run("delete succeeds for non-existent file", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByRun,
		})
		require.NoError(t, err)

		err = fs.DeleteMedia(ctx, storage.Reference(tempDir+"/nonexistent/file.wire"))
		assert.NoError(t, err)
	})
}

func TestFileStore_GetURL(t *testing.T) {
	ctx := context.Background()

	t.Run("returns file URL", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByRun,
		})
		require.NoError(t, err)

		buf := testBuffer(`{"a":1}`)
		metadata := storage.MediaMetadata{RunID: "test-run", Timestamp: time.Now()}

		ref, err := fs.StoreMedia(ctx, &buf, &metadata)
		require.NoError(t, err)

		url, err := fs.GetURL(ctx, ref, 1*time.Hour)
		assert.NoError(t, err)
		assert.Contains(t, url, "file://")
	})

	t.Run("fails for non-existent media", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByRun,
		})
		require.NoError(t, err)

		url, err := fs.GetURL(ctx, storage.Reference(tempDir+"/nonexistent.wire"), 1*time.Hour)
		assert.Error(t, err)
		assert.Empty(t, url)
		assert.Contains(t, err.Error(), "media not found")
	})
}

func TestFileStore_OrganizationModes(t *testing.T) {
	ctx := context.Background()
	buf := testBuffer(`{"a":1}`)

	t.Run("organizes by session", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationBySession,
		})
		require.NoError(t, err)

		metadata := storage.MediaMetadata{RunID: "run-1", SessionID: "session-abc", Timestamp: time.Now()}

		ref, err := fs.StoreMedia(ctx, &buf, &metadata)
		require.NoError(t, err)
		assert.Contains(t, string(ref), "sessions")
		assert.Contains(t, string(ref), "session-abc")
	})

	t.Run("organizes by conversation", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByConversation,
		})
		require.NoError(t, err)

		metadata := storage.MediaMetadata{RunID: "run-1", ConversationID: "conv-xyz", Timestamp: time.Now()}

		ref, err := fs.StoreMedia(ctx, &buf, &metadata)
		require.NoError(t, err)
		assert.Contains(t, string(ref), "conversations")
		assert.Contains(t, string(ref), "conv-xyz")
	})

	t.Run("fails without required session ID", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationBySession,
		})
		require.NoError(t, err)

		metadata := storage.MediaMetadata{RunID: "run-1", Timestamp: time.Now()}

		ref, err := fs.StoreMedia(ctx, &buf, &metadata)
		assert.Error(t, err)
		assert.Empty(t, ref)
		assert.Contains(t, err.Error(), "session ID required")
	})

	t.Run("fails without required conversation ID", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByConversation,
		})
		require.NoError(t, err)

		metadata := storage.MediaMetadata{RunID: "run-1", Timestamp: time.Now()}

		ref, err := fs.StoreMedia(ctx, &buf, &metadata)
		assert.Error(t, err)
		assert.Empty(t, ref)
		assert.Contains(t, err.Error(), "conversation ID required")
	})
}

func TestFileStore_ErrorCases(t *testing.T) {
	ctx := context.Background()

	t.Run("retrieve fails for non-existent file", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByRun,
		})
		require.NoError(t, err)

		retrieved, err := fs.RetrieveMedia(ctx, storage.Reference(tempDir+"/nonexistent/file.wire"))
		assert.Error(t, err)
		assert.Nil(t, retrieved)
		assert.Contains(t, err.Error(), "media not found")
	})

	t.Run("rejects directory as file reference", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByRun,
		})
		require.NoError(t, err)

		dirPath := filepath.Join(tempDir, "testdir")
		require.NoError(t, os.MkdirAll(dirPath, 0750))

		_, err = fs.RetrieveMedia(ctx, storage.Reference(dirPath))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "directory")
	})

	t.Run("retrieve fails for corrupt wire payload", func(t *testing.T) {
		tempDir := t.TempDir()
		fs, err := local.NewFileStore(local.FileStoreConfig{
			BaseDir:      tempDir,
			Organization: storage.OrganizationByRun,
		})
		require.NoError(t, err)

		garbage := filepath.Join(tempDir, "garbage.wire")
		require.NoError(t, os.WriteFile(garbage, []byte("not a wire message"), 0600))

		_, err = fs.RetrieveMedia(ctx, storage.Reference(garbage))
		assert.Error(t, err)
	})
}

func TestFileStore_DedupReferenceCount(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()
	fs, err := local.NewFileStore(local.FileStoreConfig{
		BaseDir:             tempDir,
		Organization:        storage.OrganizationByRun,
		EnableDeduplication: true,
	})
	require.NoError(t, err)

	buf := testBuffer(`{"shared":true}`)
	ts := time.Now()

	refs := make([]storage.Reference, 3)
	for i := 0; i < 3; i++ {
		metadata := storage.MediaMetadata{RunID: "run-" + string(rune('1'+i)), Timestamp: ts}
		ref, err := fs.StoreMedia(ctx, &buf, &metadata)
		require.NoError(t, err)
		refs[i] = ref
	}

	assert.Equal(t, refs[0], refs[1])
	assert.Equal(t, refs[1], refs[2])
	assert.FileExists(t, string(refs[0]))

	require.NoError(t, fs.DeleteMedia(ctx, refs[0]))
	assert.FileExists(t, string(refs[0]))

	require.NoError(t, fs.DeleteMedia(ctx, refs[1]))
	assert.FileExists(t, string(refs[0]))

	require.NoError(t, fs.DeleteMedia(ctx, refs[2]))
	assert.NoFileExists(t, string(refs[0]))
}

func TestFileStore_MetadataPersistence(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	fs, err := local.NewFileStore(local.FileStoreConfig{
		BaseDir:      tempDir,
		Organization: storage.OrganizationByRun,
	})
	require.NoError(t, err)

	buf := testBuffer(`{"meta":true}`)
	originalTime := time.Now().UTC().Truncate(time.Second)
	metadata := storage.MediaMetadata{
		RunID:          "run-meta",
		SessionID:      "session-123",
		ConversationID: "conv-456",
		MessageIdx:     5,
		PartIdx:        3,
		MIMEType:       "application/json",
		SizeBytes:      13,
		ProviderID:     "test-node",
		Timestamp:      originalTime,
		PolicyName:     "keep-forever",
	}

	ref, err := fs.StoreMedia(ctx, &buf, &metadata)
	require.NoError(t, err)

	metaFile := string(ref) + ".meta"
	assert.FileExists(t, metaFile)

	retrieved, err := fs.RetrieveMedia(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, retrieved.JSON)
	assert.Equal(t, buf.JSON.Payload, retrieved.JSON.Payload)
}

func TestFileStore_LoadsDedupIndexOnStartup(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	fs1, err := local.NewFileStore(local.FileStoreConfig{
		BaseDir:             tempDir,
		Organization:        storage.OrganizationByRun,
		EnableDeduplication: true,
	})
	require.NoError(t, err)

	buf := testBuffer(`{"persist":true}`)
	ts := time.Now()
	metadata := storage.MediaMetadata{RunID: "run-dedup-persist", Timestamp: ts}

	ref1, err := fs1.StoreMedia(ctx, &buf, &metadata)
	require.NoError(t, err)

	fs2, err := local.NewFileStore(local.FileStoreConfig{
		BaseDir:             tempDir,
		Organization:        storage.OrganizationByRun,
		EnableDeduplication: true,
	})
	require.NoError(t, err)

	metadata2 := storage.MediaMetadata{RunID: "run-dedup-persist-2", Timestamp: ts}
	ref2, err := fs2.StoreMedia(ctx, &buf, &metadata2)
	require.NoError(t, err)

	assert.Equal(t, ref1, ref2)
}

func TestFileStore_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()
	fs, err := local.NewFileStore(local.FileStoreConfig{
		BaseDir:       tempDir,
		Organization:  storage.OrganizationByRun,
		DefaultPolicy: "retain-30days",
	})
	require.NoError(t, err)

	buf := testBuffer(`{"policy":true}`)
	metadata := storage.MediaMetadata{RunID: "run-policy", Timestamp: time.Now()}

	ref, err := fs.StoreMedia(ctx, &buf, &metadata)
	require.NoError(t, err)

	metaFile := string(ref) + ".meta"
	data, err := os.ReadFile(metaFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "retain-30days")
}
