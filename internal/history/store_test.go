package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notepad/internal/events"
	"notepad/internal/update"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", FileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var n int
	store.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}
	return store
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestRecordCheckAndRecent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.RecordCheck(ctx, update.VersionInfo{CurrentVersion: "1.0.0", LatestVersion: "1.0.0"}, nil))
	require.NoError(t, store.RecordCheck(ctx, update.VersionInfo{CurrentVersion: "1.0.0", LatestVersion: "1.1.0", HasUpdate: true}, nil))
	require.NoError(t, store.RecordCheck(ctx, update.VersionInfo{CurrentVersion: "1.0.0"}, errors.New("network down")))

	entries, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "network down", entries[0].Error)
	assert.Equal(t, KindCheck, entries[0].Kind)
	assert.True(t, entries[1].HasUpdate)
	assert.Equal(t, "1.1.0", entries[1].LatestVersion)
	assert.False(t, entries[2].HasUpdate)
	assert.True(t, entries[0].At.After(entries[1].At))

	limited, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecordProgressKeepsTerminalStagesOnly(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.RecordProgress(ctx, update.Progress{Stage: update.StageDownloading, Progress: 0.5}))
	require.NoError(t, store.RecordProgress(ctx, update.Progress{Stage: update.StageError, Message: "Update failed", Error: "download update: boom"}))
	require.NoError(t, store.RecordProgress(ctx, update.Progress{Stage: update.StageCompleted, Progress: 1, Message: "done"}))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindFlow, entries[0].Kind)
	assert.Equal(t, "completed", entries[0].Stage)
	assert.Equal(t, "download update: boom", entries[1].Error)
}

func TestReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), FileName)

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.RecordCheck(ctx, update.VersionInfo{CurrentVersion: "1.0.0", LatestVersion: "1.0.0"}, nil))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	entries, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFollowRecordsBusEvents(t *testing.T) {
	store := openTestStore(t)
	bus := events.NewBus(8)
	ch, cancelSub := bus.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.Follow(ctx, ch, nil)
	}()

	bus.Emit(events.UpdateAvailable, update.VersionInfo{HasUpdate: true})
	bus.Emit(events.UpdateProgress, update.Progress{Stage: update.StageChecking})
	bus.Emit(events.UpdateProgress, update.Progress{Stage: update.StageCompleted, Progress: 1, Message: "Already on the latest version"})

	require.Eventually(t, func() bool {
		entries, err := store.Recent(context.Background(), 0)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancelSub()
	cancel()
	<-done
}

type stubResolver struct {
	info update.VersionInfo
	err  error
}

func (s stubResolver) Resolve(context.Context) (update.VersionInfo, error) {
	return s.info, s.err
}

func TestRecordingResolver(t *testing.T) {
	store := openTestStore(t)
	inner := stubResolver{info: update.VersionInfo{CurrentVersion: "1.0.0", LatestVersion: "2.0.0", HasUpdate: true}}

	r := NewRecordingResolver(inner, store, nil)
	info, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.True(t, info.HasUpdate)

	entries, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2.0.0", entries[0].LatestVersion)
}

func TestRecordingResolverSkipsCancelledChecks(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRecordingResolver(stubResolver{err: context.Canceled}, store, nil)
	_, err := r.Resolve(ctx)
	require.ErrorIs(t, err, context.Canceled)

	entries, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEmitterRecordsTerminalProgress(t *testing.T) {
	store := openTestStore(t)
	emit := store.Emitter(nil)

	emit.Emit(events.UpdateProgress, update.Progress{Stage: update.StageInstalling, Progress: 0.25})
	emit.Emit(events.UpdateAvailable, update.VersionInfo{HasUpdate: true})
	emit.Emit(events.UpdateProgress, update.Progress{Stage: update.StageError, Message: "Update failed", Error: "install update: denied"})

	entries, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "error", entries[0].Stage)
	assert.Equal(t, "install update: denied", entries[0].Error)
}
