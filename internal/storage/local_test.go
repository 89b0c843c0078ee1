package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutAndDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "uploads")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "photos/abc.png", strings.NewReader("png"), "image/png", 3)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/photos/abc.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "photos", "abc.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	require.NoError(t, s.Delete(context.Background(), "photos/abc.png"))
	_, err = os.Stat(filepath.Join(dir, "photos", "abc.png"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Delete(context.Background(), "photos/abc.png"), "deleting a missing file is not an error")
}

func TestLocalStore_KeyCannotEscapeDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(filepath.Join(dir, "uploads"), "/uploads")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "../../evil.txt", strings.NewReader("x"), "text/plain", 1)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/evil.txt", url)
	_, err = os.Stat(filepath.Join(dir, "uploads", "evil.txt"))
	assert.NoError(t, err)

	_, err = s.Put(context.Background(), "/", strings.NewReader("x"), "text/plain", 1)
	assert.Error(t, err)
}

func TestLocalStore_Sweep(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/uploads")
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "photos/old.jpg", strings.NewReader("old"), "image/jpeg", 3)
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "photos/new.jpg", strings.NewReader("new"), "image/jpeg", 3)
	require.NoError(t, err)

	now := time.Now()
	old := now.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "photos", "old.jpg"), old, old))

	removed, err := s.Sweep(time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(dir, "photos", "old.jpg"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "photos", "new.jpg"))
	assert.NoError(t, err)
}

func TestLocalStore_RunSweeperStops(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	// disabled retention returns immediately
	s.RunSweeper(context.Background(), time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
