package fileman

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWaitForFirst(t *testing.T) {
	t.Run("existing file returns immediately", func(t *testing.T) {
		dir := t.TempDir()
		p := filepath.Join(dir, "a.park")
		writeFile(t, p, "x")

		got, err := WaitForFirst(context.Background(), []string{filepath.Join(dir, "a.sv6"), p}, time.Second)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("first created path wins", func(t *testing.T) {
		dir := t.TempDir()
		sv6 := filepath.Join(dir, "a.sv6")
		park := filepath.Join(dir, "a.park")

		go func() {
			time.Sleep(50 * time.Millisecond)
			os.WriteFile(park, []byte("park"), 0o644)
			time.Sleep(300 * time.Millisecond)
			os.WriteFile(sv6, []byte("sv6"), 0o644)
		}()

		got, err := WaitForFirst(context.Background(), []string{sv6, park}, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, park, got)
		time.Sleep(400 * time.Millisecond)
	})

	t.Run("timeout resolves to not found", func(t *testing.T) {
		dir := t.TempDir()
		start := time.Now()
		got, err := WaitForFirst(context.Background(), []string{filepath.Join(dir, "never.sv6")}, 100*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := WaitForFirst(ctx, []string{filepath.Join(t.TempDir(), "x")}, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("missing directory is an error", func(t *testing.T) {
		_, err := WaitForFirst(context.Background(), []string{filepath.Join(t.TempDir(), "nope", "x")}, time.Second)
		assert.Error(t, err)
	})
}

func TestWaitForFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "save.park")
	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(p, []byte("data"), 0o644)
	}()

	ok, err := WaitForFile(context.Background(), p, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStabilize(t *testing.T) {
	t.Run("stops once size settles", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "a.park")
		writeFile(t, p, "12345")

		start := time.Now()
		size, err := Stabilize(context.Background(), p, 20*time.Millisecond, 8)
		require.NoError(t, err)
		assert.Equal(t, int64(5), size)
		// one sleep to observe the unchanged size
		assert.Less(t, time.Since(start), 150*time.Millisecond)
	})

	t.Run("empty file polls the full budget", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "a.park")
		writeFile(t, p, "")

		start := time.Now()
		size, err := Stabilize(context.Background(), p, 10*time.Millisecond, 4)
		require.NoError(t, err)
		assert.Zero(t, size)
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Stabilize(context.Background(), filepath.Join(t.TempDir(), "x"), time.Millisecond, 2)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.park")
	writeFile(t, src, "park data")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))
	dst := filepath.Join(dir, "archive", "dst.park")

	require.NoError(t, Move(src, dst))
	assert.False(t, Exists(src))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "park data", string(data))

	assert.Error(t, Move(src, dst))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	writeFile(t, src, "abc")
	dst := filepath.Join(dir, "b")

	require.NoError(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestEnsureDir(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "2024-01-01_ffa")

	created, err := EnsureDir(dir)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureDir(dir)
	require.NoError(t, err)
	assert.False(t, created)

	nested := filepath.Join(base, "a", "b")
	created, err = EnsureDir(nested)
	require.NoError(t, err)
	assert.True(t, created)

	file := filepath.Join(base, "file")
	writeFile(t, file, "x")
	_, err = EnsureDir(file)
	assert.Error(t, err)
}

func TestRemoveIfExists(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.png")
	assert.NoError(t, RemoveIfExists(p))
	writeFile(t, p, "img")
	assert.NoError(t, RemoveIfExists(p))
	assert.False(t, Exists(p))
}
