// Package fileman holds the filesystem primitives of the save pipeline:
// waiting for files to appear, waiting for writes to settle and moving files
// into the archive.
package fileman

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WaitForFile waits up to timeout for path to exist. A timeout is not an
// error; it reports false.
func WaitForFile(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	found, err := WaitForFirst(ctx, []string{path}, timeout)
	return found != "", err
}

// WaitForFirst waits up to timeout for any of paths to exist and returns the
// first one that does. Paths already present win in the order given. An
// empty string means none appeared before the timeout.
func WaitForFirst(ctx context.Context, paths []string, timeout time.Duration) (string, error) {
	if len(paths) == 0 {
		return "", nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	wanted := make(map[string]string, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		clean := filepath.Clean(p)
		wanted[clean] = p
		dir := filepath.Dir(clean)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := watcher.Add(dir); err != nil {
			return "", fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	// Checked after the watch is armed so a file created in between is not missed.
	if p := firstExisting(paths); p != "" {
		return p, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			return "", nil
		case event, ok := <-watcher.Events:
			if !ok {
				return firstExisting(paths), nil
			}
			if p, hit := wanted[filepath.Clean(event.Name)]; hit && Exists(p) {
				return p, nil
			}
			if p := firstExisting(paths); p != "" {
				return p, nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return firstExisting(paths), nil
			}
			log.Warn().Err(err).Msg("save directory watcher error")
		}
	}
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if Exists(p) {
			return p
		}
	}
	return ""
}

// Stabilize polls the size of path every interval, at most maxPolls times,
// and returns once two consecutive polls agree on a non-zero size. The last
// observed size is returned; zero means the game never wrote anything.
func Stabilize(ctx context.Context, path string, interval time.Duration, maxPolls int) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	size := info.Size()
	var prev int64

	for i := 0; i < maxPolls; i++ {
		if size == prev && prev > 0 {
			break
		}
		prev = size

		select {
		case <-ctx.Done():
			return size, ctx.Err()
		case <-time.After(interval):
		}

		info, err = os.Stat(path)
		if err != nil {
			return 0, err
		}
		size = info.Size()
	}
	return size, nil
}

// Move renames src to dst, copying across filesystems when a rename is not
// possible.
func Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// EnsureDir creates dir if it does not exist. created is false when the
// directory was already there.
func EnsureDir(dir string) (created bool, err error) {
	err = os.Mkdir(dir, 0o755)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrExist):
		info, statErr := os.Stat(dir)
		if statErr != nil {
			return false, statErr
		}
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", dir)
		}
		return false, nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, err
	}
}

// RemoveIfExists deletes path, ignoring a missing file.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
