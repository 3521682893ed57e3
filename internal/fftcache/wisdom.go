package fftcache

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lestrrat-go/strftime"
	"golang.org/x/sys/unix"
)

// ExportWisdom writes the set of descriptors this cache has already
// constructed to path, atomically: write to a temp file in the same
// directory, flock it against concurrent writers, then rename over
// the destination — the same pattern spec §4.4 requires ("rewritten
// atomically (temp file + rename, with an advisory lock against
// concurrent writers)").
func (c *Cache) ExportWisdom(path string) error {
	c.mu.Lock()
	descriptors := make([]string, 0, len(c.seen))
	for d := range c.seen {
		descriptors = append(descriptors, d)
	}
	c.mu.Unlock()
	sort.Strings(descriptors)

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("fftcache: mkdir %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".wisdom-*.tmp")
	if err != nil {
		return fmt.Errorf("fftcache: create temp wisdom file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if err := unix.Flock(int(tmp.Fd()), unix.LOCK_EX); err != nil {
		tmp.Close()
		return fmt.Errorf("fftcache: lock temp wisdom file: %w", err)
	}

	w := bufio.NewWriter(tmp)
	stamp, _ := strftime.Format("%Y-%m-%dT%H:%M:%S", time.Now())
	fmt.Fprintf(w, "# fastconv wisdom, generated %s\n", stamp)
	for _, d := range descriptors {
		fmt.Fprintln(w, d)
	}
	if err := w.Flush(); err != nil {
		unix.Flock(int(tmp.Fd()), unix.LOCK_UN)
		tmp.Close()
		return fmt.Errorf("fftcache: write temp wisdom file: %w", err)
	}
	unix.Flock(int(tmp.Fd()), unix.LOCK_UN)
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fftcache: close temp wisdom file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("fftcache: rename wisdom file: %w", err)
	}
	return nil
}

// ImportWisdom loads previously exported descriptors so restarts don't
// re-log already-known plan requests (spec §4.4 "On startup,
// system-wide and process-local wisdom files are loaded"). Missing
// files are not an error — an empty cache just starts cold.
func (c *Cache) ImportWisdom(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fftcache: open wisdom file: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err == nil {
		defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := scan.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		c.seen[line] = true
	}
	return scan.Err()
}
