package httpcache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"overcastmirror/internal/logger"
)

// Purge deletes cache entries whose freshness window has passed and entries
// whose response date is older than olderThan, then prunes directories left
// empty. Unreadable entries are logged and skipped. Intended to run once
// near the end of a CLI invocation.
//
// Only the per-host directories under the cache root are walked; files at
// the root itself (the artifact cache blob lives there) are not entries.
func (s *Session) Purge(olderThan time.Duration) error {
	now := s.clock.Now()
	oldest := now.Add(-olderThan)

	for _, host := range s.hostDirs() {
		if err := s.purgeDir(host, now, oldest); err != nil {
			return err
		}
	}
	return s.pruneEmptyDirs()
}

// hostDirs lists the per-host directories under the cache root.
func (s *Session) hostDirs() []string {
	entries, err := os.ReadDir(s.keys.root)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(s.keys.root, e.Name()))
		}
	}
	return dirs
}

func (s *Session) purgeDir(root string, now, oldest time.Time) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			s.log.Error("failed to read cache entry", logger.String("path", path), logger.Error(readErr))
			return nil
		}
		resp, decodeErr := Decode(data)
		if decodeErr != nil {
			s.log.Error("failed to decode cache entry", logger.String("path", path), logger.Error(decodeErr))
			return nil
		}

		date, dateErr := resp.Date()
		switch {
		case resp.ExpiresAt().Before(now):
			s.log.Debug("purging expired cache entry", logger.String("path", path))
			return os.Remove(path)
		case dateErr != nil:
			s.log.Error("cache entry has no response date", logger.String("path", path), logger.Error(dateErr))
			return nil
		case date.Before(oldest):
			s.log.Debug("purging old cache entry", logger.String("path", path))
			return os.Remove(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("purge cache: %w", err)
	}
	return nil
}

// pruneEmptyDirs removes directories under the cache root left empty by a
// purge, deepest first so emptied parents are caught in the same pass.
func (s *Session) pruneEmptyDirs() error {
	var dirs []string
	err := filepath.WalkDir(s.keys.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != s.keys.root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("prune cache dirs: %w", err)
	}

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		s.log.Debug("removing empty cache directory", logger.String("path", dir))
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("remove empty cache dir: %w", err)
		}
	}
	return nil
}
