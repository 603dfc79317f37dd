package store

import (
	"fmt"
	"path/filepath"

	"overcastmirror/internal/crypt"
	"overcastmirror/internal/logger"
)

// Database bundles the two CSV collections behind a load/commit lifecycle.
// Changes live in memory until Close(true); any failed run leaves the files
// untouched.
type Database struct {
	Feeds    *FeedCollection
	Episodes *EpisodeCollection

	dir string
	key crypt.Key
	log logger.Logger
}

// Open loads feeds.csv and episodes.csv from dir. Both files must exist; a
// new mirror starts from empty files with just the header row.
func Open(dir string, key crypt.Key, log logger.Logger) (*Database, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log.Debug("loading database", logger.String("dir", dir))

	feeds, err := LoadFeeds(filepath.Join(dir, "feeds.csv"), key)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	episodes, err := LoadEpisodes(filepath.Join(dir, "episodes.csv"), key)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &Database{
		Feeds:    feeds,
		Episodes: episodes,
		dir:      dir,
		key:      key,
		log:      log,
	}, nil
}

// Close writes both collections back when commit is set and discards them
// otherwise.
func (db *Database) Close(commit bool) error {
	if !commit {
		db.log.Error("not saving database, run failed")
		return nil
	}

	db.log.Debug("saving database", logger.String("dir", db.dir))
	if err := db.Feeds.Save(filepath.Join(db.dir, "feeds.csv"), db.key); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	if err := db.Episodes.Save(filepath.Join(db.dir, "episodes.csv"), db.key); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
