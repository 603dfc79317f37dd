package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	"overcastmirror/internal/crypt"
	"overcastmirror/internal/urls"
)

// readRows decodes a CSV file into header-keyed maps.
func readRows(filename string) ([]map[string]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: missing header", filename)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			row[name] = record[i]
		}
		rows = append(rows, row)
	}
}

func writeRows(filename string, header []string, records [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", filename, err)
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("%s: %w", filename, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", filename, err)
	}
	return f.Close()
}

// checkNonNullCounts enforces that no field's populated count dropped below
// what it was when the collection was loaded. A drop means a scrape or
// update path erased data it should have kept.
func checkNonNullCounts(initial, current map[string]int) error {
	for field, count := range current {
		if count < initial[field] {
			return fmt.Errorf("%s non-null count decreased from %d to %d", field, initial[field], count)
		}
	}
	return nil
}

// FeedCollection is the in-memory feeds table.
type FeedCollection struct {
	feeds         []Feed
	initialCounts map[string]int
}

// NewFeedCollection wraps an existing feed list, capturing its populated
// field counts as the save-time floor.
func NewFeedCollection(feeds []Feed) *FeedCollection {
	c := &FeedCollection{feeds: feeds}
	c.initialCounts = c.nonNullCounts()
	return c
}

// LoadFeeds reads and decrypts feeds.csv.
func LoadFeeds(filename string, key crypt.Key) (*FeedCollection, error) {
	rows, err := readRows(filename)
	if err != nil {
		return nil, err
	}
	feeds := make([]Feed, 0, len(rows))
	for _, row := range rows {
		feed, err := feedFromRecord(key, row)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		feeds = append(feeds, feed)
	}
	return NewFeedCollection(feeds), nil
}

func (c *FeedCollection) nonNullCounts() map[string]int {
	counts := make(map[string]int)
	for _, feed := range c.feeds {
		for field, present := range feed.nonNullFields() {
			if present {
				counts[field]++
			}
		}
	}
	return counts
}

func (c *FeedCollection) Len() int { return len(c.feeds) }

// All returns the backing slice; callers must not reorder it.
func (c *FeedCollection) All() []Feed { return c.feeds }

// Get looks a feed up by ID.
func (c *FeedCollection) Get(id int64) (Feed, bool) {
	for _, feed := range c.feeds {
		if feed.ID == id {
			return feed, true
		}
	}
	return Feed{}, false
}

// InsertOrUpdate upserts a feed by ID and re-sorts. onUpdate receives the
// existing row; onInsert builds a fresh one.
func (c *FeedCollection) InsertOrUpdate(id int64, onInsert func(int64) Feed, onUpdate func(Feed) Feed) {
	for i, feed := range c.feeds {
		if feed.ID == id {
			c.feeds[i] = onUpdate(feed)
			c.sort()
			return
		}
	}
	c.feeds = append(c.feeds, onInsert(id))
	c.sort()
}

// Update applies fn to every feed in place.
func (c *FeedCollection) Update(fn func(Feed) Feed) {
	for i, feed := range c.feeds {
		c.feeds[i] = fn(feed)
	}
}

func (c *FeedCollection) sort() {
	sort.SliceStable(c.feeds, func(i, j int) bool {
		return c.feeds[i].sortKey().Before(c.feeds[j].sortKey())
	})
}

// Save encrypts and writes feeds.csv after checking the collection's
// invariants.
func (c *FeedCollection) Save(filename string, key crypt.Key) error {
	if err := checkNonNullCounts(c.initialCounts, c.nonNullCounts()); err != nil {
		return fmt.Errorf("feeds: %w", err)
	}

	seen := make(map[int64]bool, len(c.feeds))
	records := make([][]string, 0, len(c.feeds))
	for _, feed := range c.feeds {
		if seen[feed.ID] {
			return fmt.Errorf("feeds: duplicate id %d", feed.ID)
		}
		seen[feed.ID] = true

		record, err := feed.toRecord(key)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	return writeRows(filename, feedFieldnames(), records)
}

// EpisodeCollection is the in-memory episodes table, keyed by permalink.
type EpisodeCollection struct {
	episodes      []Episode
	initialCounts map[string]int
}

func NewEpisodeCollection(episodes []Episode) *EpisodeCollection {
	c := &EpisodeCollection{episodes: episodes}
	c.initialCounts = c.nonNullCounts()
	return c
}

// LoadEpisodes reads and decrypts episodes.csv.
func LoadEpisodes(filename string, key crypt.Key) (*EpisodeCollection, error) {
	rows, err := readRows(filename)
	if err != nil {
		return nil, err
	}
	episodes := make([]Episode, 0, len(rows))
	for _, row := range rows {
		episode, err := episodeFromRecord(key, row)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		episodes = append(episodes, episode)
	}
	return NewEpisodeCollection(episodes), nil
}

func (c *EpisodeCollection) nonNullCounts() map[string]int {
	counts := make(map[string]int)
	for _, episode := range c.episodes {
		for field, present := range episode.nonNullFields() {
			if present {
				counts[field]++
			}
		}
	}
	return counts
}

func (c *EpisodeCollection) Len() int { return len(c.episodes) }

// All returns the backing slice; callers must not reorder it.
func (c *EpisodeCollection) All() []Episode { return c.episodes }

// InsertOrUpdate upserts an episode by permalink and re-sorts.
func (c *EpisodeCollection) InsertOrUpdate(
	overcastURL urls.HTTPURL,
	onInsert func(urls.HTTPURL) Episode,
	onUpdate func(Episode) Episode,
) {
	for i, episode := range c.episodes {
		if episode.OvercastURL == overcastURL {
			c.episodes[i] = onUpdate(episode)
			c.sort()
			return
		}
	}
	c.episodes = append(c.episodes, onInsert(overcastURL))
	c.sort()
}

// Update applies fn to every episode in place.
func (c *EpisodeCollection) Update(fn func(Episode) Episode) {
	for i, episode := range c.episodes {
		c.episodes[i] = fn(episode)
	}
}

func (c *EpisodeCollection) sort() {
	sort.SliceStable(c.episodes, func(i, j int) bool {
		a, b := c.episodes[i], c.episodes[j]
		if a.FeedID != b.FeedID {
			return a.FeedID < b.FeedID
		}
		return a.DatePublished.Before(b.DatePublished)
	})
}

// DownloadCounts returns the number of downloaded episodes per feed.
func (c *EpisodeCollection) DownloadCounts() map[int64]int {
	counts := make(map[int64]int)
	for _, episode := range c.episodes {
		if episode.IsDownloaded {
			counts[episode.FeedID]++
		}
	}
	return counts
}

// Save encrypts and writes episodes.csv after checking the collection's
// invariants.
func (c *EpisodeCollection) Save(filename string, key crypt.Key) error {
	if err := checkNonNullCounts(c.initialCounts, c.nonNullCounts()); err != nil {
		return fmt.Errorf("episodes: %w", err)
	}

	seen := make(map[urls.HTTPURL]bool, len(c.episodes))
	records := make([][]string, 0, len(c.episodes))
	for _, episode := range c.episodes {
		if seen[episode.OvercastURL] {
			return fmt.Errorf("episodes: duplicate overcast_url %s", episode.OvercastURL)
		}
		seen[episode.OvercastURL] = true

		record, err := episode.toRecord(key)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	return writeRows(filename, episodeFieldnames(), records)
}
