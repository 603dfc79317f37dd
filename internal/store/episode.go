package store

import (
	"fmt"
	"time"

	"overcastmirror/internal/crypt"
	"overcastmirror/internal/overcast"
	"overcastmirror/internal/urls"
)

// Episode is one row of episodes.csv, keyed by its Overcast permalink. An
// empty ID, empty EnclosureURL, zero Duration and nil IsPlayed mean the
// value is unknown.
type Episode struct {
	ID            overcast.ItemID
	OvercastURL   urls.HTTPURL
	FeedID        int64
	Title         string
	EnclosureURL  urls.URL
	Duration      time.Duration
	DatePublished time.Time
	IsPlayed      *bool

	// IsDownloaded mirrors the client's current download set; DidDownload
	// records that the episode was downloaded at some point and never
	// resets.
	IsDownloaded bool
	DidDownload  bool
}

// IsMissingInfo reports whether the row still lacks fields a scrape of the
// episode's own page can fill in.
func (e Episode) IsMissingInfo() bool {
	return e.ID == "" || e.Title == "" || e.EnclosureURL == "" || e.Duration == 0
}

func episodeFieldnames() []string {
	return []string{
		"id",
		"encrypted_overcast_url",
		"feed_id",
		"title",
		"encrypted_enclosure_url",
		"duration",
		"date_published",
		"is_played",
		"is_downloaded",
		"did_download",
	}
}

func (e Episode) nonNullFields() map[string]bool {
	return map[string]bool{
		"id":             e.ID != "",
		"overcast_url":   e.OvercastURL != "",
		"feed_id":        e.FeedID != 0,
		"title":          e.Title != "",
		"enclosure_url":  e.EnclosureURL != "",
		"duration":       e.Duration != 0,
		"date_published": !e.DatePublished.IsZero(),
		"is_played":      e.IsPlayed != nil,
		"is_downloaded":  true,
		"did_download":   true,
	}
}

func (e Episode) toRecord(key crypt.Key) ([]string, error) {
	encryptedURL, err := encryptField(key, string(e.OvercastURL))
	if err != nil {
		return nil, fmt.Errorf("episode %s: encrypt overcast_url: %w", e.OvercastURL, err)
	}
	encryptedEnclosure, err := encryptField(key, string(e.EnclosureURL))
	if err != nil {
		return nil, fmt.Errorf("episode %s: encrypt enclosure_url: %w", e.OvercastURL, err)
	}
	return []string{
		string(e.ID),
		encryptedURL,
		formatInt(e.FeedID),
		e.Title,
		encryptedEnclosure,
		formatSeconds(e.Duration),
		formatTime(e.DatePublished),
		formatOptionalBool(e.IsPlayed),
		formatBool(e.IsDownloaded),
		formatBool(e.DidDownload),
	}, nil
}

func episodeFromRecord(key crypt.Key, row map[string]string) (Episode, error) {
	episode := Episode{
		Title:        row["title"],
		IsDownloaded: parseBool(row["is_downloaded"]),
		DidDownload:  parseBool(row["did_download"]),
	}

	rawURL, err := decryptField(key, row["encrypted_overcast_url"])
	if err != nil {
		return Episode{}, fmt.Errorf("episode: decrypt overcast_url: %w", err)
	}
	if rawURL == "" {
		return Episode{}, fmt.Errorf("episode row has no overcast_url")
	}
	if episode.OvercastURL, err = urls.ParseHTTP(rawURL); err != nil {
		return Episode{}, fmt.Errorf("episode overcast_url: %w", err)
	}

	if row["id"] != "" {
		if episode.ID, err = overcast.ParseItemID(row["id"]); err != nil {
			return Episode{}, fmt.Errorf("episode %s: %w", episode.OvercastURL, err)
		}
	}
	if episode.FeedID, err = parseInt(row["feed_id"]); err != nil {
		return Episode{}, fmt.Errorf("episode %s: feed_id: %w", episode.OvercastURL, err)
	}
	if episode.FeedID == 0 {
		return Episode{}, fmt.Errorf("episode %s has no feed_id", episode.OvercastURL)
	}

	rawEnclosure, err := decryptField(key, row["encrypted_enclosure_url"])
	if err != nil {
		return Episode{}, fmt.Errorf("episode %s: decrypt enclosure_url: %w", episode.OvercastURL, err)
	}
	if rawEnclosure != "" {
		if episode.EnclosureURL, err = urls.Parse(rawEnclosure); err != nil {
			return Episode{}, fmt.Errorf("episode %s: enclosure_url: %w", episode.OvercastURL, err)
		}
	}

	if episode.Duration, err = parseSeconds(row["duration"]); err != nil {
		return Episode{}, fmt.Errorf("episode %s: duration: %w", episode.OvercastURL, err)
	}
	if episode.DatePublished, err = parseTime(row["date_published"]); err != nil {
		return Episode{}, fmt.Errorf("episode %s: date_published: %w", episode.OvercastURL, err)
	}
	if episode.DatePublished.IsZero() {
		return Episode{}, fmt.Errorf("episode %s has no date_published", episode.OvercastURL)
	}
	episode.IsPlayed = parseOptionalBool(row["is_played"])

	return episode, nil
}
