package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"overcastmirror/internal/crypt"
	"overcastmirror/internal/urls"
)

// Feed is one row of feeds.csv. A zero AddedAt, empty OvercastURL or
// HTMLURL, and nil IsFollowing all mean the value is unknown.
type Feed struct {
	ID          int64
	OvercastURL urls.HTTPURL
	Title       string
	HTMLURL     string
	AddedAt     time.Time

	// IsAdded reports membership in the account's podcast list.
	IsAdded bool
	// IsFollowing reports whether new episodes are followed automatically.
	IsFollowing *bool
}

// IsPrivate reports whether the feed is a private subscription. Private
// feed pages live under /p… tokens.
func (f Feed) IsPrivate() bool {
	if f.OvercastURL == "" {
		return true
	}
	return strings.HasPrefix(string(f.OvercastURL), "https://overcast.fm/p")
}

var (
	privateToRe     = regexp.MustCompile(` — Private to .+`)
	parentheticalRe = regexp.MustCompile(`\s*\([^)]*\)\s*`)
	bracketedRe     = regexp.MustCompile(`\s*\[[^]]*\]\s*`)
	trailingColonRe = regexp.MustCompile(`\s*:[^:]*$`)
	patreonSuffixRe = regexp.MustCompile(`\s*- Patreon Exclusive Feed$`)
	nonWordRe       = regexp.MustCompile(`[^\w\s]`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
)

// CleanTitle strips the member-feed decorations private feeds carry, e.g.
// parentheticals and "Private to" suffixes. Public feed titles pass through
// unchanged.
func (f Feed) CleanTitle() string {
	if !f.IsPrivate() {
		return f.Title
	}
	title := privateToRe.ReplaceAllString(f.Title, "")
	title = parentheticalRe.ReplaceAllString(title, "")
	title = bracketedRe.ReplaceAllString(title, "")
	title = trailingColonRe.ReplaceAllString(title, "")
	title = patreonSuffixRe.ReplaceAllString(title, "")
	title, _, _ = strings.Cut(title, " | ")
	return strings.TrimSpace(title)
}

// Slug derives a lowercase hyphenated identifier from the clean title, used
// as a stable metric label.
func (f Feed) Slug() string {
	title := nonWordRe.ReplaceAllString(f.CleanTitle(), "")
	title = whitespaceRunRe.ReplaceAllString(title, "-")
	return strings.TrimSuffix(strings.ToLower(title), "-")
}

// sortKey orders feeds by when they were added; feeds with no added date
// sort last.
func (f Feed) sortKey() time.Time {
	if f.AddedAt.IsZero() {
		return time.Unix(1<<62, 0)
	}
	return f.AddedAt
}

func feedFieldnames() []string {
	return []string{
		"id",
		"overcast_url",
		"encrypted_title",
		"clean_title",
		"slug",
		"html_url",
		"added_at",
		"is_added",
		"is_following",
	}
}

// nonNullFields maps field name to presence, for the save invariant that
// known values are never forgotten. Encrypted columns count under their
// plain name; the derived columns are excluded since they follow the title.
func (f Feed) nonNullFields() map[string]bool {
	return map[string]bool{
		"id":           f.ID != 0,
		"overcast_url": f.OvercastURL != "",
		"title":        f.Title != "",
		"html_url":     f.HTMLURL != "",
		"added_at":     !f.AddedAt.IsZero(),
		"is_added":     true,
		"is_following": f.IsFollowing != nil,
	}
}

func (f Feed) toRecord(key crypt.Key) ([]string, error) {
	encryptedTitle, err := encryptField(key, f.Title)
	if err != nil {
		return nil, fmt.Errorf("feed %d: encrypt title: %w", f.ID, err)
	}
	return []string{
		formatInt(f.ID),
		string(f.OvercastURL),
		encryptedTitle,
		f.CleanTitle(),
		f.Slug(),
		f.HTMLURL,
		formatTime(f.AddedAt),
		formatBool(f.IsAdded),
		formatOptionalBool(f.IsFollowing),
	}, nil
}

// feedFromRecord decodes one CSV row. The clean_title and slug columns are
// ignored on load and recomputed from the decrypted title.
func feedFromRecord(key crypt.Key, row map[string]string) (Feed, error) {
	feed := Feed{
		HTMLURL: row["html_url"],
		IsAdded: parseBool(row["is_added"]),
	}

	var err error
	if feed.ID, err = parseInt(row["id"]); err != nil {
		return Feed{}, fmt.Errorf("feed id: %w", err)
	}
	if feed.ID == 0 {
		return Feed{}, fmt.Errorf("feed row has no id")
	}
	if row["overcast_url"] != "" {
		if feed.OvercastURL, err = urls.ParseHTTP(row["overcast_url"]); err != nil {
			return Feed{}, fmt.Errorf("feed %d: %w", feed.ID, err)
		}
	}
	if feed.Title, err = decryptField(key, row["encrypted_title"]); err != nil {
		return Feed{}, fmt.Errorf("feed %d: decrypt title: %w", feed.ID, err)
	}
	if feed.AddedAt, err = parseTime(row["added_at"]); err != nil {
		return Feed{}, fmt.Errorf("feed %d: added_at: %w", feed.ID, err)
	}
	feed.IsFollowing = parseOptionalBool(row["is_following"])

	return feed, nil
}
