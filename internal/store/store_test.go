package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overcastmirror/internal/crypt"
	"overcastmirror/internal/urls"
)

const testKeyBase64 = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWYwMTIzNDU2Nzg5YWJjZGVm"

func testKey(t *testing.T) crypt.Key {
	t.Helper()
	key, err := crypt.ParseKey(testKeyBase64)
	require.NoError(t, err)
	return key
}

func boolPtr(v bool) *bool { return &v }

func TestFeed_CleanTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		feed Feed
		want string
	}{
		{
			name: "public title passes through",
			feed: Feed{
				OvercastURL: "https://overcast.fm/itunes123",
				Title:       "The Talk Show (With John Gruber)",
			},
			want: "The Talk Show (With John Gruber)",
		},
		{
			name: "private strips private-to suffix",
			feed: Feed{Title: "Some Show — Private to Alex"},
			want: "Some Show",
		},
		{
			name: "private strips parentheticals and brackets",
			feed: Feed{Title: "Some Show (Premium) [ad-free]"},
			want: "Some Show",
		},
		{
			name: "private strips patreon suffix",
			feed: Feed{Title: "Some Show - Patreon Exclusive Feed"},
			want: "Some Show",
		},
		{
			name: "private keeps only first pipe segment",
			feed: Feed{Title: "Some Show | member feed"},
			want: "Some Show",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.feed.CleanTitle())
		})
	}
}

func TestFeed_Slug(t *testing.T) {
	t.Parallel()

	feed := Feed{
		OvercastURL: "https://overcast.fm/itunes123",
		Title:       "The Talk Show With John Gruber",
	}
	require.Equal(t, "the-talk-show-with-john-gruber", feed.Slug())

	private := Feed{Title: "Hello, World! — Private to Alex"}
	require.Equal(t, "hello-world", private.Slug())
}

func TestFeed_IsPrivate(t *testing.T) {
	t.Parallel()

	require.True(t, Feed{}.IsPrivate())
	require.True(t, Feed{OvercastURL: "https://overcast.fm/p1234567-aBcDeF"}.IsPrivate())
	require.False(t, Feed{OvercastURL: "https://overcast.fm/itunes123"}.IsPrivate())
}

func TestFeedCollection_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	filename := filepath.Join(t.TempDir(), "feeds.csv")

	feeds := []Feed{
		{
			ID:          126160,
			OvercastURL: "https://overcast.fm/itunes126160",
			Title:       "The Talk Show With John Gruber",
			HTMLURL:     "https://daringfireball.net/thetalkshow",
			AddedAt:     time.Date(2014, time.July, 16, 16, 56, 20, 0, time.UTC),
			IsAdded:     true,
			IsFollowing: boolPtr(true),
		},
		{
			ID:      999,
			Title:   "Some Show — Private to Alex",
			IsAdded: false,
		},
	}

	require.NoError(t, NewFeedCollection(feeds).Save(filename, key))

	loaded, err := LoadFeeds(filename, key)
	require.NoError(t, err)
	require.Equal(t, feeds, loaded.All())

	// The title column is encrypted; only the derived clean title and slug
	// appear in the clear.
	raw, err := os.ReadFile(filename)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "Private to Alex")
	require.Contains(t, string(raw), "the-talk-show-with-john-gruber")
}

func TestEpisodeCollection_SaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	filename := filepath.Join(t.TempDir(), "episodes.csv")

	episodes := []Episode{
		{
			ID:            "+R7DVUmqLg",
			OvercastURL:   "https://overcast.fm/+R7DVUmqLg",
			FeedID:        126160,
			Title:         "Episode One",
			EnclosureURL:  "https://cdn.example.com/one.mp3",
			Duration:      82 * time.Minute,
			DatePublished: time.Date(2021, time.December, 13, 22, 0, 0, 0, time.UTC),
			IsPlayed:      boolPtr(true),
			IsDownloaded:  true,
			DidDownload:   true,
		},
		{
			OvercastURL:   "https://overcast.fm/+R7DVUmqLh",
			FeedID:        126160,
			Title:         "Episode Two",
			DatePublished: time.Date(2021, time.December, 20, 22, 0, 0, 0, time.UTC),
		},
	}

	require.NoError(t, NewEpisodeCollection(episodes).Save(filename, key))

	loaded, err := LoadEpisodes(filename, key)
	require.NoError(t, err)
	require.Equal(t, episodes, loaded.All())

	raw, err := os.ReadFile(filename)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "overcast.fm")
	require.NotContains(t, string(raw), "cdn.example.com")
}

func TestFeedCollection_InsertOrUpdateSorts(t *testing.T) {
	t.Parallel()

	c := NewFeedCollection([]Feed{
		{ID: 1, Title: "Later Show", AddedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), IsAdded: true},
	})

	c.InsertOrUpdate(2,
		func(id int64) Feed {
			return Feed{ID: id, Title: "Early Show", AddedAt: time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)}
		},
		func(f Feed) Feed { return f },
	)
	c.InsertOrUpdate(3,
		func(id int64) Feed { return Feed{ID: id, Title: "Never Added"} },
		func(f Feed) Feed { return f },
	)

	ids := make([]int64, 0, c.Len())
	for _, feed := range c.All() {
		ids = append(ids, feed.ID)
	}
	// Oldest added first, feeds with no added date last.
	require.Equal(t, []int64{2, 1, 3}, ids)

	c.InsertOrUpdate(1,
		func(id int64) Feed { t.Fatal("unexpected insert"); return Feed{} },
		func(f Feed) Feed { f.Title = "Renamed Show"; return f },
	)
	feed, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, "Renamed Show", feed.Title)
	require.Equal(t, 3, c.Len())
}

func TestEpisodeCollection_SortsByFeedThenDate(t *testing.T) {
	t.Parallel()

	c := NewEpisodeCollection(nil)
	insert := func(url urls.HTTPURL, feedID int64, published time.Time) {
		c.InsertOrUpdate(url,
			func(u urls.HTTPURL) Episode {
				return Episode{OvercastURL: u, FeedID: feedID, DatePublished: published}
			},
			func(e Episode) Episode { return e },
		)
	}

	insert("https://overcast.fm/+b2", 2, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))
	insert("https://overcast.fm/+a2", 1, time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC))
	insert("https://overcast.fm/+a1", 1, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))

	var order []string
	for _, e := range c.All() {
		order = append(order, string(e.OvercastURL))
	}
	require.Equal(t, []string{
		"https://overcast.fm/+a1",
		"https://overcast.fm/+a2",
		"https://overcast.fm/+b2",
	}, order)
}

func TestFeedCollection_SaveRejectsForgottenValues(t *testing.T) {
	t.Parallel()

	c := NewFeedCollection([]Feed{
		{ID: 1, Title: "Some Show", AddedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
	})
	c.Update(func(f Feed) Feed {
		f.AddedAt = time.Time{}
		return f
	})

	err := c.Save(filepath.Join(t.TempDir(), "feeds.csv"), testKey(t))
	require.ErrorContains(t, err, "added_at non-null count decreased")
}

func TestFeedCollection_SaveRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	c := NewFeedCollection([]Feed{
		{ID: 1, Title: "Some Show"},
		{ID: 1, Title: "Same Show"},
	})

	err := c.Save(filepath.Join(t.TempDir(), "feeds.csv"), testKey(t))
	require.ErrorContains(t, err, "duplicate id")
}

func TestEpisodeCollection_SaveRejectsDuplicateURLs(t *testing.T) {
	t.Parallel()

	published := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewEpisodeCollection([]Episode{
		{OvercastURL: "https://overcast.fm/+a1", FeedID: 1, DatePublished: published},
		{OvercastURL: "https://overcast.fm/+a1", FeedID: 1, DatePublished: published},
	})

	err := c.Save(filepath.Join(t.TempDir(), "episodes.csv"), testKey(t))
	require.ErrorContains(t, err, "duplicate overcast_url")
}

func TestEpisodeCollection_DownloadCounts(t *testing.T) {
	t.Parallel()

	published := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewEpisodeCollection([]Episode{
		{OvercastURL: "https://overcast.fm/+a1", FeedID: 1, DatePublished: published, IsDownloaded: true},
		{OvercastURL: "https://overcast.fm/+a2", FeedID: 1, DatePublished: published, IsDownloaded: true},
		{OvercastURL: "https://overcast.fm/+b1", FeedID: 2, DatePublished: published},
	})

	require.Equal(t, map[int64]int{1: 2}, c.DownloadCounts())
}

func TestDatabase_OpenCloseCommit(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	dir := t.TempDir()
	writeEmptyDatabase(t, dir, key)

	db, err := Open(dir, key, nil)
	require.NoError(t, err)

	db.Feeds.InsertOrUpdate(1,
		func(id int64) Feed { return Feed{ID: id, Title: "Some Show", IsAdded: true} },
		func(f Feed) Feed { return f },
	)
	require.NoError(t, db.Close(true))

	reopened, err := Open(dir, key, nil)
	require.NoError(t, err)
	require.Equal(t, 1, reopened.Feeds.Len())

	// A failed run must not write anything back.
	reopened.Feeds.InsertOrUpdate(2,
		func(id int64) Feed { return Feed{ID: id, Title: "Another Show"} },
		func(f Feed) Feed { return f },
	)
	require.NoError(t, reopened.Close(false))

	final, err := Open(dir, key, nil)
	require.NoError(t, err)
	require.Equal(t, 1, final.Feeds.Len())
}

func TestDatabase_OpenFailsWithoutFiles(t *testing.T) {
	t.Parallel()

	_, err := Open(t.TempDir(), testKey(t), nil)
	require.Error(t, err)
}

func writeEmptyDatabase(t *testing.T, dir string, key crypt.Key) {
	t.Helper()
	require.NoError(t, NewFeedCollection(nil).Save(filepath.Join(dir, "feeds.csv"), key))
	require.NoError(t, NewEpisodeCollection(nil).Save(filepath.Join(dir, "episodes.csv"), key))
}

func TestReadRows_MissingHeader(t *testing.T) {
	t.Parallel()

	filename := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(filename, nil, 0o644))

	_, err := readRows(filename)
	require.ErrorContains(t, err, "missing header")
}

func TestFeedRecord_EmptyOptionalColumns(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	feed := Feed{ID: 42, Title: "Some Show"}
	record, err := feed.toRecord(key)
	require.NoError(t, err)

	row := make(map[string]string, len(record))
	for i, name := range feedFieldnames() {
		row[name] = record[i]
	}
	require.Empty(t, row["overcast_url"])
	require.Empty(t, row["added_at"])
	require.Empty(t, row["is_following"])
	require.Equal(t, "0", row["is_added"])
	require.True(t, strings.HasPrefix(row["slug"], "some-show"))

	decoded, err := feedFromRecord(key, row)
	require.NoError(t, err)
	require.Equal(t, feed, decoded)
}
