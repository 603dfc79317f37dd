package overcast

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"overcastmirror/internal/urls"
)

const exportOPML = `<?xml version="1.0" encoding="utf-8"?>
<opml version="1.0">
<head><title>Overcast Podcast Subscriptions</title></head>
<body>
  <outline text="playlists">
    <outline type="podcast-playlist" text="Queue" smart="1" sorting="manual"
      includedFeedIds="p1234567-aBcDeF,7654321"
      sortedIds="+R7DVUmqLg,+R7DVUmqLh"/>
  </outline>
  <outline text="feeds">
    <outline type="rss" text="Accidental Tech Podcast" title="Accidental Tech Podcast"
      overcastId="p1234567-aBcDeF" xmlUrl="https://atp.fm/rss" htmlUrl="https://atp.fm"
      overcastAddedDate="Tue, 04 Jan 2022 17:00:00 -0000" subscribed="1">
      <outline type="podcast-episode" text="Episode One"
        overcastId="+R7DVUmqLg" overcastUrl="https://overcast.fm/+R7DVUmqLg"
        enclosureUrl="https://cdn.example.com/one.mp3"
        pubDate="Mon, 13 Dec 2021 22:00:00 -0000"
        userUpdatedDate="Tue, 14 Dec 2021 08:30:00 -0000"
        played="1" progress="1375"/>
      <outline type="podcast-episode" text="Episode Two"
        overcastId="+R7DVUmqLh" overcastUrl="https://overcast.fm/+R7DVUmqLh"
        enclosureUrl="https://cdn.example.com/two.mp3"
        pubDate="Mon, 20 Dec 2021 22:00:00 -0000"
        userDeleted="1"/>
    </outline>
    <outline type="rss" text="The Talk Show" title="The Talk Show"
      overcastId="7654321" xmlUrl="https://daringfireball.net/thetalkshow/rss"
      htmlUrl="https://daringfireball.net/thetalkshow"
      overcastAddedDate="Wed, 05 Jan 2022 09:00:00 -0000" subscribed="0"/>
  </outline>
</body>
</opml>`

func TestFetchExport(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/account/export_opml/extended", r.URL.Path)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(exportOPML))
	}))

	export, err := client.FetchExport(true)
	require.NoError(t, err)

	require.Len(t, export.Playlists, 1)
	playlist := export.Playlists[0]
	require.Equal(t, "Queue", playlist.Title)
	require.True(t, playlist.Smart)
	require.Equal(t, "manual", playlist.SortingOrder)
	require.Equal(t, []ItemID{"+R7DVUmqLg", "+R7DVUmqLh"}, playlist.SortedIDs)
	require.Equal(t, []ItemID{"p1234567-aBcDeF", "7654321"}, playlist.IncludedIDs)

	require.Len(t, export.Feeds, 2)

	atp := export.Feeds[0]
	require.Equal(t, int64(1234567), atp.NumericID)
	require.Equal(t, "Accidental Tech Podcast", atp.Title)
	require.Equal(t, urls.URL("https://atp.fm/rss"), atp.XMLURL)
	require.Equal(t, urls.URL("https://atp.fm"), atp.HTMLURL)
	require.True(t, atp.IsSubscribed)
	require.Equal(t, time.Date(2022, time.January, 4, 17, 0, 0, 0, time.UTC), atp.AddedDate.UTC())

	require.Len(t, atp.Episodes, 2)
	one := atp.Episodes[0]
	require.Equal(t, ItemID("+R7DVUmqLg"), one.ID)
	require.Equal(t, "Episode One", one.Title)
	require.Equal(t, urls.HTTPURL("https://overcast.fm/+R7DVUmqLg"), one.OvercastURL)
	require.Equal(t, urls.URL("https://cdn.example.com/one.mp3"), one.EnclosureURL)
	require.True(t, one.Played)
	require.False(t, one.UserDeleted)
	require.Equal(t, 1375*time.Second, one.Progress)
	require.Equal(t, time.Date(2021, time.December, 14, 8, 30, 0, 0, time.UTC), one.UserUpdatedDate.UTC())

	two := atp.Episodes[1]
	require.True(t, two.UserDeleted)
	require.False(t, two.Played)
	require.Zero(t, two.Progress)
	require.True(t, two.UserUpdatedDate.IsZero())

	talkShow := export.Feeds[1]
	require.Equal(t, int64(7654321), talkShow.NumericID)
	require.False(t, talkShow.IsSubscribed)
	require.Empty(t, talkShow.Episodes)
}

func TestFetchExport_PlainRequestsFeedsOnly(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/account/export_opml", r.URL.Path)
		_, _ = w.Write([]byte(exportOPML))
	}))

	_, err := client.FetchExport(false)
	require.NoError(t, err)
}

func TestParseExport_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opml string
	}{
		{
			name: "not xml",
			opml: "not xml at all <",
		},
		{
			name: "no feeds",
			opml: `<opml><body><outline text="feeds"/></body></opml>`,
		},
		{
			name: "unknown group",
			opml: `<opml><body><outline text="stations"/></body></opml>`,
		},
		{
			name: "feed outline with wrong type",
			opml: `<opml><body><outline text="feeds">
				<outline type="link" text="Some Feed"/>
			</outline></body></opml>`,
		},
		{
			name: "playlist with feed ID in sortedIds",
			opml: `<opml><body>
				<outline text="playlists">
					<outline type="podcast-playlist" text="Queue" sortedIds="1234567"/>
				</outline>
				<outline text="feeds">
					<outline type="rss" text="Some Feed" title="Some Feed" overcastId="1234567"
						xmlUrl="https://example.com/rss" htmlUrl="https://example.com"
						overcastAddedDate="Tue, 04 Jan 2022 17:00:00 -0000" subscribed="1"/>
				</outline>
			</body></opml>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := parseExport([]byte(tt.opml))
			require.Error(t, err)
		})
	}
}
