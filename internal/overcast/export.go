package overcast

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"overcastmirror/internal/urls"
)

// Export is the parsed OPML account export. The extended export nests every
// episode Overcast has seen inside its feed outline; the plain export lists
// feeds only.
type Export struct {
	Playlists []ExportPlaylist
	Feeds     []ExportFeed
}

// ExportPlaylist is one playlist outline from the export.
type ExportPlaylist struct {
	Title        string
	Smart        bool
	SortedIDs    []ItemID // episode IDs in playlist order
	IncludedIDs  []ItemID // feed IDs a smart playlist draws from
	SortingOrder string
}

// ExportFeed is one rss outline from the export.
type ExportFeed struct {
	NumericID    int64
	Title        string
	XMLURL       urls.URL
	HTMLURL      urls.URL
	AddedDate    time.Time
	IsSubscribed bool
	Episodes     []ExportEpisode
}

// ExportEpisode is one nested episode outline from the extended export.
type ExportEpisode struct {
	ID              ItemID
	Title           string
	OvercastURL     urls.HTTPURL
	EnclosureURL    urls.URL
	PubDate         time.Time
	UserUpdatedDate time.Time
	UserDeleted     bool
	Played          bool
	Progress        time.Duration // playback position, 0 when unstarted
}

type opmlDocument struct {
	Body struct {
		Outlines []opmlOutline `xml:"outline"`
	} `xml:"body"`
}

type opmlOutline struct {
	Type     string        `xml:"type,attr"`
	Text     string        `xml:"text,attr"`
	Attrs    []xml.Attr    `xml:",any,attr"`
	Children []opmlOutline `xml:"outline"`
}

func (o opmlOutline) attr(name string) string {
	for _, a := range o.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// FetchExport retrieves and parses the account's OPML export. When extended
// is set the export includes every episode, not just the feed list.
func (c *Client) FetchExport(extended bool) (*Export, error) {
	path := "/account/export_opml"
	if extended {
		path += "/extended"
	}

	resp, err := c.fetch(path, "application/xml", exportTTL)
	if err != nil {
		return nil, err
	}
	return parseExport(resp.Body)
}

func parseExport(data []byte) (*Export, error) {
	var doc opmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse export: %w", err)
	}

	export := &Export{}
	for _, group := range doc.Body.Outlines {
		switch group.Text {
		case "playlists":
			for _, outline := range group.Children {
				playlist, err := parseExportPlaylist(outline)
				if err != nil {
					return nil, err
				}
				export.Playlists = append(export.Playlists, *playlist)
			}
		case "feeds":
			for _, outline := range group.Children {
				feed, err := parseExportFeed(outline)
				if err != nil {
					return nil, err
				}
				export.Feeds = append(export.Feeds, *feed)
			}
		default:
			return nil, fmt.Errorf("parse export: unknown outline group %q", group.Text)
		}
	}

	if len(export.Feeds) == 0 {
		return nil, fmt.Errorf("parse export: no feeds")
	}
	return export, nil
}

func parseExportPlaylist(o opmlOutline) (*ExportPlaylist, error) {
	if o.Type != "podcast-playlist" {
		return nil, fmt.Errorf("playlist outline has type %q", o.Type)
	}
	if o.Text == "" {
		return nil, fmt.Errorf("playlist outline has no title")
	}

	playlist := &ExportPlaylist{
		Title:        o.Text,
		Smart:        o.attr("smart") == "1",
		SortingOrder: o.attr("sorting"),
	}

	var err error
	playlist.SortedIDs, err = parseIDList(o.attr("sortedIds"))
	if err != nil {
		return nil, fmt.Errorf("playlist %q: %w", o.Text, err)
	}
	for _, id := range playlist.SortedIDs {
		if !strings.HasPrefix(string(id), "+") {
			return nil, fmt.Errorf("playlist %q: sorted ID %q is not an episode ID", o.Text, id)
		}
	}

	playlist.IncludedIDs, err = parseIDList(o.attr("includedFeedIds"))
	if err != nil {
		return nil, fmt.Errorf("playlist %q: %w", o.Text, err)
	}

	return playlist, nil
}

func parseIDList(s string) ([]ItemID, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]ItemID, 0, len(parts))
	for _, part := range parts {
		id, err := ParseItemID(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseExportFeed(o opmlOutline) (*ExportFeed, error) {
	if o.Type != "rss" {
		return nil, fmt.Errorf("feed outline has type %q", o.Type)
	}

	feed := &ExportFeed{
		Title:        o.attr("title"),
		IsSubscribed: o.attr("subscribed") == "1",
	}
	if feed.Title == "" {
		feed.Title = o.Text
	}

	id, err := ParseItemID(o.attr("overcastId"))
	if err != nil {
		return nil, fmt.Errorf("feed %q: overcastId: %w", feed.Title, err)
	}
	feed.NumericID = numericOrSelf(id)

	if feed.XMLURL, err = urls.Parse(o.attr("xmlUrl")); err != nil {
		return nil, fmt.Errorf("feed %q: xmlUrl: %w", feed.Title, err)
	}
	if feed.HTMLURL, err = urls.Parse(o.attr("htmlUrl")); err != nil {
		return nil, fmt.Errorf("feed %q: htmlUrl: %w", feed.Title, err)
	}
	if feed.AddedDate, err = parseExportDate(o.attr("overcastAddedDate")); err != nil {
		return nil, fmt.Errorf("feed %q: overcastAddedDate: %w", feed.Title, err)
	}

	for _, child := range o.Children {
		episode, err := parseExportEpisode(child)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", feed.Title, err)
		}
		feed.Episodes = append(feed.Episodes, *episode)
	}

	return feed, nil
}

func parseExportEpisode(o opmlOutline) (*ExportEpisode, error) {
	if o.Type != "podcast-episode" {
		return nil, fmt.Errorf("episode outline has type %q", o.Type)
	}

	episode := &ExportEpisode{
		Title:       o.attr("title"),
		UserDeleted: o.attr("userDeleted") == "1",
		Played:      o.attr("played") == "1",
	}
	if episode.Title == "" {
		episode.Title = o.Text
	}

	id, err := ParseItemID(o.attr("overcastId"))
	if err != nil {
		return nil, fmt.Errorf("episode %q: overcastId: %w", episode.Title, err)
	}
	episode.ID = id

	overcastURL := o.attr("overcastUrl")
	if episode.OvercastURL, err = urls.ParseHTTP(overcastURL); err != nil {
		return nil, fmt.Errorf("episode %q: overcastUrl: %w", episode.Title, err)
	}
	if !strings.HasPrefix(strings.TrimPrefix(overcastURL, BaseURL+"/"), "+") {
		return nil, fmt.Errorf("episode %q: overcastUrl %q has no +-prefixed item ID", episode.Title, overcastURL)
	}

	if episode.EnclosureURL, err = urls.Parse(o.attr("enclosureUrl")); err != nil {
		return nil, fmt.Errorf("episode %q: enclosureUrl: %w", episode.Title, err)
	}
	if episode.PubDate, err = parseExportDate(o.attr("pubDate")); err != nil {
		return nil, fmt.Errorf("episode %q: pubDate: %w", episode.Title, err)
	}
	if updated := o.attr("userUpdatedDate"); updated != "" {
		if episode.UserUpdatedDate, err = parseExportDate(updated); err != nil {
			return nil, fmt.Errorf("episode %q: userUpdatedDate: %w", episode.Title, err)
		}
	}
	if progress := o.attr("progress"); progress != "" {
		seconds, err := parseWholeSeconds(progress)
		if err != nil {
			return nil, fmt.Errorf("episode %q: progress: %w", episode.Title, err)
		}
		episode.Progress = seconds
	}

	return episode, nil
}

// parseExportDate parses the export's RFC 822 style timestamps, e.g.
// "Tue, 04 Jan 2022 17:00:00 -0000".
func parseExportDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseWholeSeconds parses a non-negative whole-second count.
func parseWholeSeconds(s string) (time.Duration, error) {
	seconds, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognized seconds %q: %w", s, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative seconds %q", s)
	}
	return time.Duration(seconds) * time.Second, nil
}

// numericOrSelf resolves the export's overcastId attribute, which is the
// bare numeric ID for public feeds and the private token otherwise.
func numericOrSelf(id ItemID) int64 {
	if n := id.NumericID(); n != 0 {
		return n
	}
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return n
	}
	return 0
}
