package overcast

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"overcastmirror/internal/logger"
	"overcastmirror/internal/urls"
)

// EpisodeFeed is one scraped feed page: the app deep link plus the episode
// cells the page shows.
type EpisodeFeed struct {
	OvercastURI string // overcast:/// app URI from the page metadata
	Episodes    []Episode
}

func (f *EpisodeFeed) validate() error {
	if !strings.HasPrefix(f.OvercastURI, "overcast:///") {
		return fmt.Errorf("unexpected overcast URI %q", f.OvercastURI)
	}
	if len(f.Episodes) == 0 {
		return fmt.Errorf("feed page has no episodes")
	}
	return nil
}

// Episode is one episode cell on a feed page.
type Episode struct {
	ID          ItemID
	Title       string
	Description string
	PubDate     time.Time
	Duration    time.Duration // 0 when the page does not show one
	IsPlayed    bool
	InProgress  bool
	IsNew       bool
	IsDeleted   bool
}

func (e *Episode) validate(now time.Time) error {
	if _, err := ParseItemID(string(e.ID)); err != nil {
		return err
	}
	if len(e.Title) <= 3 {
		return fmt.Errorf("episode %s: title %q too short", e.ID, e.Title)
	}
	if e.PubDate.After(now) {
		return fmt.Errorf("episode %s: publication date %s is in the future", e.ID, e.PubDate.Format(time.DateOnly))
	}
	if e.IsDeleted && e.IsNew {
		return fmt.Errorf("episode %s: cannot be both deleted and new", e.ID)
	}
	return nil
}

// FetchPodcast scrapes one feed page into its episode list.
func (c *Client) FetchPodcast(feedID ItemID) (*EpisodeFeed, error) {
	resp, err := c.fetch("/"+string(feedID), "", feedPageTTL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed page: %w", err)
	}

	feed := &EpisodeFeed{OvercastURI: appURI(doc)}

	now := time.Now()
	var parseErr error
	doc.Find("a.extendedepisodecell").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		episode, err := c.parseEpisodeCell(cell, now)
		if err != nil {
			parseErr = err
			return false
		}
		if episode == nil {
			return true // malformed cell, logged and skipped
		}
		feed.Episodes = append(feed.Episodes, *episode)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	if err := feed.validate(); err != nil {
		return nil, fmt.Errorf("feed %s: %w", feedID, err)
	}
	return feed, nil
}

// appURI extracts the overcast:/// deep link from the apple-itunes-app
// meta tag.
func appURI(doc *goquery.Document) string {
	const prefix = "app-id=888422857, app-argument="

	uri := ""
	doc.Find("meta[name=apple-itunes-app]").Each(func(_ int, meta *goquery.Selection) {
		content, ok := meta.Attr("content")
		if ok && strings.HasPrefix(content, "app-id=888422857") {
			uri = strings.TrimPrefix(content, prefix)
		}
	})
	return uri
}

func (c *Client) parseEpisodeCell(cell *goquery.Selection, now time.Time) (*Episode, error) {
	href, ok := cell.Attr("href")
	if !ok {
		c.log.Error("episodecell missing href")
		return nil, nil
	}

	id, err := ParseItemID(strings.TrimPrefix(href, "/"))
	if err != nil {
		return nil, fmt.Errorf("episodecell href %q: %w", href, err)
	}

	title := strings.TrimSpace(cell.Find(".title").First().Text())
	if title == "" {
		c.log.Error("episodecell missing title element", logger.String("href", href))
	}

	className, _ := cell.Attr("class")
	classes := strings.Fields(className)

	captionEl := cell.Find(".caption2").First()
	if captionEl.Length() == 0 {
		c.log.Error("episodecell missing caption element", logger.String("href", href))
		return nil, nil
	}
	caption, err := parseEpisodeCaption(captionEl.Text(), now)
	if err != nil {
		return nil, fmt.Errorf("episode %s: %w", id, err)
	}

	description := strings.TrimSpace(cell.Find(".lighttext").First().Text())
	if description == "" {
		c.log.Error("episodecell missing description element", logger.String("href", href))
	}

	episode := &Episode{
		ID:          id,
		Title:       title,
		Description: description,
		PubDate:     caption.pubDate,
		Duration:    caption.duration,
		IsPlayed:    caption.isPlayed,
		InProgress:  caption.inProgress,
		IsDeleted:   containsString(classes, "userdeletedepisode"),
		IsNew:       containsString(classes, "usernewepisode"),
	}
	if err := episode.validate(now); err != nil {
		return nil, err
	}
	return episode, nil
}

// captionInfo is the parsed form of an episode cell's caption line, e.g.
// "Mar 3 • 82 min" or "Dec 13, 2021 • played".
type captionInfo struct {
	pubDate    time.Time
	duration   time.Duration
	isPlayed   bool
	inProgress bool
}

// parseEpisodeCaption splits the caption on the " • " separator. The first
// part is always the publication date; an optional second part is either a
// playback state or a duration.
func parseEpisodeCaption(text string, now time.Time) (captionInfo, error) {
	text = strings.TrimSpace(text)
	parts := strings.SplitN(text, " • ", 3)

	info := captionInfo{}

	pubDate, err := parseCaptionDate(parts[0], now)
	if err != nil {
		return info, fmt.Errorf("caption %q: %w", text, err)
	}
	info.pubDate = pubDate

	switch {
	case len(parts) == 2 && parts[1] == "played":
		info.isPlayed = true
	case len(parts) == 2 && strings.HasSuffix(parts[1], "left"):
		info.isPlayed = true
	case len(parts) == 2 && strings.HasPrefix(parts[1], "at "):
		info.isPlayed = true
		info.inProgress = true
	case len(parts) == 2:
		duration, err := parseMinutes(parts[1])
		if err != nil {
			return info, fmt.Errorf("caption %q: %w", text, err)
		}
		info.duration = duration
	case len(parts) == 1:
	default:
		return info, fmt.Errorf("unknown caption format %q", text)
	}

	return info, nil
}

// captionDateLayouts are the date forms the feed page uses, most specific
// first.
var captionDateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
}

func parseCaptionDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range captionDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse("Jan 2", s); err == nil {
		t = t.AddDate(now.Year(), 0, 0)
		// Year-less dates mean the most recent occurrence, which around the
		// turn of the year is the previous one.
		if t.After(now) {
			t = t.AddDate(-1, 0, 0)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseMinutes parses a "<n> min" duration.
func parseMinutes(s string) (time.Duration, error) {
	text, ok := strings.CutSuffix(strings.TrimSpace(s), " min")
	if !ok {
		return 0, fmt.Errorf("unrecognized duration %q", s)
	}
	minutes, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("unrecognized duration %q: %w", s, err)
	}
	return time.Duration(minutes) * time.Minute, nil
}

func containsString(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

// EpisodeDetail is the subset of an episode's own page used to backfill
// missing store fields.
type EpisodeDetail struct {
	ID          ItemID
	Title       string
	Description string
	AudioURL    urls.HTTPURL // empty when the page exposes no enclosure
}

// FetchEpisode scrapes a single episode page. Episode pages are immutable
// in practice, so they get a long freshness window.
func (c *Client) FetchEpisode(id ItemID) (*EpisodeDetail, error) {
	resp, err := c.fetch("/"+string(id), "", episodePageTTL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse episode page: %w", err)
	}

	detail := &EpisodeDetail{
		ID:          id,
		Title:       metaContent(doc, "meta[property='og:title']"),
		Description: metaContent(doc, "meta[name='description']"),
	}

	if src, ok := doc.Find("audio source").First().Attr("src"); ok {
		audioURL, err := urls.ParseHTTP(src)
		if err != nil {
			c.log.Error("episode page has invalid audio URL",
				logger.String("id", string(id)), logger.Error(err))
		} else {
			detail.AudioURL = audioURL
		}
	}

	return detail, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// EpisodeIDFromURL extracts the item ID from an episode permalink such as
// https://overcast.fm/+abc123.
func EpisodeIDFromURL(episodeURL string) (ItemID, error) {
	rest, ok := strings.CutPrefix(episodeURL, BaseURL+"/")
	if !ok {
		return "", fmt.Errorf("episode URL %q is not under %s", episodeURL, BaseURL)
	}
	if !strings.HasPrefix(rest, "+") {
		return "", fmt.Errorf("episode URL %q has no +-prefixed item ID", episodeURL)
	}
	return ParseItemID(rest)
}
