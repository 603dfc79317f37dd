package overcast

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"overcastmirror/internal/logger"
)

// Feed is one row of the account's podcasts index page.
type Feed struct {
	ID                  ItemID
	NumericID           int64 // 0 when the page exposes no numeric ID
	Title               string
	HasUnplayedEpisodes bool
}

func (f *Feed) validate() error {
	if _, err := ParseItemID(string(f.ID)); err != nil {
		return err
	}
	if len(f.Title) <= 3 {
		return fmt.Errorf("feed %s: title %q too short", f.ID, f.Title)
	}
	return nil
}

// FetchPodcasts scrapes the podcasts index page into the account's feed
// list. Cells the page renders without the expected structure are logged
// and skipped; a page with no recognizable feeds at all is an error.
func (c *Client) FetchPodcasts() ([]Feed, error) {
	resp, err := c.fetch("/podcasts", "", feedIndexTTL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse podcasts page: %w", err)
	}

	var feeds []Feed
	var parseErr error
	doc.Find("a.feedcell").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		href, ok := cell.Attr("href")
		if !ok {
			c.log.Error("feedcell missing href")
			return true
		}
		if href == "/uploads" {
			return true
		}

		id, err := ParseItemID(strings.TrimPrefix(href, "/"))
		if err != nil {
			parseErr = fmt.Errorf("feedcell href %q: %w", href, err)
			return false
		}

		titleEl := cell.Find(".titlestack > .title").First()
		if titleEl.Length() == 0 {
			c.log.Error("feedcell missing title element", logger.String("href", href))
			return true
		}

		feed := Feed{
			ID:                  id,
			NumericID:           numericOrSelf(id),
			Title:               strings.TrimSpace(titleEl.Text()),
			HasUnplayedEpisodes: cell.Find(".unplayed_indicator").Length() > 0,
		}
		if err := feed.validate(); err != nil {
			parseErr = err
			return false
		}

		c.log.Debug("parsed feed",
			logger.String("id", string(feed.ID)), logger.String("title", feed.Title))
		feeds = append(feeds, feed)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	if len(feeds) == 0 {
		return nil, fmt.Errorf("no feeds found on podcasts page")
	}
	return feeds, nil
}
