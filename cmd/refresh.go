package cmd

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/spf13/cobra"

	"overcastmirror/internal/logger"
	"overcastmirror/internal/overcast"
	"overcastmirror/internal/store"
	"overcastmirror/internal/urls"
)

func newRefreshCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the mirror from the account",
	}
	cmd.AddCommand(newRefreshExportCommand())
	cmd.AddCommand(newRefreshIndexCommand())
	cmd.AddCommand(newRefreshFeedsCommand())
	return cmd
}

func boolPtr(v bool) *bool { return &v }

func newRefreshExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Refresh feeds and episodes from the OPML account export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, refreshExport)
		},
	}
}

func refreshExport(a *app) error {
	a.log.Info("refreshing from account export")

	export, err := a.client.FetchExport(true)
	if errors.Is(err, overcast.ErrRateLimited) {
		a.log.Error("rate limited, abandoning export refresh")
		return nil
	}
	if err != nil {
		return err
	}

	// The export is the authority on what is followed: reset first, then
	// apply its current values.
	a.db.Feeds.Update(func(f store.Feed) store.Feed {
		f.IsFollowing = boolPtr(false)
		return f
	})

	for _, exportFeed := range export.Feeds {
		if exportFeed.NumericID == 0 {
			a.log.Warn("export feed has no numeric ID, skipping",
				logger.String("title", exportFeed.Title))
			continue
		}
		upsertExportFeed(a.db.Feeds, exportFeed)
		for _, exportEpisode := range exportFeed.Episodes {
			upsertExportEpisode(a.db.Episodes, exportFeed.NumericID, exportEpisode)
		}
	}

	a.log.Info("export refresh done",
		logger.Int("feeds", a.db.Feeds.Len()),
		logger.Int("episodes", a.db.Episodes.Len()))
	return nil
}

func upsertExportFeed(feeds *store.FeedCollection, exportFeed overcast.ExportFeed) {
	apply := func(f store.Feed) store.Feed {
		f.Title = exportFeed.Title
		f.HTMLURL = string(exportFeed.HTMLURL)
		f.AddedAt = exportFeed.AddedDate
		f.IsFollowing = boolPtr(exportFeed.IsSubscribed)
		return f
	}
	feeds.InsertOrUpdate(exportFeed.NumericID,
		func(id int64) store.Feed { return apply(store.Feed{ID: id}) },
		apply,
	)
}

func upsertExportEpisode(episodes *store.EpisodeCollection, feedID int64, exportEpisode overcast.ExportEpisode) {
	apply := func(e store.Episode) store.Episode {
		e.ID = exportEpisode.ID
		e.FeedID = feedID
		e.Title = exportEpisode.Title
		if exportEpisode.EnclosureURL != "" {
			e.EnclosureURL = exportEpisode.EnclosureURL
		}
		e.DatePublished = exportEpisode.PubDate
		e.IsPlayed = boolPtr(exportEpisode.Played)
		return e
	}
	episodes.InsertOrUpdate(exportEpisode.OvercastURL,
		func(u urls.HTTPURL) store.Episode { return apply(store.Episode{OvercastURL: u}) },
		apply,
	)
}

func newRefreshIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Refresh the feed list from the podcasts index page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, refreshIndex)
		},
	}
}

func refreshIndex(a *app) error {
	a.log.Info("refreshing feeds index")

	htmlFeeds, err := a.client.FetchPodcasts()
	if errors.Is(err, overcast.ErrRateLimited) {
		a.log.Error("rate limited, abandoning index refresh")
		return nil
	}
	if err != nil {
		return err
	}

	// The index page is the authority on list membership.
	a.db.Feeds.Update(func(f store.Feed) store.Feed {
		f.IsAdded = false
		return f
	})

	for _, htmlFeed := range htmlFeeds {
		if htmlFeed.NumericID == 0 {
			a.log.Warn("feed has no numeric ID, skipping",
				logger.String("id", string(htmlFeed.ID)))
			continue
		}

		overcastURL, err := urls.ParseHTTP(overcast.BaseURL + "/" + string(htmlFeed.ID))
		if err != nil {
			return fmt.Errorf("feed %s: %w", htmlFeed.ID, err)
		}

		apply := func(f store.Feed) store.Feed {
			f.OvercastURL = overcastURL
			f.Title = htmlFeed.Title
			f.IsAdded = true
			return f
		}
		a.db.Feeds.InsertOrUpdate(htmlFeed.NumericID,
			func(id int64) store.Feed { return apply(store.Feed{ID: id}) },
			apply,
		)

		// A feed with nothing unplayed has nothing left in the download
		// list either.
		if !htmlFeed.HasUnplayedEpisodes {
			feedID := htmlFeed.NumericID
			a.db.Episodes.Update(func(e store.Episode) store.Episode {
				if e.FeedID == feedID {
					e.IsDownloaded = false
				}
				return e
			})
		}
	}

	a.log.Info("index refresh done", logger.Int("feeds", len(htmlFeeds)))
	return nil
}

func newRefreshFeedsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Re-scrape randomly chosen feed pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(a *app) error {
				return refreshFeeds(a, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1, "number of feeds to refresh")
	return cmd
}

func refreshFeeds(a *app, limit int) error {
	a.log.Info("refreshing feed pages", logger.Int("limit", limit))

	var candidates []store.Feed
	for _, feed := range a.db.Feeds.All() {
		if feed.IsAdded {
			candidates = append(candidates, feed)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if limit < len(candidates) {
		candidates = candidates[:limit]
	}

	for _, feed := range candidates {
		if feed.OvercastURL == "" {
			a.log.Warn("feed has no Overcast URL", logger.Int64("id", feed.ID))
			continue
		}
		feedItemID, err := overcast.ParseItemID(
			strings.TrimPrefix(string(feed.OvercastURL), overcast.BaseURL+"/"))
		if err != nil {
			a.log.Warn("feed has an unusable Overcast URL",
				logger.Int64("id", feed.ID), logger.Error(err))
			continue
		}

		htmlFeed, err := a.client.FetchPodcast(feedItemID)
		if errors.Is(err, overcast.ErrRateLimited) {
			a.log.Error("rate limited, skipping feed", logger.Int64("id", feed.ID))
			continue
		}
		if err != nil {
			return err
		}

		for _, htmlEpisode := range htmlFeed.Episodes {
			upsertHTMLEpisode(a.db.Episodes, feed.ID, htmlEpisode)
		}
		a.log.Info("refreshed feed",
			logger.Int64("id", feed.ID),
			logger.Int("episodes", len(htmlFeed.Episodes)))
	}

	return nil
}

func upsertHTMLEpisode(episodes *store.EpisodeCollection, feedID int64, htmlEpisode overcast.Episode) {
	overcastURL := urls.HTTPURL(overcast.BaseURL + "/" + string(htmlEpisode.ID))

	apply := func(e store.Episode) store.Episode {
		e.ID = htmlEpisode.ID
		e.FeedID = feedID
		e.Title = htmlEpisode.Title
		if htmlEpisode.Duration > 0 {
			e.Duration = htmlEpisode.Duration
		}
		e.DatePublished = htmlEpisode.PubDate
		e.IsPlayed = boolPtr(htmlEpisode.IsPlayed)
		e.IsDownloaded = htmlEpisode.IsNew && !htmlEpisode.IsDeleted
		if e.IsDownloaded {
			e.DidDownload = true
		}
		return e
	}
	episodes.InsertOrUpdate(overcastURL,
		func(u urls.HTTPURL) store.Episode { return apply(store.Episode{OvercastURL: u}) },
		apply,
	)
}
