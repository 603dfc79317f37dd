package cmd

import (
	"errors"
	"math/rand"

	"github.com/spf13/cobra"

	"overcastmirror/internal/logger"
	"overcastmirror/internal/overcast"
	"overcastmirror/internal/store"
	"overcastmirror/internal/urls"
)

func newBackfillCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Fill in missing mirror data",
	}
	cmd.AddCommand(newBackfillEpisodesCommand())
	return cmd
}

func newBackfillEpisodesCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "Scrape episode pages to fill missing fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(a *app) error {
				return backfillEpisodes(a, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1, "number of episodes to backfill")
	return cmd
}

func backfillEpisodes(a *app, limit int) error {
	var missing []store.Episode
	for _, episode := range a.db.Episodes.All() {
		if episode.IsMissingInfo() {
			missing = append(missing, episode)
		}
	}
	if len(missing) == 0 {
		a.log.Info("no episodes missing info")
		return nil
	}
	a.log.Info("episodes missing info",
		logger.Int("count", len(missing)), logger.Int("limit", limit))

	rand.Shuffle(len(missing), func(i, j int) {
		missing[i], missing[j] = missing[j], missing[i]
	})
	if limit < len(missing) {
		missing = missing[:limit]
	}

	for _, episode := range missing {
		if err := backfillEpisode(a, episode); err != nil {
			if errors.Is(err, overcast.ErrRateLimited) {
				a.log.Error("rate limited, skipping episode",
					logger.String("url", string(episode.OvercastURL)))
				continue
			}
			return err
		}
	}
	return nil
}

func backfillEpisode(a *app, episode store.Episode) error {
	id := episode.ID
	if id == "" {
		var err error
		if id, err = overcast.EpisodeIDFromURL(string(episode.OvercastURL)); err != nil {
			a.log.Warn("episode has an unusable permalink",
				logger.String("url", string(episode.OvercastURL)), logger.Error(err))
			return nil
		}
	}

	detail, err := a.client.FetchEpisode(id)
	if err != nil {
		return err
	}

	duration := episode.Duration
	if duration == 0 && detail.AudioURL != "" {
		duration, err = a.client.FetchAudioDuration(a.artifacts, detail.AudioURL)
		if err != nil {
			return err
		}
	}

	a.db.Episodes.InsertOrUpdate(episode.OvercastURL,
		func(u urls.HTTPURL) store.Episode {
			panic("backfill inserted a new episode")
		},
		func(e store.Episode) store.Episode {
			e.ID = id
			if e.Title == "" {
				e.Title = detail.Title
			}
			if e.EnclosureURL == "" && detail.AudioURL != "" {
				e.EnclosureURL = detail.AudioURL.URL()
			}
			if duration > 0 {
				e.Duration = duration
			}
			return e
		},
	)

	a.log.Info("backfilled episode", logger.String("id", string(id)))
	return nil
}
