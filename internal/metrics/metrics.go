// Package metrics renders the mirrored account as Prometheus gauges for
// node_exporter textfile collection.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"overcastmirror/internal/store"
)

var episodeLabels = []string{"feed_slug", "played", "downloaded"}

// Build registers per-feed episode gauges from the store. Every feed gets
// all label combinations pre-set to zero so absent series read as zero
// instead of missing.
func Build(feeds *store.FeedCollection, episodes *store.EpisodeCollection) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()

	episodeCount := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "overcast_episode_count",
		Help: "Count of Overcast episodes",
	}, episodeLabels)
	episodeMinutes := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "overcast_episode_minutes",
		Help: "Minutes of Overcast episodes",
	}, episodeLabels)
	if err := registry.Register(episodeCount); err != nil {
		return nil, fmt.Errorf("register episode count: %w", err)
	}
	if err := registry.Register(episodeMinutes); err != nil {
		return nil, fmt.Errorf("register episode minutes: %w", err)
	}

	slugs := make(map[int64]string, feeds.Len())
	for _, feed := range feeds.All() {
		slug := feed.Slug()
		slugs[feed.ID] = slug
		for _, played := range []string{"true", "false"} {
			for _, downloaded := range []string{"true", "false"} {
				episodeCount.WithLabelValues(slug, played, downloaded).Set(0)
			}
		}
	}

	for _, episode := range episodes.All() {
		slug, ok := slugs[episode.FeedID]
		if !ok {
			return nil, fmt.Errorf("episode %s references unknown feed %d", episode.OvercastURL, episode.FeedID)
		}
		played := formatLabel(episode.IsPlayed != nil && *episode.IsPlayed)
		downloaded := formatLabel(episode.IsDownloaded)

		episodeCount.WithLabelValues(slug, played, downloaded).Inc()
		if episode.Duration > 0 {
			episodeMinutes.WithLabelValues(slug, played, downloaded).Add(episode.Duration.Minutes())
		}
	}

	return registry, nil
}

func formatLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// Render returns the registry in the text exposition format.
func Render(gatherer prometheus.Gatherer) (string, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf strings.Builder
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return "", fmt.Errorf("encode metrics: %w", err)
		}
	}
	return buf.String(), nil
}

// WriteTextfile atomically writes the registry to a node_exporter textfile.
func WriteTextfile(path string, registry *prometheus.Registry) error {
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
