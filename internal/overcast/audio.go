package overcast

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tcolgate/mp3"

	"overcastmirror/internal/logger"
	"overcastmirror/internal/lru"
	"overcastmirror/internal/urls"
)

// FetchAudioDuration downloads an episode's enclosure and sums its MP3
// frame durations. Results are memoized in the given cache keyed by URL,
// since decoding a whole file is expensive and enclosures never change.
func (c *Client) FetchAudioDuration(cache *lru.Cache[time.Duration], enclosureURL urls.HTTPURL) (time.Duration, error) {
	return cache.GetOrCompute(string(enclosureURL), func() (time.Duration, error) {
		c.log.Debug("probing audio duration", logger.String("url", string(enclosureURL)))

		resp, err := c.fetchRaw(string(enclosureURL), audioTTL)
		if err != nil {
			return 0, err
		}
		duration, err := mp3Duration(resp.Body)
		if err != nil {
			return 0, fmt.Errorf("decode %s: %w", enclosureURL, err)
		}
		return duration, nil
	})
}

func mp3Duration(data []byte) (time.Duration, error) {
	decoder := mp3.NewDecoder(bytes.NewReader(data))

	var total time.Duration
	var frame mp3.Frame
	var skipped int
	for {
		err := decoder.Decode(&frame, &skipped)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Truncated or junk-trailing files still yield a usable total
			// from the frames decoded so far.
			if total > 0 {
				break
			}
			return 0, err
		}
		total += frame.Duration()
	}

	if total == 0 {
		return 0, errors.New("no decodable frames")
	}
	return total, nil
}
