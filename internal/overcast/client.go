// Package overcast scrapes an Overcast account: the podcasts index, feed
// and episode pages, and the OPML account export. Every network access goes
// through the response cache; this package never touches the file system
// directly.
package overcast

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"overcastmirror/internal/httpcache"
	"overcastmirror/internal/logger"
)

// BaseURL is the upstream service root.
const BaseURL = "https://overcast.fm"

// ErrLoggedOut means the upstream returned its login page instead of
// account content. The response must not be used: treating it as valid
// would corrupt the mirrored state. Stale cached entries can be logged-out
// snapshots too, so this is checked after every fetch.
var ErrLoggedOut = errors.New("received logged out page")

// ErrRateLimited mirrors the cache layer's sentinel so callers only need
// this package's error set.
var ErrRateLimited = httpcache.ErrRateLimited

// loggedOutMarker appears in the upstream login page body.
const loggedOutMarker = "Log In"

// Freshness windows per endpoint class. Listing pages change often; the
// export and media files hardly ever do.
const (
	feedIndexTTL   = time.Hour
	feedPageTTL    = time.Hour
	exportTTL      = 24 * time.Hour
	episodePageTTL = 30 * 24 * time.Hour
	audioTTL       = 30 * 24 * time.Hour
)

// DefaultMinRequestInterval is the spacing between upstream requests. The
// service rate-limits aggressively, so the default is deliberately slow.
const DefaultMinRequestInterval = time.Minute

// safariHeaders makes requests look like a regular browser session.
var safariHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Sec-Fetch-Site":  "none",
	"Sec-Fetch-Mode":  "navigate",
	"Sec-Fetch-Dest":  "document",
	"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/605.1.15 (KHTML, like Gecko) " +
		"Version/17.3 " +
		"Safari/605.1.15",
}

// Options configures a Client.
type Options struct {
	// CacheDir is the response cache root.
	CacheDir string
	// Cookie is the Overcast session cookie value ("o" cookie).
	Cookie string
	// Offline disables network access; only cached pages are served.
	Offline bool
	// MinRequestInterval overrides DefaultMinRequestInterval when positive.
	MinRequestInterval time.Duration
	// HTTPClient overrides the HTTP client, for tests.
	HTTPClient *http.Client
	// BaseURL overrides the upstream root, for tests.
	BaseURL string
	// Clock overrides wall-clock access, for tests.
	Clock *httpcache.Clock
	// Logger receives scrape and cache decisions.
	Logger logger.Logger
}

// Client is a cached scraping session for one Overcast account.
type Client struct {
	session *httpcache.Session
	log     logger.Logger
}

// NewClient builds a Client with a browser-like header set and the
// account's session cookie.
func NewClient(opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	base := opts.BaseURL
	if base == "" {
		base = BaseURL
	}
	interval := opts.MinRequestInterval
	if interval <= 0 {
		interval = DefaultMinRequestInterval
	}

	headers := make(map[string]string, len(safariHeaders)+1)
	for name, value := range safariHeaders {
		headers[name] = value
	}
	headers["Cookie"] = fmt.Sprintf("o=%s; qr=-", opts.Cookie)

	session, err := httpcache.NewSession(httpcache.Options{
		CacheDir:           opts.CacheDir,
		BaseURL:            base,
		Headers:            headers,
		MinRequestInterval: interval,
		Offline:            opts.Offline,
		Client:             opts.HTTPClient,
		Clock:              opts.Clock,
		Logger:             log,
	})
	if err != nil {
		return nil, fmt.Errorf("create overcast session: %w", err)
	}

	return &Client{session: session, log: log}, nil
}

// fetch runs one cached GET and applies the logged-out content check. The
// check runs on stale-served responses as well: a stale entry can be a
// snapshot of the login page.
func (c *Client) fetch(path, accept string, ttl time.Duration) (*httpcache.Response, error) {
	resp, _, err := c.session.Fetch(path, httpcache.FetchOptions{
		Accept:       accept,
		TTL:          ttl,
		StaleOnError: true,
	})
	if err != nil {
		return nil, err
	}
	if bytes.Contains(resp.Body, []byte(loggedOutMarker)) {
		return nil, fmt.Errorf("GET %s: %w", path, ErrLoggedOut)
	}
	return resp, nil
}

// fetchRaw runs one cached GET without the logged-out content check, for
// binary bodies fetched from enclosure hosts.
func (c *Client) fetchRaw(url string, ttl time.Duration) (*httpcache.Response, error) {
	resp, _, err := c.session.Fetch(url, httpcache.FetchOptions{
		TTL:          ttl,
		StaleOnError: true,
	})
	return resp, err
}

// PurgeCache removes expired and over-age response cache entries.
func (c *Client) PurgeCache(olderThan time.Duration) error {
	return c.session.Purge(olderThan)
}

// CachePath exposes the underlying cache path derivation for diagnostics.
func (c *Client) CachePath(path, accept string) (string, error) {
	return c.session.CachePath(path, accept)
}
