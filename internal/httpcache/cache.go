package httpcache

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"overcastmirror/internal/logger"
)

// ErrOffline is returned when offline mode is on and no cache entry, fresh
// or stale, exists for the request.
var ErrOffline = errors.New("offline and no cached response available")

// ErrRateLimited surfaces an upstream HTTP 429. The cache never retries it;
// callers decide whether to abandon or abort the surrounding batch.
var ErrRateLimited = errors.New("rate limited by upstream")

// StatusError reports a non-success HTTP status that could not be recovered
// from the cache.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Options configures a Session.
type Options struct {
	// CacheDir is the cache root. Entries live under CacheDir/<host>.
	CacheDir string
	// BaseURL is the upstream service root, without a trailing slash.
	BaseURL string
	// Headers are sent with every request.
	Headers map[string]string
	// MinRequestInterval is the minimum spacing between network calls.
	MinRequestInterval time.Duration
	// Offline disables all network access; only cached entries are served.
	Offline bool
	// MIMEExtensions extends the default Accept-to-extension table.
	MIMEExtensions map[string]string
	// Client is the HTTP client to use. Defaults to http.DefaultClient.
	Client *http.Client
	// Clock overrides wall-clock access, for tests.
	Clock *Clock
	// Logger receives cache decisions. Defaults to a no-op logger.
	Logger logger.Logger
}

// FetchOptions configures one Fetch call.
type FetchOptions struct {
	// Accept is sent as the Accept header and keys the cache entry.
	Accept string
	// TTL is the freshness window applied when persisting the response.
	// Zero persists the entry without an Expires header, so it is stored
	// but never served as fresh.
	TTL time.Duration
	// StaleOnError serves a stale cached entry when the network fetch
	// fails with anything other than a 429.
	StaleOnError bool
}

// Session is a cached HTTP client for one upstream host. It is
// single-threaded: one logical fetch runs at a time, and concurrent
// processes sharing a cache root get last-write-wins semantics.
type Session struct {
	baseURL  string
	client   *http.Client
	headers  map[string]string
	offline  bool
	keys     *keyMapper
	throttle *throttle
	clock    Clock
	log      logger.Logger
}

// NewSession creates a Session rooted at opts.CacheDir/<host of BaseURL>.
func NewSession(opts Options) (*Session, error) {
	if strings.HasSuffix(opts.BaseURL, "/") {
		return nil, fmt.Errorf("base URL must not end with a slash: %q", opts.BaseURL)
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base URL has no host: %q", opts.BaseURL)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	clock := systemClock()
	if opts.Clock != nil {
		clock = *opts.Clock
	}

	return &Session{
		baseURL:  opts.BaseURL,
		client:   client,
		headers:  opts.Headers,
		offline:  opts.Offline,
		keys:     newKeyMapper(opts.CacheDir, opts.MIMEExtensions, log),
		throttle: newThrottle(opts.MinRequestInterval, clock, log),
		clock:    clock,
		log:      log,
	}, nil
}

// CachePath returns the on-disk path a fetch of the given path and Accept
// header would use. Exposed for diagnostics and tests.
func (s *Session) CachePath(path, accept string) (string, error) {
	u, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	return s.keys.path(u, accept), nil
}

// Fetch performs one logical GET. It returns the response, whether it was
// served from the cache, and an error. The resolution order is: fresh cache
// hit, offline policy, throttled network fetch with stale-on-error
// fallback, persist.
func (s *Session) Fetch(path string, opts FetchOptions) (*Response, bool, error) {
	u, err := s.resolve(path)
	if err != nil {
		return nil, false, err
	}

	key := s.keys.path(u, opts.Accept)
	s.log.Debug("retrieving request cache", logger.String("path", key))

	cached := s.readCached(key)
	if cached != nil {
		expires := cached.ExpiresAt()
		if s.clock.Now().Before(expires) {
			s.log.Debug("cache fresh", logger.Time("expires", expires))
			return cached, true, nil
		}
		s.log.Debug("cache expired", logger.Time("expires", expires))
	}

	if s.offline {
		if cached != nil {
			s.log.Warn("offline mode, returning stale cache", logger.String("url", u.String()))
			return cached, true, nil
		}
		return nil, false, fmt.Errorf("GET %s: %w", u, ErrOffline)
	}

	s.throttle.wait()

	resp, err := s.do(u, opts.Accept)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
			return nil, false, fmt.Errorf("GET %s: %w", u, ErrRateLimited)
		}
		if opts.StaleOnError && cached != nil {
			s.log.Warn("request failed, returning stale cache",
				logger.String("url", u.String()), logger.Error(err))
			return cached, true, nil
		}
		return nil, false, err
	}

	if err := s.persist(key, resp, opts.TTL); err != nil {
		return nil, false, err
	}
	return resp, false, nil
}

// resolve turns a path into an absolute URL. Paths starting with "/" are
// resolved against the session's base URL; absolute http(s) URLs, such as
// audio enclosures on other hosts, pass through and are cached under their
// own host.
func (s *Session) resolve(path string) (*url.URL, error) {
	full := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("path must start with /: %q", path)
		}
		full = s.baseURL + path
	}
	u, err := url.Parse(full)
	if err != nil {
		return nil, fmt.Errorf("parse URL %q: %w", full, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL %q has no host", full)
	}
	return u, nil
}

// readCached loads and decodes the entry at key. A missing file is a miss.
// An undecodable file or one without a parseable Date header is corrupt and
// treated as a miss with a warning, never served and never fatal.
func (s *Session) readCached(key string) *Response {
	data, err := os.ReadFile(key)
	if err != nil {
		return nil
	}
	resp, err := Decode(data)
	if err != nil {
		s.log.Warn("corrupt cache entry, treating as miss",
			logger.String("path", key), logger.Error(err))
		return nil
	}
	if _, err := resp.Date(); err != nil {
		s.log.Warn("cache entry missing response date, treating as miss",
			logger.String("path", key), logger.Error(err))
		return nil
	}
	return resp
}

// do performs the network GET and converts the result to a Response.
func (s *Session) do(u *url.URL, accept string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for name, value := range s.headers {
		req.Header.Set(name, value)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	s.log.Info("GET", logger.String("url", u.String()))
	httpResp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", u, err)
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		return nil, &StatusError{StatusCode: httpResp.StatusCode, URL: u.String()}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Reason:     reasonPhrase(httpResp),
		Body:       body,
	}
	for _, name := range sortedHeaderNames(httpResp.Header) {
		for _, value := range httpResp.Header[name] {
			resp.Headers = append(resp.Headers, Header{Name: name, Value: value})
		}
	}
	return resp, nil
}

// persist stamps the freshness window onto the response and writes it to
// disk. A missing Date header is synthesized so every stored entry carries
// one. The caller's TTL owns the freshness window: a positive TTL becomes
// the Expires header, and a zero TTL strips any upstream Expires so the
// entry is never served as fresh.
func (s *Session) persist(key string, resp *Response, ttl time.Duration) error {
	date, err := resp.Date()
	if err != nil {
		date = s.clock.Now()
		resp.SetHeader("Date", date.UTC().Format(http.TimeFormat))
	}
	if ttl > 0 {
		expires := date.Add(ttl)
		s.log.Debug("response will expire", logger.Time("expires", expires))
		resp.SetHeader("Expires", expires.UTC().Format(http.TimeFormat))
	} else {
		resp.DeleteHeader("Expires")
	}

	if err := os.MkdirAll(filepath.Dir(key), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(key, Encode(resp), 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// reasonPhrase extracts the reason phrase from an http.Response status,
// falling back to the standard text for the code.
func reasonPhrase(resp *http.Response) string {
	_, reason, found := strings.Cut(resp.Status, " ")
	if found && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

func sortedHeaderNames(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
