package httpcache

import (
	"net/url"
	"path/filepath"
	"strings"

	"overcastmirror/internal/logger"
)

// defaultMIMEExtensions maps Accept values to the file extension appended
// to a cache entry's name.
var defaultMIMEExtensions = map[string]string{
	"application/json": "json",
	"application/xml":  "xml",
	"text/html":        "html",
}

// keyMapper derives the on-disk path identifying one request. The mapping
// is pure: the same (URL, Accept) pair always yields the same path.
type keyMapper struct {
	root       string // cache root; entries live under root/<host>
	extensions map[string]string
	log        logger.Logger
}

func newKeyMapper(root string, extensions map[string]string, log logger.Logger) *keyMapper {
	merged := make(map[string]string, len(defaultMIMEExtensions)+len(extensions))
	for mime, ext := range defaultMIMEExtensions {
		merged[mime] = ext
	}
	for mime, ext := range extensions {
		merged[mime] = ext
	}
	return &keyMapper{root: root, extensions: merged, log: log}
}

// path maps a request URL and Accept header to a file path under the cache
// root: the URL host namespaces the entry, URL path segments become
// directories, a query string is kept as a literal "?"-prefixed suffix on
// the leaf name, and a recognized Accept value contributes an extension.
// Only GET is issued by this tool, so the method is not encoded.
func (m *keyMapper) path(u *url.URL, accept string) string {
	rel := strings.TrimPrefix(u.Path, "/")
	p := filepath.Join(m.root, u.Host, filepath.FromSlash(rel))

	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}

	if accept != "" {
		if ext, ok := m.extensions[accept]; ok {
			p += "." + ext
		} else if accept != "*/*" {
			m.log.Warn("no cache file extension for Accept value", logger.String("accept", accept))
		}
	}

	return p
}
