// Package index discovers the set of ETF profile pages to snapshot.
//
// The primary source is the justETF sitemap, which lists every profile
// page across all language subtrees. Each ISIN appears several times;
// the index keeps one entry per ISIN, preferring the English page as
// canonical. A secondary source is the FCA FIRDS file registry, which
// publishes daily instrument reference files.
package index

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/refsnap/internal/artifact"
	"github.com/sells-group/refsnap/internal/snapshot"
)

// DefaultSitemapURL is the justETF sitemap that lists ETF profile pages.
const DefaultSitemapURL = "https://www.justetf.com/sitemap5.xml"

// Getter fetches a payload and reports its provenance. Satisfied by
// fetcher.HTTPFetcher.
type Getter interface {
	Get(ctx context.Context, kind, url string) ([]byte, *snapshot.Provenance, error)
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

type urlset struct {
	URLs []sitemapURL `xml:"url"`
}

// BuildProfileIndex fetches the sitemap and returns one index entry per
// ISIN, deduplicated with the "/en/" page preferred. Entry order follows
// first appearance in the sitemap.
func BuildProfileIndex(ctx context.Context, g Getter, sitemapURL string) ([]snapshot.IndexEntry, *snapshot.Provenance, error) {
	if sitemapURL == "" {
		sitemapURL = DefaultSitemapURL
	}

	body, prov, err := g.Get(ctx, "sitemap", sitemapURL)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "index: fetch sitemap %s", sitemapURL)
	}

	entries, err := ParseSitemap(body)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("built profile index from sitemap",
		zap.String("sitemap_url", sitemapURL),
		zap.Int("entries", len(entries)))

	return entries, prov, nil
}

// ParseSitemap extracts profile index entries from sitemap XML. URLs
// without an isin query parameter are skipped.
func ParseSitemap(data []byte) ([]snapshot.IndexEntry, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "index: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var set urlset
	if err := decoder.Decode(&set); err != nil {
		return nil, eris.Wrapf(artifact.ErrParse, "index: decode sitemap: %v", err)
	}

	byISIN := make(map[string]int)
	var entries []snapshot.IndexEntry

	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" {
			continue
		}
		isin := isinFromURL(loc)
		if isin == "" {
			continue
		}

		entry := snapshot.IndexEntry{
			ISIN:    isin,
			URL:     loc,
			LastMod: strings.TrimSpace(u.LastMod),
		}

		idx, seen := byISIN[isin]
		if !seen {
			byISIN[isin] = len(entries)
			entries = append(entries, entry)
			continue
		}
		// The English page wins over other language subtrees.
		if strings.Contains(loc, "/en/") && !strings.Contains(entries[idx].URL, "/en/") {
			entries[idx] = entry
		}
	}

	return entries, nil
}

func isinFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("isin")
}
