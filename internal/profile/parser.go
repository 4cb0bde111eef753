// Package profile parses justETF profile pages into snapshot records.
package profile

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/refsnap/internal/artifact"
	"github.com/sells-group/refsnap/internal/snapshot"
)

var (
	whitespaceRE  = regexp.MustCompile(`[\s\x{00a0}]+`)
	punctuationRE = regexp.MustCompile(`\s+([.,;:])`)
)

// Parse extracts the structured profile from a justETF profile page.
// The isin comes from the index entry, not the page. Fields missing
// from the page come back empty rather than failing the record.
func Parse(raw []byte, isin string) (snapshot.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrapf(artifact.ErrParse, "profile: parse html for %s: %v", isin, err)
	}

	return snapshot.Record{
		"isin":         isin,
		"name":         extractName(doc),
		"description":  extractDescription(doc),
		"data":         extractDataTable(doc),
		"listings":     extractListings(doc),
		"source_url":   "",
		"last_fetched": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func extractName(doc *goquery.Document) string {
	return cleanText(doc.Find("h1").First().Text())
}

// extractDescription joins the top-level text blocks of the description
// container, skipping separator elements that carry no text.
func extractDescription(doc *goquery.Document) string {
	var parts []string
	doc.Find("div#etf-description-content > div").Each(func(_ int, s *goquery.Selection) {
		if text := cleanText(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	joined := strings.Join(parts, " ")
	joined = punctuationRE.ReplaceAllString(joined, "$1")
	return strings.TrimSpace(joined)
}

// extractDataTable reads the key/value facts table. Labels sit in
// td.vallabel cells, values in the sibling cell, possibly nested inside
// .val and .val2 elements.
func extractDataTable(doc *goquery.Document) map[string]string {
	data := make(map[string]string)

	doc.Find("table.etf-data-table tr").Each(func(_ int, row *goquery.Selection) {
		label := row.Find("td.vallabel").First()
		if label.Length() == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		value := cells.Eq(1)

		var vals []string
		value.Find(".val, .val2").Each(func(_ int, el *goquery.Selection) {
			if text := cleanText(el.Text()); text != "" {
				vals = append(vals, text)
			}
		})
		if len(vals) == 0 {
			if text := cleanText(value.Text()); text != "" {
				vals = append(vals, text)
			}
		}

		key := cleanText(label.Text())
		if key != "" {
			data[key] = strings.Join(vals, " ")
		}
	})

	return data
}

// extractListings reads the exchange listings table into one map per
// row, keyed by the header cells. Rows whose cell count disagrees with
// the header are skipped, as are "-" placeholder cells.
func extractListings(doc *goquery.Document) []map[string]string {
	listings := []map[string]string{}

	table := doc.Find("table.mobile-table").First()
	if table.Length() == 0 {
		return listings
	}

	var headers []string
	table.Find("thead th").Each(func(_ int, th *goquery.Selection) {
		headers = append(headers, cleanText(th.Text()))
	})
	if len(headers) == 0 {
		return listings
	}

	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() != len(headers) {
			return
		}
		entry := make(map[string]string, len(headers))
		for i := range headers {
			text := cleanText(cells.Eq(i).Text())
			if text == "-" {
				text = ""
			}
			entry[headers[i]] = text
		}
		listings = append(listings, entry)
	})

	return listings
}

// cleanText collapses runs of whitespace (including NBSP) to single
// spaces and trims the result.
func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
