package index

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/refsnap/internal/artifact"
)

// DefaultFirdsAPIURL is the FCA FIRDS file search endpoint.
const DefaultFirdsAPIURL = "https://api.data.fca.org.uk/fca_data_firds_files"

// FirdsFile describes one published FIRDS reference data file.
type FirdsFile struct {
	FileType        string `json:"file_type"`
	FileName        string `json:"file_name"`
	PublicationDate string `json:"publication_date"`
	DownloadLink    string `json:"download_link"`
}

// FirdsQuery selects FIRDS files by type and publication date range.
type FirdsQuery struct {
	FileType         string // "FULINS", "DLTINS" or "FULCAN"
	StartDate        string // YYYY-MM-DD, inclusive
	EndDate          string // YYYY-MM-DD, inclusive
	FileNameWildcard string // optional, e.g. "FULINS_C_*"
	Size             int    // page size, defaults to 1000
	From             int    // pagination offset
	Sort             string // defaults to "publication_date:desc"
}

func (q FirdsQuery) queryString() string {
	clauses := []string{
		fmt.Sprintf("(file_type:%s)", q.FileType),
		fmt.Sprintf("(publication_date:[%s TO %s])", q.StartDate, q.EndDate),
	}
	if q.FileNameWildcard != "" {
		clauses = append(clauses, fmt.Sprintf("(file_name:%s)", q.FileNameWildcard))
	}
	return "(" + strings.Join(clauses, " AND ") + ")"
}

// FirdsClient lists files from the FCA FIRDS registry.
type FirdsClient struct {
	getter Getter
	apiURL string
}

// NewFirdsClient builds a client against apiURL, or the public FCA
// endpoint when empty.
func NewFirdsClient(g Getter, apiURL string) *FirdsClient {
	if apiURL == "" {
		apiURL = DefaultFirdsAPIURL
	}
	return &FirdsClient{getter: g, apiURL: apiURL}
}

type firdsResponse struct {
	Hits struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// ListFiles runs q against the registry and returns the matching files.
// Records missing any of the expected fields are skipped.
func (c *FirdsClient) ListFiles(ctx context.Context, q FirdsQuery) ([]FirdsFile, error) {
	if q.FileType == "" {
		return nil, eris.Wrap(artifact.ErrValidation, "index: firds query requires a file type")
	}
	if q.Size <= 0 {
		q.Size = 1000
	}
	if q.Sort == "" {
		q.Sort = "publication_date:desc"
	}

	params := url.Values{}
	params.Set("q", q.queryString())
	params.Set("from", strconv.Itoa(q.From))
	params.Set("size", strconv.Itoa(q.Size))
	params.Set("pretty", "true")
	params.Set("sort", q.Sort)

	body, _, err := c.getter.Get(ctx, "firds_index", c.apiURL+"?"+params.Encode())
	if err != nil {
		return nil, eris.Wrap(err, "index: query firds registry")
	}

	var resp firdsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(artifact.ErrParse, "index: decode firds response: %v", err)
	}

	var files []FirdsFile
	for _, hit := range resp.Hits.Hits {
		var f FirdsFile
		if err := json.Unmarshal(hit.Source, &f); err != nil {
			continue
		}
		if f.FileType == "" || f.FileName == "" || f.PublicationDate == "" || f.DownloadLink == "" {
			continue
		}
		if len(f.PublicationDate) > 10 {
			f.PublicationDate = f.PublicationDate[:10]
		}
		files = append(files, f)
	}

	zap.L().Debug("listed firds files",
		zap.String("file_type", q.FileType),
		zap.String("start_date", q.StartDate),
		zap.String("end_date", q.EndDate),
		zap.Int("files", len(files)))

	return files, nil
}

// LatestPublicationDate reports the most recent publication date for
// fileType, or "" when the registry has no files of that type.
func (c *FirdsClient) LatestPublicationDate(ctx context.Context, fileType string) (string, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("(file_type:%s)", fileType))
	params.Set("from", "0")
	params.Set("size", "1")
	params.Set("pretty", "true")
	params.Set("sort", "publication_date:desc")

	body, _, err := c.getter.Get(ctx, "firds_index", c.apiURL+"?"+params.Encode())
	if err != nil {
		return "", eris.Wrap(err, "index: query firds registry")
	}

	var resp firdsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", eris.Wrapf(artifact.ErrParse, "index: decode firds response: %v", err)
	}
	if len(resp.Hits.Hits) == 0 {
		return "", nil
	}

	var f FirdsFile
	if err := json.Unmarshal(resp.Hits.Hits[0].Source, &f); err != nil {
		return "", eris.Wrapf(artifact.ErrParse, "index: decode firds record: %v", err)
	}
	if len(f.PublicationDate) > 10 {
		f.PublicationDate = f.PublicationDate[:10]
	}
	return f.PublicationDate, nil
}

// LatestFullETFFiles returns the FULINS "C" instrument files for the
// latest publication date. The C bucket carries collective investment
// undertakings, which is where ETFs live.
func (c *FirdsClient) LatestFullETFFiles(ctx context.Context) ([]FirdsFile, error) {
	pubDate, err := c.LatestPublicationDate(ctx, "FULINS")
	if err != nil {
		return nil, err
	}
	if pubDate == "" {
		return nil, nil
	}
	return c.ListFiles(ctx, FirdsQuery{
		FileType:         "FULINS",
		StartDate:        pubDate,
		EndDate:          pubDate,
		FileNameWildcard: "FULINS_C_*",
	})
}
