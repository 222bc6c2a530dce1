package edgar

import (
	"context"
	"fmt"
	"strings"
)

// Filing identifies one document in a filer's submission history.
type Filing struct {
	CIK             string `json:"cik"`
	Form            string `json:"form"`
	AccessionNumber string `json:"accession_number"`
	FilingDate      string `json:"filing_date"`
	PrimaryDocument string `json:"primary_document"`
}

// FiscalYear is taken from the filing date's year.
func (f Filing) FiscalYear() string {
	if len(f.FilingDate) < 4 {
		return ""
	}
	return f.FilingDate[:4]
}

// AccessionPath strips the hyphens used in the display form.
func AccessionPath(accession string) string {
	return strings.ReplaceAll(strings.TrimSpace(accession), "-", "")
}

// FilingDir is the archive directory of a filing, with a trailing slash.
// Relative image sources in the primary document resolve against it.
func (c *Client) FilingDir(cik, accession string) (string, error) {
	trimmed, err := TrimCIK(cik)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/", c.cfg.ArchiveBaseURL, trimmed, AccessionPath(accession)), nil
}

// FilingURL is the archive URL of one document in a filing.
func (c *Client) FilingURL(cik, accession, document string) (string, error) {
	dir, err := c.FilingDir(cik, accession)
	if err != nil {
		return "", err
	}
	return dir + strings.TrimLeft(document, "/"), nil
}

// DownloadFiling fetches a filing document. No retries are attempted; any
// non-success status is returned as *StatusError.
func (c *Client) DownloadFiling(ctx context.Context, cik, accession, document string) (string, error) {
	url, err := c.FilingURL(cik, accession, document)
	if err != nil {
		return "", err
	}
	body, err := c.get(ctx, url, "text/html,application/xhtml+xml,text/plain")
	if err != nil {
		return "", fmt.Errorf("download filing %s: %w", accession, err)
	}
	c.log.Debug("filing_downloaded", "url", url, "bytes", len(body))
	return string(body), nil
}
