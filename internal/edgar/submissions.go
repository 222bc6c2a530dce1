package edgar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Submissions is the subset of a filer's submissions document the pipeline
// reads.
type Submissions struct {
	CIK     string   `json:"cik"`
	Name    string   `json:"name"`
	Tickers []string `json:"tickers"`
	Filings struct {
		Recent RecentFilings `json:"recent"`
	} `json:"filings"`
}

// RecentFilings holds EDGAR's column-oriented filing history.
type RecentFilings struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// Recent zips the recent-filing columns into records, keeping only the
// given form type (all forms when formType is empty).
func (s *Submissions) Recent(formType string) []Filing {
	r := s.Filings.Recent
	n := min(len(r.AccessionNumber), len(r.FilingDate), len(r.Form), len(r.PrimaryDocument))

	var out []Filing
	for i := 0; i < n; i++ {
		if formType != "" && r.Form[i] != formType {
			continue
		}
		out = append(out, Filing{
			CIK:             s.CIK,
			Form:            r.Form[i],
			AccessionNumber: r.AccessionNumber[i],
			FilingDate:      r.FilingDate[i],
			PrimaryDocument: r.PrimaryDocument[i],
		})
	}
	return out
}

// Submissions loads a filer's submissions document. A cached copy is
// authoritative once present; otherwise it is fetched and written once.
func (c *Client) Submissions(ctx context.Context, cik string) (*Submissions, error) {
	padded, err := PadCIK(cik)
	if err != nil {
		return nil, err
	}

	var cachePath string
	if c.cfg.SubmissionsDir != "" {
		cachePath = filepath.Join(c.cfg.SubmissionsDir, "CIK"+padded+".json")
		data, err := os.ReadFile(cachePath)
		switch {
		case err == nil:
			c.log.Debug("submissions_cache_hit", "cik", padded)
			return decodeSubmissions(data, padded)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read submissions cache: %w", err)
		}
	}

	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.cfg.DataBaseURL, padded)
	data, err := c.get(ctx, url, "application/json")
	if err != nil {
		return nil, fmt.Errorf("fetch submissions: %w", err)
	}
	subs, err := decodeSubmissions(data, padded)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		if err := writeOnce(cachePath, data); err != nil {
			c.log.Warn("submissions_cache_write_failed", "cik", padded, "error", err)
		}
	}
	return subs, nil
}

func decodeSubmissions(data []byte, padded string) (*Submissions, error) {
	var s Submissions
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode submissions: %w", err)
	}
	if s.CIK == "" {
		s.CIK = padded
	}
	if trimmed, err := TrimCIK(s.CIK); err == nil {
		s.CIK = trimmed
	}
	return &s, nil
}

func writeOnce(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
