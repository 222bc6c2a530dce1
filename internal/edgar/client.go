// Package edgar fetches filer submissions and filing documents from SEC
// EDGAR.
package edgar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultArchiveBaseURL = "https://www.sec.gov"
	DefaultDataBaseURL    = "https://data.sec.gov"
	defaultTimeout        = 30 * time.Second
	maxDocumentBytes      = 256 << 20
)

// Config controls the EDGAR client.
type Config struct {
	UserAgent      string // Required by SEC: "Company Name admin@example.com"
	ArchiveBaseURL string
	DataBaseURL    string
	SubmissionsDir string // Local submissions cache
	Timeout        time.Duration
	HTTPClient     *http.Client // Optional (tests)
}

// Client talks to the EDGAR archive and data hosts.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient fills unset base URLs and timeouts with the EDGAR defaults.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.ArchiveBaseURL == "" {
		cfg.ArchiveBaseURL = DefaultArchiveBaseURL
	}
	if cfg.DataBaseURL == "" {
		cfg.DataBaseURL = DefaultDataBaseURL
	}
	cfg.ArchiveBaseURL = strings.TrimRight(cfg.ArchiveBaseURL, "/")
	cfg.DataBaseURL = strings.TrimRight(cfg.DataBaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{cfg: cfg, httpClient: hc, log: log}
}

func (c *Client) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edgar: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// PadCIK returns the ten-digit zero-padded form used by the data host.
func PadCIK(cik string) (string, error) {
	n, err := parseCIK(cik)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%010d", n), nil
}

// TrimCIK returns the CIK without leading zeros, as used in archive paths.
func TrimCIK(cik string) (string, error) {
	n, err := parseCIK(cik)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(n, 10), nil
}

func parseCIK(cik string) (uint64, error) {
	cik = strings.TrimSpace(cik)
	if cik == "" || len(cik) > 10 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCIK, cik)
	}
	n, err := strconv.ParseUint(cik, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCIK, cik)
	}
	return n, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
