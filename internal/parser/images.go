package parser

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/filingrag/internal/doctree"
	"github.com/dgallion1/filingrag/internal/items"
	"golang.org/x/net/html"
)

// DefaultImageExt is used when an image URL path carries no extension.
const DefaultImageExt = ".png"

// Captioner describes the image stored at path. An empty description means
// the model found nothing worth indexing.
type Captioner interface {
	Caption(ctx context.Context, path string) (string, error)
}

// ImageConfig controls image download and captioning.
type ImageConfig struct {
	Dir            string        // Local cache directory
	FetchTimeout   time.Duration // Per-image download bound
	CaptionTimeout time.Duration // Per-image captioning bound
	UserAgent      string        // Identification header sent with downloads
	MaxBytes       int64         // Largest accepted image body
}

// DefaultMaxImageBytes bounds an image download when ImageConfig.MaxBytes is unset.
const DefaultMaxImageBytes = 20 << 20

// ImageExtractor walks a tree, attributes each image to the nearest
// preceding section marker, and removes every img node.
type ImageExtractor struct {
	cfg        ImageConfig
	client     *http.Client
	captioner  Captioner
	classifier *CaptionClassifier
	log        *slog.Logger
}

// NewImageExtractor builds an extractor. A nil captioner drops every image
// without downloading it; a nil classifier uses the default phrase list.
func NewImageExtractor(cfg ImageConfig, captioner Captioner, classifier *CaptionClassifier, log *slog.Logger) *ImageExtractor {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.CaptionTimeout <= 0 {
		cfg.CaptionTimeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxImageBytes
	}
	if classifier == nil {
		classifier = NewCaptionClassifier(nil)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ImageExtractor{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.FetchTimeout},
		captioner:  captioner,
		classifier: classifier,
		log:        log,
	}
}

// Extract runs the image phase. Download and captioning failures skip the
// offending image and never abort the document.
func (x *ImageExtractor) Extract(ctx context.Context, t *TablesDone) (*ImagesDone, []doctree.Image) {
	root, base := t.take()
	if base == nil {
		base = &url.URL{}
	}

	var (
		images  []doctree.Image
		current string
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			switch c.Type {
			case html.TextNode:
				if c.Parent != nil && c.Parent.Type == html.ElementNode {
					if code, ok := items.FindLast(c.Data); ok {
						current = code
					}
				}
			case html.ElementNode:
				if c.Data == "img" {
					if img, ok := x.process(ctx, c, base, current); ok {
						images = append(images, img)
					}
					removeNode(c)
				} else {
					walk(c)
				}
			case html.DocumentNode:
				walk(c)
			}
			c = next
		}
	}
	walk(root)

	return &ImagesDone{root: root}, images
}

func (x *ImageExtractor) process(ctx context.Context, n *html.Node, base *url.URL, itemCode string) (doctree.Image, bool) {
	src := strings.TrimSpace(attr(n, "src"))
	if src == "" {
		return doctree.Image{}, false
	}
	if x.captioner == nil {
		return doctree.Image{}, false
	}

	ref, err := url.Parse(src)
	if err != nil {
		x.log.Debug("image_skipped", "src", src, "reason", "bad_src", "error", err)
		return doctree.Image{}, false
	}
	abs := base.ResolveReference(ref).String()
	id, cachePath := x.CachePath(abs)

	if _, err := os.Stat(cachePath); errors.Is(err, fs.ErrNotExist) {
		if err := x.fetch(ctx, abs, cachePath); err != nil {
			x.log.Warn("image_skipped", "url", abs, "reason", "download_failed", "error", err)
			return doctree.Image{}, false
		}
	} else if err != nil {
		x.log.Warn("image_skipped", "url", abs, "reason", "cache_stat", "error", err)
		return doctree.Image{}, false
	}

	cctx, cancel := context.WithTimeout(ctx, x.cfg.CaptionTimeout)
	raw, err := x.captioner.Caption(cctx, cachePath)
	cancel()
	if err != nil {
		x.log.Warn("image_skipped", "url", abs, "reason", "caption_failed", "error", err)
		return doctree.Image{}, false
	}

	desc, ok := x.classifier.Informative(raw)
	if !ok {
		x.log.Debug("image_skipped", "url", abs, "reason", "non_informative")
		return doctree.Image{}, false
	}

	return doctree.Image{
		ImageID:     id,
		ImageURL:    abs,
		ImagePath:   cachePath,
		AltText:     attr(n, "alt"),
		Description: desc,
		ItemCode:    itemCode,
	}, true
}

// CachePath derives the stable identifier and local cache path for an
// absolute image URL.
func (x *ImageExtractor) CachePath(absURL string) (id, p string) {
	sum := md5.Sum([]byte(absURL))
	id = hex.EncodeToString(sum[:])

	ext := DefaultImageExt
	if u, err := url.Parse(absURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	return id, filepath.Join(x.cfg.Dir, id+ext)
}

func (x *ImageExtractor) fetch(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if x.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", x.cfg.UserAgent)
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("get image: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, x.cfg.MaxBytes+1))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > x.cfg.MaxBytes {
		return fmt.Errorf("read image: body exceeds %d bytes", x.cfg.MaxBytes)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}
