// Package parser extracts narrative text, data tables and informative images
// from 10-K HTML.
package parser

import (
	"context"
	"io"

	"github.com/dgallion1/filingrag/internal/doctree"
)

// Parser runs tables, images and text over one shared document tree.
type Parser struct {
	images *ImageExtractor
}

// New returns a Parser. A nil extractor drops images without captioning.
func New(images *ImageExtractor) *Parser {
	if images == nil {
		images = NewImageExtractor(ImageConfig{}, nil, nil, nil)
	}
	return &Parser{images: images}
}

// Parse extracts one filing document. baseURL is the directory the
// document was fetched from, used to resolve image sources.
func (p *Parser) Parse(ctx context.Context, r io.Reader, baseURL string) (*doctree.Result, error) {
	tree, err := NewTree(r, baseURL)
	if err != nil {
		return nil, err
	}
	title := tree.Title()

	tablesDone, tables := ExtractTables(tree)
	imagesDone, images := p.images.Extract(ctx, tablesDone)
	text := ExtractText(imagesDone)

	if tables == nil {
		tables = []doctree.Table{}
	}
	if images == nil {
		images = []doctree.Image{}
	}
	return &doctree.Result{
		Title:  title,
		Text:   text,
		Tables: tables,
		Images: images,
	}, nil
}
