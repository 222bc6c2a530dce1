package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dgallion1/filingrag/internal/chunker"
	"github.com/dgallion1/filingrag/internal/doctree"
	"github.com/dgallion1/filingrag/internal/edgar"
	"github.com/dgallion1/filingrag/internal/export"
	"github.com/dgallion1/filingrag/internal/items"
	"github.com/dgallion1/filingrag/internal/vectorstore"
)

const (
	sourceName    = "SEC EDGAR"
	defaultBatch  = 128
	defaultForm   = "10-K"
	contentImage  = "image"
	contentChunk  = "narrative"
	imageIDMarker = "IMAGE"
)

// FilingSource lists and downloads a filer's filings.
type FilingSource interface {
	Submissions(ctx context.Context, cik string) (*edgar.Submissions, error)
	FilingDir(cik, accession string) (string, error)
	DownloadFiling(ctx context.Context, cik, accession, document string) (string, error)
}

// DocumentParser turns filing HTML into narrative text and records.
type DocumentParser interface {
	Parse(ctx context.Context, r io.Reader, baseURL string) (*doctree.Result, error)
}

// BatchEmbedder returns one vector per text, or nil when the batch failed.
type BatchEmbedder interface {
	Embed(ctx context.Context, texts []string) [][]float32
}

// Store is the vector store the worker writes to.
type Store interface {
	Upsert(ctx context.Context, ids, texts []string, embeddings [][]float32, metas []vectorstore.Metadata) error
	HasAccession(ctx context.Context, accession string) (bool, error)
	DeleteAccession(ctx context.Context, accession string) (int64, error)
}

// WorkerConfig holds per-filing indexing settings.
type WorkerConfig struct {
	Chunk     chunker.Config
	BatchSize int
	FormType  string // Default form when a request names none
	TablesDir string // Table exports; empty disables them
}

// Worker indexes filings into the vector store.
type Worker struct {
	source  FilingSource
	parser  DocumentParser
	embed   BatchEmbedder
	store   Store
	limiter *edgar.RateLimiter
	cfg     WorkerConfig
	log     *slog.Logger
}

// NewWorker wires the filing source, parser, embedder and store. A nil
// limiter means no pacing between filing downloads.
func NewWorker(source FilingSource, p DocumentParser, embed BatchEmbedder, store Store, limiter *edgar.RateLimiter, cfg WorkerConfig, log *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatch
	}
	if cfg.FormType == "" {
		cfg.FormType = defaultForm
	}
	if limiter == nil {
		limiter = edgar.NewRateLimiter(0)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Worker{source: source, parser: p, embed: embed, store: store, limiter: limiter, cfg: cfg, log: log}
}

// Process runs the ingest job: list filings, then index each in turn. A
// failed filing is recorded and the job moves on to the next one.
func (w *Worker) Process(ctx context.Context, job *Job) {
	req := job.Request
	log := w.log.With("job_id", job.ID, "cik", req.CIK)

	job.SetStatus(StatusFetching, "submissions")
	subs, err := w.source.Submissions(ctx, req.CIK)
	if err != nil {
		log.Error("submissions failed", "error", err)
		job.AddError(fmt.Sprintf("submissions: %s", err))
		job.SetStatus(StatusFailed, "submissions")
		return
	}
	job.SetCompany(subs.Name)

	filings := w.selectFilings(subs, req)
	job.SetFilingsTotal(len(filings))
	if len(filings) == 0 {
		job.AddError(fmt.Sprintf("no %s filings found", w.formType(req)))
		job.SetStatus(StatusFailed, "submissions")
		return
	}

	job.SetStatus(StatusIndexing, "indexing")
	var failed, skipped int
	for _, f := range filings {
		if ctx.Err() != nil {
			job.AddError(ctx.Err().Error())
			job.SetStatus(StatusFailed, "cancelled")
			return
		}
		if f.CIK == "" {
			f.CIK = req.CIK
		}
		rep, err := w.IndexFiling(ctx, subs.Name, f, req.Force)
		if err != nil {
			log.Error("filing failed", "accession", f.AccessionNumber, "error", err)
			rep.Error = err.Error()
			job.AddError(fmt.Sprintf("%s: %s", f.AccessionNumber, err))
			failed++
		} else if rep.Skipped {
			skipped++
		}
		job.RecordFiling(rep)
	}

	switch {
	case failed == len(filings):
		job.SetStatus(StatusFailed, "done")
	case failed > 0:
		job.SetStatus(StatusPartial, "done")
	case skipped == len(filings):
		job.SetStatus(StatusSkipped, "done")
	default:
		job.SetStatus(StatusCompleted, "done")
	}
}

func (w *Worker) formType(req Request) string {
	if req.FormType != "" {
		return req.FormType
	}
	return w.cfg.FormType
}

func (w *Worker) selectFilings(subs *edgar.Submissions, req Request) []edgar.Filing {
	filings := subs.Recent(w.formType(req))
	if len(req.Accessions) > 0 {
		filings = slices.DeleteFunc(filings, func(f edgar.Filing) bool {
			return !slices.Contains(req.Accessions, f.AccessionNumber)
		})
	}
	if req.Limit > 0 && len(filings) > req.Limit {
		filings = filings[:req.Limit]
	}
	return filings
}

// filingMeta is the metadata shared by every record from one filing.
type filingMeta struct {
	cik        string
	company    string
	form       string
	formTag    string
	filingDate string
	fiscalYear int
	accession  string
}

func (m filingMeta) base() vectorstore.Metadata {
	return vectorstore.Metadata{
		"cik":         m.cik,
		"company":     m.company,
		"filing_type": m.form,
		"filing_date": m.filingDate,
		"fiscal_year": m.fiscalYear,
		"accession":   m.accession,
		"source":      sourceName,
	}
}

func (m filingMeta) idPrefix() string {
	return fmt.Sprintf("%s_%s_%d_%s", m.cik, m.formTag, m.fiscalYear, edgar.AccessionPath(m.accession))
}

// IndexFiling downloads and parses one filing, then indexes its images and
// narrative chunks and exports its tables. Download and parse failures are
// returned; per-batch embedding failures are logged and counted.
func (w *Worker) IndexFiling(ctx context.Context, company string, f edgar.Filing, force bool) (FilingReport, error) {
	rep := FilingReport{Accession: f.AccessionNumber, FilingDate: f.FilingDate}
	log := w.log.With("cik", f.CIK, "accession", f.AccessionNumber)

	if force {
		n, err := w.store.DeleteAccession(ctx, f.AccessionNumber)
		if err != nil {
			return rep, err
		}
		if n > 0 {
			log.Info("filing_reset", "deleted", n)
		}
	} else {
		exists, err := w.store.HasAccession(ctx, f.AccessionNumber)
		if err != nil {
			return rep, err
		}
		if exists {
			log.Info("filing_skipped", "reason", "already_indexed")
			rep.Skipped = true
			return rep, nil
		}
	}

	log.Info("processing_filing", "filing_date", f.FilingDate)

	if err := w.limiter.WaitBeforeNextCall(ctx); err != nil {
		return rep, err
	}
	html, err := w.source.DownloadFiling(ctx, f.CIK, f.AccessionNumber, f.PrimaryDocument)
	if err != nil {
		return rep, err
	}
	rep.ContentHash = ContentHashHex([]byte(html))

	baseURL, err := w.source.FilingDir(f.CIK, f.AccessionNumber)
	if err != nil {
		return rep, err
	}
	res, err := w.parser.Parse(ctx, strings.NewReader(html), baseURL)
	if err != nil {
		return rep, fmt.Errorf("parse filing: %w", err)
	}

	year, err := strconv.Atoi(f.FiscalYear())
	if err != nil {
		return rep, fmt.Errorf("fiscal year from filing date %q: %w", f.FilingDate, err)
	}
	meta := filingMeta{
		cik:        f.CIK,
		company:    company,
		form:       f.Form,
		formTag:    strings.ReplaceAll(f.Form, "-", ""),
		filingDate: f.FilingDate,
		fiscalYear: year,
		accession:  f.AccessionNumber,
	}

	rep.ImagesIndexed = w.indexImages(ctx, log, meta, res.Images)
	rep.TablesStored = w.storeTables(log, meta, res.Tables)

	sections := chunker.SplitSections(res.Text)
	rep.Sections = len(sections)
	rep.ChunksIndexed, rep.ChunksFailed = w.indexSections(ctx, log, meta, sections)

	log.Info("filing_indexed",
		"sections", rep.Sections,
		"chunks", rep.ChunksIndexed,
		"chunks_failed", rep.ChunksFailed,
		"images", rep.ImagesIndexed,
		"tables", rep.TablesStored,
	)
	return rep, nil
}

func (w *Worker) indexImages(ctx context.Context, log *slog.Logger, meta filingMeta, images []doctree.Image) int {
	var (
		ids   []string
		texts []string
		metas []vectorstore.Metadata
	)
	for _, img := range images {
		if img.Description == "" {
			log.Debug("image_skipped", "reason", "missing_description", "image_id", img.ImageID, "image_url", img.ImageURL)
			continue
		}
		m := meta.base()
		m["content_type"] = contentImage
		m["image_id"] = img.ImageID
		m["image_url"] = img.ImageURL
		m["image_path"] = img.ImagePath
		m["alt_text"] = img.AltText
		if img.ItemCode != "" {
			m["item_code"] = img.ItemCode
			m["section"] = img.ItemCode
			if title, ok := items.Title(img.ItemCode); ok {
				m["section_title"] = title
			}
		}
		ids = append(ids, fmt.Sprintf("%s_%s_%s", meta.idPrefix(), imageIDMarker, img.ImageID))
		texts = append(texts, img.Description)
		metas = append(metas, m)
	}
	if len(texts) == 0 {
		return 0
	}

	n := w.flush(ctx, log, ids, texts, metas)
	if n > 0 {
		log.Info("image_indexed", "indexed", n, "skipped", len(images)-n)
	}
	return n
}

func (w *Worker) storeTables(log *slog.Logger, meta filingMeta, tables []doctree.Table) int {
	for i, t := range tables {
		log.Debug("table_stored",
			"table_index", i,
			"table_type", t.Type,
			"num_rows", len(t.Rows),
			"num_columns", len(t.Headers),
			"headers", t.Headers[:min(len(t.Headers), 5)],
		)
	}
	if w.cfg.TablesDir == "" || len(tables) == 0 {
		return len(tables)
	}

	base := filepath.Join(w.cfg.TablesDir, meta.cik, edgar.AccessionPath(meta.accession))
	if err := export.Workbook(base+".xlsx", tables); err != nil {
		log.Warn("table export failed", "format", "xlsx", "error", err)
	}
	if err := export.JSON(base+".json", tables); err != nil {
		log.Warn("table export failed", "format", "json", "error", err)
	}
	return len(tables)
}

// indexSections chunks every section with a known item title and indexes
// the chunks in batches. Returns indexed and lost chunk counts.
func (w *Worker) indexSections(ctx context.Context, log *slog.Logger, meta filingMeta, sections []doctree.Section) (int, int) {
	var (
		ids     []string
		texts   []string
		metas   []vectorstore.Metadata
		indexed int
		lost    int
	)
	flush := func() {
		n := w.flush(ctx, log, ids, texts, metas)
		indexed += n
		lost += len(ids) - n
		ids, texts, metas = nil, nil, nil
	}

	for _, sec := range sections {
		title, ok := items.Title(sec.Code)
		if !ok {
			continue
		}
		for _, c := range chunker.ChunkSection(sec, title, w.cfg.Chunk) {
			log.Debug("chunk_indexed", "section", sec.Code, "chunk_index", c.Index, "chunk_length", len([]rune(c.Text)))

			m := meta.base()
			m["section"] = sec.Code
			m["section_title"] = title
			m["chunk_index"] = c.Index
			m["content_type"] = contentChunk

			ids = append(ids, chunkID(meta, sec.Code, c.Index))
			texts = append(texts, c.Text)
			metas = append(metas, m)

			if len(ids) >= w.cfg.BatchSize {
				flush()
			}
		}
	}
	if len(ids) > 0 {
		flush()
	}
	return indexed, lost
}

// flush embeds and stores one batch, returning how many records landed.
func (w *Worker) flush(ctx context.Context, log *slog.Logger, ids, texts []string, metas []vectorstore.Metadata) int {
	vecs := w.embed.Embed(ctx, texts)
	if len(vecs) != len(texts) {
		log.Error("batch_failed", "reason", "embedding", "size", len(texts))
		return 0
	}
	if err := w.store.Upsert(ctx, ids, texts, vecs, metas); err != nil {
		reason := "store"
		if errors.Is(err, vectorstore.ErrDimensionMismatch) {
			reason = "dimension"
		}
		log.Error("batch_failed", "reason", reason, "size", len(texts), "error", err)
		return 0
	}
	return len(texts)
}

func chunkID(meta filingMeta, code string, idx int) string {
	return fmt.Sprintf("%s_%s_%06d_%s",
		meta.idPrefix(),
		strings.ReplaceAll(code, " ", ""),
		idx,
		strings.ReplaceAll(uuid.NewString(), "-", ""),
	)
}
