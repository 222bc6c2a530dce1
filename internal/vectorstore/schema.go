package vectorstore

import (
	"fmt"
	"strings"
)

// Fields are the metadata keys that can appear in a filter.
var Fields = []string{
	"company",
	"fiscal_year",
	"filing_type",
	"section",
	"section_title",
	"content_type",
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS store_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    document TEXT NOT NULL,
    metadata JSON NOT NULL,
    accession TEXT,
    company TEXT,
    fiscal_year INTEGER,
    filing_type TEXT,
    section TEXT,
    section_title TEXT,
    content_type TEXT,
    embedding BLOB NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_accession ON documents(accession);
CREATE INDEX IF NOT EXISTS idx_documents_company_year ON documents(company, fiscal_year);
CREATE INDEX IF NOT EXISTS idx_documents_section ON documents(section);
`

var upsertSQL = func() string {
	cols := append([]string{"id", "document", "metadata", "accession"}, Fields...)
	cols = append(cols, "embedding")

	updates := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return fmt.Sprintf(
		"INSERT INTO documents (%s) VALUES (?%s) ON CONFLICT(id) DO UPDATE SET %s",
		strings.Join(cols, ", "),
		strings.Repeat(", ?", len(cols)-1),
		strings.Join(updates, ", "),
	)
}()
