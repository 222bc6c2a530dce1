package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/filingrag/internal/llm"
)

// NoResults is returned in place of context or an answer when nothing was
// retrieved.
const NoResults = "No relevant SEC disclosures were found."

// BuildContext renders retrieved chunks as labelled excerpt blocks.
func BuildContext(res *Result) string {
	if res.Len() == 0 {
		return NoResults
	}
	blocks := make([]string, 0, res.Len())
	for i, doc := range res.Documents {
		var meta map[string]any
		if i < len(res.Metadatas) {
			meta = res.Metadatas[i]
		}
		blocks = append(blocks, fmt.Sprintf("[Fiscal Year: %s | Accession: %s | Chunk: %s]\n%s",
			metaString(meta, "fiscal_year"),
			metaString(meta, "accession"),
			metaString(meta, "chunk_index"),
			strings.TrimSpace(doc)))
	}
	return strings.Join(blocks, "\n\n")
}

// Prompt fills the answer prompt with the question and rendered context.
func Prompt(question string, res *Result) string {
	return fmt.Sprintf(llm.AnswerPrompt, question, BuildContext(res))
}

// Answer generates an answer grounded in res. The model is not called
// when nothing was retrieved.
func Answer(ctx context.Context, gen llm.Generator, question string, res *Result) (string, error) {
	if res.Len() == 0 {
		return NoResults, nil
	}
	out, err := gen.Generate(ctx, Prompt(question, res))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return out, nil
}

func metaString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
