package chunker

import (
	"strings"

	"github.com/dgallion1/filingrag/internal/doctree"
	"github.com/dgallion1/filingrag/internal/items"
)

// SplitSections partitions narrative text at each "ITEM n" marker. Text
// before the first marker becomes PREAMBLE; text with no markers at all
// becomes a single FULL_DOCUMENT section. Empty sections are dropped.
func SplitSections(text string) []doctree.Section {
	locs := items.SplitPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		if t := strings.TrimSpace(text); t != "" {
			return []doctree.Section{{Code: items.FullDocument, Text: t}}
		}
		return nil
	}

	var sections []doctree.Section
	if pre := strings.TrimSpace(text[:locs[0][0]]); pre != "" {
		sections = append(sections, doctree.Section{Code: items.Preamble, Text: pre})
	}

	for i, loc := range locs {
		code, ok := items.Normalize("ITEM " + text[loc[2]:loc[3]])
		if !ok {
			continue
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		body := trimSection(text[loc[1]:end])
		if body == "" {
			continue
		}
		sections = append(sections, doctree.Section{Code: code, Text: body})
	}
	return sections
}

func trimSection(s string) string {
	s = strings.TrimLeft(strings.TrimSpace(s), ".:")
	return strings.TrimSpace(s)
}
