package parser

import (
	"strings"
	"sync/atomic"
)

// NonInformativeMarker is the token the vision prompt asks the model to
// answer with for logos and decorative images.
const NonInformativeMarker = "NON_INFORMATIVE_IMAGE"

// DefaultNonInformativePhrases flag a caption as describing a logo or
// branding rather than disclosure content.
var DefaultNonInformativePhrases = []string{
	"logo",
	"branding",
	"trademark",
	"stylized apple",
	"company logo",
	"non-informative image",
}

// CaptionClassifier decides whether an image caption is worth indexing.
// The phrase list can be swapped at runtime while extraction is running.
type CaptionClassifier struct {
	phrases atomic.Pointer[[]string]
}

// NewCaptionClassifier returns a classifier using phrases, or the default
// list when phrases is empty.
func NewCaptionClassifier(phrases []string) *CaptionClassifier {
	c := &CaptionClassifier{}
	c.SetPhrases(phrases)
	return c
}

// SetPhrases replaces the phrase list. Matching is case-insensitive.
func (c *CaptionClassifier) SetPhrases(phrases []string) {
	if len(phrases) == 0 {
		phrases = DefaultNonInformativePhrases
	}
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	c.phrases.Store(&lowered)
}

// Phrases returns the active phrase list.
func (c *CaptionClassifier) Phrases() []string {
	return append([]string(nil), *c.phrases.Load()...)
}

// Normalize maps a raw caption to its canonical form: NonInformativeMarker
// for logos and decoration, otherwise the trimmed caption.
func (c *CaptionClassifier) Normalize(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" {
		return ""
	}
	lower := strings.ToLower(t)
	if strings.Contains(lower, strings.ToLower(NonInformativeMarker)) {
		return NonInformativeMarker
	}
	if containsAny(lower, *c.phrases.Load()) {
		return NonInformativeMarker
	}
	return t
}

// Informative returns the normalized caption and whether it should be kept.
func (c *CaptionClassifier) Informative(raw string) (string, bool) {
	desc := c.Normalize(raw)
	if desc == "" || desc == NonInformativeMarker {
		return "", false
	}
	return desc, true
}
