package engine

import (
	"regexp"
	"strings"
)

// noisePatterns reject conversational filler that should never become a
// memory: greetings, thanks, status responses, filler words, questions
// addressed to the assistant, and bare acknowledgments.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(hi|hello|hey|good\s+(morning|afternoon|evening)|bye|goodbye|see you|take care)\b`),
	regexp.MustCompile(`^(thanks?|thank you|you're welcome|no problem|sure thing)\b`),
	regexp.MustCompile(`^(i'm (good|fine|okay|ok|alright|great|doing well|not bad))\b`),
	regexp.MustCompile(`^(um+|uh+|hmm+|well|so|anyway|actually|basically)\b`),
	regexp.MustCompile(`^(can you|could you|would you|let me|shall i|do you want)\b`),
	regexp.MustCompile(`^(yes|no|yeah|yep|nope|nah|okay|ok|sure|right|got it|i see)\b`),
}

const (
	minContentLength = 15
	minWordCount     = 4

	confidenceHigh   = 0.95
	confidenceMedium = 0.70

	duplicateSimilarityThreshold = 0.85
)

// validation holds the outcome of auto-detection screening.
type validation struct {
	Valid  bool
	Action string // "store" or "suggest" when valid
	Reason string // rejection reason when invalid
}

// validateAutoMemory screens auto-detected content before it may be
// stored: noise filter, minimum length and word count, then routing by
// detection confidence.
func validateAutoMemory(content string, confidence float64) validation {
	stripped := strings.TrimSpace(content)
	lowered := strings.ToLower(stripped)

	for _, p := range noisePatterns {
		if p.MatchString(lowered) {
			return validation{Reason: "noise_filter"}
		}
	}
	if len(stripped) < minContentLength {
		return validation{Reason: "too_short"}
	}
	if len(strings.Fields(stripped)) < minWordCount {
		return validation{Reason: "too_few_words"}
	}

	switch {
	case confidence >= confidenceHigh:
		return validation{Valid: true, Action: "store"}
	case confidence >= confidenceMedium:
		return validation{Valid: true, Action: "suggest"}
	default:
		return validation{Reason: "low_confidence"}
	}
}
