// Package postprocess removes common LLM artifacts from summaries.
//
// It is applied to the raw text returned by every LLM-backed backend before
// the summary is cached or written to a report.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean removes LLM artifacts from text in three phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Preamble removal ("Here is the summary:", "요약:")
//  3. Quote wrapping removal
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removePreamble(text)
	text = removeQuoteWrapping(text)
	return strings.TrimSpace(text)
}

// thinkingBlockRe matches complete <think>…</think> style blocks. RE2 has no
// backreferences, so each tag is listed.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model hit num_predict mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// preamblePatterns match introductory lines models prepend to a summary.
// Each is anchored to the start and requires a colon.
var preamblePatterns = []*regexp.Regexp{
	// "[Certainly|Sure|Of course,] here is [the] [Korean] summary [of the paper]:"
	regexp.MustCompile(`(?i)^(?:(?:certainly|sure|of course)[,.!]?\s+)?here(?:'s| is)(?: the| a)?(?: korean)? (?:summary|translation)(?: of (?:the|this) (?:paper|abstract))?\s*:`),
	// "[Korean] summary:" / "Translation:"
	regexp.MustCompile(`(?i)^(?:korean )?(?:summary|translation)\s*:`),
	// "다음은 [논문의] [한국어] 요약입니다:"
	regexp.MustCompile(`^다음은[^\n:]{0,30}요약(?:입니다)?\s*:`),
	// "요약:" / "한국어 요약:" / "논문 요약:"
	regexp.MustCompile(`^(?:한국어 |논문 )?요약\s*:`),
	// markdown heading carrying only the word summary
	regexp.MustCompile(`(?i)^#{1,6}\s*(?:summary|요약|한국어 요약)\s*\n`),
}

func removePreamble(text string) string {
	for _, re := range preamblePatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// removeQuoteWrapping strips a matching pair of outer quotes when the entire
// text is wrapped in them. Supported pairs:
//
//	"…"  '…'  «…»  "…"  '…'  「…」
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	if (first == '"' && last == '"') ||
		(first == '\'' && last == '\'') ||
		(first == '«' && last == '»') ||
		(first == '“' && last == '”') ||
		(first == '‘' && last == '’') ||
		(first == '「' && last == '」') {
		return strings.TrimSpace(string(runes[1 : n-1]))
	}
	return text
}
