// Package thinking separates a model's reasoning segment from its final answer.
package thinking

import "strings"

// DefaultEndToken is the id of the token that closes a reasoning segment
// (</think> in the Qwen3 vocabulary).
const DefaultEndToken = 151668

// DefaultEndMarker is the decoded form of DefaultEndToken.
const DefaultEndMarker = "</think>"

// Split divides tokens at the last occurrence of end. The sentinel itself
// belongs to neither segment; earlier sentinels stay inside thinking. When
// end is absent, thinking is empty and content is the whole sequence.
//
// Both results are freshly allocated and never nil.
func Split(tokens []int, end int) (thinking, content []int) {
	idx := -1
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i] == end {
			idx = i
			break
		}
	}

	if idx < 0 {
		return []int{}, append([]int{}, tokens...)
	}
	return append([]int{}, tokens[:idx]...), append([]int{}, tokens[idx+1:]...)
}

// SplitText applies the same last-occurrence rule to decoded text. Leading
// and trailing whitespace around the answer is trimmed.
func SplitText(text, marker string) (thinking, content string) {
	if marker == "" {
		return "", strings.TrimSpace(text)
	}
	idx := strings.LastIndex(text, marker)
	if idx < 0 {
		return "", strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+len(marker):])
}
