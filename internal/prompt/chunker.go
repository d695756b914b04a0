package prompt

import (
	"math/rand/v2"
	"strings"
	"unicode"
)

// Split breaks prompt into display segments of roughly softMax runes.
//
// Each segment extends to the first whitespace run starting at or after
// softMax runes from its start, so a boundary never falls inside a word and a
// segment can exceed softMax by at most the word straddling the limit. The
// loop runs at most ceil(len/softMax) times. softMax <= 0 disables splitting.
// Segments are trimmed; an empty prompt yields a single empty segment.
func Split(prompt string, softMax int) []string {
	if softMax <= 0 {
		return []string{prompt}
	}

	runes := []rune(prompt)
	n := (len(runes) + softMax - 1) / softMax

	var segments []string
	start := 0
	for i := 0; i < n; i++ {
		end := nextSpace(runes, start+softMax)
		if end < 0 {
			segments = appendSegment(segments, runes[start:])
			break
		}
		segments = appendSegment(segments, runes[start:end])
		start = end
	}

	if len(segments) == 0 {
		return []string{strings.TrimSpace(prompt)}
	}
	return segments
}

// appendSegment trims seg and appends it unless nothing but whitespace is left.
func appendSegment(segments []string, seg []rune) []string {
	s := strings.TrimSpace(string(seg))
	if s == "" {
		return segments
	}
	return append(segments, s)
}

// nextSpace returns the index of the first whitespace rune at or after from, or -1.
func nextSpace(runes []rune, from int) int {
	for i := from; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}

// BuildScript selects n prompts from lines and splits each into segments,
// returning at most n segments in total (n < 0 means len(lines)).
func BuildScript(lines []string, n int, randomize bool, softMax int, rng *rand.Rand) ([]string, error) {
	if n < 0 {
		n = len(lines)
	}

	prompts, err := Select(lines, n, randomize, rng)
	if err != nil {
		return nil, err
	}

	script := make([]string, 0, len(prompts))
	for _, p := range prompts {
		script = append(script, Split(p, softMax)...)
	}
	if len(script) > n {
		script = script[:n]
	}
	return script, nil
}
