package prompt

import (
	"bufio"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/daanzu/speech-training-recorder/internal/apperr"
)

// All selects every line of the corpus.
const All = -1

// CommentPrefix marks corpus lines that are never offered as prompts.
const CommentPrefix = ";"

// ErrEmptyCorpus is returned when prompts must be drawn from a corpus with no lines.
var ErrEmptyCorpus = errors.New("corpus has no prompt lines")

// cleanupRules run in order, each replacing a full-line match at most once.
var cleanupRules = []*regexp.Regexp{
	// arctic: WORD "TEXT"
	regexp.MustCompile(`^[\pL\pN_]+ "(.*)"$`),
	// timit: TEXT (sNN)
	regexp.MustCompile(`^(.*) \(s.?\d+\)$`),
}

// Load reads a corpus file, dropping comment lines and trimming the rest.
// Blank lines are kept as (degenerate) prompts.
func Load(path string) ([]string, error) {
	const op = "prompt.Load"

	file, err := os.Open(path)
	if err != nil {
		return nil, apperr.E(apperr.CodeIO, op, "failed to open corpus", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, CommentPrefix) {
			continue
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.E(apperr.CodeIO, op, "failed to read corpus", err)
	}

	return lines, nil
}

// CorpusName derives the corpus name recorded in metadata from its file name.
func CorpusName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Select picks n prompts from lines (n < 0 means len(lines)) and cleans each.
//
// With randomize set, every prompt is an independent uniform draw from lines,
// so repeats are possible and, for n > len(lines), certain. This is sampling
// with replacement, not a shuffle, and is intended.
// Without randomize, the first n lines are taken in file order.
func Select(lines []string, n int, randomize bool, rng *rand.Rand) ([]string, error) {
	if n < 0 {
		n = len(lines)
	}

	var picked []string
	if randomize {
		if n > 0 && len(lines) == 0 {
			return nil, ErrEmptyCorpus
		}
		picked = make([]string, n)
		for i := range picked {
			picked[i] = lines[rng.IntN(len(lines))]
		}
	} else {
		if n > len(lines) {
			n = len(lines)
		}
		picked = make([]string, n)
		copy(picked, lines[:n])
	}

	for i, line := range picked {
		picked[i] = Clean(line)
	}
	return picked, nil
}

// Clean removes corpus markup from one line. Lines matching no rule are
// returned unchanged.
func Clean(line string) string {
	for _, rule := range cleanupRules {
		line = rule.ReplaceAllString(line, "$1")
	}
	return line
}

var (
	hyphens     = regexp.MustCompile(`[\-]`)
	punctuation = regexp.MustCompile(`[,.?!:;"]`)
)

// Sanitize prepares prompt text for the metadata log. Whitespace is always
// trimmed; stripPunctuation additionally turns hyphens into spaces and drops
// , . ? ! : ; and double quotes.
func Sanitize(text string, stripPunctuation bool) string {
	text = strings.TrimSpace(text)
	if !stripPunctuation {
		return text
	}
	text = hyphens.ReplaceAllString(text, " ")
	text = punctuation.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
