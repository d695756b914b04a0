// Package prompt turns a prompt corpus into the ordered script the user reads
// from: it loads and filters corpus lines, selects a bounded number of them,
// strips corpus-specific markup and splits long prompts at word boundaries.
package prompt
