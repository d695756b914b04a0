// Package store persists recordings: WAV files written atomically into the
// save directory and the append-only tab-separated metadata log beside them.
package store
