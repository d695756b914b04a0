// Package session drives one recording session: it walks the prompt script,
// starts and stops capture, and persists each take with its metadata record.
//
// State machine:
//
//	Idle -> Armed -> Capturing -> Stopped -> Armed
//
// A device fault during capture returns to Armed without writing anything. A
// failed write keeps the audio pending in Stopped until Persist succeeds or
// Discard drops it. Re-recording a prompt deletes its previous file first, so
// each prompt slot holds at most one recording.
package session
