// Package ui is the full-screen terminal front end of the recorder.
package ui
