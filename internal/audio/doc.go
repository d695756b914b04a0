// Package audio implements the capture side of the recorder: the device
// callback hook, the FIFO chunk buffer shared with the session controller,
// and the uncompressed WAV container the recordings are written in.
package audio
