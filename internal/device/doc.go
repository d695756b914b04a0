// Package device binds the recorder to the host sound system through PortAudio:
// it opens the callback-driven microphone stream used by audio.Capture and
// plays recorded WAV files back on the default output device.
package device
