package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/daanzu/speech-training-recorder/internal/apperr"
)

// ErrInputOverflow is recorded when the driver reports that input samples were lost.
var ErrInputOverflow = errors.New("input overflow: samples lost by the device")

// Stream is an opened input device stream
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// SampleHook is invoked by the device driver once per hardware buffer period.
// samples is only valid for the duration of the call.
type SampleHook func(samples []int16, overflow bool)

// StreamOpener opens an input stream that delivers audio to hook.
type StreamOpener func(hook SampleHook) (Stream, error)

// Capture owns the input stream and moves each callback's samples into a Buffer.
type Capture struct {
	buffer *Buffer
	stream Stream
	logger *slog.Logger

	running atomic.Bool
	fault   atomic.Pointer[error]
	chunks  atomic.Uint64

	// serializes Start/Stop/Close; never taken by the hook
	mu sync.Mutex
}

// NewCapture opens the device through open and wires its callback to buffer.
func NewCapture(buffer *Buffer, open StreamOpener, logger *slog.Logger) (*Capture, error) {
	c := &Capture{
		buffer: buffer,
		logger: logger,
	}

	stream, err := open(c.onSamples)
	if err != nil {
		return nil, apperr.E(apperr.CodeDevice, "audio.NewCapture", "failed to open input stream", err)
	}
	c.stream = stream
	return c, nil
}

// onSamples is the producer side of the pipeline. It pushes exactly one chunk
// per call and never blocks on the consumer.
func (c *Capture) onSamples(samples []int16, overflow bool) {
	if !c.running.Load() {
		return
	}

	if overflow {
		c.setFault(ErrInputOverflow)
	}

	chunk := make(Chunk, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(chunk[i*2:], uint16(s))
	}

	if err := c.buffer.Push(chunk); err != nil {
		c.setFault(err)
		return
	}
	c.chunks.Add(1)
}

// setFault keeps the first fault of a capture run.
func (c *Capture) setFault(err error) {
	c.fault.CompareAndSwap(nil, &err)
}

// Start begins sampling. Calling Start while running is a no-op.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running.Load() {
		return nil
	}

	c.fault.Store(nil)
	c.running.Store(true)
	if err := c.stream.Start(); err != nil {
		c.running.Store(false)
		return apperr.E(apperr.CodeDevice, "Capture.Start", "failed to start input stream", err)
	}

	c.logger.Debug("Capture started")
	return nil
}

// Stop halts sampling. Calling Stop while stopped is a no-op. If the run hit
// a fault, Stop returns it as a device error after the stream is halted.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return nil
	}

	err := c.stream.Stop()
	c.running.Store(false)
	if err != nil {
		return apperr.E(apperr.CodeDevice, "Capture.Stop", "failed to stop input stream", err)
	}

	c.logger.Debug("Capture stopped", slog.Uint64("chunks", c.chunks.Load()))
	return c.Err()
}

// Err returns the fault recorded during the current or last run, if any.
func (c *Capture) Err() error {
	p := c.fault.Load()
	if p == nil {
		return nil
	}
	return apperr.E(apperr.CodeDevice, "Capture", "capture callback failed", *p)
}

// Running reports whether the device is currently sampling
func (c *Capture) Running() bool {
	return c.running.Load()
}

// Chunks returns the number of chunks pushed since the capture was opened
func (c *Capture) Chunks() uint64 {
	return c.chunks.Load()
}

// Close stops the stream if needed and releases the device.
func (c *Capture) Close() error {
	if err := c.Stop(); err != nil {
		c.logger.Warn("Capture stopped with error", slog.String("error", err.Error()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.stream.Close(); err != nil {
		return fmt.Errorf("failed to close input stream: %w", err)
	}
	return nil
}
