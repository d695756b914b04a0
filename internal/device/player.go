package device

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gordonklaus/portaudio"

	"github.com/daanzu/speech-training-recorder/internal/audio"
)

// Player plays WAV recordings synchronously on the default output device.
type Player struct {
	framesPerBuffer int
	logger          *slog.Logger
}

// NewPlayer creates a player. PortAudio must have been initialized with Init.
func NewPlayer(framesPerBuffer int, logger *slog.Logger) *Player {
	return &Player{
		framesPerBuffer: framesPerBuffer,
		logger:          logger,
	}
}

// Play blocks until the whole file has been written to the output device.
func (p *Player) Play(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	samples, format, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	out := make([]int16, p.framesPerBuffer*format.Channels)
	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), p.framesPerBuffer, out)
	if err != nil {
		return fmt.Errorf("failed to open default output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	for pos := 0; pos < len(samples); pos += len(out) {
		n := copy(out, samples[pos:])
		clear(out[n:])
		if err := stream.Write(); err != nil {
			return fmt.Errorf("failed to write to output stream: %w", err)
		}
	}

	p.logger.Debug("Played recording",
		slog.String("file", path),
		slog.Duration("duration", format.Duration(len(samples)*2)),
	)
	return nil
}
