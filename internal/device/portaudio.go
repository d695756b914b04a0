package device

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/daanzu/speech-training-recorder/internal/audio"
)

var (
	initMu    sync.Mutex
	initCount int
)

// Init initializes PortAudio. Every successful Init must be paired with Terminate.
func Init() error {
	initMu.Lock()
	defer initMu.Unlock()

	if initCount == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize portaudio: %w", err)
		}
	}
	initCount++
	return nil
}

// Terminate releases PortAudio once the last user is done with it.
func Terminate() error {
	initMu.Lock()
	defer initMu.Unlock()

	if initCount == 0 {
		return nil
	}
	initCount--
	if initCount == 0 {
		return portaudio.Terminate()
	}
	return nil
}

// InputConfig describes the microphone stream
type InputConfig struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// InputOpener returns an audio.StreamOpener for the default input device.
// PortAudio must have been initialized with Init.
func InputOpener(cfg InputConfig) audio.StreamOpener {
	return func(hook audio.SampleHook) (audio.Stream, error) {
		callback := func(in []int16, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
			hook(in, flags&portaudio.InputOverflow != 0)
		}

		stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, callback)
		if err != nil {
			return nil, fmt.Errorf("failed to open default input stream: %w", err)
		}
		return stream, nil
	}
}
