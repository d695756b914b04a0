package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daanzu/speech-training-recorder/internal/apperr"
	"github.com/daanzu/speech-training-recorder/internal/audio"
	"github.com/daanzu/speech-training-recorder/internal/metrics"
	"github.com/daanzu/speech-training-recorder/internal/prompt"
	"github.com/daanzu/speech-training-recorder/internal/store"
)

// State is the recording state of a session
type State int

const (
	// Idle means no prompt is presented, either before the first Arm or after
	// the script has been walked past its last segment.
	Idle State = iota
	// Armed means a prompt is displayed and the device is not sampling.
	Armed
	// Capturing means the device is sampling into the buffer.
	Capturing
	// Stopped means captured audio is waiting to be persisted.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Capturer starts and stops the input device
type Capturer interface {
	Start() error
	Stop() error
}

// Buffer is the consumer side of the capture buffer
type Buffer interface {
	Flush() int
	DrainAll(dropLastN int) []byte
}

// Store persists recordings and their metadata
type Store interface {
	RecordingPath(t time.Time) string
	WriteRecording(path string, data []byte) error
	Remove(path string) error
	AppendMetadata(m store.Metadata) error
}

// Player plays back a recording file
type Player interface {
	Play(path string) error
}

// Context holds everything a session knows about its prompts and output.
type Context struct {
	SaveDir    string
	CorpusName string
	Script     []string
	// Files holds the recording of each script slot, "" when none.
	Files []string
	Index int
}

// Config contains the recording parameters of a session
type Config struct {
	Format           audio.Format
	DropLastChunks   int
	StripPunctuation bool
}

// Deps are the collaborators a session drives
type Deps struct {
	Capture Capturer
	Buffer  Buffer
	Store   Store
	Player  Player
	Metrics *metrics.Metrics
}

// Snapshot is a read-only view of a session for display and the status API
type Snapshot struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	Corpus     string    `json:"corpus"`
	SaveDir    string    `json:"save_dir"`
	Index      int       `json:"index"`
	Total      int       `json:"total"`
	Prompt     string    `json:"prompt"`
	File       string    `json:"file,omitempty"`
	Recorded   int       `json:"recorded"`
	Saved      uint64    `json:"saved"`
	Pending    bool      `json:"pending"`
	StartedAt  time.Time `json:"started_at"`
	CapturedAt time.Time `json:"captured_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// Session walks a prompt script and records one file per prompt slot.
type Session struct {
	id  string
	ctx Context
	cfg Config

	capture Capturer
	buffer  Buffer
	store   Store
	player  Player
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	state      State
	pending    []byte
	startedAt  time.Time
	capturedAt time.Time
	saved      uint64
	lastErr    error
	playing    int

	mu sync.Mutex
}

// New creates a session in the Idle state. The script must not be empty.
func New(ctx Context, cfg Config, deps Deps, logger *slog.Logger) (*Session, error) {
	if len(ctx.Script) == 0 {
		return nil, apperr.E(apperr.CodeConfiguration, "session.New", "prompt script is empty", nil)
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, apperr.E(apperr.CodeConfiguration, "session.New", "invalid audio format", err)
	}
	if deps.Capture == nil || deps.Buffer == nil || deps.Store == nil || deps.Metrics == nil {
		return nil, apperr.E(apperr.CodeConfiguration, "session.New", "missing collaborator", nil)
	}

	if len(ctx.Files) != len(ctx.Script) {
		files := make([]string, len(ctx.Script))
		copy(files, ctx.Files)
		ctx.Files = files
	}
	if ctx.Index < 0 || ctx.Index >= len(ctx.Script) {
		ctx.Index = 0
	}

	s := &Session{
		id:        uuid.NewString(),
		ctx:       ctx,
		cfg:       cfg,
		capture:   deps.Capture,
		buffer:    deps.Buffer,
		store:     deps.Store,
		player:    deps.Player,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
		state:     Idle,
		startedAt: time.Now(),
	}
	s.logger = logger.With(slog.String("session_id", s.id))
	s.metrics.SetScript(len(ctx.Script), ctx.Index)

	s.logger.Info("Session created",
		slog.String("corpus", ctx.CorpusName),
		slog.String("save_dir", ctx.SaveDir),
		slog.Int("segments", len(ctx.Script)),
	)
	return s, nil
}

// ID returns the unique session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func invalidState(op string, state State) error {
	return apperr.E(apperr.CodeInvalidState, op, fmt.Sprintf("not allowed while %s", state), nil)
}

// Arm presents the script segment at index.
func (s *Session) Arm(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arm("Session.Arm", index)
}

func (s *Session) arm(op string, index int) error {
	if s.state != Idle && s.state != Armed {
		return invalidState(op, s.state)
	}
	if index < 0 || index >= len(s.ctx.Script) {
		return apperr.E(apperr.CodeInvalidState, op, fmt.Sprintf("prompt index %d out of range [0, %d)", index, len(s.ctx.Script)), nil)
	}

	s.ctx.Index = index
	s.state = Armed
	s.metrics.SetScript(len(s.ctx.Script), index)
	s.logger.Debug("Prompt armed", slog.Int("index", index), slog.String("prompt", s.ctx.Script[index]))
	return nil
}

// Next presents the following segment. On the last segment it ends the
// script and the session goes Idle; Arm or Prev re-enter it.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle && s.state != Armed {
		return invalidState("Session.Next", s.state)
	}
	if s.state == Idle {
		return s.arm("Session.Next", s.ctx.Index)
	}
	if s.ctx.Index+1 >= len(s.ctx.Script) {
		s.state = Idle
		s.logger.Info("Script finished", slog.Int("recorded", s.recorded()))
		return nil
	}
	return s.arm("Session.Next", s.ctx.Index+1)
}

// Prev presents the preceding segment. On the first segment it re-arms it.
func (s *Session) Prev() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.ctx.Index
	if s.state == Armed && index > 0 {
		index--
	}
	return s.arm("Session.Prev", index)
}

// StartRecording discards stray chunks and starts the device.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Armed {
		return invalidState("Session.StartRecording", s.state)
	}
	if s.playing > 0 {
		return apperr.E(apperr.CodeInvalidState, "Session.StartRecording", "", ErrPlaybackActive)
	}

	flushed := s.buffer.Flush()
	s.logger.Debug("Flushed stale chunks", slog.Int("chunks", flushed))

	if err := s.capture.Start(); err != nil {
		s.lastErr = err
		s.metrics.RecordDeviceError()
		return err
	}

	s.capturedAt = s.now()
	s.state = Capturing
	s.metrics.RecordStarted()
	s.logger.Debug("Recording started", slog.Int("index", s.ctx.Index))
	return nil
}

// StopRecording stops the device, drains the recording and persists it. A
// capture fault discards the audio and returns to Armed. A persist failure
// leaves the session Stopped with the audio pending for Persist or Discard.
func (s *Session) StopRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Capturing {
		return invalidState("Session.StopRecording", s.state)
	}

	if err := s.capture.Stop(); err != nil {
		dropped := s.buffer.Flush()
		s.state = Armed
		s.lastErr = err
		s.metrics.RecordDeviceError()
		s.logger.Error("Recording aborted by device fault",
			slog.Int("index", s.ctx.Index),
			slog.Int("discarded_chunks", dropped),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.pending = s.buffer.DrainAll(s.cfg.DropLastChunks)
	s.state = Stopped
	s.logger.Debug("Recording stopped",
		slog.Int("bytes", len(s.pending)),
		slog.Duration("duration", s.cfg.Format.Duration(len(s.pending))),
	)

	return s.persist()
}

// Persist writes the pending recording for the current slot. Only valid while
// Stopped, so after a failed write it retries the write alone.
func (s *Session) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Stopped {
		return invalidState("Session.Persist", s.state)
	}
	return s.persist()
}

func (s *Session) persist() error {
	const op = "Session.Persist"
	start := s.now()
	slot := s.ctx.Index

	fail := func(err error) error {
		s.lastErr = err
		s.metrics.RecordPersistFailure()
		s.logger.Error("Failed to persist recording",
			slog.Int("index", slot),
			slog.String("error", err.Error()),
		)
		return err
	}

	if prev := s.ctx.Files[slot]; prev != "" {
		if err := s.store.Remove(prev); err != nil {
			return fail(err)
		}
		s.ctx.Files[slot] = ""
		s.metrics.RecordDeleted()
		s.logger.Info("Deleted previous recording", slog.String("file", prev))
	}

	data, err := audio.EncodeWAV(s.pending, s.cfg.Format)
	if err != nil {
		return fail(apperr.E(apperr.CodeIO, op, "failed to encode recording", err))
	}

	path := s.store.RecordingPath(s.now())
	if err := s.store.WriteRecording(path, data); err != nil {
		return fail(err)
	}
	s.ctx.Files[slot] = path

	text := prompt.Sanitize(s.ctx.Script[slot], s.cfg.StripPunctuation)
	if err := s.store.AppendMetadata(store.NewMetadata(path, s.ctx.CorpusName, text)); err != nil {
		return fail(err)
	}

	duration := s.cfg.Format.Duration(len(s.pending))
	s.pending = nil
	s.lastErr = nil
	s.saved++
	s.state = Armed
	s.metrics.RecordSaved(duration.Seconds(), len(data), s.now().Sub(start).Seconds())

	s.logger.Info("Saved recording",
		slog.String("file", path),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", duration),
		slog.Int("index", slot),
	)
	return nil
}

// Discard drops the pending recording of a Stopped session and returns to Armed.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Stopped {
		return invalidState("Session.Discard", s.state)
	}
	s.logger.Warn("Discarded pending recording", slog.Int("bytes", len(s.pending)))
	s.pending = nil
	s.state = Armed
	return nil
}

// ErrNoRecording is returned by Play and DeleteCurrent when the current slot
// has no recording.
var ErrNoRecording = errors.New("no recording for the current prompt")

// ErrPlaybackActive is returned by operations that would replace or remove a
// file while it is being played.
var ErrPlaybackActive = errors.New("playback in progress")

// Play plays the current slot's recording and blocks until it finishes.
func (s *Session) Play() error {
	s.mu.Lock()
	if s.state == Capturing {
		state := s.state
		s.mu.Unlock()
		return invalidState("Session.Play", state)
	}
	path := s.ctx.Files[s.ctx.Index]
	if path == "" {
		s.mu.Unlock()
		return apperr.E(apperr.CodeInvalidState, "Session.Play", "", ErrNoRecording)
	}
	if s.player == nil {
		s.mu.Unlock()
		return apperr.E(apperr.CodeDevice, "Session.Play", "no output device", nil)
	}
	s.playing++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.playing--
		s.mu.Unlock()
	}()

	s.logger.Debug("Playing recording", slog.String("file", path))
	if err := s.player.Play(path); err != nil {
		return apperr.E(apperr.CodeIO, "Session.Play", "playback failed", err)
	}
	return nil
}

// DeleteCurrent removes the current slot's recording. Its metadata record is
// kept; the log is append-only.
func (s *Session) DeleteCurrent() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle && s.state != Armed {
		return invalidState("Session.DeleteCurrent", s.state)
	}
	if s.playing > 0 {
		return apperr.E(apperr.CodeInvalidState, "Session.DeleteCurrent", "", ErrPlaybackActive)
	}
	path := s.ctx.Files[s.ctx.Index]
	if path == "" {
		return apperr.E(apperr.CodeInvalidState, "Session.DeleteCurrent", "", ErrNoRecording)
	}

	if err := s.store.Remove(path); err != nil {
		s.lastErr = err
		return err
	}
	s.ctx.Files[s.ctx.Index] = ""
	s.metrics.RecordDeleted()
	s.logger.Info("Deleted recording", slog.String("file", path), slog.Int("index", s.ctx.Index))
	return nil
}

func (s *Session) recorded() int {
	n := 0
	for _, f := range s.ctx.Files {
		if f != "" {
			n++
		}
	}
	return n
}

// Snapshot returns the current status
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		State:     s.state.String(),
		Corpus:    s.ctx.CorpusName,
		SaveDir:   s.ctx.SaveDir,
		Index:     s.ctx.Index,
		Total:     len(s.ctx.Script),
		Prompt:    s.ctx.Script[s.ctx.Index],
		File:      s.ctx.Files[s.ctx.Index],
		Recorded:  s.recorded(),
		Saved:     s.saved,
		Pending:   s.state == Stopped,
		StartedAt: s.startedAt,
	}
	if s.state == Capturing {
		snap.CapturedAt = s.capturedAt
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}
