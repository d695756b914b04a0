package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/daanzu/speech-training-recorder/internal/session"
)

// Controller is the part of a session the terminal drives
type Controller interface {
	Snapshot() session.Snapshot
	StartRecording() error
	StopRecording() error
	Persist() error
	Discard() error
	Play() error
	DeleteCurrent() error
	Next() error
	Prev() error
}

const helpLine = "space: record/stop  p: play  d: delete  n/→: next  b/←: prev  x: discard  q: quit"

var (
	styleDefault   = tcell.StyleDefault
	styleHeader    = tcell.StyleDefault.Reverse(true)
	stylePrompt    = tcell.StyleDefault.Bold(true)
	styleCapturing = tcell.StyleDefault.Bold(true).Foreground(tcell.ColorRed)
	styleDim       = tcell.StyleDefault.Dim(true)
	styleError     = tcell.StyleDefault.Foreground(tcell.ColorRed)
)

// playbackDone is posted when an asynchronous playback finishes
type playbackDone struct {
	err error
}

// UI is a full-screen terminal front end for a recording session
type UI struct {
	screen tcell.Screen
	ctl    Controller
	logger *slog.Logger

	status    string
	statusErr bool

	playing atomic.Bool
	wg      sync.WaitGroup
}

// New creates a UI drawing on screen. The caller initializes the screen
// before Run and finalizes it afterwards.
func New(screen tcell.Screen, ctl Controller, logger *slog.Logger) *UI {
	return &UI{
		screen: screen,
		ctl:    ctl,
		logger: logger,
		status: "Press space to start recording",
	}
}

// Run processes key events until the user quits or ctx is cancelled.
func (u *UI) Run(ctx context.Context) error {
	defer u.wg.Wait()

	u.screen.SetStyle(styleDefault)
	u.screen.Clear()

	stop := context.AfterFunc(ctx, func() {
		u.screen.PostEvent(tcell.NewEventInterrupt(nil))
	})
	defer stop()

	for {
		u.draw()

		switch ev := u.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			u.screen.Sync()
		case *tcell.EventInterrupt:
			if done, ok := ev.Data().(playbackDone); ok {
				u.report("Playback finished", done.err)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
		case *tcell.EventKey:
			if u.handleKey(ev) {
				return nil
			}
		}
	}
}

// handleKey dispatches one key press and reports whether the UI should quit.
func (u *UI) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyEnter:
		u.toggle()
	case tcell.KeyRight:
		u.report("", u.ctl.Next())
	case tcell.KeyLeft:
		u.report("", u.ctl.Prev())
	case tcell.KeyDelete:
		u.report("Recording deleted", u.ctl.DeleteCurrent())
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q', 'Q':
			return true
		case ' ':
			u.toggle()
		case 'n', 'N':
			u.report("", u.ctl.Next())
		case 'b', 'B':
			u.report("", u.ctl.Prev())
		case 'd', 'D':
			u.report("Recording deleted", u.ctl.DeleteCurrent())
		case 'p', 'P':
			u.play()
		case 'r', 'R':
			u.report("Recording saved", u.ctl.Persist())
		case 'x', 'X':
			u.report("Pending recording discarded", u.ctl.Discard())
		}
	}
	return false
}

// toggle starts or stops a take depending on the session state. In Stopped
// it retries the pending write.
func (u *UI) toggle() {
	switch u.ctl.Snapshot().State {
	case session.Capturing.String():
		u.report("Recording saved", u.ctl.StopRecording())
	case session.Stopped.String():
		u.report("Recording saved", u.ctl.Persist())
	default:
		u.report("Recording... press space to stop", u.ctl.StartRecording())
	}
}

// play runs playback off the event loop and posts the result back to it.
func (u *UI) play() {
	if !u.playing.CompareAndSwap(false, true) {
		return
	}
	u.setStatus("Playing...", false)

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer u.playing.Store(false)
		err := u.ctl.Play()
		u.screen.PostEvent(tcell.NewEventInterrupt(playbackDone{err: err}))
	}()
}

func (u *UI) report(success string, err error) {
	if err != nil {
		u.logger.Warn("Action failed", slog.String("error", err.Error()))
		u.setStatus(errorText(err), true)
		return
	}
	u.setStatus(success, false)
}

func (u *UI) setStatus(text string, isErr bool) {
	u.status = text
	u.statusErr = isErr
}

func errorText(err error) string {
	if errors.Is(err, session.ErrNoRecording) {
		return "Nothing recorded for this prompt"
	}
	if errors.Is(err, session.ErrPlaybackActive) {
		return "Wait for playback to finish"
	}
	return "Error: " + err.Error()
}

func (u *UI) draw() {
	u.screen.Clear()
	width, height := u.screen.Size()
	snap := u.ctl.Snapshot()

	header := fmt.Sprintf(" %s  [%d/%d]  recorded: %d  %s ", snap.Corpus, snap.Index+1, snap.Total, snap.Recorded, strings.ToUpper(snap.State))
	fill(u.screen, 0, width, styleHeader)
	drawText(u.screen, 0, 0, width, styleHeader, header)

	style := stylePrompt
	if snap.State == session.Capturing.String() {
		style = styleCapturing
	}
	text := snap.Prompt
	if snap.State == session.Idle.String() {
		text = "All prompts done. Go back with b or quit with q."
		style = styleDim
	}

	lines := Wrap(text, max(width-4, 1))
	top := max((height-len(lines))/2-1, 2)
	for i, line := range lines {
		x := max((width-runewidth.StringWidth(line))/2, 0)
		drawText(u.screen, x, top+i, width, style, line)
	}

	file := "not recorded"
	if snap.File != "" {
		file = filepath.Base(snap.File)
	}
	drawText(u.screen, 1, height-4, width, styleDim, "file: "+file)

	statusStyle := styleDefault
	if u.statusErr {
		statusStyle = styleError
	}
	drawText(u.screen, 1, height-3, width, statusStyle, u.status)
	drawText(u.screen, 1, height-1, width, styleDim, helpLine)

	u.screen.Show()
}

func fill(s tcell.Screen, y, width int, style tcell.Style) {
	for x := 0; x < width; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}
}

// drawText draws text from column x on row y, clipped at width.
func drawText(s tcell.Screen, x, y, width int, style tcell.Style, text string) {
	for _, r := range text {
		w := runewidth.RuneWidth(r)
		if w == 0 {
			continue
		}
		if x+w > width {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x += w
	}
}

// Wrap breaks text into lines no wider than width display cells, at spaces
// where possible. Words wider than a line are cut.
func Wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var line strings.Builder
	lineWidth := 0

	flush := func() {
		lines = append(lines, line.String())
		line.Reset()
		lineWidth = 0
	}

	for _, word := range words {
		ww := runewidth.StringWidth(word)
		if lineWidth > 0 && lineWidth+1+ww > width {
			flush()
		}
		for ww > width {
			head := runewidth.Truncate(word, width, "")
			if head == "" {
				break
			}
			if lineWidth > 0 {
				flush()
			}
			lines = append(lines, head)
			word = strings.TrimPrefix(word, head)
			ww = runewidth.StringWidth(word)
		}
		if word == "" {
			continue
		}
		if lineWidth > 0 {
			line.WriteByte(' ')
			lineWidth++
		}
		line.WriteString(word)
		lineWidth += ww
	}
	if lineWidth > 0 {
		flush()
	}
	return lines
}
